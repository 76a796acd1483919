package backends

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/capstan/capstan/pkg/pin"
	"github.com/capstan/capstan/pkg/types"
)

// manifestSpec describes how one ecosystem lays out its package manifests
type manifestSpec struct {
	fileName       string
	namePattern    *regexp.Regexp
	versionPattern *regexp.Regexp
}

var manifestSpecs = map[types.Ecosystem]manifestSpec{
	types.EcosystemPython: {
		fileName:       "pyproject.toml",
		namePattern:    regexp.MustCompile(`(?m)^name\s*=\s*"([^"]+)"`),
		versionPattern: regexp.MustCompile(`(?m)^(version\s*=\s*")([^"]+)(")`),
	},
	types.EcosystemRust: {
		fileName:       "Cargo.toml",
		namePattern:    regexp.MustCompile(`(?m)^name\s*=\s*"([^"]+)"`),
		versionPattern: regexp.MustCompile(`(?m)^(version\s*=\s*")([^"]+)(")`),
	},
	types.EcosystemDart: {
		fileName:       "pubspec.yaml",
		namePattern:    regexp.MustCompile(`(?m)^name:\s*(\S+)`),
		versionPattern: regexp.MustCompile(`(?m)^(version:\s*)(\S+)()`),
	},
}

// skipDirs are never descended into during discovery
var skipDirs = map[string]bool{
	".git":         true,
	".capstan":     true,
	"node_modules": true,
	"target":       true,
	"dist":         true,
	"build":        true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
}

// ManifestWorkspace discovers packages by walking the monorepo for the
// ecosystem's manifest files and classifies dependencies as internal when
// their normalized name matches another discovered package.
type ManifestWorkspace struct {
	root string
	spec manifestSpec
}

// NewManifestWorkspace creates a workspace for the given ecosystem root
func NewManifestWorkspace(root string, ecosystem types.Ecosystem) (*ManifestWorkspace, error) {
	spec, ok := manifestSpecs[ecosystem]
	if !ok {
		return nil, fmt.Errorf("unsupported ecosystem: %s", ecosystem)
	}
	return &ManifestWorkspace{root: root, spec: spec}, nil
}

// Discover walks the workspace and returns its packages, name-sorted.
// excludePatterns match against the package path relative to the root.
func (w *ManifestWorkspace) Discover(ctx context.Context, excludePatterns []string) ([]*types.Package, error) {
	var manifests []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == w.spec.fileName {
			manifests = append(manifests, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("workspace walk failed: %w", err)
	}

	packages := make([]*types.Package, 0, len(manifests))
	for _, manifestPath := range manifests {
		rel, err := filepath.Rel(w.root, filepath.Dir(manifestPath))
		if err != nil {
			return nil, err
		}
		if matchesAny(rel, excludePatterns) {
			continue
		}

		pkg, err := w.parseManifest(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", manifestPath, err)
		}
		pkg.Path = rel
		packages = append(packages, pkg)
	}

	classifyInternalDeps(packages)
	sort.Slice(packages, func(i, j int) bool { return packages[i].Name < packages[j].Name })
	return packages, nil
}

// RewriteVersion sets the package's own version line and returns the old one
func (w *ManifestWorkspace) RewriteVersion(manifestPath, newVersion string) (string, error) {
	content, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", err
	}

	m := w.spec.versionPattern.FindSubmatch(content)
	if m == nil {
		return "", fmt.Errorf("no version field in %s", manifestPath)
	}
	old := string(m[2])

	replaced := false
	rewritten := w.spec.versionPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		if replaced {
			return match
		}
		replaced = true
		g := w.spec.versionPattern.FindSubmatch(match)
		return []byte(string(g[1]) + newVersion + string(g[3]))
	})

	if err := os.WriteFile(manifestPath, rewritten, 0644); err != nil {
		return "", err
	}
	return old, nil
}

// RewriteDependencyVersion pins one dependency reference to an exact version
func (w *ManifestWorkspace) RewriteDependencyVersion(manifestPath, depName, newVersion string) error {
	content, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}

	rewritten := pin.Rewrite(content, map[string]string{depName: newVersion})
	if string(rewritten) == string(content) {
		return fmt.Errorf("dependency %s not found in %s", depName, manifestPath)
	}
	return os.WriteFile(manifestPath, rewritten, 0644)
}

func (w *ManifestWorkspace) parseManifest(path string) (*types.Package, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	name := w.spec.namePattern.FindSubmatch(content)
	if name == nil {
		return nil, fmt.Errorf("no package name")
	}
	version := w.spec.versionPattern.FindSubmatch(content)
	if version == nil {
		return nil, fmt.Errorf("no package version")
	}

	return &types.Package{
		Name:         string(name[1]),
		Version:      string(version[2]),
		ManifestPath: path,
		ExternalDeps: dependencyNames(content),
		Publishable:  true,
	}, nil
}

var (
	sectionHeader = regexp.MustCompile(`^\[[^\]]*\]`)
	depsListOpen  = regexp.MustCompile(`^dependencies\s*=\s*\[`)
	// "<name><specifier>",  inside a requirement list
	quotedDep = regexp.MustCompile(`^"([A-Za-z][A-Za-z0-9._-]*)[^"]*"\s*,?$`)
	// <name> = ... or <name>: ...  inside a dependency table
	keyDep = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9._-]*)\s*[:=]`)
)

// dependencyNames extracts dependency names from the manifest's dependency
// sections. The detailed per-format version rewriting lives in pkg/pin;
// discovery only needs names.
func dependencyNames(content []byte) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	inList, inTable, inYAML := false, false, false
	for _, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSpace(raw)

		if inList {
			if strings.HasPrefix(line, "]") {
				inList = false
				continue
			}
			if m := quotedDep.FindStringSubmatch(line); m != nil {
				add(m[1])
			}
			continue
		}

		if line == "dependencies:" || line == "dev_dependencies:" {
			inYAML = true
			continue
		}
		if inYAML {
			if strings.HasPrefix(raw, " ") || strings.HasPrefix(raw, "\t") {
				if m := keyDep.FindStringSubmatch(line); m != nil {
					add(m[1])
				}
				continue
			}
			inYAML = false
		}

		if sectionHeader.MatchString(line) {
			inTable = strings.Contains(line, "dependencies")
			continue
		}
		if depsListOpen.MatchString(line) {
			inList = true
			continue
		}
		if inTable {
			if m := keyDep.FindStringSubmatch(line); m != nil {
				add(m[1])
			}
		}
	}
	return names
}

// classifyInternalDeps moves dependencies whose normalized name matches a
// sibling package from ExternalDeps to InternalDeps, recorded under the
// sibling's canonical name.
func classifyInternalDeps(packages []*types.Package) {
	byNormalized := make(map[string]string, len(packages))
	for _, pkg := range packages {
		byNormalized[pin.NormalizeName(pkg.Name)] = pkg.Name
	}

	for _, pkg := range packages {
		var internal, external []string
		for _, dep := range pkg.ExternalDeps {
			canonical, ok := byNormalized[pin.NormalizeName(dep)]
			if ok && canonical != pkg.Name {
				internal = append(internal, canonical)
			} else if canonical != pkg.Name {
				external = append(external, dep)
			}
		}
		pkg.InternalDeps = internal
		pkg.ExternalDeps = external
	}
}

func matchesAny(rel string, patterns []string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		if pattern == rel || strings.HasPrefix(rel, pattern+"/") {
			return true
		}
	}
	return false
}
