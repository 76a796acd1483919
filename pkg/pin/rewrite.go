package pin

import (
	"regexp"
	"strings"
)

// NormalizeName canonicalizes a dependency name for matching: lowercase,
// with underscores and dots folded to hyphens. Normalization lives here and
// only here; a name that still does not match is conservatively left
// unpinned rather than guessed at.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "_", "-")
	name = strings.ReplaceAll(name, ".", "-")
	return name
}

var (
	// name = "<specifier>"  (TOML-style dependency table entry)
	tomlEntry = regexp.MustCompile(`^(\s*)([A-Za-z0-9._-]+)(\s*=\s*)"[^"]*"(.*)$`)
	// name: <specifier>  (YAML-style dependency map entry)
	yamlEntry = regexp.MustCompile(`^(\s*)([A-Za-z0-9._-]+)(:\s*)(\S.*)$`)
	// "<specifier>",  (quoted requirement inside a list)
	quotedReq = regexp.MustCompile(`^(\s*)"([^"]+)"(\s*,?\s*)$`)
	// leading bare package name of any specifier
	bareName = regexp.MustCompile(`^[A-Za-z0-9._-]+`)
)

// Rewrite replaces every dependency entry whose normalized name appears in
// pins with an exact-version pin, leaving everything else byte-identical.
// Malformed specifiers fall back to best-effort name extraction; a line
// whose name cannot be extracted is left untouched.
func Rewrite(content []byte, pins map[string]string) []byte {
	normalized := make(map[string]string, len(pins))
	for name, version := range pins {
		normalized[NormalizeName(name)] = version
	}

	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		lines[i] = rewriteLine(line, normalized)
	}
	return []byte(strings.Join(lines, "\n"))
}

func rewriteLine(line string, pins map[string]string) string {
	// Quoted requirement in a list, e.g. `    "core>=0.5",`
	if m := quotedReq.FindStringSubmatch(line); m != nil {
		spec := m[2]
		name := bareName.FindString(spec)
		if version, ok := pins[NormalizeName(name)]; ok && name != "" {
			return m[1] + `"` + name + "==" + version + `"` + m[3]
		}
		return line
	}

	// TOML table entry, e.g. `core = "^0.5"`
	if m := tomlEntry.FindStringSubmatch(line); m != nil {
		if version, ok := pins[NormalizeName(m[2])]; ok {
			return m[1] + m[2] + m[3] + `"` + version + `"` + m[4]
		}
		return line
	}

	// YAML map entry, e.g. `  core: ^0.5.0`
	if m := yamlEntry.FindStringSubmatch(line); m != nil {
		if version, ok := pins[NormalizeName(m[2])]; ok {
			return m[1] + m[2] + m[3] + version
		}
		return line
	}

	// Bare requirement line, e.g. `core>=0.5` or just `core`
	trimmed := strings.TrimSpace(line)
	name := bareName.FindString(trimmed)
	if name == "" {
		return line
	}
	rest := trimmed[len(name):]
	if rest != "" && !strings.ContainsAny(rest[:1], "=<>~![( ") {
		return line
	}
	if version, ok := pins[NormalizeName(name)]; ok {
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		return indent + name + "==" + version
	}
	return line
}
