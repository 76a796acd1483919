// Package mocks provides in-memory implementations of the collaborator
// interfaces. They back the engine tests, the --dry-run release path, and
// the backend conformance suite.
package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/capstan/capstan/pkg/interfaces"
	"github.com/capstan/capstan/pkg/types"
)

// MockWorkspace is an in-memory Workspace
type MockWorkspace struct {
	mu       sync.RWMutex
	Packages []*types.Package

	discoverError error
	// manifest path -> dependency name -> rewritten version
	depRewrites map[string]map[string]string
	versions    map[string]string
}

// NewMockWorkspace creates a workspace over the given packages
func NewMockWorkspace(packages ...*types.Package) *MockWorkspace {
	return &MockWorkspace{
		Packages:    packages,
		depRewrites: make(map[string]map[string]string),
		versions:    make(map[string]string),
	}
}

// SetDiscoverError makes Discover fail
func (m *MockWorkspace) SetDiscoverError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discoverError = err
}

// Discover returns the configured packages minus excluded paths
func (m *MockWorkspace) Discover(_ context.Context, excludePatterns []string) ([]*types.Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.discoverError != nil {
		return nil, m.discoverError
	}

	excluded := make(map[string]bool, len(excludePatterns))
	for _, p := range excludePatterns {
		excluded[p] = true
	}

	result := make([]*types.Package, 0, len(m.Packages))
	for _, pkg := range m.Packages {
		if excluded[pkg.Path] {
			continue
		}
		result = append(result, pkg)
	}
	return result, nil
}

// RewriteVersion records the version rewrite and returns the old version
func (m *MockWorkspace) RewriteVersion(manifestPath, newVersion string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := ""
	for _, pkg := range m.Packages {
		if pkg.ManifestPath == manifestPath {
			old = pkg.Version
		}
	}
	if old == "" {
		return "", fmt.Errorf("unknown manifest: %s", manifestPath)
	}
	m.versions[manifestPath] = newVersion
	return old, nil
}

// RewriteDependencyVersion records a dependency rewrite
func (m *MockWorkspace) RewriteDependencyVersion(manifestPath, depName, newVersion string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.depRewrites[manifestPath] == nil {
		m.depRewrites[manifestPath] = make(map[string]string)
	}
	m.depRewrites[manifestPath][depName] = newVersion
	return nil
}

// RewrittenDependency returns the last rewrite for a dependency reference
func (m *MockWorkspace) RewrittenDependency(manifestPath, depName string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.depRewrites[manifestPath][depName]
}

// RewrittenVersion returns the last version rewrite for a manifest
func (m *MockWorkspace) RewrittenVersion(manifestPath string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[manifestPath]
}

// MockVCS is an in-memory VCS
type MockVCS struct {
	mu   sync.RWMutex
	SHA  string
	Tags map[string]bool

	shaError error
}

// NewMockVCS creates a VCS sitting on the given commit
func NewMockVCS(sha string) *MockVCS {
	return &MockVCS{SHA: sha, Tags: make(map[string]bool)}
}

// SetSHAError makes CurrentSHA fail
func (m *MockVCS) SetSHAError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shaError = err
}

// CurrentSHA returns the configured commit
func (m *MockVCS) CurrentSHA(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.shaError != nil {
		return "", m.shaError
	}
	return m.SHA, nil
}

// TagExists reports whether the tag was configured
func (m *MockVCS) TagExists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Tags[name], nil
}

// CreateTag records the tag
func (m *MockVCS) CreateTag(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tags[name] = true
	return nil
}

// MockRegistry is an in-memory Registry
type MockRegistry struct {
	mu        sync.RWMutex
	Published map[string]bool // "name@version"
}

// NewMockRegistry creates an empty registry
func NewMockRegistry() *MockRegistry {
	return &MockRegistry{Published: make(map[string]bool)}
}

// MarkPublished records name@version as available
func (m *MockRegistry) MarkPublished(name, version string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published[name+"@"+version] = true
}

// CheckPublished reports availability
func (m *MockRegistry) CheckPublished(_ context.Context, name, version string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Published[name+"@"+version], nil
}

// MockPublisher records build/publish calls and can fail selected packages
type MockPublisher struct {
	mu        sync.Mutex
	Built     []string
	Publishes []string
	FailBuild map[string]error
	Registry  *MockRegistry
}

// NewMockPublisher creates a publisher, optionally wired to a registry so
// successful publishes become visible to CheckPublished.
func NewMockPublisher(registry *MockRegistry) *MockPublisher {
	return &MockPublisher{
		FailBuild: make(map[string]error),
		Registry:  registry,
	}
}

// Build records the build, failing if configured to
func (m *MockPublisher) Build(_ context.Context, pkg *types.Package) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailBuild[pkg.Name]; err != nil {
		return err
	}
	m.Built = append(m.Built, pkg.Name)
	return nil
}

// Publish records the publish and marks the registry
func (m *MockPublisher) Publish(_ context.Context, pkg *types.Package, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Publishes = append(m.Publishes, pkg.Name+"@"+version)
	if m.Registry != nil {
		m.Registry.MarkPublished(pkg.Name, version)
	}
	return nil
}

// BuiltPackages returns the build order observed so far
func (m *MockPublisher) BuiltPackages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.Built...)
}

// PublishedPackages returns the publish calls observed so far
func (m *MockPublisher) PublishedPackages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.Publishes...)
}

// MockVersionPlanner returns a fixed set of bumps
type MockVersionPlanner struct {
	Versions []types.PackageVersion
}

// Plan returns the configured versions
func (m *MockVersionPlanner) Plan(_ context.Context, _ []*types.Package) ([]types.PackageVersion, error) {
	return m.Versions, nil
}

// Interface conformance
var (
	_ interfaces.Workspace      = (*MockWorkspace)(nil)
	_ interfaces.VCS            = (*MockVCS)(nil)
	_ interfaces.Registry       = (*MockRegistry)(nil)
	_ interfaces.Publisher      = (*MockPublisher)(nil)
	_ interfaces.VersionPlanner = (*MockVersionPlanner)(nil)
)
