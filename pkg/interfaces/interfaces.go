// Package interfaces provides the collaborator contracts the orchestrator
// consumes. Workspace discovery, version control, registries, and version
// computation are swappable backends behind these interfaces.
package interfaces

import (
	"context"

	"github.com/capstan/capstan/pkg/types"
)

// Workspace abstracts per-ecosystem package discovery and manifest rewriting
type Workspace interface {
	// Discover returns the workspace's packages, minus any whose path
	// matches an exclude pattern. Packages are immutable once discovered
	// for the duration of a run.
	Discover(ctx context.Context, excludePatterns []string) ([]*types.Package, error)

	// RewriteVersion sets the package's own version in its manifest and
	// returns the previous version.
	RewriteVersion(manifestPath, newVersion string) (string, error)

	// RewriteDependencyVersion updates a dependency reference in a manifest
	RewriteDependencyVersion(manifestPath, depName, newVersion string) error
}

// VCS abstracts the version-control backend
type VCS interface {
	// CurrentSHA returns the commit the workspace currently sits on
	CurrentSHA(ctx context.Context) (string, error)

	// TagExists reports whether a release tag already exists
	TagExists(ctx context.Context, name string) (bool, error)

	// CreateTag records a release tag at the current commit
	CreateTag(ctx context.Context, name string) error
}

// Registry abstracts package-registry availability checks
type Registry interface {
	// CheckPublished reports whether name@version is already available,
	// feeding the plan builder's already-published set.
	CheckPublished(ctx context.Context, name, version string) (bool, error)
}

// Publisher performs the isolated build/publish step for one package.
// The ephemeral pin wraps these calls; both must be safe to retry on a
// resumed run.
type Publisher interface {
	Build(ctx context.Context, pkg *types.Package) error
	Publish(ctx context.Context, pkg *types.Package, version string) error
}

// VersionPlanner computes the per-package version bumps for a run. The
// orchestrator never inspects commit history itself.
type VersionPlanner interface {
	Plan(ctx context.Context, packages []*types.Package) ([]types.PackageVersion, error)
}
