package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/capstan/capstan/internal/engine"
	"github.com/capstan/capstan/pkg/backends"
	"github.com/capstan/capstan/pkg/logger"
	"github.com/capstan/capstan/pkg/mocks"
	"github.com/capstan/capstan/pkg/types"
)

// dryRunDependencies builds a full engine wiring that rehearses the release
// without side effects: packages are discovered from the real workspace, but
// their manifests are copied into a scratch root and every mutating backend
// is replaced by the in-memory mocks. The returned root holds the scratch
// tree, lock, and state; the caller removes it afterwards.
func dryRunDependencies(ctx context.Context, cfg *types.CapstanConfig, log logger.Logger, bumps []string, bumpAll string) (engine.Dependencies, string, error) {
	ws, err := backends.NewManifestWorkspace(workspaceRoot, cfg.Ecosystem)
	if err != nil {
		return engine.Dependencies{}, "", err
	}
	packages, err := ws.Discover(ctx, cfg.ExcludePatterns)
	if err != nil {
		return engine.Dependencies{}, "", err
	}

	scratch, err := os.MkdirTemp("", "capstan-dryrun-*")
	if err != nil {
		return engine.Dependencies{}, "", err
	}

	for _, pkg := range packages {
		content, err := os.ReadFile(pkg.ManifestPath)
		if err != nil {
			os.RemoveAll(scratch)
			return engine.Dependencies{}, "", err
		}
		copyPath := filepath.Join(scratch, pkg.Path, filepath.Base(pkg.ManifestPath))
		if err := os.MkdirAll(filepath.Dir(copyPath), 0755); err != nil {
			os.RemoveAll(scratch)
			return engine.Dependencies{}, "", err
		}
		if err := os.WriteFile(copyPath, content, 0644); err != nil {
			os.RemoveAll(scratch)
			return engine.Dependencies{}, "", err
		}
		pkg.ManifestPath = copyPath
	}

	sha, err := backends.NewGitVCS(workspaceRoot).CurrentSHA(ctx)
	if err != nil {
		// No repository is fine for a rehearsal
		sha = "dry-run"
	}

	planner, err := buildPlanner(bumps, bumpAll)
	if err != nil {
		os.RemoveAll(scratch)
		return engine.Dependencies{}, "", err
	}

	registry := mocks.NewMockRegistry()
	return engine.Dependencies{
		Workspace: mocks.NewMockWorkspace(packages...),
		VCS:       mocks.NewMockVCS(sha),
		Registry:  registry,
		Publisher: &loggingPublisher{MockPublisher: mocks.NewMockPublisher(registry), log: log},
		Planner:   planner,
	}, scratch, nil
}

// loggingPublisher narrates what the real publisher would do
type loggingPublisher struct {
	*mocks.MockPublisher
	log logger.Logger
}

func (p *loggingPublisher) Build(ctx context.Context, pkg *types.Package) error {
	p.log.Info(fmt.Sprintf("Would build %s", pkg.Name))
	return p.MockPublisher.Build(ctx, pkg)
}

func (p *loggingPublisher) Publish(ctx context.Context, pkg *types.Package, version string) error {
	p.log.Info(fmt.Sprintf("Would publish %s@%s", pkg.Name, version))
	return p.MockPublisher.Publish(ctx, pkg, version)
}
