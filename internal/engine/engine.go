// Package engine provides the core release orchestration
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/capstan/capstan/pkg/graph"
	"github.com/capstan/capstan/pkg/interfaces"
	"github.com/capstan/capstan/pkg/lock"
	"github.com/capstan/capstan/pkg/logger"
	"github.com/capstan/capstan/pkg/pin"
	"github.com/capstan/capstan/pkg/plan"
	"github.com/capstan/capstan/pkg/process"
	"github.com/capstan/capstan/pkg/state"
	"github.com/capstan/capstan/pkg/types"
)

// StateFileName is the run state file inside the workspace state dir
const StateFileName = "release-state.json"

// StatePath returns the run state path for a workspace root
func StatePath(root string) string {
	return filepath.Join(root, ".capstan", StateFileName)
}

// ReleaseTag is the tag name recorded per published package version
func ReleaseTag(name, version string) string {
	return fmt.Sprintf("%s-v%s", name, version)
}

// Dependencies are the injected collaborator backends
type Dependencies struct {
	Workspace      interfaces.Workspace
	VCS            interfaces.VCS
	Registry       interfaces.Registry
	Publisher      interfaces.Publisher
	Planner        interfaces.VersionPlanner
	ProcessManager *process.Manager
}

// Releaser is the release orchestration engine: it plans, locks, executes
// level by level, and keeps the run state durable across crashes.
type Releaser struct {
	config *types.CapstanConfig
	root   string
	logger logger.Logger
	deps   Dependencies

	packages map[string]*types.Package
	versions map[string]types.PackageVersion
	levels   [][]*types.Package
}

// New creates a Releaser
func New(cfg *types.CapstanConfig, root string, log logger.Logger, deps Dependencies) *Releaser {
	if deps.Workspace == nil {
		panic("Workspace dependency is required")
	}
	if deps.VCS == nil {
		panic("VCS dependency is required")
	}
	if deps.Registry == nil {
		panic("Registry dependency is required")
	}
	if deps.Publisher == nil {
		panic("Publisher dependency is required")
	}
	if deps.Planner == nil {
		panic("Planner dependency is required")
	}

	absRoot, err := filepath.Abs(root)
	if err == nil {
		root = absRoot
	}

	return &Releaser{
		config: cfg,
		root:   root,
		logger: log,
		deps:   deps,
	}
}

// Plan discovers the workspace, levels the dependency graph, and builds the
// execution plan. Graph and plan errors abort before any mutation occurs.
func (r *Releaser) Plan(ctx context.Context) (*plan.ExecutionPlan, error) {
	packages, err := r.deps.Workspace.Discover(ctx, r.config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("workspace discovery failed: %w", err)
	}

	levels, err := graph.BuildGraph(packages).Levels()
	if err != nil {
		return nil, err
	}

	versions, err := r.deps.Planner.Plan(ctx, packages)
	if err != nil {
		return nil, fmt.Errorf("version computation failed: %w", err)
	}

	sha, err := r.deps.VCS.CurrentSHA(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read current commit: %w", err)
	}

	alreadyPublished := make(map[string]bool)
	for _, v := range versions {
		if v.Bump == types.BumpNone || v.Bump == "" {
			continue
		}
		published, err := r.deps.Registry.CheckPublished(ctx, v.Name, v.NewVersion)
		if err != nil {
			r.logger.Warn("Registry check failed, assuming not published",
				logger.WithField("package", v.Name),
				logger.WithField("error", err))
			continue
		}
		if !published {
			// A release tag from an earlier run counts even when the
			// registry has not indexed the artifact yet
			published, err = r.deps.VCS.TagExists(ctx, ReleaseTag(v.Name, v.NewVersion))
			if err != nil {
				return nil, fmt.Errorf("tag lookup failed for %s: %w", v.Name, err)
			}
		}
		if published {
			alreadyPublished[v.Name] = true
		}
	}

	r.packages = make(map[string]*types.Package, len(packages))
	for _, pkg := range packages {
		r.packages[pkg.Name] = pkg
	}
	r.versions = make(map[string]types.PackageVersion, len(versions))
	for _, v := range versions {
		r.versions[v.Name] = v
	}
	r.levels = levels

	return plan.Build(versions, levels, plan.Options{
		Exclude:          r.config.Exclude,
		AlreadyPublished: alreadyPublished,
		GitSHA:           sha,
	}), nil
}

// Run executes a release. With resume set, an existing run state is picked
// up and only pending work is retried; resuming against a different commit
// is refused.
func (r *Releaser) Run(ctx context.Context, resume bool) error {
	executionPlan, err := r.Plan(ctx)
	if err != nil {
		return err
	}

	staleAge := time.Duration(r.config.StaleLockAge) * time.Second
	lockPath, err := lock.Acquire(r.root, staleAge)
	if err != nil {
		return err
	}
	defer lock.Release(lockPath)

	if r.deps.ProcessManager != nil {
		r.deps.ProcessManager.RegisterShutdownHandler(func() {
			pin.RunExitHooks()
			lock.Release(lockPath)
		})
		r.deps.ProcessManager.Start(ctx)
	}

	statePath := StatePath(r.root)
	runState, err := r.prepareState(executionPlan, statePath, resume)
	if err != nil {
		return err
	}
	if err := runState.Save(statePath); err != nil {
		return err
	}

	for level, packages := range r.levels {
		if err := r.runLevel(ctx, level, packages, executionPlan, runState, statePath); err != nil {
			return err
		}
	}

	if failed := runState.FailedPackages(); len(failed) > 0 {
		return fmt.Errorf("release incomplete: %s failed; fix and run resume", strings.Join(failed, ", "))
	}
	if !runState.IsComplete() {
		return fmt.Errorf("release incomplete: %s still pending", strings.Join(runState.PendingPackages(), ", "))
	}

	if err := state.Delete(statePath); err != nil {
		return err
	}
	r.logger.Success("Release complete",
		logger.WithField("published", len(runState.PublishedPackages())))
	return nil
}

func (r *Releaser) prepareState(p *plan.ExecutionPlan, statePath string, resume bool) (*state.RunState, error) {
	if resume {
		runState, err := state.Load(statePath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("nothing to resume: no run state at %s", statePath)
			}
			return nil, err
		}
		if err := runState.ValidateSHA(p.GitSHA); err != nil {
			return nil, err
		}
		// Failed packages and packages the previous run died inside both get
		// another attempt; only published and skipped survive as terminal.
		if requeued := runState.Requeue(); len(requeued) > 0 {
			r.logger.Info("Retrying unfinished packages",
				logger.WithField("packages", strings.Join(requeued, ", ")))
		}
		r.logger.Info("Resuming release run",
			logger.WithField("pending", len(runState.PendingPackages())),
			logger.WithField("published", len(runState.PublishedPackages())))
		return runState, nil
	}

	if _, err := os.Stat(statePath); err == nil {
		return nil, fmt.Errorf("run state already exists at %s: resume it or delete it", statePath)
	}

	runState := state.New(p.GitSHA)
	for _, entry := range p.Included() {
		runState.InitPackage(entry.Name, entry.NextVersion, entry.Level)
	}
	return runState, nil
}

// runLevel executes one topological level on the bounded worker pool.
// Failures within a level do not abort siblings; they surface through the
// run state and block dependents in later levels.
func (r *Releaser) runLevel(ctx context.Context, level int, packages []*types.Package, p *plan.ExecutionPlan, runState *state.RunState, statePath string) error {
	runnable := make([]*types.Package, 0, len(packages))
	for _, pkg := range packages {
		entry := p.Entry(pkg.Name)
		if entry == nil {
			continue
		}

		if entry.Status == plan.StatusDependencyOnly {
			r.rewriteDependencies(pkg, p, runState)
			continue
		}
		if entry.Status == plan.StatusAlreadyPublished {
			// A tracked package lands here on resume when a prior attempt
			// reached the registry before verification finished. The work
			// is done; record it so dependents unblock.
			if status, tracked := runState.Status(pkg.Name); tracked && status == types.StatusPending {
				runState.SetStatus(pkg.Name, types.StatusPublished, "")
			}
			continue
		}
		if entry.Status != plan.StatusIncluded {
			continue
		}

		status, tracked := runState.Status(pkg.Name)
		if !tracked || status != types.StatusPending {
			continue
		}
		if blocked := r.blockedBy(pkg, runState); blocked != "" {
			r.logger.Warn("Package blocked by failed dependency, leaving pending",
				logger.WithField("package", pkg.Name),
				logger.WithField("dependency", blocked))
			continue
		}
		runnable = append(runnable, pkg)
	}

	if len(runnable) == 0 {
		return nil
	}

	sort.Slice(runnable, func(i, j int) bool { return runnable[i].Name < runnable[j].Name })
	r.logger.Info(fmt.Sprintf("Releasing level %d: %d package(s)", level, len(runnable)))

	g, ctx := NewSafeGroup(ctx, r.logger)
	concurrency := r.config.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	g.SetLimit(concurrency)

	for _, pkg := range runnable {
		pkg := pkg
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err := r.releasePackage(ctx, pkg, p, runState, statePath); err != nil {
				log := r.logger.WithPackage(pkg.Name)
				log.Error("Release step failed", logger.WithField("error", err))
				runState.SetStatus(pkg.Name, types.StatusFailed, err.Error())
				if saveErr := runState.Save(statePath); saveErr != nil {
					log.Error("Failed to persist run state", logger.WithField("error", saveErr))
				}
			}
			// Per-package failures never abort siblings in the level
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	// Between-level checkpoint
	return runState.Save(statePath)
}

// releasePackage drives one package to a terminal status
func (r *Releaser) releasePackage(ctx context.Context, pkg *types.Package, p *plan.ExecutionPlan, runState *state.RunState, statePath string) error {
	log := r.logger.WithPackage(pkg.Name)

	// The version recorded at plan time wins over a re-plan: on a resumed
	// run the manifest may already carry the rewritten version.
	target := r.versions[pkg.Name].NewVersion
	if recorded, ok := runState.Version(pkg.Name); ok {
		target = recorded
	}

	transition := func(status types.ReleaseStatus) error {
		if err := runState.SetStatus(pkg.Name, status, ""); err != nil {
			return err
		}
		return runState.Save(statePath)
	}

	if err := transition(types.StatusBuilding); err != nil {
		return err
	}

	if _, err := r.deps.Workspace.RewriteVersion(pkg.ManifestPath, target); err != nil {
		return fmt.Errorf("version rewrite failed: %w", err)
	}

	err := pin.With(pkg.ManifestPath, r.pinsFor(pkg, p, runState), log, func() error {
		log.Info("Building", logger.WithField("version", target))
		if err := r.deps.Publisher.Build(ctx, pkg); err != nil {
			return fmt.Errorf("build failed: %w", err)
		}

		if err := transition(types.StatusPublishing); err != nil {
			return err
		}
		log.Info("Publishing", logger.WithField("version", target))
		if err := r.deps.Publisher.Publish(ctx, pkg, target); err != nil {
			return fmt.Errorf("publish failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := transition(types.StatusVerifying); err != nil {
		return err
	}
	published, err := r.deps.Registry.CheckPublished(ctx, pkg.Name, target)
	if err != nil {
		return fmt.Errorf("registry verification failed: %w", err)
	}
	if !published {
		return fmt.Errorf("%s@%s not visible in registry after publish", pkg.Name, target)
	}

	if err := r.deps.VCS.CreateTag(ctx, ReleaseTag(pkg.Name, target)); err != nil {
		// The artifact is live; a missing tag only weakens future
		// already-published detection
		log.Warn("Failed to create release tag", logger.WithField("error", err))
	}

	log.Success("Published", logger.WithField("version", target))
	return transition(types.StatusPublished)
}

// pinsFor maps each internal dependency to the exact version the dependent
// should build against: the version the run state recorded for it, the plan's
// next version when this run publishes it or the registry already has it, the
// current version otherwise. A computed bump alone is never enough; an
// excluded dependency's next version will not exist anywhere.
func (r *Releaser) pinsFor(pkg *types.Package, p *plan.ExecutionPlan, runState *state.RunState) map[string]string {
	pins := make(map[string]string, len(pkg.InternalDeps))
	for _, dep := range pkg.InternalDeps {
		depPkg, ok := r.packages[dep]
		if !ok {
			continue
		}
		if recorded, ok := runState.Version(dep); ok {
			pins[dep] = recorded
		} else if next := publishableVersion(p, dep); next != "" {
			pins[dep] = next
		} else {
			pins[dep] = depPkg.Version
		}
	}
	return pins
}

// publishableVersion returns the plan's next version for a package when that
// version exists or will exist in the registry, "" otherwise.
func publishableVersion(p *plan.ExecutionPlan, name string) string {
	entry := p.Entry(name)
	if entry == nil {
		return ""
	}
	if entry.Status == plan.StatusIncluded || entry.Status == plan.StatusAlreadyPublished {
		return entry.NextVersion
	}
	return ""
}

// rewriteDependencies permanently updates a dependency-only package's
// manifest to the freshly published versions of its internal deps.
func (r *Releaser) rewriteDependencies(pkg *types.Package, p *plan.ExecutionPlan, runState *state.RunState) {
	log := r.logger.WithPackage(pkg.Name)
	for _, dep := range pkg.InternalDeps {
		if status, tracked := runState.Status(dep); tracked && status != types.StatusPublished {
			continue
		}
		version := ""
		if recorded, ok := runState.Version(dep); ok {
			version = recorded
		} else {
			version = publishableVersion(p, dep)
		}
		if version == "" {
			continue
		}
		if err := r.deps.Workspace.RewriteDependencyVersion(pkg.ManifestPath, dep, version); err != nil {
			log.Warn("Dependency rewrite failed",
				logger.WithField("dependency", dep),
				logger.WithField("error", err))
		}
	}
}

// blockedBy returns the name of a failed or still-pending internal
// dependency that prevents this package from starting, or "".
func (r *Releaser) blockedBy(pkg *types.Package, runState *state.RunState) string {
	for _, dep := range pkg.InternalDeps {
		status, tracked := runState.Status(dep)
		if !tracked {
			continue // skipped, excluded, or already published
		}
		if status != types.StatusPublished {
			return dep
		}
	}
	return ""
}
