package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/capstan/capstan/internal/engine"
	"github.com/capstan/capstan/pkg/backends"
	"github.com/capstan/capstan/pkg/config"
	"github.com/capstan/capstan/pkg/lock"
	"github.com/capstan/capstan/pkg/logger"
	"github.com/capstan/capstan/pkg/process"
	"github.com/capstan/capstan/pkg/state"
	"github.com/capstan/capstan/pkg/types"
)

func newPlanCmd() *cobra.Command {
	var bumps []string
	var bumpAll string
	var output string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a release would publish",
		Long: `Discover the workspace, level the dependency graph, and print the
execution plan without touching anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, bumps, bumpAll, output)
		},
	}

	cmd.Flags().StringArrayVar(&bumps, "bump", nil, "per-package bump, e.g. --bump core=minor (repeatable)")
	cmd.Flags().StringVar(&bumpAll, "bump-all", "", "default bump for packages without an explicit --bump")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table, json, tsv)")
	return cmd
}

func runPlan(cmd *cobra.Command, bumps []string, bumpAll, output string) error {
	cfg, log, err := loadWorkspace()
	if err != nil {
		return err
	}

	deps, err := realDependencies(cfg, log, bumps, bumpAll)
	if err != nil {
		return err
	}

	p, err := engine.New(cfg, workspaceRoot, log, deps).Plan(cmd.Context())
	if err != nil {
		return err
	}

	switch output {
	case "json":
		return p.RenderJSON(os.Stdout)
	case "tsv":
		return p.RenderTSV(os.Stdout)
	case "table":
		return p.RenderTable(os.Stdout)
	default:
		return fmt.Errorf("unknown output format: %s", output)
	}
}

func newReleaseCmd() *cobra.Command {
	var bumps []string
	var bumpAll string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Release the workspace's packages in dependency order",
		Long: `Plan the release, take the workspace lock, and publish level by level.
Progress is persisted after every step; an interrupted release is picked
up with 'capstan resume'.

With --dry-run the whole release is rehearsed against in-memory backends
and manifest copies; nothing in the workspace or registry is touched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelease(cmd, bumps, bumpAll, dryRun, false)
		},
	}

	cmd.Flags().StringArrayVar(&bumps, "bump", nil, "per-package bump, e.g. --bump core=minor (repeatable)")
	cmd.Flags().StringVar(&bumpAll, "bump-all", "", "default bump for packages without an explicit --bump")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "rehearse against in-memory backends")
	return cmd
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume an interrupted release",
		Long: `Pick up the persisted run state and retry everything still pending.
Packages already published are not re-released. Resuming on a different
commit than the one the run started from is refused.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelease(cmd, nil, "", false, true)
		},
	}
}

func runRelease(cmd *cobra.Command, bumps []string, bumpAll string, dryRun, resume bool) error {
	cfg, log, err := loadWorkspace()
	if err != nil {
		return err
	}

	root := workspaceRoot
	var deps engine.Dependencies
	if dryRun {
		deps, root, err = dryRunDependencies(cmd.Context(), cfg, log, bumps, bumpAll)
		if err != nil {
			return err
		}
		defer os.RemoveAll(root)
		printInfo("Dry run: rehearsing against in-memory backends")
	} else {
		deps, err = realDependencies(cfg, log, bumps, bumpAll)
		if err != nil {
			return err
		}
	}

	if err := engine.New(cfg, root, log, deps).Run(cmd.Context(), resume); err != nil {
		printError(err.Error())
		return err
	}

	if dryRun {
		printSuccess("Dry run complete")
	} else {
		printSuccess("Release complete")
	}
	return nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current run state and lock holder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	if info := lock.Read(lock.Path(workspaceRoot)); info != nil {
		printWarning(fmt.Sprintf("Workspace locked by %s", info))
	} else {
		printInfo("Workspace not locked")
	}

	runState, err := state.Load(engine.StatePath(workspaceRoot))
	if err != nil {
		if os.IsNotExist(err) {
			printInfo("No release in progress")
			return nil
		}
		return err
	}

	printInfo(fmt.Sprintf("Release run %s on commit %s", runState.RunID, runState.GitSHA))
	return runState.RenderTable(os.Stdout)
}

func newUnlockCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Remove the workspace lock",
		Long: `Remove a leftover workspace lock. Refuses while the owning process is
still alive unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnlock(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "remove the lock even if the owner is alive")
	return cmd
}

func runUnlock(force bool) error {
	path := lock.Path(workspaceRoot)
	info := lock.Read(path)
	if info == nil {
		printInfo("Workspace not locked")
		return nil
	}

	if !force && info.Alive() {
		return fmt.Errorf("lock held by live process %d (%s); use --force to remove anyway", info.PID, info)
	}

	if err := os.Remove(path); err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Removed lock held by %s", info))
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("⚓ Capstan v%s\n", version)
		},
	}
}

// loadWorkspace loads the config and builds the run logger
func loadWorkspace() (*types.CapstanConfig, logger.Logger, error) {
	path := cfgFile
	if path == "" {
		found, err := config.FindConfig(workspaceRoot)
		if err != nil {
			return nil, nil, fmt.Errorf("no config found: run 'capstan init' first (%w)", err)
		}
		path = found
	}

	cfg, err := config.NewManager().LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}

	logFile, logLevel := "", verbosity
	if cfg.Logging != nil {
		logFile = cfg.Logging.File
		if logLevel == "" {
			logLevel = string(cfg.Logging.Level)
		}
	}
	return cfg, logger.CreateLogger(logFile, logLevel), nil
}

// realDependencies wires the engine to the live backends
func realDependencies(cfg *types.CapstanConfig, log logger.Logger, bumps []string, bumpAll string) (engine.Dependencies, error) {
	ws, err := backends.NewManifestWorkspace(workspaceRoot, cfg.Ecosystem)
	if err != nil {
		return engine.Dependencies{}, err
	}
	publisher, err := backends.NewCommandPublisher(cfg.Ecosystem, cfg.Commands, log)
	if err != nil {
		return engine.Dependencies{}, err
	}
	planner, err := buildPlanner(bumps, bumpAll)
	if err != nil {
		return engine.Dependencies{}, err
	}

	return engine.Dependencies{
		Workspace:      ws,
		VCS:            backends.NewGitVCS(workspaceRoot),
		Registry:       backends.NewHTTPRegistry(cfg.RegistryURL),
		Publisher:      publisher,
		Planner:        planner,
		ProcessManager: process.NewManager(log),
	}, nil
}

func buildPlanner(bumps []string, bumpAll string) (*backends.StaticPlanner, error) {
	parsed, err := backends.ParseBumps(bumps)
	if err != nil {
		return nil, err
	}
	defaultBump := types.BumpNone
	if bumpAll != "" {
		kinds, err := backends.ParseBumps([]string{"*=" + bumpAll})
		if err != nil {
			return nil, err
		}
		defaultBump = kinds["*"]
	}
	return &backends.StaticPlanner{Bumps: parsed, Default: defaultBump}, nil
}
