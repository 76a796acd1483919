package cli

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/capstan/capstan/pkg/config"
	"github.com/capstan/capstan/pkg/types"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var ecosystem string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new Capstan configuration",
		Long: `Initialize a new Capstan configuration file in the workspace root.
This command will detect your workspace's ecosystem and create a suitable
configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(ecosystem, force)
		},
	}

	cmd.Flags().StringVarP(&ecosystem, "ecosystem", "e", "", "package ecosystem (python, rust, dart)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing configuration")

	return cmd
}

func runInit(ecosystem string, force bool) error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration already exists. Use --force to overwrite")
	}

	if ecosystem == "" {
		detected := detectEcosystem()
		if detected != "" {
			ecosystem = detected
			printInfo(fmt.Sprintf("Detected ecosystem: %s", ecosystem))
		} else {
			return fmt.Errorf("could not detect an ecosystem; pass one with --ecosystem")
		}
	}

	cfg := &types.CapstanConfig{
		Version:      "1.0",
		Ecosystem:    types.Ecosystem(ecosystem),
		Concurrency:  config.DefaultConcurrency,
		StaleLockAge: int(config.DefaultStaleLockAge.Seconds()),
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	printSuccess(fmt.Sprintf("Created configuration at %s", configPath))
	printInfo("Edit the configuration to customize exclusions and publish commands")

	return nil
}

// detectEcosystem looks for the nearest manifest kind in the workspace
func detectEcosystem() string {
	checks := []struct {
		file      string
		ecosystem string
	}{
		{"pyproject.toml", "python"},
		{"Cargo.toml", "rust"},
		{"pubspec.yaml", "dart"},
	}

	found := ""
	filepath.WalkDir(workspaceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found != "" {
			return filepath.SkipAll
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		for _, c := range checks {
			if d.Name() == c.file {
				found = c.ecosystem
				return filepath.SkipAll
			}
		}
		return nil
	})
	return found
}
