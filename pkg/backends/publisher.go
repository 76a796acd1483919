package backends

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/capstan/capstan/pkg/logger"
	"github.com/capstan/capstan/pkg/types"
)

// ecosystem defaults, overridable through CommandsConfig
var defaultCommands = map[types.Ecosystem]types.CommandsConfig{
	types.EcosystemPython: {
		Build:   "python -m build",
		Publish: "python -m twine upload dist/*",
	},
	types.EcosystemRust: {
		Build:   "cargo build --release",
		Publish: "cargo publish",
	},
	types.EcosystemDart: {
		Build:   "dart pub get",
		Publish: "dart pub publish --force",
	},
}

// CommandPublisher builds and publishes packages by running the ecosystem's
// commands in the package directory. The package name and version are
// exported as CAPSTAN_PACKAGE and CAPSTAN_VERSION.
type CommandPublisher struct {
	build   string
	publish string
	log     logger.Logger
}

// NewCommandPublisher creates a publisher for the ecosystem, applying any
// command overrides from the config.
func NewCommandPublisher(ecosystem types.Ecosystem, overrides *types.CommandsConfig, log logger.Logger) (*CommandPublisher, error) {
	commands, ok := defaultCommands[ecosystem]
	if !ok && (overrides == nil || overrides.Build == "" || overrides.Publish == "") {
		return nil, fmt.Errorf("no default commands for ecosystem %s: configure commands.build and commands.publish", ecosystem)
	}
	if overrides != nil {
		if overrides.Build != "" {
			commands.Build = overrides.Build
		}
		if overrides.Publish != "" {
			commands.Publish = overrides.Publish
		}
	}
	return &CommandPublisher{build: commands.Build, publish: commands.Publish, log: log}, nil
}

// Build runs the build command in the package directory
func (p *CommandPublisher) Build(ctx context.Context, pkg *types.Package) error {
	return p.runCommand(ctx, pkg, p.build, "")
}

// Publish runs the publish command in the package directory
func (p *CommandPublisher) Publish(ctx context.Context, pkg *types.Package, version string) error {
	return p.runCommand(ctx, pkg, p.publish, version)
}

func (p *CommandPublisher) runCommand(ctx context.Context, pkg *types.Package, command, version string) error {
	cmd := createCommand(ctx, command)
	cmd.Dir = packageDir(pkg)
	cmd.Env = append(os.Environ(),
		"CAPSTAN_PACKAGE="+pkg.Name,
		"CAPSTAN_VERSION="+version,
	)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if p.log != nil {
		p.log.Debug("Running command",
			logger.WithField("package", pkg.Name),
			logger.WithField("command", command))
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command %q failed: %w\n%s", command, err, lastLines(output.String(), 20))
	}
	return nil
}

func packageDir(pkg *types.Package) string {
	if pkg.ManifestPath != "" {
		return filepath.Dir(pkg.ManifestPath)
	}
	return pkg.Path
}

// createCommand builds an exec.Cmd from a command string, routing through
// the shell only when shell syntax is present
func createCommand(ctx context.Context, command string) *exec.Cmd {
	if strings.ContainsAny(command, "&|;<>*$") {
		return exec.CommandContext(ctx, "sh", "-c", command)
	}
	parts := strings.Fields(command)
	return exec.CommandContext(ctx, parts[0], parts[1:]...)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
