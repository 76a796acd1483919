//go:build integration
// +build integration

package integration_test

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/capstan/capstan/internal/engine"
	"github.com/capstan/capstan/pkg/backends"
	"github.com/capstan/capstan/pkg/logger"
	"github.com/capstan/capstan/pkg/mocks"
	"github.com/capstan/capstan/pkg/types"
)

// TestEndToEndRelease drives a release through the real workspace and git
// backends over a scratch monorepo; only the registry and publisher are
// in-memory.
func TestEndToEndRelease(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	root := t.TempDir()
	writePackage(t, root, "packages/core", "core", nil)
	writePackage(t, root, "packages/plugin", "plugin", []string{"core>=1.0"})
	initGit(t, root)

	ws, err := backends.NewManifestWorkspace(root, types.EcosystemPython)
	if err != nil {
		t.Fatal(err)
	}

	registry := mocks.NewMockRegistry()
	cfg := &types.CapstanConfig{
		Version:      "1.0",
		Ecosystem:    types.EcosystemPython,
		Concurrency:  2,
		StaleLockAge: 3600,
	}

	releaser := engine.New(cfg, root, logger.CreateLoggerWithOutput("", "error", io.Discard), engine.Dependencies{
		Workspace: ws,
		VCS:       backends.NewGitVCS(root),
		Registry:  registry,
		Publisher: mocks.NewMockPublisher(registry),
		Planner: &backends.StaticPlanner{
			Default: types.BumpMinor,
		},
	})

	if err := releaser.Run(context.Background(), false); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	// Registry saw both packages at their bumped versions
	for _, want := range []struct{ name, version string }{
		{"core", "1.1.0"},
		{"plugin", "1.1.0"},
	} {
		published, err := registry.CheckPublished(context.Background(), want.name, want.version)
		if err != nil || !published {
			t.Errorf("%s@%s not published (err=%v)", want.name, want.version, err)
		}
	}

	// Release tags were written to the real repository
	vcs := backends.NewGitVCS(root)
	for _, tag := range []string{"core-v1.1.0", "plugin-v1.1.0"} {
		exists, err := vcs.TagExists(context.Background(), tag)
		if err != nil {
			t.Fatal(err)
		}
		if !exists {
			t.Errorf("release tag %s missing", tag)
		}
	}

	// Manifest versions were rewritten on disk
	content, err := os.ReadFile(filepath.Join(root, "packages", "core", "pyproject.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), `version = "1.1.0"`) {
		t.Errorf("core manifest version not rewritten:\n%s", content)
	}

	// Plugin's pinned dependency was restored to its original specifier
	content, err = os.ReadFile(filepath.Join(root, "packages", "plugin", "pyproject.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(content), "core==") {
		t.Errorf("ephemeral pin leaked into plugin manifest:\n%s", content)
	}

	// Run state and lock were cleaned up
	if _, err := os.Stat(engine.StatePath(root)); !os.IsNotExist(err) {
		t.Error("run state file left behind")
	}
	if _, err := os.Stat(filepath.Join(root, ".capstan", "release.lock")); !os.IsNotExist(err) {
		t.Error("lock file left behind")
	}
}

// TestInterruptedReleaseResumes breaks a release mid-run and resumes it
func TestInterruptedReleaseResumes(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	root := t.TempDir()
	writePackage(t, root, "packages/core", "core", nil)
	writePackage(t, root, "packages/plugin", "plugin", []string{"core>=1.0"})
	initGit(t, root)

	ws, err := backends.NewManifestWorkspace(root, types.EcosystemPython)
	if err != nil {
		t.Fatal(err)
	}

	registry := mocks.NewMockRegistry()
	publisher := mocks.NewMockPublisher(registry)
	publisher.FailBuild["plugin"] = context.DeadlineExceeded

	cfg := &types.CapstanConfig{
		Version:      "1.0",
		Ecosystem:    types.EcosystemPython,
		Concurrency:  2,
		StaleLockAge: 3600,
	}
	log := logger.CreateLoggerWithOutput("", "error", io.Discard)
	deps := engine.Dependencies{
		Workspace: ws,
		VCS:       backends.NewGitVCS(root),
		Registry:  registry,
		Publisher: publisher,
		Planner:   &backends.StaticPlanner{Default: types.BumpMinor},
	}

	if err := engine.New(cfg, root, log, deps).Run(context.Background(), false); err == nil {
		t.Fatal("first run should fail on plugin")
	}
	if _, err := os.Stat(engine.StatePath(root)); err != nil {
		t.Fatalf("run state should survive the failure: %v", err)
	}

	delete(publisher.FailBuild, "plugin")
	if err := engine.New(cfg, root, log, deps).Run(context.Background(), true); err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	// core must have been published exactly once across both runs
	coreBuilds := 0
	for _, name := range publisher.BuiltPackages() {
		if name == "core" {
			coreBuilds++
		}
	}
	if coreBuilds != 1 {
		t.Errorf("core built %d times across runs, want 1", coreBuilds)
	}
}

func writePackage(t *testing.T, root, dir, name string, deps []string) {
	t.Helper()

	var b strings.Builder
	b.WriteString("[project]\n")
	b.WriteString("name = \"" + name + "\"\n")
	b.WriteString("version = \"1.0.0\"\n")
	if len(deps) > 0 {
		b.WriteString("dependencies = [\n")
		for _, d := range deps {
			b.WriteString("    \"" + d + "\",\n")
		}
		b.WriteString("]\n")
	}

	full := filepath.Join(root, dir)
	if err := os.MkdirAll(full, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(full, "pyproject.toml"), []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func initGit(t *testing.T, dir string) {
	t.Helper()
	for _, args := range [][]string{
		{"init"},
		{"add", "."},
		{"commit", "-m", "initial"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}
}
