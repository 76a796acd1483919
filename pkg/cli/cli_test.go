package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/capstan/capstan/pkg/types"
)

func withWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	oldRoot, oldCfg := workspaceRoot, cfgFile
	workspaceRoot, cfgFile = dir, ""
	t.Cleanup(func() {
		workspaceRoot, cfgFile = oldRoot, oldCfg
	})
	return dir
}

func TestRunInit_CreatesConfig(t *testing.T) {
	dir := withWorkspace(t)
	if err := os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte("[project]\nname = \"x\"\nversion = \"1.0.0\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := runInit("", false); err != nil {
		t.Fatalf("runInit failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "capstan.config.json"))
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	var cfg types.CapstanConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("config not valid JSON: %v", err)
	}
	if cfg.Ecosystem != types.EcosystemPython {
		t.Errorf("detected ecosystem = %q, want python", cfg.Ecosystem)
	}
	if cfg.Version != "1.0" {
		t.Errorf("config version = %q, want 1.0", cfg.Version)
	}
}

func TestRunInit_RefusesOverwrite(t *testing.T) {
	dir := withWorkspace(t)
	if err := os.WriteFile(filepath.Join(dir, "capstan.config.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := runInit("python", false); err == nil {
		t.Error("runInit should refuse to overwrite without --force")
	}
	if err := runInit("python", true); err != nil {
		t.Errorf("runInit --force failed: %v", err)
	}
}

func TestDetectEcosystem(t *testing.T) {
	dir := withWorkspace(t)
	if got := detectEcosystem(); got != "" {
		t.Errorf("empty workspace detected as %q", got)
	}

	if err := os.MkdirAll(filepath.Join(dir, "packages", "core"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "packages", "core", "Cargo.toml"), []byte("[package]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := detectEcosystem(); got != "rust" {
		t.Errorf("detected %q, want rust", got)
	}
}

func TestBuildPlanner(t *testing.T) {
	planner, err := buildPlanner([]string{"core=minor"}, "patch")
	if err != nil {
		t.Fatalf("buildPlanner failed: %v", err)
	}
	if planner.Bumps["core"] != types.BumpMinor {
		t.Errorf("core bump = %q, want minor", planner.Bumps["core"])
	}
	if planner.Default != types.BumpPatch {
		t.Errorf("default bump = %q, want patch", planner.Default)
	}

	if _, err := buildPlanner([]string{"core=gigantic"}, ""); err == nil {
		t.Error("invalid bump kind should fail")
	}
	if _, err := buildPlanner(nil, "gigantic"); err == nil {
		t.Error("invalid default bump should fail")
	}
}
