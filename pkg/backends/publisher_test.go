package backends

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/capstan/capstan/pkg/types"
)

func TestCommandPublisher_RunsInPackageDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sh")
	}

	dir := t.TempDir()
	pkg := &types.Package{
		Name:         "core",
		ManifestPath: filepath.Join(dir, "pyproject.toml"),
	}

	pub, err := NewCommandPublisher(types.EcosystemPython, &types.CommandsConfig{
		Build:   "echo built > out.txt",
		Publish: "echo $CAPSTAN_PACKAGE@$CAPSTAN_VERSION > published.txt",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := pub.Build(ctx, pkg); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.txt")); err != nil {
		t.Errorf("build command did not run in the package directory: %v", err)
	}

	if err := pub.Publish(ctx, pkg, "1.1.0"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(dir, "published.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(content)); got != "core@1.1.0" {
		t.Errorf("publish env = %q, want core@1.1.0", got)
	}
}

func TestCommandPublisher_FailureIncludesOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sh")
	}

	pkg := &types.Package{Name: "core", Path: t.TempDir()}
	pub, err := NewCommandPublisher(types.EcosystemPython, &types.CommandsConfig{
		Build:   "echo compiler exploded >&2; exit 3",
		Publish: "true",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	err = pub.Build(context.Background(), pkg)
	if err == nil {
		t.Fatal("expected build failure")
	}
	if !strings.Contains(err.Error(), "compiler exploded") {
		t.Errorf("error should carry command output, got: %v", err)
	}
}

func TestNewCommandPublisher_UnknownEcosystemNeedsOverrides(t *testing.T) {
	if _, err := NewCommandPublisher(types.EcosystemBazel, nil, nil); err == nil {
		t.Error("unknown ecosystem without overrides should fail")
	}

	pub, err := NewCommandPublisher(types.EcosystemBazel, &types.CommandsConfig{
		Build:   "bazel build //...",
		Publish: "bazel run //:publish",
	}, nil)
	if err != nil {
		t.Fatalf("overrides should satisfy an unknown ecosystem: %v", err)
	}
	if pub == nil {
		t.Fatal("nil publisher")
	}
}
