// Package conformance provides a behavioral test suite for collaborator
// backends. A new backend (a different VCS, another registry) is validated
// against the same contract in dry-run mode, without live credentials.
package conformance

import (
	"context"
	"testing"

	"github.com/capstan/capstan/pkg/interfaces"
	"github.com/capstan/capstan/pkg/types"
)

// WorkspaceFixture describes what a workspace under test must contain
type WorkspaceFixture struct {
	// ExpectPackages is the minimum set of package names Discover must yield
	ExpectPackages []string
	// ExcludePattern, when set, must cause ExcludedPackage to disappear
	ExcludePattern  string
	ExcludedPackage string
}

// RunWorkspace exercises the Workspace contract
func RunWorkspace(t *testing.T, ws interfaces.Workspace, fixture WorkspaceFixture) {
	t.Helper()
	ctx := context.Background()

	packages, err := ws.Discover(ctx, nil)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	byName := make(map[string]*types.Package, len(packages))
	for _, pkg := range packages {
		if pkg.Name == "" {
			t.Error("discovered package with empty name")
		}
		if _, dup := byName[pkg.Name]; dup {
			t.Errorf("duplicate package name %q", pkg.Name)
		}
		byName[pkg.Name] = pkg
	}
	for _, want := range fixture.ExpectPackages {
		if _, ok := byName[want]; !ok {
			t.Errorf("expected package %q to be discovered", want)
		}
	}

	if fixture.ExcludePattern != "" {
		filtered, err := ws.Discover(ctx, []string{fixture.ExcludePattern})
		if err != nil {
			t.Fatalf("Discover with exclusions failed: %v", err)
		}
		for _, pkg := range filtered {
			if pkg.Name == fixture.ExcludedPackage {
				t.Errorf("package %q survived exclusion pattern %q", pkg.Name, fixture.ExcludePattern)
			}
		}
	}
}

// RunVCS exercises the VCS contract
func RunVCS(t *testing.T, vcs interfaces.VCS) {
	t.Helper()
	ctx := context.Background()

	sha, err := vcs.CurrentSHA(ctx)
	if err != nil {
		t.Fatalf("CurrentSHA failed: %v", err)
	}
	if sha == "" {
		t.Error("CurrentSHA returned empty")
	}

	// A tag that cannot plausibly exist must report false, not error
	exists, err := vcs.TagExists(ctx, "capstan-conformance-nonexistent-tag")
	if err != nil {
		t.Fatalf("TagExists failed: %v", err)
	}
	if exists {
		t.Error("nonexistent tag reported as existing")
	}

	// Tag creation must round-trip through TagExists
	const tag = "capstan-conformance-roundtrip-tag"
	if err := vcs.CreateTag(ctx, tag); err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}
	exists, err = vcs.TagExists(ctx, tag)
	if err != nil {
		t.Fatalf("TagExists after CreateTag failed: %v", err)
	}
	if !exists {
		t.Error("created tag not visible through TagExists")
	}
}

// RunRegistry exercises the Registry contract
func RunRegistry(t *testing.T, registry interfaces.Registry) {
	t.Helper()

	published, err := registry.CheckPublished(context.Background(), "capstan-conformance-nonexistent", "0.0.0")
	if err != nil {
		t.Fatalf("CheckPublished failed: %v", err)
	}
	if published {
		t.Error("nonexistent package reported as published")
	}
}
