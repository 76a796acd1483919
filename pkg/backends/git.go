// Package backends provides the real collaborator implementations: git for
// version control, manifest-walking workspace discovery, HTTP registry
// checks, and shell-command publishing.
package backends

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitVCS reads commit and tag information by shelling out to git
type GitVCS struct {
	root string
}

// NewGitVCS creates a VCS over the repository at root
func NewGitVCS(root string) *GitVCS {
	return &GitVCS{root: root}
}

// CurrentSHA returns the full SHA of HEAD
func (g *GitVCS) CurrentSHA(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// TagExists reports whether the repository has the given tag
func (g *GitVCS) TagExists(ctx context.Context, name string) (bool, error) {
	out, err := g.run(ctx, "tag", "--list", name)
	if err != nil {
		return false, fmt.Errorf("git tag lookup failed: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// CreateTag records a release tag at HEAD
func (g *GitVCS) CreateTag(ctx context.Context, name string) error {
	if _, err := g.run(ctx, "tag", name); err != nil {
		return fmt.Errorf("git tag failed: %w", err)
	}
	return nil
}

func (g *GitVCS) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return stdout.String(), nil
}
