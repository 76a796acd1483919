// Package state provides the durable, resumable per-package release ledger
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capstan/capstan/pkg/types"
)

// ErrSHAMismatch is returned when a resume is attempted against a commit
// other than the one the run was anchored to. Never auto-resolved: the
// operator deletes the state file and restarts.
var ErrSHAMismatch = errors.New("run state was created for a different commit")

// ErrCorrupted is returned when a persisted state file is malformed or is
// missing required fields, distinct from plain I/O failures so callers can
// offer delete-and-restart guidance specifically for corruption.
var ErrCorrupted = errors.New("run state file is corrupted")

// PackageState tracks one package's progress within a run
type PackageState struct {
	Name    string              `json:"name"`
	Status  types.ReleaseStatus `json:"status"`
	Version string              `json:"version"`
	Error   string              `json:"error"`
	Level   int                 `json:"level"`
}

// RunState is the durable record of one release run, anchored to the commit
// the run started from. Owned exclusively by the orchestrator.
type RunState struct {
	RunID     string                   `json:"runId"`
	GitSHA    string                   `json:"git_sha"`
	CreatedAt string                   `json:"created_at"`
	Packages  map[string]*PackageState `json:"packages"`

	mu sync.Mutex
}

// New creates a run state anchored to the given commit
func New(gitSHA string) *RunState {
	return &RunState{
		RunID:     uuid.NewString(),
		GitSHA:    gitSHA,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Packages:  make(map[string]*PackageState),
	}
}

// InitPackage registers a package before work starts
func (r *RunState) InitPackage(name, version string, level int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Packages[name] = &PackageState{
		Name:    name,
		Status:  types.StatusPending,
		Version: version,
		Level:   level,
	}
}

// SetStatus performs a status transition. Transitions are monotonic: a
// package already in a terminal state is never transitioned again. The
// error text is recorded only for failed.
func (r *RunState) SetStatus(name string, status types.ReleaseStatus, errText string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps, ok := r.Packages[name]
	if !ok {
		return fmt.Errorf("package not tracked: %s", name)
	}
	if ps.Status.IsTerminal() {
		return nil
	}

	ps.Status = status
	if status == types.StatusFailed {
		ps.Error = errText
	} else {
		ps.Error = ""
	}
	return nil
}

// Requeue folds every failed or mid-flight package back to pending so a
// resumed run retries it, and returns their sorted names. A package the
// previous run died inside (building, publishing, verifying) would otherwise
// never be picked up again. Published and skipped stay terminal.
func (r *RunState) Requeue() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	requeued := make([]string, 0)
	for name, ps := range r.Packages {
		switch ps.Status {
		case types.StatusPending, types.StatusPublished, types.StatusSkipped:
			continue
		}
		ps.Status = types.StatusPending
		ps.Error = ""
		requeued = append(requeued, name)
	}
	sort.Strings(requeued)
	return requeued
}

// Status returns the current status of a tracked package
func (r *RunState) Status(name string) (types.ReleaseStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps, ok := r.Packages[name]
	if !ok {
		return "", false
	}
	return ps.Status, true
}

// Version returns the target version recorded for a tracked package. The
// recorded version is authoritative on resumed runs, where re-planning from
// partially rewritten manifests would drift.
func (r *RunState) Version(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps, ok := r.Packages[name]
	if !ok || ps.Version == "" {
		return "", false
	}
	return ps.Version, true
}

// PendingPackages returns the sorted names of packages still pending
func (r *RunState) PendingPackages() []string {
	return r.withStatus(types.StatusPending)
}

// FailedPackages returns the sorted names of failed packages
func (r *RunState) FailedPackages() []string {
	return r.withStatus(types.StatusFailed)
}

// PublishedPackages returns the sorted names of published packages
func (r *RunState) PublishedPackages() []string {
	return r.withStatus(types.StatusPublished)
}

func (r *RunState) withStatus(status types.ReleaseStatus) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0)
	for name, ps := range r.Packages {
		if ps.Status == status {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// IsComplete is true only when every tracked package is terminal
func (r *RunState) IsComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ps := range r.Packages {
		if !ps.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// ValidateSHA fails when the run's anchored commit differs from the
// workspace's current commit. Version numbers and dependency pins computed
// for one commit must never be reapplied to a different tree.
func (r *RunState) ValidateSHA(currentSHA string) error {
	if r.GitSHA != currentSHA {
		return fmt.Errorf("%w: state has %s, workspace at %s", ErrSHAMismatch, r.GitSHA, currentSHA)
	}
	return nil
}

// Save serializes to path using write-to-temp-then-atomic-rename. If the
// process dies mid-write, the previous valid file is untouched.
func (r *RunState) Save(path string) error {
	r.mu.Lock()
	data, err := json.MarshalIndent(r, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename state file: %w", err)
	}
	return nil
}

// Load deserializes a run state from path. Malformed content or missing
// required fields yield ErrCorrupted; per-package status values that do not
// parse default to pending rather than failing the load.
func Load(path string) (*RunState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw struct {
		RunID     string `json:"runId"`
		GitSHA    string `json:"git_sha"`
		CreatedAt string `json:"created_at"`
		Packages  map[string]struct {
			Name    string `json:"name"`
			Status  string `json:"status"`
			Version string `json:"version"`
			Error   string `json:"error"`
			Level   int    `json:"level"`
		} `json:"packages"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if raw.GitSHA == "" || raw.Packages == nil {
		return nil, fmt.Errorf("%w: missing required fields", ErrCorrupted)
	}

	r := &RunState{
		RunID:     raw.RunID,
		GitSHA:    raw.GitSHA,
		CreatedAt: raw.CreatedAt,
		Packages:  make(map[string]*PackageState, len(raw.Packages)),
	}
	for name, ps := range raw.Packages {
		pkgName := ps.Name
		if pkgName == "" {
			pkgName = name
		}
		r.Packages[name] = &PackageState{
			Name:    pkgName,
			Status:  types.ParseReleaseStatus(ps.Status),
			Version: ps.Version,
			Error:   ps.Error,
			Level:   ps.Level,
		}
	}
	return r, nil
}

// Delete removes the state file once the run reaches full completion.
// A missing file is not an error.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}
