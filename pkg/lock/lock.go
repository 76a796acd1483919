// Package lock provides the advisory workspace lock guarding a release run
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/capstan/capstan/pkg/process"
)

// FileName is the well-known lock file name inside the workspace state dir
const FileName = "release.lock"

// Info identifies the lock's owner
type Info struct {
	PID       int     `json:"pid"`
	Hostname  string  `json:"hostname"`
	Timestamp float64 `json:"timestamp"`
	User      string  `json:"user"`
}

// Age returns how long ago the lock was acquired
func (i Info) Age() time.Duration {
	acquired := time.Unix(0, int64(i.Timestamp*float64(time.Second)))
	return time.Since(acquired)
}

// Alive reports whether the owning process is still running
func (i Info) Alive() bool {
	return process.Alive(i.PID)
}

func (i Info) String() string {
	return fmt.Sprintf("pid %d on %s (user %q, held %s)", i.PID, i.Hostname, i.User, i.Age().Round(time.Second))
}

// HeldError is returned when another run holds the workspace lock
type HeldError struct {
	Holder Info
	Path   string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("another release run is active: %s", e.Holder)
}

// Path returns the lock file path for a workspace root
func Path(dir string) string {
	return filepath.Join(dir, ".capstan", FileName)
}

// Acquire takes the workspace lock for the calling process. An existing
// lock file that cannot be parsed, or that is missing its pid, is treated
// as absent. A lock whose owner is provably dead is reclaimed when it was
// created on this host or its age exceeds staleTimeout; otherwise Acquire
// refuses.
func Acquire(dir string, staleTimeout time.Duration) (string, error) {
	path := Path(dir)

	if existing, err := read(path); err == nil && existing != nil {
		if !reclaimable(*existing, staleTimeout) {
			return "", &HeldError{Holder: *existing, Path: path}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create lock directory: %w", err)
	}

	hostname, _ := os.Hostname()
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	info := Info{
		PID:       os.Getpid(),
		Hostname:  hostname,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		User:      username,
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock info: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write lock file: %w", err)
	}

	return path, nil
}

// Release removes the lock file only if the recorded pid matches the
// calling process. An absent or foreign-owned lock is a no-op, not an
// error: a forked child must never delete its parent's still-active lock.
func Release(path string) error {
	info, err := read(path)
	if err != nil || info == nil {
		return nil
	}
	if info.PID != os.Getpid() {
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// Read returns the lock info at path, or nil if the file is absent or
// unusable. Exposed for status rendering.
func Read(path string) *Info {
	info, err := read(path)
	if err != nil {
		return nil
	}
	return info
}

// read returns (nil, nil) when the file does not exist, and a non-nil error
// only for unexpected I/O failures. Corrupt or incomplete lock files come
// back as (nil, nil) too: they are treated as absent.
func read(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, nil // corrupt, treat as absent
	}
	if info.PID == 0 || info.Hostname == "" {
		return nil, nil // incomplete, treat as absent
	}
	return &info, nil
}

func reclaimable(info Info, staleTimeout time.Duration) bool {
	if process.Alive(info.PID) {
		return false
	}

	hostname, _ := os.Hostname()
	if info.Hostname == hostname {
		return true
	}
	return info.Age() > staleTimeout
}
