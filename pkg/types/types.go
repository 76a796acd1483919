// Package types provides core types and configurations for Capstan
package types

// Ecosystem represents supported package ecosystems
type Ecosystem string

const (
	EcosystemPython Ecosystem = "python"
	EcosystemRust   Ecosystem = "rust"
	EcosystemDart   Ecosystem = "dart"
	EcosystemGo     Ecosystem = "go"
	EcosystemBazel  Ecosystem = "bazel"
	EcosystemMaven  Ecosystem = "maven"
)

// LogLevel represents logging verbosity levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// BumpKind classifies the version change computed for a package
type BumpKind string

const (
	BumpNone       BumpKind = "none"
	BumpPatch      BumpKind = "patch"
	BumpMinor      BumpKind = "minor"
	BumpMajor      BumpKind = "major"
	BumpPrerelease BumpKind = "prerelease"
)

// ReleaseStatus represents the per-package state machine within a run.
// Transitions are monotonic: terminal statuses never change again.
type ReleaseStatus string

const (
	StatusPending    ReleaseStatus = "pending"
	StatusBuilding   ReleaseStatus = "building"
	StatusPublishing ReleaseStatus = "publishing"
	StatusVerifying  ReleaseStatus = "verifying"
	StatusPublished  ReleaseStatus = "published"
	StatusSkipped    ReleaseStatus = "skipped"
	StatusFailed     ReleaseStatus = "failed"
)

// IsTerminal reports whether the status is a terminal state
func (s ReleaseStatus) IsTerminal() bool {
	switch s {
	case StatusPublished, StatusSkipped, StatusFailed:
		return true
	}
	return false
}

// ParseReleaseStatus maps a persisted status string to a ReleaseStatus.
// Unknown or garbled values default to pending, preferring retry over
// data loss when a state file has bit-rotted.
func ParseReleaseStatus(s string) ReleaseStatus {
	switch ReleaseStatus(s) {
	case StatusPending, StatusBuilding, StatusPublishing, StatusVerifying,
		StatusPublished, StatusSkipped, StatusFailed:
		return ReleaseStatus(s)
	}
	return StatusPending
}

// Package is a workspace package as produced by discovery.
// Immutable for the duration of a run.
type Package struct {
	Name         string   `json:"name" yaml:"name"`
	Version      string   `json:"version" yaml:"version"`
	Path         string   `json:"path" yaml:"path"`
	ManifestPath string   `json:"manifestPath" yaml:"manifestPath"`
	InternalDeps []string `json:"internalDeps,omitempty" yaml:"internalDeps,omitempty"`
	ExternalDeps []string `json:"externalDeps,omitempty" yaml:"externalDeps,omitempty"`
	Publishable  bool     `json:"publishable" yaml:"publishable"`
}

// PackageVersion is the externally-computed version change for one package
type PackageVersion struct {
	Name       string   `json:"name"`
	OldVersion string   `json:"oldVersion"`
	NewVersion string   `json:"newVersion"`
	Bump       BumpKind `json:"bump"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	File  string   `json:"file" yaml:"file"`
	Level LogLevel `json:"level" yaml:"level"`
}

// CommandsConfig overrides the ecosystem's default build and publish
// commands. Commands run through the shell with the package directory as
// working directory.
type CommandsConfig struct {
	Build   string `json:"build,omitempty" yaml:"build,omitempty"`
	Publish string `json:"publish,omitempty" yaml:"publish,omitempty"`
}

// CapstanConfig represents the main configuration
type CapstanConfig struct {
	Version         string          `json:"version" yaml:"version"`
	Ecosystem       Ecosystem       `json:"ecosystem" yaml:"ecosystem"`
	Exclude         []string        `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	ExcludePatterns []string        `json:"excludePatterns,omitempty" yaml:"excludePatterns,omitempty"`
	Concurrency     int             `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	StaleLockAge    int             `json:"staleLockAge,omitempty" yaml:"staleLockAge,omitempty"`
	RegistryURL     string          `json:"registryUrl,omitempty" yaml:"registryUrl,omitempty"`
	Commands        *CommandsConfig `json:"commands,omitempty" yaml:"commands,omitempty"`
	Logging         *LoggingConfig  `json:"logging,omitempty" yaml:"logging,omitempty"`
}
