// Package config handles configuration loading and management
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/capstan/capstan/pkg/types"
)

// Defaults applied when the config leaves fields unset
const (
	DefaultConcurrency  = 2
	DefaultStaleLockAge = time.Hour
)

// Manager handles configuration operations
type Manager struct{}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{}
}

// LoadConfig loads configuration from a file, accepting JSON or YAML
func (m *Manager) LoadConfig(path string) (*types.CapstanConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg types.CapstanConfig

	// Try JSON first
	if err := json.Unmarshal(data, &cfg); err == nil {
		return m.finish(&cfg)
	}

	if err := yaml.Unmarshal(data, &cfg); err == nil {
		return m.finish(&cfg)
	}

	return nil, fmt.Errorf("failed to parse config as JSON or YAML")
}

// ValidateConfig validates a configuration
func (m *Manager) ValidateConfig(cfg *types.CapstanConfig) error {
	if cfg.Version != "1.0" {
		return fmt.Errorf("unsupported config version: %s", cfg.Version)
	}

	// Only ecosystems with a manifest backend and default release commands
	// pass validation; anything else would fail later at wiring.
	validEcosystems := map[types.Ecosystem]bool{
		types.EcosystemPython: true,
		types.EcosystemRust:   true,
		types.EcosystemDart:   true,
	}
	if !validEcosystems[cfg.Ecosystem] {
		return fmt.Errorf("unsupported ecosystem: %s (supported: python, rust, dart)", cfg.Ecosystem)
	}

	if cfg.Concurrency < 0 {
		return fmt.Errorf("concurrency must be non-negative, got %d", cfg.Concurrency)
	}
	if cfg.StaleLockAge < 0 {
		return fmt.Errorf("staleLockAge must be non-negative, got %d", cfg.StaleLockAge)
	}

	return nil
}

func (m *Manager) finish(cfg *types.CapstanConfig) (*types.CapstanConfig, error) {
	if err := m.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.StaleLockAge == 0 {
		cfg.StaleLockAge = int(DefaultStaleLockAge.Seconds())
	}
	return cfg, nil
}

// FindConfig searches the workspace root for a capstan config file
func FindConfig(root string) (string, error) {
	candidates := []string{
		"capstan.config.json",
		"capstan.config.yaml",
		"capstan.config.yml",
	}
	for _, name := range candidates {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no capstan config found in %s", root)
}
