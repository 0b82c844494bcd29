// Package config provides a unified configuration system for reclass:
// engine settings (spec.md §6), storage wiring, and output formatting,
// loadable from a YAML file and overridable from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/reclass-go/reclass/pkg/reclass"
)

// RuntimeConfig is the complete on-disk/environment-driven
// configuration for a reclass run.
type RuntimeConfig struct {
	Settings reclass.Settings `yaml:"settings" toml:"settings" json:"settings"`
	Storage  StorageConfig    `yaml:"storage" toml:"storage" json:"storage"`
	Output   OutputConfig     `yaml:"output" toml:"output" json:"output"`

	Version string `yaml:"version" toml:"version" json:"version"`
}

// StorageConfig selects and configures a storage backend (spec.md §6
// "Storage API").
type StorageConfig struct {
	Kind       string `yaml:"kind" toml:"kind" json:"kind" env:"KIND"`                     // "filesystem", "git", or "mixed"
	BaseURI    string `yaml:"base_uri" toml:"base_uri" json:"base_uri" env:"BASE_URI"`      // -b
	NodesURI   string `yaml:"nodes_uri" toml:"nodes_uri" json:"nodes_uri" env:"NODES_URI"`  // -u
	ClassesURI string `yaml:"classes_uri" toml:"classes_uri" json:"classes_uri" env:"CLASSES_URI"` // -c
	CacheNodes bool   `yaml:"cache_nodes" toml:"cache_nodes" json:"cache_nodes"`
	CacheClasses  bool `yaml:"cache_classes" toml:"cache_classes" json:"cache_classes"`
	CacheNodelist bool `yaml:"cache_nodelist" toml:"cache_nodelist" json:"cache_nodelist"`
	GitRemote string `yaml:"git_remote" toml:"git_remote" json:"git_remote" env:"GIT_REMOTE"`
	GitRef    string `yaml:"git_ref" toml:"git_ref" json:"git_ref" env:"GIT_REF"`

	// ClassesEnvOverrides configures, for "mixed" storage only,
	// per-environment git remotes/refs that the classes half of the
	// backend should read from instead of GitRemote/GitRef (grounded
	// on the original reclass's storage/mixed env_overrides).
	ClassesEnvOverrides map[string]ClassesOverride `yaml:"classes_env_overrides" toml:"classes_env_overrides" json:"classes_env_overrides"`
}

// ClassesOverride names one environment's classes-backend git
// coordinates under "mixed" storage.
type ClassesOverride struct {
	GitRemote string `yaml:"git_remote" toml:"git_remote" json:"git_remote"`
	GitRef    string `yaml:"git_ref" toml:"git_ref" json:"git_ref"`
}

// OutputConfig controls the CLI's rendering of compiled output
// (spec.md §6 "Output flags").
type OutputConfig struct {
	Format      string `yaml:"format" toml:"format" json:"format" env:"OUTPUT_FORMAT"` // "yaml"|"json"
	Pretty      bool   `yaml:"pretty" toml:"pretty" json:"pretty"`
	NoRefs      bool   `yaml:"no_refs" toml:"no_refs" json:"no_refs"`
	SingleError bool   `yaml:"single_error" toml:"single_error" json:"single_error"`
}

// DefaultRuntimeConfig returns a RuntimeConfig with spec-mandated
// defaults applied throughout.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		Settings: *reclass.DefaultSettings(),
		Storage: StorageConfig{
			Kind:          "filesystem",
			CacheNodes:    true,
			CacheClasses:  true,
			CacheNodelist: true,
		},
		Output: OutputConfig{
			Format: "yaml",
		},
		Version: "1",
	}
}

// Load reads a YAML or TOML configuration file (by extension: ".toml"
// selects the TOML decoder, everything else is treated as YAML),
// starting from the documented defaults and overlaying whatever the
// file specifies.
func Load(path string) (*RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}
