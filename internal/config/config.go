// Package config loads and validates the restic-health fleet configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/MacJediWizard/restic-health/internal/restic"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the configuration leaves the retry policy unset.
const (
	DefaultRetries    = 10
	DefaultRetryDelay = time.Minute
)

// Duration wraps time.Duration so retry delays can be written as "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Defaults holds fleet-wide settings shared by every location.
type Defaults struct {
	CacheDir   string    `yaml:"cache_dir,omitempty"`
	Retries    *int      `yaml:"retries,omitempty"`
	RetryDelay *Duration `yaml:"retry_delay,omitempty"`
}

// Location groups the backends that share one credential file. Backends map
// a backend name to the repository address restic understands.
type Location struct {
	PasswordFile string            `yaml:"password_file"`
	CacheDir     string            `yaml:"cache_dir,omitempty"`
	Backends     map[string]string `yaml:"backends"`
}

// Config is the validated fleet configuration. It is built once at startup
// and passed into every component; nothing reads it as ambient state.
type Config struct {
	StateDir  string              `yaml:"state_dir"`
	Defaults  Defaults            `yaml:"defaults,omitempty"`
	Locations map[string]Location `yaml:"locations"`
}

// Load reads and parses the configuration from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration is complete enough to run against.
// Any violation is fatal before repository work starts.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return errors.New("state_dir is required")
	}
	if len(c.Locations) == 0 {
		return errors.New("at least one location is required")
	}
	if c.Defaults.Retries != nil && *c.Defaults.Retries < 0 {
		return errors.New("defaults.retries must not be negative")
	}
	if c.Defaults.RetryDelay != nil && *c.Defaults.RetryDelay < 0 {
		return errors.New("defaults.retry_delay must not be negative")
	}

	for name, loc := range c.Locations {
		if loc.PasswordFile == "" {
			return fmt.Errorf("location %s: password_file is required", name)
		}
		if len(loc.Backends) == 0 {
			return fmt.Errorf("location %s: at least one backend is required", name)
		}
		for backend, repository := range loc.Backends {
			if repository == "" {
				return fmt.Errorf("location %s: backend %s has no repository address", name, backend)
			}
		}
	}

	return nil
}

// Retries returns the configured retry count, or the default.
func (c *Config) Retries() int {
	if c.Defaults.Retries != nil {
		return *c.Defaults.Retries
	}
	return DefaultRetries
}

// RetryDelay returns the configured delay between retries, or the default.
func (c *Config) RetryDelay() time.Duration {
	if c.Defaults.RetryDelay != nil {
		return time.Duration(*c.Defaults.RetryDelay)
	}
	return DefaultRetryDelay
}

// Targets flattens the configuration into one target per (location, backend)
// pair, in deterministic order. A per-location cache_dir overrides the
// fleet-wide default.
func (c *Config) Targets() []restic.Target {
	var targets []restic.Target
	for locName, loc := range c.Locations {
		cacheDir := c.Defaults.CacheDir
		if loc.CacheDir != "" {
			cacheDir = loc.CacheDir
		}
		for backend, repository := range loc.Backends {
			targets = append(targets, restic.Target{
				Location:     locName,
				Backend:      backend,
				Repository:   repository,
				PasswordFile: loc.PasswordFile,
				CacheDir:     cacheDir,
			})
		}
	}

	sort.Slice(targets, func(i, j int) bool {
		if targets[i].Location != targets[j].Location {
			return targets[i].Location < targets[j].Location
		}
		return targets[i].Backend < targets[j].Backend
	})
	return targets
}
