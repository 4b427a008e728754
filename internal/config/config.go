// Package config provides configuration management for conflux.
//
// Configuration is a single YAML file describing the API listener, the
// audit store, engine tuning and the managed domains. Defaults cover
// everything except the domain list, and a few settings can be
// overridden from the environment for container deployments.
//
// Config file locations (priority order):
//  1. $CONFLUX_CONFIG
//  2. ./conflux.yaml
//  3. ~/.config/conflux/config.yaml
//  4. /etc/conflux/config.yaml
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		// No config found - return defaults
		cfg := DefaultConfig()
		cfg.applyEnv()
		return cfg, "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		Server:   ServerConfig{Addr: ":8008"},
		Database: DatabaseConfig{Path: "./conflux.db", Enabled: true},
		View:     ViewConfig{EnsureUniqueIDs: true},
		Mapper:   MapperConfig{TrialAndError: true, MaxBacktracks: 10},
		Deploy:   DeployConfig{Rollback: true, Remerge: true},
	}
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8008"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./conflux.db"
	}
	if c.Mapper.MaxBacktracks == 0 {
		c.Mapper.MaxBacktracks = 10
	}
	for i := range c.Domains {
		d := &c.Domains[i]
		if d.Discipline == "" {
			d.Discipline = "poll"
		}
		if d.Format == "" {
			d.Format = "yaml"
		}
	}
}

// applyEnv overrides file values from the environment
func (c *Config) applyEnv() {
	if addr := os.Getenv("CONFLUX_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if path := os.Getenv("CONFLUX_DB"); path != "" {
		c.Database.Path = path
	}
}

// Validate checks the assembled configuration for structural errors
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]bool, len(c.Domains))
	for _, d := range c.Domains {
		if seen[d.Name] {
			return fmt.Errorf("invalid config: duplicate domain %q", d.Name)
		}
		seen[d.Name] = true

		switch d.Type {
		case "static":
			if d.Path == "" {
				return fmt.Errorf("invalid config: static domain %q needs a path", d.Name)
			}
		case "rest":
			if d.URL == "" {
				return fmt.Errorf("invalid config: rest domain %q needs a url", d.Name)
			}
		case "ssh":
			if d.SSH == nil {
				return fmt.Errorf("invalid config: ssh domain %q needs an ssh block", d.Name)
			}
		case "discovery":
			if d.CIDR == "" {
				return fmt.Errorf("invalid config: discovery domain %q needs a cidr", d.Name)
			}
		}
	}
	return nil
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Listen: %s, DB: %s (enabled=%v)\n",
		c.Server.Addr, c.Database.Path, c.Database.Enabled)
	summary += fmt.Sprintf("Mapper: trial_and_error=%v max_backtracks=%d, Deploy: rollback=%v remerge=%v\n",
		c.Mapper.TrialAndError, c.Mapper.MaxBacktracks, c.Deploy.Rollback, c.Deploy.Remerge)
	summary += fmt.Sprintf("Domains (%d):", len(c.Domains))
	for _, d := range c.Domains {
		summary += fmt.Sprintf(" %s[%s]", d.Name, d.Type)
	}

	return summary
}
