package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version  int            `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	View     ViewConfig     `yaml:"view"`
	Mapper   MapperConfig   `yaml:"mapper"`
	Deploy   DeployConfig   `yaml:"deploy"`
	Domains  []DomainConfig `yaml:"domains" validate:"dive"`
}

// ServerConfig holds the API listener settings
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

// DatabaseConfig holds audit store settings
type DatabaseConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

// ViewConfig tunes the global view aggregator
type ViewConfig struct {
	// EnsureUniqueIDs namespaces every reported element id with its
	// domain name before merging.
	EnsureUniqueIDs bool `yaml:"ensure_unique_ids"`
}

// MapperConfig tunes the embedding engine
type MapperConfig struct {
	TrialAndError bool `yaml:"trial_and_error"`
	MaxBacktracks int  `yaml:"max_backtracks" validate:"gte=0"`
}

// DeployConfig tunes the deployment coordinator
type DeployConfig struct {
	Rollback        bool      `yaml:"rollback"`
	Remerge         bool      `yaml:"remerge"`
	DispatchTimeout *Duration `yaml:"dispatch_timeout,omitempty"`
	PollInterval    *Duration `yaml:"poll_interval,omitempty"`
}

// DomainConfig describes one managed domain and how to reach it
type DomainConfig struct {
	Name    string `yaml:"name" validate:"required"`
	Type    string `yaml:"type" validate:"required,oneof=static rest ssh discovery"`
	Enabled bool   `yaml:"enabled"`

	// Diff sends change-sets instead of full configurations.
	Diff bool `yaml:"diff"`
	// Discipline is poll or callback; poll when empty.
	Discipline string `yaml:"discipline" validate:"omitempty,oneof=poll callback"`
	// TopologyPoll re-fetches the domain topology on this interval.
	TopologyPoll *Duration `yaml:"topology_poll,omitempty"`

	// static: topology file
	Path   string `yaml:"path,omitempty"`
	Format string `yaml:"format,omitempty" validate:"omitempty,oneof=json yaml yml"`

	// rest: agent base URL
	URL string `yaml:"url,omitempty" validate:"omitempty,url"`

	// ssh: remote agent
	SSH *SSHConfig `yaml:"ssh,omitempty"`

	// discovery: network to scan
	CIDR string `yaml:"cidr,omitempty" validate:"omitempty,cidr"`
}

// SSHConfig holds remote agent access settings
type SSHConfig struct {
	Host     string    `yaml:"host" validate:"required"`
	Port     int       `yaml:"port" validate:"gte=0,lte=65535"`
	User     string    `yaml:"user" validate:"required"`
	Password string    `yaml:"password,omitempty"`
	KeyPath  string    `yaml:"key_path,omitempty"`
	AgentCmd string    `yaml:"agent_cmd,omitempty"`
	Timeout  *Duration `yaml:"timeout,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
