package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conflux.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Addr != ":8008" {
		t.Errorf("Addr = %q, want :8008", cfg.Server.Addr)
	}
	if !cfg.Database.Enabled || cfg.Database.Path != "./conflux.db" {
		t.Errorf("Database = %+v, want enabled at ./conflux.db", cfg.Database)
	}
	if !cfg.View.EnsureUniqueIDs {
		t.Error("EnsureUniqueIDs should default on")
	}
	if !cfg.Mapper.TrialAndError || cfg.Mapper.MaxBacktracks != 10 {
		t.Errorf("Mapper = %+v, want trial-and-error with 10 backtracks", cfg.Mapper)
	}
	if !cfg.Deploy.Rollback || !cfg.Deploy.Remerge {
		t.Errorf("Deploy = %+v, want rollback and remerge on", cfg.Deploy)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
version: 1
server:
  addr: ":9999"
deploy:
  rollback: true
  dispatch_timeout: 90s
  poll_interval: 500ms
domains:
  - name: mininet
    type: static
    enabled: true
    path: /tmp/mininet.yaml
  - name: openstack
    type: rest
    enabled: true
    diff: true
    discipline: callback
    url: http://agent.example.com:8080
    topology_poll: 30s
`)

	cfg, from, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if from != path {
		t.Errorf("loaded from %q, want %q", from, path)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Addr = %q, want :9999", cfg.Server.Addr)
	}
	if got := cfg.Deploy.DispatchTimeout.Duration(); got != 90*time.Second {
		t.Errorf("DispatchTimeout = %s, want 90s", got)
	}
	if got := cfg.Deploy.PollInterval.Duration(); got != 500*time.Millisecond {
		t.Errorf("PollInterval = %s, want 500ms", got)
	}
	if len(cfg.Domains) != 2 {
		t.Fatalf("Domains = %d, want 2", len(cfg.Domains))
	}

	// Per-domain defaults fill in what the file left out.
	if cfg.Domains[0].Discipline != "poll" || cfg.Domains[0].Format != "yaml" {
		t.Errorf("static domain defaults = %q/%q, want poll/yaml", cfg.Domains[0].Discipline, cfg.Domains[0].Format)
	}
	if cfg.Domains[1].Discipline != "callback" {
		t.Errorf("explicit discipline overridden: %q", cfg.Domains[1].Discipline)
	}
	if got := cfg.Domains[1].TopologyPoll.Duration(); got != 30*time.Second {
		t.Errorf("TopologyPoll = %s, want 30s", got)
	}
}

func TestLoadFromPathEnvOverride(t *testing.T) {
	t.Setenv("CONFLUX_ADDR", ":7777")
	t.Setenv("CONFLUX_DB", "/var/lib/conflux/audit.db")

	path := writeConfig(t, "server:\n  addr: \":9999\"\n")
	cfg, _, err := LoadFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":7777" {
		t.Errorf("Addr = %q, want env override :7777", cfg.Server.Addr)
	}
	if cfg.Database.Path != "/var/lib/conflux/audit.db" {
		t.Errorf("DB path = %q, want env override", cfg.Database.Path)
	}
}

func TestValidate(t *testing.T) {
	domain := func(mutate func(*DomainConfig)) *Config {
		cfg := DefaultConfig()
		d := DomainConfig{Name: "d1", Type: "static", Path: "/tmp/topo.yaml", Discipline: "poll", Format: "yaml"}
		mutate(&d)
		cfg.Domains = append(cfg.Domains, d)
		return cfg
	}

	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{
			"missing addr",
			func() *Config { c := DefaultConfig(); c.Server.Addr = ""; return c }(),
			"invalid config",
		},
		{
			"unknown domain type",
			domain(func(d *DomainConfig) { d.Type = "carrier-pigeon" }),
			"invalid config",
		},
		{
			"static without path",
			domain(func(d *DomainConfig) { d.Path = "" }),
			"needs a path",
		},
		{
			"rest without url",
			domain(func(d *DomainConfig) { d.Type = "rest"; d.Path = "" }),
			"needs a url",
		},
		{
			"ssh without block",
			domain(func(d *DomainConfig) { d.Type = "ssh"; d.Path = "" }),
			"needs an ssh block",
		},
		{
			"discovery without cidr",
			domain(func(d *DomainConfig) { d.Type = "discovery"; d.Path = "" }),
			"needs a cidr",
		},
		{
			"bad discipline",
			domain(func(d *DomainConfig) { d.Discipline = "osmosis" }),
			"invalid config",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}

	t.Run("duplicate domains", func(t *testing.T) {
		cfg := DefaultConfig()
		d := DomainConfig{Name: "d1", Type: "static", Path: "/tmp/a.yaml", Discipline: "poll", Format: "yaml"}
		cfg.Domains = []DomainConfig{d, d}
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "duplicate domain") {
			t.Errorf("error = %v, want duplicate domain", err)
		}
	})
}

func TestLoadWithoutFileFallsBackToDefaults(t *testing.T) {
	t.Setenv("CONFLUX_CONFIG", "")
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	cfg, path, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path != "" {
		t.Errorf("Load() found %q, want no file", path)
	}
	if cfg.Server.Addr != ":8008" {
		t.Errorf("Addr = %q, want default", cfg.Server.Addr)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Addr = ":6666"
	path := filepath.Join(t.TempDir(), "nested", "conflux.yaml")

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	back, _, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() after Save error = %v", err)
	}
	if back.Server.Addr != ":6666" {
		t.Errorf("round-tripped Addr = %q, want :6666", back.Server.Addr)
	}
}
