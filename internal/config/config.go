// Package config loads the YAML configuration for a fixengine process:
// the counterparty sessions to run, storage location, and the admin/
// registry surfaces. Grounded on the teacher's config.Config
// (config/config.go) — defaults populated before yaml.Unmarshal so a
// config file only needs to override what it cares about.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level shape of a fixengine YAML config file.
type Config struct {
	// ListenAddr is the TCP address the acceptor side of this process
	// binds to; sessions whose role is "acceptor" are matched against
	// inbound connections on this one socket by CompID pair. Leave empty
	// if this process only runs initiator sessions.
	ListenAddr string `yaml:"listen_addr"`

	Sessions []SessionEntry `yaml:"sessions"`
	Store    StoreConfig    `yaml:"store"`
	Admin    AdminConfig    `yaml:"admin"`
	Registry RegistryConfig `yaml:"registry"`
}

// SessionEntry configures one counterparty session, initiator or acceptor.
type SessionEntry struct {
	Name         string `yaml:"name"`
	Role         string `yaml:"role"` // "initiator" or "acceptor"
	BeginString  string `yaml:"begin_string"`
	SenderCompID string `yaml:"sender_comp_id"`
	TargetCompID string `yaml:"target_comp_id"`

	// Address is where an initiator dials out to; unused for acceptor
	// entries, which are matched by (SenderCompID, TargetCompID) against
	// whatever the Listener accepts.
	Address string `yaml:"address"`

	HeartBtInt          int           `yaml:"heart_bt_int"`
	LogonTimeout        time.Duration `yaml:"logon_timeout"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`
	SendingTimeAccuracy time.Duration `yaml:"sending_time_accuracy"`
	DialTimeout         time.Duration `yaml:"dial_timeout"`

	// DictionaryPath, if set, is loaded via dictionary.Load and used to
	// validate incoming MsgTypes for this session. Left empty, the session
	// falls back to dictionary.Default(BeginString) — admin MsgTypes only,
	// enforced leniently (see dictionary.Dictionary.Accepts).
	DictionaryPath string `yaml:"dictionary_path"`
}

// StoreConfig selects and configures the durable Store implementation.
type StoreConfig struct {
	// Type is "file" or "memory". "memory" loses sequence numbers and the
	// outgoing log on restart and is meant for tests/demos only.
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// AdminConfig configures the read-only admin/metrics HTTP surface.
type AdminConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsPath string `yaml:"metrics_path"`
}

// RegistryConfig configures how often the session registry reloads this
// file and reconciles the running session set against it.
type RegistryConfig struct {
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// Load reads and parses the YAML config at path, applying the same
// defaults-before-unmarshal pattern as the teacher's config.Load.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{
		Store: StoreConfig{
			Type: "file",
			Path: "/data/fixengine",
		},
		Admin: AdminConfig{
			ListenAddr:  ":8090",
			MetricsPath: "/data/fixengine/analytics",
		},
		Registry: RegistryConfig{
			ReloadInterval: 30 * time.Second,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	for i := range cfg.Sessions {
		cfg.Sessions[i].withDefaults()
	}

	return cfg, nil
}

func (e *SessionEntry) withDefaults() {
	if e.Role == "" {
		e.Role = "initiator"
	}
	if e.HeartBtInt <= 0 {
		e.HeartBtInt = 30
	}
	if e.LogonTimeout <= 0 {
		e.LogonTimeout = 10 * time.Second
	}
	if e.ShutdownTimeout <= 0 {
		e.ShutdownTimeout = 5 * time.Second
	}
	if e.DialTimeout <= 0 {
		e.DialTimeout = 10 * time.Second
	}
}
