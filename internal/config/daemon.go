package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// AuthConfig controls API-key authentication on the daemon's WebSocket
// endpoint.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key,omitempty"`
}

// CORSConfig lists browser origins allowed to open a daemon connection.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Daemon is the daemon-wide configuration stored at
// `~/.config/gundog/daemon.yaml`.
type Daemon struct {
	Host           string            `yaml:"host"`
	Port           int               `yaml:"port"`
	ServeUI        bool              `yaml:"serve_ui"`
	Auth           AuthConfig        `yaml:"auth"`
	CORS           CORSConfig        `yaml:"cors"`
	Indexes        map[string]string `yaml:"indexes"`
	DefaultIndex   string            `yaml:"default_index,omitempty"`
}

// apiKeyEnvVar overrides daemon.auth.api_key when set.
const apiKeyEnvVar = "GUNDOG_API_KEY"

// DefaultDaemon returns the documented daemon config defaults.
func DefaultDaemon() *Daemon {
	return &Daemon{
		Host:    "127.0.0.1",
		Port:    7676,
		ServeUI: true,
		Indexes: map[string]string{},
	}
}

// DefaultDaemonConfigPath returns ~/.config/gundog/daemon.yaml.
func DefaultDaemonConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "gundog", "daemon.yaml")
	}
	return filepath.Join(home, ".config", "gundog", "daemon.yaml")
}

// LoadDaemon reads the daemon config from path, applying defaults for
// unset fields and the GUNDOG_API_KEY environment override. A missing file
// yields DefaultDaemon() unmodified.
func LoadDaemon(path string) (*Daemon, error) {
	cfg := DefaultDaemon()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyAPIKeyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read daemon config %s: %w", path, err)
	}

	var parsed Daemon
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse daemon config %s: %w", path, err)
	}
	mergeDaemon(cfg, &parsed)
	applyAPIKeyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid daemon config %s: %w", path, err)
	}
	return cfg, nil
}

func mergeDaemon(base, other *Daemon) {
	if other.Host != "" {
		base.Host = other.Host
	}
	if other.Port != 0 {
		base.Port = other.Port
	}
	base.ServeUI = other.ServeUI || base.ServeUI
	base.Auth.Enabled = other.Auth.Enabled || base.Auth.Enabled
	if other.Auth.APIKey != "" {
		base.Auth.APIKey = other.Auth.APIKey
	}
	if len(other.CORS.AllowedOrigins) > 0 {
		base.CORS.AllowedOrigins = other.CORS.AllowedOrigins
	}
	if len(other.Indexes) > 0 {
		for name, path := range other.Indexes {
			base.Indexes[name] = path
		}
	}
	if other.DefaultIndex != "" {
		base.DefaultIndex = other.DefaultIndex
	}
}

func applyAPIKeyEnv(cfg *Daemon) {
	if key := os.Getenv(apiKeyEnvVar); key != "" {
		cfg.Auth.APIKey = key
	}
}

// Validate rejects configurations the daemon cannot safely serve.
func (d *Daemon) Validate() error {
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("daemon.port must be in (0,65535], got %d", d.Port)
	}
	if d.Auth.Enabled && d.Auth.APIKey == "" {
		return fmt.Errorf("daemon.auth.enabled requires daemon.auth.api_key (or %s)", apiKeyEnvVar)
	}
	if d.DefaultIndex != "" {
		if _, ok := d.Indexes[d.DefaultIndex]; !ok {
			return fmt.Errorf("default_index %q is not registered in indexes", d.DefaultIndex)
		}
	}
	return nil
}

// WriteYAML marshals the daemon config and writes it to path, creating
// parent directories as needed.
func (d *Daemon) WriteYAML(path string) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal daemon config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
