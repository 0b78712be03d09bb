// Package daemon manages the weft server lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/weftworks/weft/internal/domain"
)

// Config holds all server configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Fanout    FanoutConfig    `toml:"fanout"`
	Offload   OffloadConfig   `toml:"offload"`
	Delay     DelayConfig     `toml:"delay"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// FanoutConfig controls worker-process scaling.
type FanoutConfig struct {
	Workers     int    `toml:"workers"`
	Restart     bool   `toml:"restart"`
	MaxRestarts int    `toml:"max_restarts"`
	Backoff     string `toml:"backoff"`
}

// OffloadConfig controls the blocking-work pool.
type OffloadConfig struct {
	Workers int `toml:"workers"`
}

// DelayConfig controls the /delay demo endpoint.
type DelayConfig struct {
	Seconds float64 `toml:"seconds"`
	Mode    string  `toml:"mode"`
}

// LedgerConfig controls the shared cross-process request ledger.
type LedgerConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// TelemetryConfig controls observability endpoints.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8005,
		},
		Fanout: FanoutConfig{
			Workers:     1,
			Restart:     false,
			MaxRestarts: 3,
			Backoff:     "1s",
		},
		Offload: OffloadConfig{
			Workers: 4,
		},
		Delay: DelayConfig{
			Seconds: 3,
			Mode:    string(domain.ModeAsync),
		},
		Ledger: LedgerConfig{
			Enabled: true,
		},
		Telemetry: TelemetryConfig{
			Prometheus: false,
		},
	}
}

// LoadConfig reads config from ~/.weft/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(weftHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet — use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if _, ok := domain.ParseDelayMode(cfg.Delay.Mode); !ok {
		return cfg, fmt.Errorf("parse config: unknown delay mode %q", cfg.Delay.Mode)
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.weft/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(weftHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// DelayDuration returns the configured delay as a duration.
func (c Config) DelayDuration() time.Duration {
	return time.Duration(c.Delay.Seconds * float64(time.Second))
}

// BackoffDuration parses the restart backoff, with a 1s fallback.
func (c Config) BackoffDuration() time.Duration {
	d, err := time.ParseDuration(c.Fanout.Backoff)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// weftHome returns the weft data directory.
func weftHome() string {
	if env := os.Getenv("WEFT_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".weft")
}

// WeftHome is exported for use by other packages.
func WeftHome() string {
	return weftHome()
}
