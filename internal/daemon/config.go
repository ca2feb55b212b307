// Package daemon wires the chore economy services together and runs the
// long-lived process: HTTP API plus the two corrective sweeps (credibility
// decay, task expiry).
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration, loaded from TOML.
type Config struct {
	API      APIConfig      `toml:"api"`
	Database DatabaseConfig `toml:"database"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Evidence EvidenceConfig `toml:"evidence"`
	Sweeps   SweepConfig    `toml:"sweeps"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (c APIConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// CatalogConfig optionally points at a TOML template catalog that
// overrides the built-in set.
type CatalogConfig struct {
	Path string `toml:"path"`
}

// EvidenceConfig locates the photo blob directory.
type EvidenceConfig struct {
	Dir string `toml:"dir"`
}

// SweepConfig controls the periodic corrective jobs. Both are safe to run
// on any interval and safe to skip.
type SweepConfig struct {
	DecayInterval  duration `toml:"decay_interval"`
	ExpiryInterval duration `toml:"expiry_interval"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns the daemon defaults.
func DefaultConfig() Config {
	return Config{
		API:      APIConfig{Host: "127.0.0.1", Port: 8090},
		Database: DatabaseConfig{Path: defaultDBPath()},
		Evidence: EvidenceConfig{Dir: defaultDataPath("evidence")},
		Sweeps: SweepConfig{
			DecayInterval:  duration(24 * time.Hour),
			ExpiryInterval: duration(time.Hour),
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// LoadConfig reads a TOML config file over the defaults. A missing file
// is not an error — defaults apply.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func defaultDBPath() string { return defaultDataPath("chorequest.db") }

func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".chorequest", name)
}

// duration wraps time.Duration for TOML string parsing ("24h", "30m").
type duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML.
func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// Duration returns the underlying time.Duration.
func (d duration) Duration() time.Duration { return time.Duration(d) }
