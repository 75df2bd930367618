// File: internal/config/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Configuration types, defaults, and persistence for guppictl.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/core/shm"
	"github.com/momentics/guppi-status/internal/logging"
	"github.com/momentics/guppi-status/registry"
)

// Feed kinds.
const (
	FeedNone   = "none"
	FeedSQLite = "sqlite"
	FeedFile   = "file"
)

// Config is the root of config.yaml.
type Config struct {
	Shm     ShmConfig        `mapstructure:"shm" yaml:"shm"`
	Log     LogConfig        `mapstructure:"log" yaml:"log"`
	Feed    FeedConfig       `mapstructure:"feed" yaml:"feed"`
	Watch   WatchConfig      `mapstructure:"watch" yaml:"watch"`
	Tracing TracingConfig    `mapstructure:"tracing" yaml:"tracing"`
	Backend registry.Backend `mapstructure:"backend" yaml:"backend"`
}

// ShmConfig locates and sizes the shared region.
type ShmConfig struct {
	Path          string        `mapstructure:"path" yaml:"path"`
	Capacity      int           `mapstructure:"capacity" yaml:"capacity"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	CommitTimeout time.Duration `mapstructure:"commit_timeout" yaml:"commit_timeout"`
}

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// FeedConfig selects the telescope feed used by `set --gbt`.
type FeedConfig struct {
	Kind    string        `mapstructure:"kind" yaml:"kind"`
	Path    string        `mapstructure:"path" yaml:"path"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// WatchConfig controls `guppictl watch`. Interval is hot-reloadable.
type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// TracingConfig enables the stdout span exporter.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Shm: ShmConfig{
			Path:          shm.DefaultPath,
			Capacity:      shm.DefaultCapacity,
			ReadTimeout:   2 * time.Second,
			CommitTimeout: 5 * time.Second,
		},
		Log:     LogConfig{Level: "info"},
		Feed:    FeedConfig{Kind: FeedNone, Timeout: 3 * time.Second, TTL: time.Second},
		Watch:   WatchConfig{Interval: 500 * time.Millisecond},
		Backend: registry.DefaultBackend(),
	}
}

// DefaultPath is ~/.config/guppi-status/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".guppi-status", "config.yaml")
	}
	return filepath.Join(home, ".config", "guppi-status", "config.yaml")
}

// SetDefaults registers every default key on v so partial config files
// and environment overrides merge over them.
func SetDefaults(v *viper.Viper) error {
	data, err := yaml.Marshal(Defaults())
	if err != nil {
		return fmt.Errorf("encoding defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("decoding defaults: %w", err)
	}
	setDefaults(v, "", tree)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		if sub, ok := val.(map[string]any); ok {
			setDefaults(v, prefix+k+".", sub)
			continue
		}
		v.SetDefault(prefix+k, val)
	}
}

// Load decodes v into a validated Config.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	switch {
	case c.Shm.Path == "":
		return invalid("shm.path is empty")
	case c.Shm.Capacity < 0:
		return invalid("shm.capacity %d", c.Shm.Capacity)
	case c.Shm.ReadTimeout <= 0:
		return invalid("shm.read_timeout %v", c.Shm.ReadTimeout)
	case c.Feed.Timeout <= 0:
		return invalid("feed.timeout %v", c.Feed.Timeout)
	case c.Watch.Interval <= 0:
		return invalid("watch.interval %v", c.Watch.Interval)
	case c.Backend.NChan <= 0:
		return invalid("backend.obsnchan %d", c.Backend.NChan)
	case c.Backend.NominalBW == 0:
		return invalid("backend.nominal_bw is zero")
	case c.Backend.ManualSign == 0 || c.Backend.FeedSign == 0:
		return invalid("backend bandwidth signs must be nonzero")
	case len(c.Backend.Offsets) > 4 || len(c.Backend.Scales) > 4:
		return invalid("backend offsets/scales hold at most 4 entries")
	}
	switch c.Feed.Kind {
	case FeedNone:
	case FeedSQLite, FeedFile:
		if c.Feed.Path == "" {
			return invalid("feed.path is required for feed kind %q", c.Feed.Kind)
		}
	default:
		return invalid("feed.kind %q", c.Feed.Kind)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", api.ErrInvalidArgument, err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("config: "+format+": %w", append(args, api.ErrInvalidArgument)...)
}

// Map flattens c into dotted keys for the control store.
func (c Config) Map() map[string]any {
	return map[string]any{
		"shm.path":           c.Shm.Path,
		"shm.capacity":       c.Shm.Capacity,
		"shm.read_timeout":   c.Shm.ReadTimeout,
		"shm.commit_timeout": c.Shm.CommitTimeout,
		"log.level":          c.Log.Level,
		"feed.kind":          c.Feed.Kind,
		"feed.path":          c.Feed.Path,
		"watch.interval":     c.Watch.Interval,
	}
}

const header = `# guppi-status configuration.
# Durations use Go syntax (500ms, 2s). Unset keys fall back to built-in
# defaults. backend.manual_bw_sign / feed_bw_sign pick the OBSBW sign
# convention: manual scans are written spectrally inverted.
`

// WriteDefaultConfig writes the defaults to path, creating parent
// directories. An existing file is left untouched.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(Defaults())
	if err != nil {
		return fmt.Errorf("encoding defaults: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(header), data...), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
