// Package config loads and saves the flamekit TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
)

// Config holds all flamekit configuration.
type Config struct {
	General    GeneralConfig    `toml:"general"`
	Layout     LayoutConfig     `toml:"layout"`
	Server     ServerConfig     `toml:"server"`
	Appearance AppearanceConfig `toml:"appearance"`
	Log        LogConfig        `toml:"log"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	DBPath        string `toml:"db_path,omitempty"`
	ProfilesDir   string `toml:"profiles_dir,omitempty"`
	DefaultMetric string `toml:"default_metric,omitempty"`
	DefaultView   string `toml:"default_view"`
}

// LayoutConfig holds flame graph layout settings.
type LayoutConfig struct {
	// Width is the span computed layouts cover. Renderers scale it.
	Width float64 `toml:"width"`
	// Columns is the text renderer's width; 0 uses the terminal width.
	Columns int `toml:"columns,omitempty"`
	// MinColumns hides frames narrower than this many columns in text output.
	MinColumns int `toml:"min_columns"`
}

// ServerConfig holds daemon settings.
type ServerConfig struct {
	Addr            string  `toml:"addr"`
	PollIntervalSec int     `toml:"poll_interval_sec"`
	EventsBuffer    int     `toml:"events_buffer"`
	RequestsPerSec  float64 `toml:"requests_per_sec"`
	Burst           int     `toml:"burst"`
	SessionIdleSec  int     `toml:"session_idle_sec"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			DefaultView: "top-down",
		},
		Layout: LayoutConfig{
			Width:      1,
			MinColumns: 1,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8765",
			PollIntervalSec: 15,
			EventsBuffer:    200,
			RequestsPerSec:  20,
			Burst:           40,
			SessionIdleSec:  1800,
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate replaces nonsensical values with defaults and returns a note per
// adjustment.
func (c *Config) Validate() []string {
	def := DefaultConfig()
	var notes []string
	fix := func(cond bool, note string, apply func()) {
		if cond {
			apply()
			notes = append(notes, note)
		}
	}

	switch strings.ToLower(c.General.DefaultView) {
	case "top-down", "bottom-up":
	default:
		fix(true, fmt.Sprintf("general.default_view %q unknown, using top-down", c.General.DefaultView),
			func() { c.General.DefaultView = def.General.DefaultView })
	}
	fix(c.Layout.Width <= 0, "layout.width must be positive, using 1",
		func() { c.Layout.Width = def.Layout.Width })
	fix(c.Layout.Columns < 0, "layout.columns must not be negative, using terminal width",
		func() { c.Layout.Columns = 0 })
	fix(c.Layout.MinColumns < 1, "layout.min_columns must be at least 1",
		func() { c.Layout.MinColumns = def.Layout.MinColumns })
	fix(c.Server.Addr == "", "server.addr empty, using "+def.Server.Addr,
		func() { c.Server.Addr = def.Server.Addr })
	fix(c.Server.PollIntervalSec < 1, "server.poll_interval_sec must be at least 1",
		func() { c.Server.PollIntervalSec = def.Server.PollIntervalSec })
	fix(c.Server.EventsBuffer < 1, "server.events_buffer must be at least 1",
		func() { c.Server.EventsBuffer = def.Server.EventsBuffer })
	fix(c.Server.RequestsPerSec <= 0, "server.requests_per_sec must be positive",
		func() { c.Server.RequestsPerSec = def.Server.RequestsPerSec })
	fix(c.Server.Burst < 1, "server.burst must be at least 1",
		func() { c.Server.Burst = def.Server.Burst })
	fix(c.Server.SessionIdleSec < 1, "server.session_idle_sec must be at least 1",
		func() { c.Server.SessionIdleSec = def.Server.SessionIdleSec })
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		fix(true, fmt.Sprintf("log.level %q unknown, using info", c.Log.Level),
			func() { c.Log.Level = def.Log.Level })
	}
	return notes
}

// LogLevel returns the configured log level.
func (c Config) LogLevel() log.Level {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "flamekit")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "flamekit")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// LoadFrom reads the config file at path, returning defaults if it doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// SaveTo writes the config to path.
func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}
