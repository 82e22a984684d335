package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
)

func TestLoadFrom_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Addr != DefaultConfig().Server.Addr {
		t.Errorf("Server.Addr = %q, want default", cfg.Server.Addr)
	}
	if notes := cfg.Validate(); len(notes) != 0 {
		t.Errorf("defaults produce notes: %v", notes)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	cfg := DefaultConfig()
	cfg.General.ProfilesDir = "/data/profiles"
	cfg.General.DefaultMetric = "CPU time"
	cfg.Layout.Columns = 120

	if err := SaveTo(path, cfg); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if got.General.ProfilesDir != "/data/profiles" {
		t.Errorf("ProfilesDir = %q, want /data/profiles", got.General.ProfilesDir)
	}
	if got.General.DefaultMetric != "CPU time" {
		t.Errorf("DefaultMetric = %q, want CPU time", got.General.DefaultMetric)
	}
	if got.Layout.Columns != 120 {
		t.Errorf("Columns = %d, want 120", got.Layout.Columns)
	}
}

func TestLoadFrom_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[server]\naddr = \":9000\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Addr = %q, want :9000", cfg.Server.Addr)
	}
	if cfg.Server.PollIntervalSec != 15 {
		t.Errorf("PollIntervalSec = %d, want 15", cfg.Server.PollIntervalSec)
	}
	if cfg.Server.SessionIdleSec != 1800 {
		t.Errorf("SessionIdleSec = %d, want 1800", cfg.Server.SessionIdleSec)
	}
}

func TestLoadFrom_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[server\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.General.DefaultView = "sideways"
	cfg.Layout.Width = -3
	cfg.Server.Burst = 0
	cfg.Log.Level = "chatty"

	notes := cfg.Validate()
	if len(notes) != 4 {
		t.Errorf("notes = %d (%v), want 4", len(notes), notes)
	}
	if cfg.General.DefaultView != "top-down" {
		t.Errorf("DefaultView = %q, want top-down", cfg.General.DefaultView)
	}
	if cfg.Layout.Width != 1 {
		t.Errorf("Width = %v, want 1", cfg.Layout.Width)
	}
	if cfg.Server.Burst != 40 {
		t.Errorf("Burst = %d, want 40", cfg.Server.Burst)
	}
	if cfg.LogLevel() != log.InfoLevel {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel())
	}
}

func TestConfigDirHonoursXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := ConfigPath(); got != filepath.Join("/xdg", "flamekit", "config.toml") {
		t.Errorf("ConfigPath = %q", got)
	}
}
