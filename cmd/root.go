// Package cmd implements the flamekit CLI commands.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/flamekit/internal/config"
	"github.com/theirongolddev/flamekit/internal/model"
	"github.com/theirongolddev/flamekit/internal/pipeline"
	"github.com/theirongolddev/flamekit/internal/source"
	"github.com/theirongolddev/flamekit/internal/store"
	"github.com/theirongolddev/flamekit/internal/tui/theme"
)

var (
	flagDBPath     string
	flagConfigPath string
	flagVerbose    bool
	flagQuiet      bool
)

// cfg is the configuration loaded before every command runs.
var cfg = config.DefaultConfig()

var rootCmd = &cobra.Command{
	Use:   "flamekit",
	Short: "Flame graph aggregation for stored profiles",
	Long:  "Import folded and speedscope profiles, then filter, pivot and render them as flame graphs.",
	Args:  cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.LoadFrom(flagConfigPath)
		if err != nil {
			return err
		}
		level := loaded.LogLevel()
		switch {
		case flagVerbose:
			level = log.DebugLevel
		case flagQuiet:
			level = log.WarnLevel
		}
		logger := newLogger(os.Stderr, level)
		for _, note := range loaded.Validate() {
			logger.Warn("config adjusted", "note", note)
		}
		cfg = loaded
		theme.SetActive(cfg.Appearance.Theme)
		cmd.SetContext(withLogger(cmd.Context(), logger))
		return nil
	},
	RunE:          runShow,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "  Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "Profile database (default "+pipeline.DBPath()+")")
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", config.ConfigPath(), "Config file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Only log warnings and errors")
	addShowFlags(rootCmd)
}

func dbPath() string {
	switch {
	case flagDBPath != "":
		return flagDBPath
	case cfg.General.DBPath != "":
		return cfg.General.DBPath
	default:
		return pipeline.DBPath()
	}
}

func openDB() (*store.DB, error) {
	path := dbPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return db, nil
}

var errNoProfiles = errors.New("no profiles stored; run `flamekit import <path>` first")

// resolveProfile finds a stored profile by id, name or source file. A
// supported file that was never imported is imported on the spot. An empty
// ref picks the only stored profile.
func resolveProfile(db *store.DB, ref string) (model.ProfileInfo, error) {
	profiles, err := db.ListProfiles()
	if err != nil {
		return model.ProfileInfo{}, err
	}

	if ref == "" {
		switch len(profiles) {
		case 0:
			return model.ProfileInfo{}, errNoProfiles
		case 1:
			return profiles[0], nil
		default:
			return model.ProfileInfo{}, fmt.Errorf("%d profiles stored; pick one with --profile", len(profiles))
		}
	}

	var byName []model.ProfileInfo
	for _, p := range profiles {
		if p.ID == ref {
			return p, nil
		}
		if p.Name == ref {
			byName = append(byName, p)
		}
	}
	if len(byName) == 1 {
		return byName[0], nil
	}
	if len(byName) > 1 {
		return model.ProfileInfo{}, fmt.Errorf("%d profiles named %q; use the id", len(byName), ref)
	}

	if _, err := os.Stat(ref); err != nil {
		return model.ProfileInfo{}, fmt.Errorf("%w: %q", store.ErrProfileNotFound, ref)
	}
	abs, err := filepath.Abs(ref)
	if err != nil {
		return model.ProfileInfo{}, err
	}
	if p, err := db.GetProfile(source.ProfileID(abs)); err == nil {
		return p, nil
	}
	id, _, err := pipeline.ImportFile(abs, db)
	if err != nil {
		return model.ProfileInfo{}, err
	}
	return db.GetProfile(id)
}
