package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/flamekit/internal/pipeline"
	"github.com/theirongolddev/flamekit/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui [profile]",
	Short: "Browse flame graphs interactively",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTUI,
}

func init() {
	f := tuiCmd.Flags()
	f.StringVarP(&flagProfile, "profile", "p", "", "Profile id or name to open")
	f.StringVarP(&flagMetric, "metric", "m", "", "Metric to open with")
	f.StringVar(&flagView, "view", "", "Initial view")
	f.StringVar(&flagPivot, "pivot", "", "Initial pivot pattern")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	ref := flagProfile
	if len(args) == 1 {
		ref = args[0]
	}
	filters, err := showFilters()
	if err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	// Force TrueColor profile so all background styling produces ANSI codes
	// Without this, lipgloss may default to Ascii profile (no colors)
	lipgloss.SetColorProfile(termenv.TrueColor)

	metricName := flagMetric
	if metricName == "" {
		metricName = cfg.General.DefaultMetric
	}

	// The alt screen owns the terminal, so logs go to a file when verbose.
	var w io.Writer = io.Discard
	if flagVerbose {
		path := filepath.Join(pipeline.DataDir(), "tui.log")
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return err
		}
		//nolint:gosec // log path is under the user's data directory
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open tui log: %w", err)
		}
		defer f.Close()
		w = f
	}
	logger := newLogger(w, loggerFromContext(cmd.Context()).GetLevel())

	app := tui.New(tui.Options{
		DB:          db,
		ProfilesDir: cfg.General.ProfilesDir,
		ConfigPath:  flagConfigPath,
		Profile:     ref,
		Metric:      metricName,
		Filters:     filters,
		Width:       cfg.Layout.Width,
		Logger:      logger,
	})
	p := tea.NewProgram(app, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return nil
}
