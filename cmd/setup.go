package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/flamekit/internal/config"
	"github.com/theirongolddev/flamekit/internal/source"
	"github.com/theirongolddev/flamekit/internal/tui/theme"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	next := cfg

	var found string
	if next.General.ProfilesDir != "" {
		if files, err := source.ScanDir(next.General.ProfilesDir); err == nil && len(files) > 0 {
			found = fmt.Sprintf("Found %d profile files in %s.", len(files), next.General.ProfilesDir)
		}
	}

	themes := make([]huh.Option[string], 0, len(theme.All))
	for _, th := range theme.All {
		themes = append(themes, huh.NewOption(th.Name, th.Name))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to flamekit!").
				Description(found),
			huh.NewInput().
				Title("Profiles directory").
				Description("Imported by `flamekit import`, the TUI and the server.").
				Value(&next.General.ProfilesDir).
				Validate(func(s string) error {
					s = strings.TrimSpace(s)
					if s == "" {
						return nil
					}
					if fi, err := os.Stat(s); err != nil || !fi.IsDir() {
						return fmt.Errorf("%s is not a directory", s)
					}
					return nil
				}),
			huh.NewInput().
				Title("Default metric").
				Description("Blank uses each profile's first metric.").
				Value(&next.General.DefaultMetric),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default view").
				Options(
					huh.NewOption("Top-down", "top-down"),
					huh.NewOption("Bottom-up", "bottom-up"),
				).
				Value(&next.General.DefaultView),
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themes...).
				Value(&next.Appearance.Theme),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	next.General.ProfilesDir = strings.TrimSpace(next.General.ProfilesDir)
	next.General.DefaultMetric = strings.TrimSpace(next.General.DefaultMetric)

	if err := config.SaveTo(flagConfigPath, next); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", flagConfigPath)
	fmt.Println("  Run `flamekit setup` anytime to reconfigure.")
	fmt.Println()

	return nil
}
