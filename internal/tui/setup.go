package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/theirongolddev/flamekit/internal/config"
	"github.com/theirongolddev/flamekit/internal/tui/theme"
)

// setupValues holds the answers of the first-run form.
type setupValues struct {
	profilesDir string
	defaultView string
	theme       string
}

func newSetupForm(profileCount int, profilesDir string, vals *setupValues) *huh.Form {
	vals.profilesDir = profilesDir
	if vals.defaultView == "" {
		vals.defaultView = "top-down"
	}
	if vals.theme == "" {
		vals.theme = theme.Active.Name
	}

	themes := make([]huh.Option[string], 0, len(theme.All))
	for _, th := range theme.All {
		themes = append(themes, huh.NewOption(th.Name, th.Name))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to flamekit").
				Description(fmt.Sprintf("%d profiles in the store. Let's set up a few things.", profileCount)),
			huh.NewInput().
				Title("Profiles directory").
				Description("Imported before every session; leave blank to skip.").
				Value(&vals.profilesDir).
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
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default view").
				Options(
					huh.NewOption("Top-down", "top-down"),
					huh.NewOption("Bottom-up", "bottom-up"),
				).
				Value(&vals.defaultView),
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themes...).
				Value(&vals.theme),
		),
	).WithShowHelp(false)
}

func (a *App) saveSetupConfig() error {
	cfg, _ := config.LoadFrom(a.initial.ConfigPath)

	cfg.General.ProfilesDir = strings.TrimSpace(a.setupVals.profilesDir)
	cfg.General.DefaultView = a.setupVals.defaultView
	cfg.Appearance.Theme = a.setupVals.theme
	theme.SetActive(cfg.Appearance.Theme)

	if cfg.General.ProfilesDir != "" {
		a.profilesDir = cfg.General.ProfilesDir
	}
	return config.SaveTo(a.initial.ConfigPath, cfg)
}
