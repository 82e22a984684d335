// Package theme defines color themes for the flamekit TUI.
package theme

import "github.com/charmbracelet/lipgloss"

// Theme defines the color roles used throughout the TUI.
type Theme struct {
	Name         string
	Background   lipgloss.Color // Main app background
	Surface      lipgloss.Color // Header and status bar backgrounds
	SurfaceHover lipgloss.Color // Highlighted surface (active tab)
	BorderAccent lipgloss.Color // Accent-colored borders for focus states
	TextDim      lipgloss.Color // Lowest contrast text (hints, disabled)
	TextMuted    lipgloss.Color // Secondary text (labels, metadata)
	TextPrimary  lipgloss.Color // Primary content text
	Accent       lipgloss.Color // Primary accent (active states)
	AccentBright lipgloss.Color // Brighter accent for emphasis

	Red    lipgloss.Color
	Orange lipgloss.Color
	Cyan   lipgloss.Color

	// Ink is the text color drawn on top of flame frames.
	Ink lipgloss.Color
	// Selected is the background of the focused frame.
	Selected lipgloss.Color
	// Flame colors frames by name hash.
	Flame []lipgloss.Color
}

// FrameColor returns the flame color for a frame hash.
func (t Theme) FrameColor(h uint64) lipgloss.Color {
	if len(t.Flame) == 0 {
		return t.Orange
	}
	return t.Flame[h%uint64(len(t.Flame))]
}

// Active is the currently selected theme.
var Active = FlexokiDark

// FlexokiDark is the default theme - warm, paper-inspired dark theme.
var FlexokiDark = Theme{
	Name:         "flexoki-dark",
	Background:   lipgloss.Color("#100F0F"),
	Surface:      lipgloss.Color("#1C1B1A"),
	SurfaceHover: lipgloss.Color("#282726"),
	BorderAccent: lipgloss.Color("#3AA99F"),
	TextDim:      lipgloss.Color("#575653"),
	TextMuted:    lipgloss.Color("#878580"),
	TextPrimary:  lipgloss.Color("#FFFCF0"),
	Accent:       lipgloss.Color("#3AA99F"),
	AccentBright: lipgloss.Color("#5BC8BE"),
	Red:          lipgloss.Color("#D14D41"),
	Orange:       lipgloss.Color("#DA702C"),
	Cyan:         lipgloss.Color("#24837B"),
	Ink:          lipgloss.Color("#100F0F"),
	Selected:     lipgloss.Color("#5BC8BE"),
	Flame: []lipgloss.Color{
		"#D14D41", "#DA702C", "#D0A215", "#E47A3A", "#C9522F",
		"#E0A33A", "#BC5215", "#AD8301", "#E8705F", "#F0A04B",
	},
}

// CatppuccinMocha is a warm pastel theme with soft, soothing colors.
var CatppuccinMocha = Theme{
	Name:         "catppuccin-mocha",
	Background:   lipgloss.Color("#1E1E2E"),
	Surface:      lipgloss.Color("#313244"),
	SurfaceHover: lipgloss.Color("#45475A"),
	BorderAccent: lipgloss.Color("#89B4FA"),
	TextDim:      lipgloss.Color("#6C7086"),
	TextMuted:    lipgloss.Color("#A6ADC8"),
	TextPrimary:  lipgloss.Color("#CDD6F4"),
	Accent:       lipgloss.Color("#89B4FA"),
	AccentBright: lipgloss.Color("#B4D0FB"),
	Red:          lipgloss.Color("#F38BA8"),
	Orange:       lipgloss.Color("#FAB387"),
	Cyan:         lipgloss.Color("#94E2D5"),
	Ink:          lipgloss.Color("#1E1E2E"),
	Selected:     lipgloss.Color("#B4D0FB"),
	Flame: []lipgloss.Color{
		"#F38BA8", "#FAB387", "#F9E2AF", "#EBA0AC", "#F5C2E7",
		"#F2CDCD", "#E64553", "#FE640B", "#DF8E1D",
	},
}

// TokyoNight is a cool blue/purple theme inspired by Tokyo city lights.
var TokyoNight = Theme{
	Name:         "tokyo-night",
	Background:   lipgloss.Color("#1A1B26"),
	Surface:      lipgloss.Color("#24283B"),
	SurfaceHover: lipgloss.Color("#343A52"),
	BorderAccent: lipgloss.Color("#7AA2F7"),
	TextDim:      lipgloss.Color("#565F89"),
	TextMuted:    lipgloss.Color("#A9B1D6"),
	TextPrimary:  lipgloss.Color("#C0CAF5"),
	Accent:       lipgloss.Color("#7AA2F7"),
	AccentBright: lipgloss.Color("#A9C1FF"),
	Red:          lipgloss.Color("#F7768E"),
	Orange:       lipgloss.Color("#FF9E64"),
	Cyan:         lipgloss.Color("#7DCFFF"),
	Ink:          lipgloss.Color("#1A1B26"),
	Selected:     lipgloss.Color("#7DCFFF"),
	Flame: []lipgloss.Color{
		"#F7768E", "#FF9E64", "#E0AF68", "#DB4B4B", "#FF757F",
		"#FFC777", "#BB9AF7",
	},
}

// Terminal uses ANSI 16 colors only - maximum compatibility.
var Terminal = Theme{
	Name:         "terminal",
	Background:   lipgloss.Color("0"),
	Surface:      lipgloss.Color("0"),
	SurfaceHover: lipgloss.Color("8"),
	BorderAccent: lipgloss.Color("6"),
	TextDim:      lipgloss.Color("8"),
	TextMuted:    lipgloss.Color("7"),
	TextPrimary:  lipgloss.Color("15"),
	Accent:       lipgloss.Color("6"),
	AccentBright: lipgloss.Color("14"),
	Red:          lipgloss.Color("1"),
	Orange:       lipgloss.Color("3"),
	Cyan:         lipgloss.Color("6"),
	Ink:          lipgloss.Color("0"),
	Selected:     lipgloss.Color("14"),
	Flame:        []lipgloss.Color{"1", "3", "9", "11"},
}

// All available themes.
var All = []Theme{FlexokiDark, CatppuccinMocha, TokyoNight, Terminal}

// ByName returns a theme by its name, defaulting to FlexokiDark.
func ByName(name string) Theme {
	for _, t := range All {
		if t.Name == name {
			return t
		}
	}
	return FlexokiDark
}

// SetActive sets the active theme by name.
func SetActive(name string) {
	Active = ByName(name)
}
