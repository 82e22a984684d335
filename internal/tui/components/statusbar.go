package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/theirongolddev/flamekit/internal/tui/theme"
)

// Status is what the status bar reports.
type Status struct {
	Spinner    string // drawn while Fetching
	Fetching   bool
	Generation uint64
	Err        error
	Message    string
	ComputeMs  int64
}

// RenderStatusBar renders the bottom status bar.
func RenderStatusBar(width int, s Status) string {
	t := theme.Active

	base := lipgloss.NewStyle().Background(t.Surface)
	keyStyle := base.Foreground(t.Accent).Bold(true)
	mutedStyle := base.Foreground(t.TextMuted)
	errStyle := base.Foreground(t.Red)

	left := keyStyle.Render(" [?]") + mutedStyle.Render("help ") +
		keyStyle.Render("[/]") + mutedStyle.Render("filter ") +
		keyStyle.Render("[q]") + mutedStyle.Render("uit")

	var right string
	switch {
	case s.Fetching:
		right = base.Foreground(t.Accent).Render(s.Spinner) + mutedStyle.Render(" computing ")
	case s.Err != nil:
		msg := runewidth.Truncate(s.Err.Error(), max(width/2, 10), "…")
		right = errStyle.Render("error: "+msg) + mutedStyle.Render(" ")
	case s.Message != "":
		right = mutedStyle.Render(s.Message + " ")
	case s.Generation > 0:
		right = mutedStyle.Render(fmt.Sprintf("#%d · %dms ", s.Generation, s.ComputeMs))
	}

	padding := width - lipgloss.Width(left) - lipgloss.Width(right)
	if padding < 0 {
		padding = 0
	}
	return left + base.Render(strings.Repeat(" ", padding)) + right
}
