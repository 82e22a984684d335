package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/flamekit/internal/model"
	"github.com/theirongolddev/flamekit/internal/tui/theme"
)

// Tab represents a single view tab in the tab bar.
type Tab struct {
	Name   string
	Key    rune
	KeyPos int // position of the shortcut letter in the name (-1 if not in name)
	View   model.ViewKind
}

// Tabs defines the view tabs.
var Tabs = []Tab{
	{Name: "Top-down", Key: 't', KeyPos: 0, View: model.ViewTopDown},
	{Name: "Bottom-up", Key: 'b', KeyPos: 0, View: model.ViewBottomUp},
	{Name: "Pivot", Key: 'p', KeyPos: 0, View: model.ViewPivot},
}

// TabIndex returns the tab showing kind, or 0.
func TabIndex(kind model.ViewKind) int {
	for i, tab := range Tabs {
		if tab.View == kind {
			return i
		}
	}
	return 0
}

// TabVisualWidth returns the rendered width of a tab label.
func TabVisualWidth(tab Tab, active bool) int {
	return lipgloss.Width(renderTab(tab, active))
}

func renderTab(tab Tab, active bool) string {
	t := theme.Active

	if active {
		return lipgloss.NewStyle().
			Foreground(t.AccentBright).
			Background(t.SurfaceHover).
			Bold(true).
			Padding(0, 1).
			Render(tab.Name)
	}

	inactiveStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	keyStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	padStyle := lipgloss.NewStyle().Background(t.Surface)

	if tab.KeyPos < 0 || tab.KeyPos >= len(tab.Name) {
		return padStyle.Render(" ") + inactiveStyle.Render(tab.Name) + padStyle.Render(" ")
	}
	before := tab.Name[:tab.KeyPos]
	key := string(tab.Name[tab.KeyPos])
	after := tab.Name[tab.KeyPos+1:]
	return padStyle.Render(" ") +
		inactiveStyle.Render(before) + keyStyle.Render(key) + inactiveStyle.Render(after) +
		padStyle.Render(" ")
}

// RenderTabBar renders the tab bar with the given active index. Detail is
// right-aligned on the same row.
func RenderTabBar(activeIdx int, width int, detail string) string {
	t := theme.Active
	sep := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface).Render("│")

	parts := make([]string, 0, len(Tabs))
	for i, tab := range Tabs {
		parts = append(parts, renderTab(tab, i == activeIdx))
	}
	left := strings.Join(parts, sep)

	right := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface).Render(detail + " ")
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return lipgloss.NewStyle().Background(t.Surface).Width(width).Render(left)
	}
	fill := lipgloss.NewStyle().Background(t.Surface).Render(strings.Repeat(" ", gap))
	return left + fill + right
}
