package components

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/theirongolddev/flamekit/internal/model"
	"github.com/theirongolddev/flamekit/internal/tui/theme"
)

// FlameRows returns the depths of q in drawing order: shallowest first,
// except bottom-up graphs which draw their roots at the bottom.
func FlameRows(q *model.QueryData) []int {
	if q == nil || q.Empty() {
		return nil
	}
	depths := make([]int, 0, q.MaxDepth-q.MinDepth+1)
	for d := q.MinDepth; d <= q.MaxDepth; d++ {
		depths = append(depths, d)
	}
	if q.View.Kind == model.ViewBottomUp {
		slices.Reverse(depths)
	}
	return depths
}

// RenderFlame draws q into a width x height block. Node selected is drawn
// highlighted and the rows scroll to keep it visible.
func RenderFlame(q *model.QueryData, width, height, selected int) string {
	t := theme.Active
	bg := lipgloss.NewStyle().Background(t.Background)

	depths := FlameRows(q)
	if len(depths) == 0 {
		empty := bg.Foreground(t.TextMuted).Render("  (no frames match)")
		return lipgloss.Place(width, height, lipgloss.Left, lipgloss.Top, empty,
			lipgloss.WithWhitespaceBackground(t.Background))
	}

	var span float64
	for _, n := range q.Nodes {
		if n.IsRoot() {
			span = math.Max(span, n.XEnd)
		}
	}
	if span <= 0 {
		span = 1
	}

	offset := 0
	if len(depths) > height && selected >= 0 && selected < len(q.Nodes) {
		row := slices.Index(depths, q.Nodes[selected].Depth)
		offset = min(max(row-height/2, 0), len(depths)-height)
	}
	end := min(offset+height, len(depths))

	lines := make([]string, 0, height)
	for _, d := range depths[offset:end] {
		lines = append(lines, flameRow(q.NodesAtDepth(d), span, width, selected, t))
	}
	for len(lines) < height {
		lines = append(lines, bg.Render(strings.Repeat(" ", width)))
	}
	return strings.Join(lines, "\n")
}

func flameRow(nodes []model.Node, span float64, width, selected int, t theme.Theme) string {
	slices.SortFunc(nodes, func(a, b model.Node) int { return cmp.Compare(a.XStart, b.XStart) })
	gap := lipgloss.NewStyle().Background(t.Background)

	var b strings.Builder
	at := 0
	for _, n := range nodes {
		c0 := max(int(math.Round(n.XStart/span*float64(width))), at)
		c1 := min(int(math.Round(n.XEnd/span*float64(width))), width)
		if c1 <= c0 {
			continue
		}
		if c0 > at {
			b.WriteString(gap.Render(strings.Repeat(" ", c0-at)))
		}

		style := lipgloss.NewStyle().Foreground(t.Ink).Background(t.FrameColor(xxhash.Sum64String(n.Name)))
		if n.ID == selected {
			style = style.Background(t.Selected).Bold(true)
		}
		w := c1 - c0
		label := n.Name
		if w > 1 {
			label = runewidth.Truncate(label, w-1, "…")
			label = runewidth.FillRight(label, w-1) + " "
		} else {
			label = " "
		}
		b.WriteString(style.Render(label))
		at = c1
	}
	if at < width {
		b.WriteString(gap.Render(strings.Repeat(" ", width-at)))
	}
	return b.String()
}
