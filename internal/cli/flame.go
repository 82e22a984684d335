package cli

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/theirongolddev/flamekit/internal/model"
)

// FlameOptions controls text flame graph rendering.
type FlameOptions struct {
	Columns    int  // output width, at least 10
	MinColumns int  // frames narrower than this are left blank
	Plain      bool // no colors; frames start with '|'
}

// FrameColor returns the palette color for a frame name.
func FrameColor(name string) lipgloss.Color {
	return FlamePalette[xxhash.Sum64String(name)%uint64(len(FlamePalette))]
}

// RenderFlamegraph draws one line per depth with each node spanning its
// columns. Top-down and pivot graphs print from the shallowest depth down;
// bottom-up graphs print the self-contributing roots first.
func RenderFlamegraph(q *model.QueryData, opts FlameOptions) string {
	if q.Empty() {
		return mutedStyle.Render("  (no frames match)") + "\n"
	}
	cols := max(opts.Columns, 10)
	minCols := max(opts.MinColumns, 1)

	var span float64
	for _, n := range q.Nodes {
		if n.IsRoot() {
			span = math.Max(span, n.XEnd)
		}
	}
	if span <= 0 {
		span = 1
	}

	depths := make([]int, 0, q.MaxDepth-q.MinDepth+1)
	for d := q.MinDepth; d <= q.MaxDepth; d++ {
		depths = append(depths, d)
	}
	if q.View.Kind == model.ViewBottomUp {
		slices.Reverse(depths)
	}

	var b strings.Builder
	for _, d := range depths {
		b.WriteString(renderRow(q.NodesAtDepth(d), span, cols, minCols, opts.Plain))
		b.WriteByte('\n')
	}
	return b.String()
}

func renderRow(nodes []model.Node, span float64, cols, minCols int, plain bool) string {
	slices.SortFunc(nodes, func(a, b model.Node) int { return cmp.Compare(a.XStart, b.XStart) })

	var b strings.Builder
	at := 0
	for _, n := range nodes {
		c0 := int(math.Round(n.XStart / span * float64(cols)))
		c1 := int(math.Round(n.XEnd / span * float64(cols)))
		c0 = max(c0, at)
		c1 = min(c1, cols)
		if c1-c0 < minCols {
			continue
		}
		b.WriteString(strings.Repeat(" ", c0-at))
		b.WriteString(renderFrame(n.Name, c1-c0, plain))
		at = c1
	}
	return b.String()
}

func renderFrame(name string, w int, plain bool) string {
	if plain {
		if w < 2 {
			return "|"
		}
		label := runewidth.Truncate(name, w-1, "…")
		return "|" + runewidth.FillRight(label, w-1)
	}
	label := runewidth.FillRight(runewidth.Truncate(name, w, "…"), w)
	return lipgloss.NewStyle().
		Background(FrameColor(name)).
		Foreground(colorInk).
		Render(label)
}

// RenderSummary describes the totals of a flame graph in one line.
func RenderSummary(q *model.QueryData) string {
	return fmt.Sprintf("  %s  %s  %s of %s (%s)  %d nodes",
		headerStyle.Render(q.Metric),
		mutedStyle.Render(q.View.String()),
		valueStyle.Render(FormatValue(q.AllRootsCumulativeValue, q.Unit)),
		FormatValue(q.UnfilteredCumulativeValue, q.Unit),
		FormatShare(q.AllRootsCumulativeValue, q.UnfilteredCumulativeValue),
		len(q.Nodes),
	)
}

// FrameTotal is a frame name's value summed over every node it appears in.
type FrameTotal struct {
	Name  string
	Self  float64
	Total float64
}

// TopFrames returns the n names with the highest self value. Total counts
// each name once per root-to-node path so recursion is not double counted.
//
// In a bottom-up graph the roots are the self frames, so a root's self is
// its cumulative value and deeper nodes contribute none. In a pivot graph
// the caller nodes above the pivot carry no self of their own.
func TopFrames(q *model.QueryData, n int) []FrameTotal {
	byName := map[string]*FrameTotal{}
	onPath := map[int]map[string]bool{}

	for _, node := range q.Nodes {
		t := byName[node.Name]
		if t == nil {
			t = &FrameTotal{Name: node.Name}
			byName[node.Name] = t
		}
		t.Self += frameSelf(q.View.Kind, node)

		seen := map[string]bool{}
		if node.ParentID != nil {
			for k := range onPath[*node.ParentID] {
				seen[k] = true
			}
		}
		if !seen[node.Name] {
			t.Total += node.CumulativeValue
		}
		seen[node.Name] = true
		onPath[node.ID] = seen
	}

	out := make([]FrameTotal, 0, len(byName))
	for _, t := range byName {
		out = append(out, *t)
	}
	slices.SortFunc(out, func(a, b FrameTotal) int {
		if c := cmp.Compare(b.Self, a.Self); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func frameSelf(kind model.ViewKind, node model.Node) float64 {
	switch {
	case node.Depth < 0:
		return 0
	case kind == model.ViewBottomUp:
		if node.Depth == 0 {
			return node.CumulativeValue
		}
		return 0
	default:
		return node.SelfValue
	}
}
