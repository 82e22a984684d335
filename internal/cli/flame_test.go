package cli

import (
	"slices"
	"strings"
	"testing"

	"github.com/theirongolddev/flamekit/internal/model"
)

func ptr[T any](v T) *T { return &v }

// sample is A(8) -> B(8) -> {C(5), D(3)} laid out over [0, 1].
func sample() *model.QueryData {
	return &model.QueryData{
		Metric: "Samples",
		Unit:   "count",
		View:   model.TopDown(),
		Nodes: []model.Node{
			{ID: 0, Name: "A", CumulativeValue: 8, XStart: 0, XEnd: 1},
			{ID: 1, ParentID: ptr(0), Depth: 1, Name: "B", CumulativeValue: 8, XStart: 0, XEnd: 1},
			{ID: 2, ParentID: ptr(1), Depth: 2, Name: "C", SelfValue: 5, CumulativeValue: 5, XStart: 0, XEnd: 0.625},
			{ID: 3, ParentID: ptr(1), Depth: 2, Name: "D", SelfValue: 3, CumulativeValue: 3, XStart: 0.625, XEnd: 1},
		},
		AllRootsCumulativeValue:   8,
		UnfilteredCumulativeValue: 8,
		MaxDepth:                  2,
	}
}

func TestRenderFlamegraph_Plain(t *testing.T) {
	out := RenderFlamegraph(sample(), FlameOptions{Columns: 16, Plain: true})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	want := []string{
		"|A              ",
		"|B              ",
		"|C        |D    ",
	}
	if len(lines) != len(want) {
		t.Fatalf("lines = %d, want %d:\n%s", len(lines), len(want), out)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestRenderFlamegraph_MinColumnsHidesNarrowFrames(t *testing.T) {
	out := RenderFlamegraph(sample(), FlameOptions{Columns: 16, MinColumns: 7, Plain: true})
	if strings.Contains(out, "D") {
		t.Errorf("narrow frame D rendered:\n%s", out)
	}
	if !strings.Contains(out, "|C") {
		t.Errorf("frame C missing:\n%s", out)
	}
}

func TestRenderFlamegraph_BottomUpPrintsRootsFirst(t *testing.T) {
	q := &model.QueryData{
		View: model.BottomUp(),
		Nodes: []model.Node{
			{ID: 0, Name: "leaf", CumulativeValue: 1, XEnd: 1},
			{ID: 1, ParentID: ptr(0), Depth: -1, Name: "caller", CumulativeValue: 1, XEnd: 1},
		},
		MinDepth: -1,
	}
	out := RenderFlamegraph(q, FlameOptions{Columns: 12, Plain: true})
	if !strings.HasPrefix(out, "|leaf") {
		t.Errorf("first line should be the root:\n%s", out)
	}
}

func TestRenderFlamegraph_Empty(t *testing.T) {
	out := RenderFlamegraph(&model.QueryData{}, FlameOptions{Columns: 20})
	if !strings.Contains(out, "no frames") {
		t.Errorf("empty output = %q", out)
	}
}

func TestTopFrames(t *testing.T) {
	q := sample()
	top := TopFrames(q, 2)
	if len(top) != 2 {
		t.Fatalf("len = %d, want 2", len(top))
	}
	if top[0].Name != "C" || top[0].Self != 5 {
		t.Errorf("top[0] = %+v, want C with self 5", top[0])
	}
	if top[1].Name != "D" || top[1].Total != 3 {
		t.Errorf("top[1] = %+v, want D with total 3", top[1])
	}
}

func TestTopFrames_RecursionCountedOnce(t *testing.T) {
	q := &model.QueryData{Nodes: []model.Node{
		{ID: 0, Name: "f", CumulativeValue: 4},
		{ID: 1, ParentID: ptr(0), Depth: 1, Name: "f", SelfValue: 4, CumulativeValue: 4},
	}}
	top := TopFrames(q, 0)
	if len(top) != 1 || top[0].Total != 4 {
		t.Errorf("TopFrames = %+v, want f with total 4", top)
	}
}

// Rows main;work (2) and main;work;leaf (5), shaped as each view merges them.
func TestTopFrames_InvertedViewsMatchTopDown(t *testing.T) {
	want := []FrameTotal{
		{Name: "leaf", Self: 5, Total: 5},
		{Name: "work", Self: 2, Total: 7},
		{Name: "main", Self: 0, Total: 7},
	}
	tests := []struct {
		name string
		q    *model.QueryData
	}{
		{"top-down", &model.QueryData{View: model.TopDown(), AllRootsCumulativeValue: 7, Nodes: []model.Node{
			{ID: 0, Name: "main", CumulativeValue: 7},
			{ID: 1, ParentID: ptr(0), Depth: 1, Name: "work", SelfValue: 2, CumulativeValue: 7},
			{ID: 2, ParentID: ptr(1), Depth: 2, Name: "leaf", SelfValue: 5, CumulativeValue: 5},
		}}},
		{"bottom-up", &model.QueryData{View: model.BottomUp(), AllRootsCumulativeValue: 7, Nodes: []model.Node{
			{ID: 0, Name: "leaf", CumulativeValue: 5},
			{ID: 1, ParentID: ptr(0), Depth: -1, Name: "work", CumulativeValue: 5},
			{ID: 2, ParentID: ptr(1), Depth: -2, Name: "main", SelfValue: 5, CumulativeValue: 5},
			{ID: 3, Name: "work", CumulativeValue: 2},
			{ID: 4, ParentID: ptr(3), Depth: -1, Name: "main", SelfValue: 2, CumulativeValue: 2},
		}}},
		{"pivot", &model.QueryData{View: model.PivotOn("work"), AllRootsCumulativeValue: 7, Nodes: []model.Node{
			{ID: 0, Name: "work", SelfValue: 2, CumulativeValue: 7},
			{ID: 1, ParentID: ptr(0), Depth: 1, Name: "leaf", SelfValue: 5, CumulativeValue: 5},
			{ID: 2, ParentID: ptr(0), Depth: -1, Name: "main", SelfValue: 7, CumulativeValue: 7},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TopFrames(tt.q, 0)
			if !slices.Equal(got, want) {
				t.Errorf("TopFrames = %+v, want %+v", got, want)
			}
			var self float64
			for _, ft := range got {
				self += ft.Self
			}
			if self != tt.q.AllRootsCumulativeValue {
				t.Errorf("self column sums to %v, want %v", self, tt.q.AllRootsCumulativeValue)
			}
		})
	}
}
