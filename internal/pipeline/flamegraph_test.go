package pipeline

import (
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/theirongolddev/flamekit/internal/metric"
	"github.com/theirongolddev/flamekit/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

var testMetric = metric.Metric{
	Name:                     "Samples",
	Unit:                     "count",
	UnaggregatableProperties: []string{"mapping"},
	AggregatableProperties:   []string{"source_file", "line"},
}

func root(id int64, name string, self float64) model.Frame {
	return model.Frame{ID: id, Name: name, SelfValue: self, Unaggregatable: []string{""}, Aggregatable: []string{"", ""}}
}

func child(id, parent int64, name string, self float64) model.Frame {
	f := root(id, name, self)
	f.ParentID = parent
	f.HasParent = true
	return f
}

// scenarioRows holds the paths A->B->C (5) and A->B->D (3) as separate rows.
func scenarioRows() []model.Frame {
	return []model.Frame{
		root(1, "A", 0),
		child(2, 1, "B", 0),
		child(3, 2, "C", 5),
		root(4, "A", 0),
		child(5, 4, "B", 0),
		child(6, 5, "D", 3),
	}
}

func build(rows []model.Frame, f model.Filters) *model.QueryData {
	return Flamegraph(rows, testMetric, f, Options{})
}

func find(t *testing.T, q *model.QueryData, name string, depth int) model.Node {
	t.Helper()
	var found []model.Node
	for _, n := range q.Nodes {
		if n.Name == name && n.Depth == depth {
			found = append(found, n)
		}
	}
	require.Lenf(t, found, 1, "nodes named %q at depth %d", name, depth)
	return found[0]
}

func names(q *model.QueryData) []string {
	out := make([]string, 0, len(q.Nodes))
	for _, n := range q.Nodes {
		out = append(out, n.Name)
	}
	return out
}

func TestFlamegraph_MergesTopDown(t *testing.T) {
	q := build(scenarioRows(), model.Filters{})

	require.Len(t, q.Nodes, 4)
	assert.Equal(t, []string{"A", "B", "C", "D"}, names(q))

	a := find(t, q, "A", 0)
	b := find(t, q, "B", 1)
	c := find(t, q, "C", 2)
	d := find(t, q, "D", 2)
	assert.Equal(t, 8.0, a.CumulativeValue)
	assert.Equal(t, 8.0, b.CumulativeValue)
	assert.Equal(t, 5.0, c.CumulativeValue)
	assert.Equal(t, 3.0, d.CumulativeValue)
	assert.Equal(t, 5.0, c.SelfValue)

	assert.Nil(t, a.ParentID)
	require.NotNil(t, b.ParentID)
	assert.Equal(t, a.ID, *b.ParentID)
	require.NotNil(t, c.ParentCumulativeValue)
	assert.Equal(t, 8.0, *c.ParentCumulativeValue)

	assert.Equal(t, 8.0, q.AllRootsCumulativeValue)
	assert.Equal(t, 8.0, q.UnfilteredCumulativeValue)
	assert.Equal(t, 0, q.MinDepth)
	assert.Equal(t, 2, q.MaxDepth)
}

func TestFlamegraph_HideFrameReattachesChildren(t *testing.T) {
	q := build(scenarioRows(), model.Filters{HideFrame: []string{"B"}})

	assert.Equal(t, []string{"A", "C", "D"}, names(q))
	a := find(t, q, "A", 0)
	c := find(t, q, "C", 1)
	d := find(t, q, "D", 1)
	assert.Equal(t, 8.0, a.CumulativeValue)
	assert.Equal(t, a.ID, *c.ParentID)
	assert.Equal(t, a.ID, *d.ParentID)
	assert.Equal(t, 8.0, q.AllRootsCumulativeValue)
}

func TestFlamegraph_HideFrameMovesSelfToAncestor(t *testing.T) {
	rows := []model.Frame{
		root(1, "A", 1),
		child(2, 1, "B", 4),
		child(3, 2, "C", 5),
	}
	q := build(rows, model.Filters{HideFrame: []string{"B"}})

	a := find(t, q, "A", 0)
	assert.Equal(t, 5.0, a.SelfValue)
	assert.Equal(t, 10.0, a.CumulativeValue)
	assert.Equal(t, 5.0, find(t, q, "C", 1).CumulativeValue)
}

// showFromFrame is inclusive: the first matching frame becomes the root.
func TestFlamegraph_ShowFromFrameReroots(t *testing.T) {
	q := build(scenarioRows(), model.Filters{ShowFromFrame: []string{"B"}})

	assert.Equal(t, []string{"B", "C", "D"}, names(q))
	b := find(t, q, "B", 0)
	assert.Nil(t, b.ParentID)
	assert.Equal(t, 8.0, b.CumulativeValue)
	assert.Equal(t, 5.0, find(t, q, "C", 1).CumulativeValue)
	assert.Equal(t, 3.0, find(t, q, "D", 1).CumulativeValue)
	assert.Equal(t, 8.0, q.AllRootsCumulativeValue)
	assert.Equal(t, 8.0, q.UnfilteredCumulativeValue)
}

func TestFlamegraph_ShowFromFrameNeedsAllPatterns(t *testing.T) {
	q := build(scenarioRows(), model.Filters{ShowFromFrame: []string{"A", "C"}})

	assert.Equal(t, []string{"C"}, names(q))
	assert.Equal(t, 5.0, q.AllRootsCumulativeValue)
}

func TestFlamegraph_ShowStack(t *testing.T) {
	q := build(scenarioRows(), model.Filters{ShowStack: []string{"C"}})

	assert.Equal(t, []string{"A", "B", "C"}, names(q))
	assert.Equal(t, 5.0, find(t, q, "A", 0).CumulativeValue)
	assert.Equal(t, 5.0, q.AllRootsCumulativeValue)
	assert.Equal(t, 8.0, q.UnfilteredCumulativeValue)
}

func TestFlamegraph_ShowStackRequiresEveryPattern(t *testing.T) {
	q := build(scenarioRows(), model.Filters{ShowStack: []string{"^A$", "D"}})
	assert.Equal(t, []string{"A", "B", "D"}, names(q))

	q = build(scenarioRows(), model.Filters{ShowStack: []string{"C", "D"}})
	assert.True(t, q.Empty())
	assert.Equal(t, 0.0, q.AllRootsCumulativeValue)
}

func TestFlamegraph_HideStackDropsSubtree(t *testing.T) {
	q := build(scenarioRows(), model.Filters{HideStack: []string{"D"}})
	assert.Equal(t, []string{"A", "B", "C"}, names(q))
	assert.Equal(t, 5.0, q.AllRootsCumulativeValue)

	q = build(scenarioRows(), model.Filters{HideStack: []string{"B"}})
	assert.True(t, q.Empty())
}

func TestFlamegraph_PatternMatching(t *testing.T) {
	rows := []model.Frame{
		root(1, "main", 0),
		child(2, 1, "mainLoop", 2),
		child(3, 1, "Main", 1),
	}

	// Unanchored patterns are case-sensitive substrings.
	q := build(rows, model.Filters{HideFrame: []string{"Loop"}})
	assert.Equal(t, []string{"main", "Main"}, names(q))

	// Anchored patterns match the whole name only.
	q = build(rows, model.Filters{HideStack: []string{"^main$"}})
	assert.True(t, q.Empty())

	q = build(rows, model.Filters{ShowStack: []string{"^mainLoop$"}})
	assert.Equal(t, []string{"main", "mainLoop"}, names(q))
}

func TestFlamegraph_BottomUp(t *testing.T) {
	q := build(scenarioRows(), model.Filters{View: model.BottomUp()})

	c := find(t, q, "C", 0)
	d := find(t, q, "D", 0)
	assert.Equal(t, 5.0, c.CumulativeValue)
	assert.Equal(t, 0.0, c.SelfValue)
	assert.Equal(t, 3.0, d.CumulativeValue)

	// Each leaf's callers sit at negative depths.
	var callersOfC []model.Node
	for _, n := range q.Nodes {
		if n.ParentID != nil && *n.ParentID == c.ID {
			callersOfC = append(callersOfC, n)
		}
	}
	require.Len(t, callersOfC, 1)
	assert.Equal(t, "B", callersOfC[0].Name)
	assert.Equal(t, -1, callersOfC[0].Depth)

	assert.Equal(t, -2, q.MinDepth)
	assert.Equal(t, 0, q.MaxDepth)
	assert.Equal(t, 8.0, q.AllRootsCumulativeValue)

	var topCallers float64
	for _, n := range q.NodesAtDepth(-2) {
		assert.Equal(t, "A", n.Name)
		assert.Equal(t, n.CumulativeValue, n.SelfValue)
		topCallers += n.SelfValue
	}
	assert.Equal(t, 8.0, topCallers)
}

func TestFlamegraph_Pivot(t *testing.T) {
	rows := []model.Frame{
		root(1, "A", 0),
		child(2, 1, "B", 1),
		child(3, 2, "C", 5),
		child(4, 2, "D", 3),
		child(5, 1, "F", 4),
		root(6, "X", 0),
		child(7, 6, "B", 0),
		child(8, 7, "E", 2),
	}
	q := build(rows, model.Filters{View: model.PivotOn("^B$")})

	b := find(t, q, "B", 0)
	assert.Nil(t, b.ParentID)
	assert.Equal(t, 11.0, b.CumulativeValue)
	assert.Equal(t, 1.0, b.SelfValue)
	assert.Equal(t, 5.0, find(t, q, "C", 1).CumulativeValue)
	assert.Equal(t, 3.0, find(t, q, "D", 1).CumulativeValue)
	assert.Equal(t, 2.0, find(t, q, "E", 1).CumulativeValue)

	callerA := find(t, q, "A", -1)
	callerX := find(t, q, "X", -1)
	assert.Equal(t, 9.0, callerA.CumulativeValue)
	assert.Equal(t, 2.0, callerX.CumulativeValue)
	assert.Equal(t, b.ID, *callerA.ParentID)

	for _, n := range q.Nodes {
		assert.NotEqual(t, "F", n.Name, "frames off the pivot path are dropped")
	}
	assert.Equal(t, 11.0, q.AllRootsCumulativeValue)
	assert.Equal(t, 15.0, q.UnfilteredCumulativeValue)
	assert.Equal(t, -1, q.MinDepth)
	assert.Equal(t, 1, q.MaxDepth)
}

func TestFlamegraph_NestedPivotMatchesStayInSubtree(t *testing.T) {
	rows := []model.Frame{
		root(1, "main", 0),
		child(2, 1, "recurse", 1),
		child(3, 2, "recurse", 2),
	}
	q := build(rows, model.Filters{View: model.PivotOn("recurse")})

	top := find(t, q, "recurse", 0)
	assert.Equal(t, 3.0, top.CumulativeValue)
	assert.Equal(t, 2.0, find(t, q, "recurse", 1).CumulativeValue)
	assert.Equal(t, 3.0, find(t, q, "main", -1).CumulativeValue)
}

func TestFlamegraph_GroupingKeyIncludesUnaggregatable(t *testing.T) {
	rows := []model.Frame{
		root(1, "A", 0),
		child(2, 1, "malloc", 2),
		root(3, "A", 0),
		child(4, 3, "malloc", 3),
	}
	rows[1].Unaggregatable = []string{"libc.so"}
	rows[3].Unaggregatable = []string{"jemalloc.so"}

	q := build(rows, model.Filters{})
	var mallocs []model.Node
	for _, n := range q.Nodes {
		if n.Name == "malloc" {
			mallocs = append(mallocs, n)
		}
	}
	require.Len(t, mallocs, 2)
	mappings := []string{mallocs[0].Properties["mapping"], mallocs[1].Properties["mapping"]}
	assert.ElementsMatch(t, []string{"libc.so", "jemalloc.so"}, mappings)
	assert.Equal(t, 5.0, find(t, q, "A", 0).CumulativeValue)
}

func TestFlamegraph_AggregatablePropertiesNeedAgreement(t *testing.T) {
	rows := []model.Frame{
		root(1, "A", 0),
		child(2, 1, "parse", 2),
		root(3, "A", 0),
		child(4, 3, "parse", 3),
	}
	rows[1].Aggregatable = []string{"parse.go", "10"}
	rows[3].Aggregatable = []string{"parse.go", "42"}

	q := build(rows, model.Filters{})
	p := find(t, q, "parse", 1)
	assert.Equal(t, map[string]string{"source_file": "parse.go"}, p.Properties)
	assert.Nil(t, find(t, q, "A", 0).Properties)
}

func TestFlamegraph_IrregularRows(t *testing.T) {
	rows := []model.Frame{
		root(1, "A", 2),
		child(2, 1, "neg", -4),
		child(3, 1, "nan", math.NaN()),
		child(4, 5, "loop1", 7),
		child(5, 4, "loop2", 7),
		child(6, 99, "orphan", 1),
		{ID: 7, ParentID: 7, HasParent: true, Name: "self-parent", SelfValue: 1},
		root(1, "dup", 100),
	}
	q := build(rows, model.Filters{})

	assert.Equal(t, []string{"A", "orphan", "self-parent"}, names(q))
	assert.Equal(t, 4.0, q.UnfilteredCumulativeValue)
	assert.Equal(t, 4.0, q.AllRootsCumulativeValue)
}

func TestFlamegraph_EmptyInput(t *testing.T) {
	q := build(nil, model.Filters{View: model.BottomUp()})
	assert.True(t, q.Empty())
	assert.Equal(t, 0.0, q.AllRootsCumulativeValue)
	assert.Equal(t, 0, q.MinDepth)
	assert.Equal(t, 0, q.MaxDepth)
}

func TestFlamegraph_Width(t *testing.T) {
	q := Flamegraph(scenarioRows(), testMetric, model.Filters{}, Options{Width: 800})
	a := find(t, q, "A", 0)
	assert.Equal(t, 0.0, a.XStart)
	assert.InDelta(t, 800.0, a.XEnd, eps)
	c := find(t, q, "C", 2)
	assert.InDelta(t, 500.0, c.Width(), eps)
}

func TestFlamegraph_ParentSelfLeavesGap(t *testing.T) {
	rows := []model.Frame{
		root(1, "A", 6),
		child(2, 1, "B", 2),
		child(3, 1, "C", 2),
	}
	q := build(rows, model.Filters{})
	b := find(t, q, "B", 1)
	c := find(t, q, "C", 1)
	assert.InDelta(t, 0.0, b.XStart, eps)
	assert.InDelta(t, 0.2, b.XEnd, eps)
	assert.InDelta(t, 0.2, c.XStart, eps)
	assert.InDelta(t, 0.4, c.XEnd, eps)
}

// randomRows builds a random forest with shared names so merges happen.
func randomRows(r *rand.Rand, n int) []model.Frame {
	names := []string{"main", "run", "parse", "eval", "alloc", "gc", "io", "lock"}
	rows := make([]model.Frame, 0, n)
	for i := 0; i < n; i++ {
		id := int64(i + 1)
		name := names[r.IntN(len(names))]
		self := float64(r.IntN(4))
		if i == 0 || r.IntN(10) == 0 {
			rows = append(rows, root(id, name, self))
			continue
		}
		parent := int64(r.IntN(i) + 1)
		f := child(id, parent, name, self)
		f.Aggregatable = []string{name + ".go", []string{"1", "2"}[r.IntN(2)]}
		rows = append(rows, f)
	}
	return rows
}

var allViews = []model.View{model.TopDown(), model.BottomUp(), model.PivotOn("eval")}

func TestFlamegraph_PermutationInvariant(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	rows := randomRows(r, 300)
	filters := []model.Filters{
		{},
		{HideFrame: []string{"gc"}},
		{ShowStack: []string{"parse"}, HideStack: []string{"^lock$"}},
		{ShowFromFrame: []string{"run"}},
	}

	for _, view := range allViews {
		for _, f := range filters {
			f.View = view
			want := build(rows, f)
			for trial := 0; trial < 5; trial++ {
				shuffled := append([]model.Frame(nil), rows...)
				r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
				got := build(shuffled, f)
				require.Equal(t, want, got, "view %s filters %+v", view, f)
			}
		}
	}
}

func TestFlamegraph_Invariants(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	rows := randomRows(r, 500)

	for _, view := range allViews {
		for _, f := range []model.Filters{{}, {HideFrame: []string{"run", "io"}}, {ShowFromFrame: []string{"parse"}}} {
			f.View = view
			q := build(rows, f)
			checkInvariants(t, q)
			if !f.HasHideFilters() {
				assert.InDelta(t, q.UnfilteredCumulativeValue, q.AllRootsCumulativeValue, eps, "view %s", view)
			}
			assert.LessOrEqual(t, q.AllRootsCumulativeValue, q.UnfilteredCumulativeValue+eps)
		}
	}
}

func checkInvariants(t *testing.T, q *model.QueryData) {
	t.Helper()
	type group struct {
		sum   float64
		spans []model.Node
	}
	down := map[int]*group{}
	up := map[int]*group{}
	byID := map[int]model.Node{}

	for i, n := range q.Nodes {
		require.Equal(t, i, n.ID)
		byID[n.ID] = n
		assert.Greater(t, n.CumulativeValue, 0.0)
		assert.GreaterOrEqual(t, n.CumulativeValue+eps, n.SelfValue)
		assert.GreaterOrEqual(t, n.Width(), 0.0)
		if n.ParentID == nil {
			assert.Equal(t, 0, n.Depth)
			continue
		}
		p, ok := byID[*n.ParentID]
		require.True(t, ok, "parent precedes child")
		assert.GreaterOrEqual(t, n.XStart+eps, p.XStart)
		assert.LessOrEqual(t, n.XEnd, p.XEnd+eps)

		side := down
		if n.Depth < p.Depth {
			side = up
		}
		assert.Equal(t, 1, abs(n.Depth-p.Depth))
		g := side[p.ID]
		if g == nil {
			g = &group{}
			side[p.ID] = g
		}
		g.sum += n.CumulativeValue
		g.spans = append(g.spans, n)
	}

	// Cumulative value is self plus children within one direction. A pivot
	// root has its callees below it and its callers above it. Callees sum
	// with its self value; callers carry at most its cumulative value, since
	// pivot frames that are roots have no callers.
	sum := func(g *group) float64 {
		if g == nil {
			return 0
		}
		return g.sum
	}
	for id, n := range byID {
		d, u := down[id], up[id]
		switch {
		case q.View.Kind == model.ViewPivot && n.Depth == 0:
			assert.InDelta(t, n.CumulativeValue, n.SelfValue+sum(d), 1e-6, "pivot root %s callees", n.Name)
			assert.LessOrEqual(t, sum(u), n.CumulativeValue+eps, "pivot root %s callers", n.Name)
		case n.Depth < 0 || (q.View.Kind == model.ViewBottomUp && n.Depth == 0):
			assert.Nil(t, d, "caller %s has no callees", n.Name)
			if u != nil {
				assert.InDelta(t, n.CumulativeValue, n.SelfValue+u.sum, 1e-6, "caller %s", n.Name)
			}
		default:
			assert.Nil(t, u, "callee %s has no callers", n.Name)
			if d != nil {
				assert.InDelta(t, n.CumulativeValue, n.SelfValue+d.sum, 1e-6, "callee %s", n.Name)
			}
		}
	}

	for _, side := range []map[int]*group{down, up} {
		for _, g := range side {
			sort.Slice(g.spans, func(i, j int) bool { return g.spans[i].XStart < g.spans[j].XStart })
			for k := 1; k < len(g.spans); k++ {
				assert.LessOrEqual(t, g.spans[k-1].XEnd, g.spans[k].XStart+eps)
			}
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func TestFlamegraph_ConservationAcrossViews(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	rows := randomRows(r, 400)

	td := build(rows, model.Filters{View: model.TopDown()})
	bu := build(rows, model.Filters{View: model.BottomUp()})

	var total float64
	for _, f := range rows {
		total += f.SelfValue
	}
	assert.InDelta(t, total, td.UnfilteredCumulativeValue, 1e-6)

	sum := func(q *model.QueryData) float64 {
		var s float64
		for _, n := range q.NodesAtDepth(0) {
			s += n.CumulativeValue
		}
		return s
	}
	assert.InDelta(t, total, sum(td), 1e-6)
	assert.InDelta(t, total, sum(bu), 1e-6)
	assert.InDelta(t, td.AllRootsCumulativeValue, bu.AllRootsCumulativeValue, 1e-6)
}
