package pipeline

import (
	"github.com/theirongolddev/flamekit/internal/metric"
	"github.com/theirongolddev/flamekit/internal/model"
)

// assemble flattens the laid-out nodes in pre-order. Node IDs follow output
// order, so a parent always precedes its children.
func assemble(nodes []merged, roots []int32, a *arena, m metric.Metric, view model.View) *model.QueryData {
	q := &model.QueryData{
		Metric:                    m.Name,
		Unit:                      m.Unit,
		View:                      view,
		Nodes:                     make([]model.Node, 0, len(nodes)),
		UnfilteredCumulativeValue: a.total(),
	}

	type item struct {
		node   int32
		parent int
	}
	stack := make([]item, 0, len(roots))
	for k := len(roots) - 1; k >= 0; k-- {
		stack = append(stack, item{node: roots[k], parent: -1})
	}

	first := true
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &nodes[it.node]
		f := &a.frames[n.frame]

		out := model.Node{
			ID:              len(q.Nodes),
			Hash:            n.hash,
			Depth:           int(n.depth),
			Name:            f.Name,
			SelfValue:       n.self,
			CumulativeValue: n.cum,
			XStart:          n.x0,
			XEnd:            n.x1,
			Properties:      properties(m, f, n),
		}
		if it.parent >= 0 {
			pid := it.parent
			pcum := q.Nodes[pid].CumulativeValue
			out.ParentID = &pid
			out.ParentCumulativeValue = &pcum
		} else {
			q.AllRootsCumulativeValue += n.cum
		}

		if first || out.Depth < q.MinDepth {
			q.MinDepth = out.Depth
		}
		if first || out.Depth > q.MaxDepth {
			q.MaxDepth = out.Depth
		}
		first = false
		q.Nodes = append(q.Nodes, out)

		kids := make([]int32, 0, len(n.down)+len(n.up))
		kids = append(kids, n.down...)
		kids = append(kids, n.up...)
		for k := len(kids) - 1; k >= 0; k-- {
			stack = append(stack, item{node: kids[k], parent: out.ID})
		}
	}
	return q
}

// properties returns the grouping-key properties plus every aggregatable one
// with a single value across the merge group. Empty values are omitted.
func properties(m metric.Metric, f *model.Frame, n *merged) map[string]string {
	var props map[string]string
	set := func(k, v string) {
		if v == "" {
			return
		}
		if props == nil {
			props = make(map[string]string)
		}
		props[k] = v
	}
	for i, name := range m.UnaggregatableProperties {
		if i < len(f.Unaggregatable) {
			set(name, f.Unaggregatable[i])
		}
	}
	for i, name := range m.AggregatableProperties {
		if i < len(n.aggregate) && !n.ambiguous[i] {
			set(name, n.aggregate[i])
		}
	}
	return props
}
