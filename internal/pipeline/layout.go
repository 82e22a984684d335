package pipeline

import (
	"cmp"
	"slices"
	"strings"
)

// layout positions merged nodes within [0, width].
//
// The local phase orders every sibling group by name, then hash, and gives
// each node its fraction of the group's cumulative value. The global phase
// walks from the roots and turns fractions into absolute spans. A group only
// covers the share of its parent's span its cumulative value accounts for,
// so a parent's self value stays visible as a gap after its callees.
func layout(nodes []merged, a *arena, width float64) []int32 {
	roots := localLayout(nodes, a)
	place(nodes, roots, 1, 0, width)

	stack := slices.Clone(roots)
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &nodes[i]
		w := n.x1 - n.x0
		for _, group := range [][]int32{n.down, n.up} {
			if len(group) == 0 {
				continue
			}
			place(nodes, group, nodes[group[0]].share, n.x0, w)
			// Keep rounding from leaking past the parent's end.
			for _, c := range group {
				if nodes[c].x1 > n.x1 {
					nodes[c].x1 = n.x1
				}
				if nodes[c].x0 > n.x1 {
					nodes[c].x0 = n.x1
				}
			}
			stack = append(stack, group...)
		}
	}
	return roots
}

// localLayout sorts each sibling group and records every node's local
// fraction plus its group's share of the parent. It returns the sorted roots.
func localLayout(nodes []merged, a *arena) []int32 {
	var roots []int32
	for i := range nodes {
		if nodes[i].parent < 0 {
			roots = append(roots, int32(i))
		}
	}
	fractions(nodes, a, roots, 0)
	for i := range nodes {
		n := &nodes[i]
		fractions(nodes, a, n.down, n.cum)
		fractions(nodes, a, n.up, n.cum)
	}
	return roots
}

// fractions sorts group in place and sets local and share. A parentCum of
// zero marks the root group, which always fills its span.
func fractions(nodes []merged, a *arena, group []int32, parentCum float64) {
	if len(group) == 0 {
		return
	}
	slices.SortFunc(group, func(x, y int32) int {
		if c := strings.Compare(a.frames[nodes[x].frame].Name, a.frames[nodes[y].frame].Name); c != 0 {
			return c
		}
		return cmp.Compare(nodes[x].hash, nodes[y].hash)
	})

	var sum float64
	for _, c := range group {
		sum += nodes[c].cum
	}
	share := 1.0
	if parentCum > 0 {
		share = min(sum/parentCum, 1)
	}
	for _, c := range group {
		nodes[c].local = nodes[c].cum / sum
		nodes[c].share = share
	}
}

// place lays group out left to right from x0, scaling width by share.
func place(nodes []merged, group []int32, share, x0, width float64) {
	span := width * share
	x := x0
	for k, c := range group {
		n := &nodes[c]
		n.x0 = x
		if k == len(group)-1 {
			n.x1 = x0 + span
		} else {
			n.x1 = x + span*n.local
		}
		x = n.x1
	}
}
