package pipeline

import (
	"cmp"
	"math"
	"slices"

	"github.com/theirongolddev/flamekit/internal/model"
)

// arena indexes raw frames by position. Parent links are positions, -1 for
// roots. order lists every frame reachable from a root, parents first.
type arena struct {
	frames   []model.Frame
	self     []float64
	parent   []int32
	children [][]int32
	order    []int32

	duplicates  int
	unreachable int
	clamped     int
}

func buildArena(rows []model.Frame) *arena {
	frames := slices.Clone(rows)
	slices.SortStableFunc(frames, func(a, b model.Frame) int { return cmp.Compare(a.ID, b.ID) })

	a := &arena{}
	byID := make(map[int64]int32, len(frames))
	for _, f := range frames {
		if _, dup := byID[f.ID]; dup {
			a.duplicates++
			continue
		}
		byID[f.ID] = int32(len(a.frames))
		a.frames = append(a.frames, f)
	}

	n := len(a.frames)
	a.self = make([]float64, n)
	a.parent = make([]int32, n)
	a.children = make([][]int32, n)

	var roots []int32
	for i, f := range a.frames {
		v := f.SelfValue
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			a.clamped++
			v = 0
		}
		a.self[i] = v

		a.parent[i] = -1
		if !f.IsRoot() {
			if p, ok := byID[f.ParentID]; ok {
				a.parent[i] = p
				a.children[p] = append(a.children[p], int32(i))
				continue
			}
		}
		roots = append(roots, int32(i))
	}

	// Iterative pre-order walk. Frames caught in parent cycles are never
	// reached from a root and are left out of order.
	a.order = make([]int32, 0, n)
	stack := make([]int32, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		a.order = append(a.order, i)
		kids := a.children[i]
		for k := len(kids) - 1; k >= 0; k-- {
			stack = append(stack, kids[k])
		}
	}
	a.unreachable = n - len(a.order)
	return a
}

// total returns the self value summed over every reachable frame.
func (a *arena) total() float64 {
	var sum float64
	for _, i := range a.order {
		sum += a.self[i]
	}
	return sum
}
