package pipeline

import "github.com/theirongolddev/flamekit/internal/model"

// forest is the filtered frame tree. Only kept frames take part in merging;
// their parent links skip elided frames.
type forest struct {
	a *arena

	keep      []bool
	parent    []int32
	self      []float64
	cum       []float64
	pivotRoot []bool

	// order is the pre-order of kept frames.
	order []int32

	hidden int
	elided int
}

// applyFilters evaluates every filter kind over the arena.
//
// hideStack removes a matching frame with its whole subtree. showFromFrame
// re-roots each path at the frame where every show-from pattern has been
// seen; that frame stays as the new root. showStack keeps a frame's self
// value only once every show-stack pattern matched somewhere on its path.
// hideFrame elides single frames, reattaching children to the nearest kept
// ancestor and moving the elided self value there.
func applyFilters(a *arena, f model.Filters) *forest {
	n := len(a.frames)
	fo := &forest{
		a:         a,
		keep:      make([]bool, n),
		parent:    make([]int32, n),
		self:      make([]float64, n),
		cum:       make([]float64, n),
		pivotRoot: make([]bool, n),
	}

	showPatterns := f.ShowStack
	var pivot pattern
	isPivot := f.View.Kind == model.ViewPivot
	if isPivot {
		showPatterns = append(append([]string(nil), f.ShowStack...), f.View.Pivot)
		pivot = compilePattern(f.View.Pivot)
	}

	hideStack := compilePatterns(f.HideStack)
	hideFrame := compilePatterns(f.HideFrame)
	showStack := newMasks(compilePatterns(showPatterns), n)
	showFrom := newMasks(compilePatterns(f.ShowFromFrame), n)

	hidden := make([]bool, n)
	nearestKept := make([]int32, n)
	underPivot := make([]bool, n)

	for _, i := range a.order {
		name := a.frames[i].Name
		p := a.parent[i]

		hidden[i] = (p >= 0 && hidden[p]) || hideStack.matchAny(name)
		inRegion := showFrom.accumulate(i, p, name)
		satisfied := showStack.accumulate(i, p, name)
		elided := hideFrame.matchAny(name)

		anc := int32(-1)
		if p >= 0 {
			anc = nearestKept[p]
		}

		visible := !hidden[i] && inRegion
		fo.keep[i] = visible && !elided
		fo.parent[i] = anc

		var contribution float64
		if visible && satisfied {
			contribution = a.self[i]
		}

		switch {
		case fo.keep[i]:
			fo.self[i] += contribution
			nearestKept[i] = i
			fo.order = append(fo.order, i)
		case visible:
			// Elided: the value moves up, or is lost at a root.
			fo.elided++
			if anc >= 0 {
				fo.self[anc] += contribution
			}
			nearestKept[i] = anc
		default:
			if hidden[i] {
				fo.hidden++
			}
			nearestKept[i] = anc
		}

		if isPivot {
			if fo.keep[i] && pivot.match(name) && !(anc >= 0 && underPivot[anc]) {
				fo.pivotRoot[i] = true
			}
			underPivot[i] = fo.pivotRoot[i] || (anc >= 0 && underPivot[anc])
		}
	}

	// Children precede parents in reverse pre-order.
	for k := len(fo.order) - 1; k >= 0; k-- {
		i := fo.order[k]
		fo.cum[i] += fo.self[i]
		if p := fo.parent[i]; p >= 0 {
			fo.cum[p] += fo.cum[i]
		}
	}
	return fo
}
