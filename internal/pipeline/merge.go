package pipeline

import (
	"cmp"
	"encoding/binary"
	"math"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/theirongolddev/flamekit/internal/model"
)

const (
	tagDown byte = 'd'
	tagUp   byte = 'u'
)

// record is one frame's contribution to a merged node. Records with equal
// hashes describe the same node.
type record struct {
	hash       uint64
	parentHash uint64
	hasParent  bool
	depth      int32
	frame      int32
	self       float64
	cum        float64
}

// merged is one node after grouping, before layout.
type merged struct {
	hash      uint64
	parent    int32
	depth     int32
	frame     int32
	self      float64
	cum       float64
	aggregate []string
	ambiguous []bool

	down []int32
	up   []int32

	local float64
	share float64
	x0    float64
	x1    float64
}

// hasher builds structural hashes from (direction, depth, grouping key,
// linked hash) without allocating per call.
type hasher struct {
	buf []byte
}

func (h *hasher) sum(tag byte, depth int32, f *model.Frame, link uint64) uint64 {
	b := h.buf[:0]
	b = append(b, tag)
	b = binary.LittleEndian.AppendUint32(b, uint32(depth))
	b = appendString(b, f.Name)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(f.Unaggregatable)))
	for _, v := range f.Unaggregatable {
		b = appendString(b, v)
	}
	b = binary.LittleEndian.AppendUint64(b, link)
	h.buf = b
	return xxhash.Sum64(b)
}

func appendString(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

// collect emits the records for the active view.
func collect(fo *forest, view model.View) []record {
	var h hasher
	switch view.Kind {
	case model.ViewBottomUp:
		return upward(fo, &h)
	case model.ViewPivot:
		// A pivot root sums its callees like a top-down root. Its callers
		// hang off the same node and carry its weight, not extra weight.
		recs, downHash := downward(fo, &h, fo.pivotRoot)
		return append(recs, pivotCallers(fo, &h, downHash)...)
	default:
		recs, _ := downward(fo, &h, nil)
		return recs
	}
}

// downward hashes kept frames from their roots towards callees. When starts
// is non-nil only the subtrees of frames flagged there are walked, each
// flagged frame at depth 0.
func downward(fo *forest, h *hasher, starts []bool) ([]record, []uint64) {
	a := fo.a
	n := len(a.frames)
	hash := make([]uint64, n)
	depth := make([]int32, n)
	in := make([]bool, n)

	recs := make([]record, 0, len(fo.order))
	for _, i := range fo.order {
		p := fo.parent[i]
		var rec record
		switch {
		case starts != nil && starts[i]:
			rec = record{depth: 0}
		case starts == nil && p < 0:
			rec = record{depth: 0}
		case p >= 0 && in[p]:
			rec = record{depth: depth[p] + 1, parentHash: hash[p], hasParent: true}
		default:
			continue
		}
		rec.frame = i
		rec.hash = h.sum(tagDown, rec.depth, &a.frames[i], rec.parentHash)
		rec.self = fo.self[i]
		rec.cum = fo.cum[i]

		in[i] = true
		hash[i] = rec.hash
		depth[i] = rec.depth
		recs = append(recs, rec)
	}
	return recs, hash
}

// upward builds the inverted tree: every frame with self value starts a walk
// through its callers, each step carrying the starting frame's weight.
func upward(fo *forest, h *hasher) []record {
	a := fo.a
	var recs []record
	for _, i := range fo.order {
		w := fo.self[i]
		if w <= 0 {
			continue
		}
		first := record{frame: i, hash: h.sum(tagUp, 0, &a.frames[i], 0), cum: w}
		recs = callers(fo, h, recs, first, fo.parent[i], w)
	}
	return recs
}

// pivotCallers hangs each pivot root's callers below its downward node,
// weighted by the pivot's cumulative value.
func pivotCallers(fo *forest, h *hasher, downHash []uint64) []record {
	var recs []record
	for _, i := range fo.order {
		if !fo.pivotRoot[i] || fo.parent[i] < 0 || fo.cum[i] <= 0 {
			continue
		}
		p := fo.parent[i]
		w := fo.cum[i]
		first := record{
			frame:      p,
			depth:      -1,
			parentHash: downHash[i],
			hasParent:  true,
			hash:       h.sum(tagUp, -1, &fo.a.frames[p], downHash[i]),
			cum:        w,
		}
		recs = callers(fo, h, recs, first, fo.parent[p], w)
	}
	return recs
}

// callers appends first and then one record per caller above it. Only the
// outermost caller keeps w as self value so every node's cumulative value
// equals its self value plus its callers'.
func callers(fo *forest, h *hasher, recs []record, first record, next int32, w float64) []record {
	cur := first
	for {
		if next < 0 {
			cur.self = w
			return append(recs, cur)
		}
		recs = append(recs, cur)
		d := cur.depth - 1
		cur = record{
			frame:      next,
			depth:      d,
			parentHash: cur.hash,
			hasParent:  true,
			hash:       h.sum(tagUp, d, &fo.a.frames[next], cur.hash),
			cum:        w,
		}
		next = fo.parent[next]
	}
}

// mergeRecords groups records by hash, summing values and keeping the
// aggregatable properties every member agrees on. Nodes whose cumulative
// value is not positive are dropped along with their descendants.
func mergeRecords(a *arena, recs []record) []merged {
	slices.SortFunc(recs, func(x, y record) int {
		if c := cmp.Compare(x.hash, y.hash); c != 0 {
			return c
		}
		return cmp.Compare(x.frame, y.frame)
	})

	var groups []merged
	var parents []uint64
	var hasParent []bool
	for k := 0; k < len(recs); {
		r := recs[k]
		f := &a.frames[r.frame]
		g := merged{
			hash:      r.hash,
			parent:    -1,
			depth:     r.depth,
			frame:     r.frame,
			aggregate: slices.Clone(f.Aggregatable),
			ambiguous: make([]bool, len(f.Aggregatable)),
		}
		for ; k < len(recs) && recs[k].hash == r.hash; k++ {
			g.self += recs[k].self
			g.cum += recs[k].cum
			other := a.frames[recs[k].frame].Aggregatable
			for p := range g.aggregate {
				if p >= len(other) || other[p] != g.aggregate[p] {
					g.ambiguous[p] = true
				}
			}
		}
		if g.cum <= 0 || math.IsNaN(g.cum) {
			continue
		}
		groups = append(groups, g)
		parents = append(parents, r.parentHash)
		hasParent = append(hasParent, r.hasParent)
	}

	index := make(map[uint64]int32, len(groups))
	for i := range groups {
		index[groups[i].hash] = int32(i)
	}

	// Resolve parents in depth order so an orphan's descendants are orphaned too.
	order := make([]int32, len(groups))
	for i := range order {
		order[i] = int32(i)
	}
	slices.SortStableFunc(order, func(x, y int32) int {
		return cmp.Compare(absDepth(groups[x].depth), absDepth(groups[y].depth))
	})

	alive := make([]bool, len(groups))
	for _, i := range order {
		g := &groups[i]
		if !hasParent[i] {
			alive[i] = true
			continue
		}
		p, ok := index[parents[i]]
		if !ok || !alive[p] {
			continue
		}
		alive[i] = true
		g.parent = p
		if g.depth > groups[p].depth {
			groups[p].down = append(groups[p].down, i)
		} else {
			groups[p].up = append(groups[p].up, i)
		}
	}

	out := groups[:0]
	remap := make([]int32, len(groups))
	for i := range groups {
		if alive[i] {
			remap[i] = int32(len(out))
			out = append(out, groups[i])
		} else {
			remap[i] = -1
		}
	}
	for i := range out {
		if out[i].parent >= 0 {
			out[i].parent = remap[out[i].parent]
		}
		out[i].down = remapAll(out[i].down, remap)
		out[i].up = remapAll(out[i].up, remap)
	}
	return out
}

func remapAll(ids []int32, remap []int32) []int32 {
	for k, id := range ids {
		ids[k] = remap[id]
	}
	return ids
}

func absDepth(d int32) int32 {
	if d < 0 {
		return -d
	}
	return d
}
