package source

import "github.com/theirongolddev/flamekit/internal/model"

// Location identifies one frame of a stack.
type Location struct {
	Name       string
	Mapping    string
	SourceFile string
	Line       int
}

type trieKey struct {
	parent int64
	loc    Location
}

// stackTrie folds stacks into frame rows. Stacks sharing a prefix share
// the prefix's frames.
type stackTrie struct {
	frames []model.StoredFrame
	index  map[trieKey]int64
}

func newStackTrie() *stackTrie {
	return &stackTrie{index: make(map[trieKey]int64)}
}

// leaf returns the id of the frame at the end of stack (root first),
// creating missing frames. It returns -1 for an empty stack.
func (t *stackTrie) leaf(stack []Location) int64 {
	parent := int64(-1)
	for _, loc := range stack {
		k := trieKey{parent: parent, loc: loc}
		id, ok := t.index[k]
		if !ok {
			id = int64(len(t.frames))
			t.index[k] = id
			t.frames = append(t.frames, model.StoredFrame{
				ID:         id,
				ParentID:   parent,
				Name:       loc.Name,
				Mapping:    loc.Mapping,
				SourceFile: loc.SourceFile,
				Line:       loc.Line,
			})
		}
		parent = id
	}
	return parent
}

// add records values against the leaf frame of stack.
func (t *stackTrie) add(stack []Location, samples, timeNs, bytes float64) {
	id := t.leaf(stack)
	if id < 0 {
		return
	}
	f := &t.frames[id]
	f.Samples += samples
	f.TimeNs += timeNs
	f.Bytes += bytes
}
