package pipeline

import "strings"

// pattern matches frame names. "^X$" is an exact match on X; anything else
// is a case-sensitive substring match.
type pattern struct {
	text  string
	exact bool
}

func compilePattern(s string) pattern {
	if len(s) >= 2 && strings.HasPrefix(s, "^") && strings.HasSuffix(s, "$") {
		return pattern{text: s[1 : len(s)-1], exact: true}
	}
	return pattern{text: s}
}

func (p pattern) match(name string) bool {
	if p.exact {
		return name == p.text
	}
	return strings.Contains(name, p.text)
}

// patternSet is an ordered list of patterns. Pattern i owns bit i of a mask.
type patternSet struct {
	patterns []pattern
	words    int
}

func compilePatterns(ps []string) patternSet {
	set := patternSet{patterns: make([]pattern, 0, len(ps))}
	for _, p := range ps {
		set.patterns = append(set.patterns, compilePattern(p))
	}
	set.words = (len(set.patterns) + 63) / 64
	return set
}

func (s patternSet) empty() bool { return len(s.patterns) == 0 }

// matchAny reports whether any pattern matches. An empty set never matches.
func (s patternSet) matchAny(name string) bool {
	for _, p := range s.patterns {
		if p.match(name) {
			return true
		}
	}
	return false
}

// masks holds one bit vector per frame in a single slab.
type masks struct {
	set  patternSet
	bits []uint64
}

func newMasks(set patternSet, n int) *masks {
	return &masks{set: set, bits: make([]uint64, set.words*n)}
}

func (m *masks) row(i int32) []uint64 {
	w := m.set.words
	return m.bits[int(i)*w : int(i)*w+w]
}

// accumulate sets frame i's mask to its parent's mask OR the patterns
// matching name, and reports whether every pattern has now matched.
// An empty set is always full.
func (m *masks) accumulate(i, parent int32, name string) bool {
	if m.set.empty() {
		return true
	}
	row := m.row(i)
	if parent >= 0 {
		copy(row, m.row(parent))
	}
	for b, p := range m.set.patterns {
		if p.match(name) {
			row[b/64] |= uint64(1) << uint(b%64)
		}
	}
	return m.full(row)
}

func (m *masks) full(row []uint64) bool {
	n := len(m.set.patterns)
	for w := range row {
		want := ^uint64(0)
		if rem := n - w*64; rem < 64 {
			want = (uint64(1) << uint(rem)) - 1
		}
		if row[w]&want != want {
			return false
		}
	}
	return true
}
