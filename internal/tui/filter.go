package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/theirongolddev/flamekit/internal/model"
)

// filterQuery is the text form of the filter bar: space separated
// key:pattern terms, patterns optionally double quoted.
//
//	show:main hide:gc from:"^handle request$" elide:runtime pivot:malloc
type filterQuery struct {
	filters model.Filters
	pivot   string
}

var filterKeys = []string{"show", "hide", "from", "elide", "pivot"}

func parseFilterQuery(s string) (filterQuery, error) {
	var q filterQuery
	terms, err := splitTerms(s)
	if err != nil {
		return q, err
	}
	for _, term := range terms {
		key, pattern, ok := strings.Cut(term, ":")
		if !ok || pattern == "" {
			return q, fmt.Errorf("bad filter term %q, want key:pattern", term)
		}
		if unq, err := strconv.Unquote(pattern); err == nil {
			pattern = unq
		}
		switch key {
		case "show":
			q.filters.ShowStack = append(q.filters.ShowStack, pattern)
		case "hide":
			q.filters.HideStack = append(q.filters.HideStack, pattern)
		case "from":
			q.filters.ShowFromFrame = append(q.filters.ShowFromFrame, pattern)
		case "elide":
			q.filters.HideFrame = append(q.filters.HideFrame, pattern)
		case "pivot":
			q.pivot = pattern
		default:
			return q, fmt.Errorf("unknown filter %q, want one of %s", key, strings.Join(filterKeys, ", "))
		}
	}
	return q, nil
}

// splitTerms splits on spaces outside double quotes.
func splitTerms(s string) ([]string, error) {
	var (
		terms  []string
		cur    strings.Builder
		quoted bool
		escape bool
	)
	for _, r := range s {
		switch {
		case escape:
			escape = false
		case r == '\\' && quoted:
			escape = true
		case r == '"':
			quoted = !quoted
		case r == ' ' && !quoted:
			if cur.Len() > 0 {
				terms = append(terms, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteRune(r)
	}
	if quoted {
		return nil, fmt.Errorf("unterminated quote in %q", s)
	}
	if cur.Len() > 0 {
		terms = append(terms, cur.String())
	}
	return terms, nil
}

func (q filterQuery) String() string {
	var terms []string
	add := func(key string, patterns ...string) {
		for _, p := range patterns {
			if p == "" {
				continue
			}
			if strings.ContainsAny(p, " \"") {
				p = strconv.Quote(p)
			}
			terms = append(terms, key+":"+p)
		}
	}
	add("show", q.filters.ShowStack...)
	add("hide", q.filters.HideStack...)
	add("from", q.filters.ShowFromFrame...)
	add("elide", q.filters.HideFrame...)
	add("pivot", q.pivot)
	return strings.Join(terms, " ")
}

// exact returns the pattern matching name and nothing else.
func exact(name string) string {
	return "^" + name + "$"
}
