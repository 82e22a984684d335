package model

import (
	"fmt"
	"strings"
)

// ViewKind selects the direction the flame graph is built in.
type ViewKind string

const (
	ViewTopDown  ViewKind = "top-down"
	ViewBottomUp ViewKind = "bottom-up"
	ViewPivot    ViewKind = "pivot"
)

// View is the active view. Pivot is only meaningful for ViewPivot.
type View struct {
	Kind  ViewKind `json:"kind" toml:"kind"`
	Pivot string   `json:"pivot,omitempty" toml:"pivot,omitempty"`
}

// TopDown returns the view rooted at entry frames.
func TopDown() View { return View{Kind: ViewTopDown} }

// BottomUp returns the inverted view rooted at self-contributing frames.
func BottomUp() View { return View{Kind: ViewBottomUp} }

// PivotOn returns the view re-rooted at frames matching pattern.
func PivotOn(pattern string) View { return View{Kind: ViewPivot, Pivot: pattern} }

// ParseView parses a view name as accepted on the command line.
func ParseView(kind, pivot string) (View, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "top-down", "topdown", "td":
		return TopDown(), nil
	case "bottom-up", "bottomup", "bu":
		return BottomUp(), nil
	case "pivot":
		if pivot == "" {
			return View{}, fmt.Errorf("pivot view needs a pivot pattern")
		}
		return PivotOn(pivot), nil
	default:
		return View{}, fmt.Errorf("unknown view %q", kind)
	}
}

func (v View) String() string {
	if v.Kind == ViewPivot {
		return fmt.Sprintf("pivot(%s)", v.Pivot)
	}
	if v.Kind == "" {
		return string(ViewTopDown)
	}
	return string(v.Kind)
}

// Filters is the full set of criteria applied to raw frames.
// Empty pattern lists apply no restriction.
type Filters struct {
	ShowStack     []string `json:"showStack,omitempty"`
	HideStack     []string `json:"hideStack,omitempty"`
	ShowFromFrame []string `json:"showFromFrame,omitempty"`
	HideFrame     []string `json:"hideFrame,omitempty"`
	View          View     `json:"view"`
}

// HasHideFilters reports whether any filter can drop weight from the graph.
func (f Filters) HasHideFilters() bool {
	return len(f.ShowStack) > 0 || len(f.HideStack) > 0 || len(f.ShowFromFrame) > 0 ||
		len(f.HideFrame) > 0 || f.View.Kind == ViewPivot
}
