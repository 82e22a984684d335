// Package model defines the data flowing through the flame graph pipeline.
package model

// Frame is one raw frame row produced by a metric's statement.
//
// Unaggregatable and Aggregatable hold the property values in the order the
// metric declares its property names.
type Frame struct {
	ID             int64
	ParentID       int64
	HasParent      bool
	Name           string
	SelfValue      float64
	Unaggregatable []string
	Aggregatable   []string
}

// IsRoot reports whether the row marks a root: no parent, or itself as parent.
func (f Frame) IsRoot() bool {
	return !f.HasParent || f.ParentID == f.ID
}
