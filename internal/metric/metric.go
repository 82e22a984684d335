// Package metric describes the metrics a flame graph can be built from.
package metric

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateMetric is returned when two metrics in a registry share a name.
	ErrDuplicateMetric = errors.New("duplicate metric name")
	// ErrUnknownMetric is returned by Lookup for names not in the registry.
	ErrUnknownMetric = errors.New("unknown metric")
)

// Preparation is a one-time setup step run against the backing engine
// before any metric referencing it is computed. Sibling metrics share one
// Preparation; Key identifies it so it runs once per engine.
type Preparation struct {
	Key        string
	Statements []string
}

// Metric describes how to fetch raw frame rows for one measured quantity.
//
// Statement must produce the columns id, parent_id, name and value plus one
// column per declared property.
type Metric struct {
	Name      string
	Unit      string
	Prepare   *Preparation
	Statement string

	// UnaggregatableProperties are part of the grouping key and never merged away.
	UnaggregatableProperties []string
	// AggregatableProperties are kept on a merged node only when all members agree.
	AggregatableProperties []string
}

// ValueColumn names one sibling metric and the raw column supplying its value.
type ValueColumn struct {
	Name   string
	Unit   string
	Column string
}

// Siblings builds metrics sharing one source statement and preparation step,
// differing only in which column supplies value.
func Siblings(base string, prepare *Preparation, unaggregatable, aggregatable []string, columns ...ValueColumn) []Metric {
	metrics := make([]Metric, 0, len(columns))
	for _, c := range columns {
		metrics = append(metrics, Metric{
			Name:                     c.Name,
			Unit:                     c.Unit,
			Prepare:                  prepare,
			Statement:                fmt.Sprintf("SELECT *, %s AS value FROM (%s)", c.Column, base),
			UnaggregatableProperties: append([]string(nil), unaggregatable...),
			AggregatableProperties:   append([]string(nil), aggregatable...),
		})
	}
	return metrics
}

// Registry is an ordered, name-unique set of metrics.
type Registry struct {
	metrics []Metric
	byName  map[string]int
}

// NewRegistry returns a registry holding metrics in the given order.
func NewRegistry(metrics ...Metric) (*Registry, error) {
	r := &Registry{byName: make(map[string]int, len(metrics))}
	for _, m := range metrics {
		if _, ok := r.byName[m.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateMetric, m.Name)
		}
		r.byName[m.Name] = len(r.metrics)
		r.metrics = append(r.metrics, m)
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on duplicate names.
func MustRegistry(metrics ...Metric) *Registry {
	r, err := NewRegistry(metrics...)
	if err != nil {
		panic(err)
	}
	return r
}

// Metrics returns the registry contents in declaration order.
func (r *Registry) Metrics() []Metric {
	out := make([]Metric, len(r.metrics))
	copy(out, r.metrics)
	return out
}

// Len returns the number of metrics.
func (r *Registry) Len() int { return len(r.metrics) }

// Lookup finds a metric by name.
func (r *Registry) Lookup(name string) (Metric, error) {
	idx, ok := r.byName[name]
	if !ok {
		return Metric{}, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	return r.metrics[idx], nil
}

// LookupOrDefault finds name, falling back to the first metric when name is empty.
func (r *Registry) LookupOrDefault(name string) (Metric, error) {
	if name == "" {
		if len(r.metrics) == 0 {
			return Metric{}, fmt.Errorf("%w: registry is empty", ErrUnknownMetric)
		}
		return r.metrics[0], nil
	}
	return r.Lookup(name)
}
