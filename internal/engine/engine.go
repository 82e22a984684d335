// Package engine declares the boundary to the backing query engine that
// supplies raw frame rows.
package engine

import (
	"context"

	"github.com/theirongolddev/flamekit/internal/metric"
	"github.com/theirongolddev/flamekit/internal/model"
)

// Engine hands out sessions. Scratch relations created in a session are only
// visible to that session, so concurrent computations never collide.
type Engine interface {
	Acquire(ctx context.Context) (Session, error)
}

// Session is one dedicated connection to the engine.
type Session interface {
	// Exec runs a statement that produces no rows.
	Exec(ctx context.Context, stmt string) error
	// QueryFrames runs a row-producing statement and decodes frame rows using
	// the property names declared by m.
	QueryFrames(ctx context.Context, stmt string, m metric.Metric) ([]model.Frame, error)
	// Close releases the session.
	Close() error
}
