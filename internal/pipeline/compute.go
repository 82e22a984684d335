package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/theirongolddev/flamekit/internal/engine"
	"github.com/theirongolddev/flamekit/internal/metric"
	"github.com/theirongolddev/flamekit/internal/model"
)

// DefaultWidth is the span the roots of a flame graph share.
const DefaultWidth = 1.0

var tracer = otel.Tracer("github.com/theirongolddev/flamekit/internal/pipeline")

// Options tunes a computation. The zero value is usable.
type Options struct {
	// Width is the total span laid out. Values <= 0 mean DefaultWidth.
	Width float64
	// Logger receives per-stage debug lines. Nil means log.Default().
	Logger *log.Logger
	// Checkpoint runs after every call into the backing engine. A non-nil
	// error abandons the computation; scratch resources are still released.
	Checkpoint func() error
	// Prepared remembers which preparation steps already ran. Nil runs them
	// on every computation.
	Prepared *PreparedSet
}

func (o Options) width() float64 {
	if o.Width <= 0 {
		return DefaultWidth
	}
	return o.Width
}

func (o Options) logger() *log.Logger {
	if o.Logger == nil {
		return log.Default()
	}
	return o.Logger
}

func (o Options) checkpoint() error {
	if o.Checkpoint == nil {
		return nil
	}
	return o.Checkpoint()
}

// PreparedSet records preparation keys that have run against one engine.
type PreparedSet struct {
	mu   sync.Mutex
	done map[string]bool
}

func (p *PreparedSet) has(key string) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done[key]
}

func (p *PreparedSet) mark(key string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		p.done = make(map[string]bool)
	}
	p.done[key] = true
}

// Flamegraph filters, merges and lays out raw frame rows for one metric.
func Flamegraph(rows []model.Frame, m metric.Metric, f model.Filters, opts Options) *model.QueryData {
	lg := opts.logger()

	a := buildArena(rows)
	if a.duplicates > 0 || a.unreachable > 0 || a.clamped > 0 {
		lg.Debug("irregular frame rows",
			"metric", m.Name, "duplicates", a.duplicates, "unreachable", a.unreachable, "clamped", a.clamped)
	}

	fo := applyFilters(a, f)
	recs := collect(fo, f.View)
	nodes := mergeRecords(a, recs)
	roots := layout(nodes, a, opts.width())
	q := assemble(nodes, roots, a, m, f.View)

	lg.Debug("flame graph built",
		"metric", m.Name, "view", f.View.String(),
		"rows", len(rows), "kept", len(fo.order), "hidden", fo.hidden, "elided", fo.elided,
		"records", len(recs), "nodes", len(q.Nodes))
	return q
}

// CleanupError reports scratch resources Compute could not release. It is
// joined onto whatever error the computation itself returned.
type CleanupError struct {
	Err error
}

func (e *CleanupError) Error() string { return "releasing scratch resources: " + e.Err.Error() }

func (e *CleanupError) Unwrap() error { return e.Err }

// Compute fetches m's rows through a scratch table on eng and builds the
// flame graph. Every scratch resource is released before Compute returns,
// whatever the outcome.
func Compute(ctx context.Context, eng engine.Engine, m metric.Metric, f model.Filters, opts Options) (q *model.QueryData, err error) {
	ctx, span := tracer.Start(ctx, "pipeline.Compute", trace.WithAttributes(
		attribute.String("metric", m.Name),
		attribute.String("view", f.View.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var sc scope
	defer func() {
		if cerr := sc.close(ctx); cerr != nil {
			err = errors.Join(err, &CleanupError{Err: cerr})
			q = nil
		}
	}()

	rows, err := fetchRows(ctx, eng, &sc, m, opts)
	if err != nil {
		return nil, err
	}

	_, bspan := tracer.Start(ctx, "pipeline.build")
	q = Flamegraph(rows, m, f, opts)
	bspan.SetAttributes(attribute.Int("nodes", len(q.Nodes)))
	bspan.End()
	return q, nil
}

func fetchRows(ctx context.Context, eng engine.Engine, sc *scope, m metric.Metric, opts Options) ([]model.Frame, error) {
	ctx, span := tracer.Start(ctx, "pipeline.fetch")
	defer span.End()
	lg := opts.logger()

	sess, err := eng.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring session: %w", err)
	}
	sc.add("session", func(context.Context) error { return sess.Close() })
	if err := opts.checkpoint(); err != nil {
		return nil, err
	}

	if p := m.Prepare; p != nil && !opts.Prepared.has(p.Key) {
		for _, stmt := range p.Statements {
			if err := sess.Exec(ctx, stmt); err != nil {
				return nil, fmt.Errorf("preparing %s: %w", p.Key, err)
			}
			if err := opts.checkpoint(); err != nil {
				return nil, err
			}
		}
		opts.Prepared.mark(p.Key)
		lg.Debug("preparation ran", "key", p.Key)
	}

	// Each computation gets its own scratch names so a superseded one that is
	// still finishing never collides with its successor.
	table := "flame_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	index := table + "_parent"

	if err := sess.Exec(ctx, fmt.Sprintf("CREATE TEMP TABLE %s AS %s", table, m.Statement)); err != nil {
		return nil, fmt.Errorf("creating scratch table for %q: %w", m.Name, err)
	}
	sc.add("table "+table, func(ctx context.Context) error {
		return sess.Exec(ctx, "DROP TABLE IF EXISTS temp."+table)
	})
	if err := opts.checkpoint(); err != nil {
		return nil, err
	}

	if err := sess.Exec(ctx, fmt.Sprintf("CREATE INDEX temp.%s ON %s(parent_id)", index, table)); err != nil {
		return nil, fmt.Errorf("indexing scratch table: %w", err)
	}
	sc.add("index "+index, func(ctx context.Context) error {
		return sess.Exec(ctx, "DROP INDEX IF EXISTS temp."+index)
	})
	if err := opts.checkpoint(); err != nil {
		return nil, err
	}

	rows, err := sess.QueryFrames(ctx, "SELECT * FROM temp."+table, m)
	if err != nil {
		return nil, fmt.Errorf("fetching frames for %q: %w", m.Name, err)
	}
	if err := opts.checkpoint(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows", len(rows)))
	lg.Debug("rows fetched", "metric", m.Name, "rows", len(rows))
	return rows, nil
}
