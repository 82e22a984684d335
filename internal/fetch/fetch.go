// Package fetch serializes flame graph computations and commits only the
// most recently submitted one.
package fetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/theirongolddev/flamekit/internal/engine"
	"github.com/theirongolddev/flamekit/internal/metric"
	"github.com/theirongolddev/flamekit/internal/model"
	"github.com/theirongolddev/flamekit/internal/observability"
	"github.com/theirongolddev/flamekit/internal/pipeline"
)

// State is the orchestrator's visible state.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateCommitted
	StateSuperseded
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateCommitted:
		return "committed"
	case StateSuperseded:
		return "superseded"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// errSuperseded abandons a computation once a newer one was submitted.
var errSuperseded = errors.New("superseded by a newer computation")

// ComputeFunc runs one computation against the engine.
type ComputeFunc func(ctx context.Context, eng engine.Engine, m metric.Metric, f model.Filters, opts pipeline.Options) (*model.QueryData, error)

// Outcome is the result of one submission.
type Outcome struct {
	State      State
	Generation uint64
	Data       *model.QueryData
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default is log.Default().
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithWidth sets the span flame graphs are laid out in.
func WithWidth(w float64) Option {
	return func(o *Orchestrator) { o.width = w }
}

// WithCompute replaces pipeline.Compute.
func WithCompute(fn ComputeFunc) Option {
	return func(o *Orchestrator) { o.compute = fn }
}

// WithOnCommit registers fn to run with every committed result, while the
// commit lock is held so calls arrive in commit order.
func WithOnCommit(fn func(Outcome)) Option {
	return func(o *Orchestrator) { o.onCommit = append(o.onCommit, fn) }
}

// Orchestrator runs at most one computation at a time. Every submission
// takes a generation number; a computation whose generation is no longer the
// latest is abandoned at its next checkpoint and never committed.
type Orchestrator struct {
	eng      engine.Engine
	compute  ComputeFunc
	logger   *log.Logger
	width    float64
	onCommit []func(Outcome)
	prepared pipeline.PreparedSet

	gen  atomic.Uint64
	slot chan struct{}

	mu        sync.Mutex
	state     State
	committed *model.QueryData
	commitGen uint64
	lastErr   error
}

// New returns an idle orchestrator over eng.
func New(eng engine.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		eng:     eng,
		compute: pipeline.Compute,
		logger:  log.Default(),
		slot:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit computes the flame graph for m and f. It blocks until the
// computation finishes or is skipped. A superseded computation returns its
// outcome with a nil error, unless its scratch resources could not be
// released, in which case the *pipeline.CleanupError is returned with it.
// Engine failures are returned and leave the committed result in place.
func (o *Orchestrator) Submit(ctx context.Context, m metric.Metric, f model.Filters) (Outcome, error) {
	gen := o.gen.Add(1)
	o.setState(gen, StateFetching, nil)

	observability.ComputationsInFlight.Inc()
	defer observability.ComputationsInFlight.Dec()
	start := time.Now()

	select {
	case o.slot <- struct{}{}:
	case <-ctx.Done():
		o.setState(gen, StateErrored, ctx.Err())
		return Outcome{State: StateErrored, Generation: gen}, ctx.Err()
	}
	defer func() { <-o.slot }()

	if !o.latest(gen) {
		o.logger.Debug("computation skipped", "generation", gen, "metric", m.Name)
		o.observe(observability.OutcomeSuperseded, start)
		return Outcome{State: StateSuperseded, Generation: gen}, nil
	}

	q, err := o.compute(ctx, o.eng, m, f, pipeline.Options{
		Width:    o.width,
		Logger:   o.logger,
		Prepared: &o.prepared,
		Checkpoint: func() error {
			if !o.latest(gen) {
				return errSuperseded
			}
			return nil
		},
	})

	switch {
	case errors.Is(err, errSuperseded):
		o.observe(observability.OutcomeSuperseded, start)
		var cerr *pipeline.CleanupError
		if errors.As(err, &cerr) {
			o.logger.Error("cleanup failed after supersession", "generation", gen, "metric", m.Name, "err", cerr)
			return Outcome{State: StateSuperseded, Generation: gen}, cerr
		}
		o.logger.Debug("computation superseded", "generation", gen, "metric", m.Name)
		return Outcome{State: StateSuperseded, Generation: gen}, nil
	case err != nil:
		o.logger.Error("computation failed", "generation", gen, "metric", m.Name, "err", err)
		o.observe(observability.OutcomeErrored, start)
		o.setState(gen, StateErrored, err)
		return Outcome{State: StateErrored, Generation: gen}, err
	}

	out, ok := o.commit(gen, q)
	if !ok {
		o.logger.Debug("result discarded", "generation", gen, "metric", m.Name)
		o.observe(observability.OutcomeSuperseded, start)
		return out, nil
	}
	o.observe(observability.OutcomeCommitted, start)
	observability.FlamegraphNodes.Observe(float64(len(q.Nodes)))
	return out, nil
}

func (o *Orchestrator) latest(gen uint64) bool {
	return o.gen.Load() == gen
}

// commit publishes q if gen is still the latest submission.
func (o *Orchestrator) commit(gen uint64, q *model.QueryData) (Outcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.latest(gen) {
		return Outcome{State: StateSuperseded, Generation: gen}, false
	}
	o.committed = q
	o.commitGen = gen
	o.state = StateCommitted
	o.lastErr = nil

	out := Outcome{State: StateCommitted, Generation: gen, Data: q}
	for _, fn := range o.onCommit {
		fn(out)
	}
	return out, true
}

// setState records a state change made on behalf of gen. Older generations
// never overwrite the state of a newer submission.
func (o *Orchestrator) setState(gen uint64, s State, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.latest(gen) {
		return
	}
	o.state = s
	if err != nil {
		o.lastErr = err
	}
}

func (o *Orchestrator) observe(outcome string, start time.Time) {
	observability.ComputationsTotal.WithLabelValues(outcome).Inc()
	observability.ComputeDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// Latest returns the committed result and its generation. It is nil before
// the first commit.
func (o *Orchestrator) Latest() (*model.QueryData, uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.committed, o.commitGen
}

// State returns the state of the latest submission.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Err returns the failure of the latest submission, if it failed.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateErrored {
		return nil
	}
	return o.lastErr
}

// Generation returns the latest submitted generation.
func (o *Orchestrator) Generation() uint64 {
	return o.gen.Load()
}
