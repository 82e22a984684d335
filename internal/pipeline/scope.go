package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/theirongolddev/flamekit/internal/observability"
)

// scope is a disposal list for backing-engine resources created during one
// computation. Releases run in reverse creation order.
type scope struct {
	releases []release
}

type release struct {
	name string
	fn   func(context.Context) error
}

// add registers fn to release the resource called name.
func (s *scope) add(name string, fn func(context.Context) error) {
	observability.ScratchResources.Inc()
	s.releases = append(s.releases, release{name: name, fn: fn})
}

// close releases everything, newest first. It runs even after ctx is
// cancelled, and joins every release failure into one error.
func (s *scope) close(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(s.releases) - 1; i >= 0; i-- {
		r := s.releases[i]
		if err := r.fn(ctx); err != nil {
			observability.ScratchCleanupErrorsTotal.Inc()
			errs = append(errs, fmt.Errorf("releasing %s: %w", r.name, err))
		}
		observability.ScratchResources.Dec()
	}
	s.releases = nil
	return errors.Join(errs...)
}
