// Package observability holds the process-wide prometheus collectors.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for computation metrics.
const (
	OutcomeCommitted  = "committed"
	OutcomeSuperseded = "superseded"
	OutcomeErrored    = "errored"
)

// Metrics definitions
var (
	ComputeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flamekit_compute_seconds",
		Help:    "Time spent computing one flame graph, by outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	ComputationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flamekit_computations_total",
		Help: "Total number of flame graph computations, by outcome.",
	}, []string{"outcome"})

	ComputationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flamekit_computations_in_flight",
		Help: "Computations submitted and not yet finished, waiting ones included.",
	})

	ScratchResources = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flamekit_scratch_resources",
		Help: "Scratch tables, indices and sessions currently held on the backing engine.",
	})

	ScratchCleanupErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flamekit_scratch_cleanup_errors_total",
		Help: "Total number of scratch resources that failed to release.",
	})

	FlamegraphNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flamekit_flamegraph_nodes",
		Help:    "Number of nodes emitted per committed flame graph.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	ImportFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flamekit_import_files_total",
		Help: "Profile files seen by the importer, by result.",
	}, []string{"result"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flamekit_http_requests_total",
		Help: "Daemon HTTP requests, by route and status code.",
	}, []string{"route", "code"})
)
