// Package metrics declares the Prometheus collectors for map generation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MapRequests counts map requests by kind (risk, impact) and outcome.
	MapRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hexrisk_map_requests_total",
		Help: "Map requests by kind and outcome",
	}, []string{"kind", "outcome"})

	// StageDuration observes pipeline stage latency.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hexrisk_stage_duration_seconds",
		Help:    "Map pipeline stage duration",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
	}, []string{"stage"})

	// MapCells observes the number of cells in returned maps.
	MapCells = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hexrisk_map_cells",
		Help:    "Cells per returned map",
		Buckets: prometheus.ExponentialBuckets(10, 4, 9),
	}, []string{"kind"})

	// YearFallbacks counts dataset resolutions that used a non-requested year.
	YearFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hexrisk_registry_year_fallbacks_total",
		Help: "Dataset resolutions served by the nearest available year",
	}, []string{"kind"})

	// RegistryCache counts registry cache lookups by result (hit, miss).
	RegistryCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hexrisk_registry_cache_total",
		Help: "Registry cache lookups by result",
	}, []string{"result"})
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)
