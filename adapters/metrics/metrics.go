// Package metrics provides Prometheus instrumentation for storage backends.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for the storage layer.
type Collector struct {
	// Repository operation metrics
	OpsTotal   *prometheus.CounterVec
	OpDuration *prometheus.HistogramVec
	OpErrors   *prometheus.CounterVec

	// Search metrics
	SearchMatches *prometheus.HistogramVec

	// Unit of work metrics
	UnitsOfWork  prometheus.Counter
	Rollbacks    prometheus.Counter
	UoWsInFlight prometheus.Gauge

	// Schema metrics
	ModelsRegistered prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return newCollector(promauto.With(prometheus.DefaultRegisterer))
}

// NewWithRegistry creates a collector registered with the given registry.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	return newCollector(promauto.With(reg))
}

func newCollector(factory promauto.Factory) *Collector {
	return &Collector{
		OpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stratum",
				Name:      "repository_ops_total",
				Help:      "Total repository operations by model and operation",
			},
			[]string{"model", "op"},
		),
		OpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stratum",
				Name:      "repository_op_duration_seconds",
				Help:      "Repository operation duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"model", "op"},
		),
		OpErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stratum",
				Name:      "repository_op_errors_total",
				Help:      "Total repository operation failures",
			},
			[]string{"model", "op"},
		),
		SearchMatches: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stratum",
				Name:      "search_matches",
				Help:      "Matching identities per search",
				Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000},
			},
			[]string{"model"},
		),
		UnitsOfWork: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "stratum",
				Name:      "units_of_work_total",
				Help:      "Total units of work entered",
			},
		),
		Rollbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "stratum",
				Name:      "unit_of_work_rollbacks_total",
				Help:      "Total units of work rolled back",
			},
		),
		UoWsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "stratum",
				Name:      "units_of_work_in_flight",
				Help:      "Units of work currently open",
			},
		),
		ModelsRegistered: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "stratum",
				Name:      "models_registered",
				Help:      "Models registered with the backend",
			},
		),
	}
}
