package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	// Latency buckets in milliseconds. The semantic stage dominates,
	// so the upper buckets track its timeout-and-retry envelope.
	latencyBuckets = []float64{
		1, 5, 10, 25,
		50, 100, 250,
		500, 1000, 2500,
		5000, 10000,
	}

	ModerationDecisions = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseguard_moderation_decisions_total",
			Help: "Moderation decisions by terminal stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	ModerationLatency = promauto.With(registerer).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulseguard_moderation_latency_ms",
			Help:    "End-to-end moderation pipeline latency in milliseconds",
			Buckets: latencyBuckets,
		},
	)

	StageErrors = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseguard_stage_errors_total",
			Help: "Stage evaluation failures by stage",
		},
		[]string{"stage"},
	)

	CacheHits = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "pulseguard_result_cache_hits_total",
			Help: "Moderation results served from the result cache",
		},
	)
)

func init() {
	registerer.MustRegister(collectors.NewGoCollector())
	registerer.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Registry exposes the metrics registry for the HTTP handler.
func Registry() *prometheus.Registry {
	return registry
}
