// Package metrics wires memepool's runtime counters through
// prometheus/client_golang. Every component increments or observes a
// metric here rather than rolling its own counters, so the ambient
// instrumentation stays uniform regardless of which package emits it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PendingTxObserved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memepool",
		Name:      "pending_tx_observed_total",
		Help:      "Total pending transactions observed on newPendingTransactions.",
	})

	MempoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "memepool",
		Name:      "mempool_size",
		Help:      "Current number of transactions held in Mempool State.",
	})

	AnnotationCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "memepool",
		Name:      "annotation_cache_size",
		Help:      "Current number of entries in the Transaction Decoder's annotation cache.",
	})

	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memepool",
		Name:      "decode_errors_total",
		Help:      "Total transactions that degraded to {type: unknown} during decode.",
	})

	RegistryResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memepool",
		Name:      "registry_resolutions_total",
		Help:      "Contract registry resolutions by source layer (static, cache, external, miss).",
	}, []string{"layer"})

	RateLimiterInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "memepool",
		Name:      "rate_limiter_in_flight",
		Help:      "Current number of in-flight calls through the shared Rate Limiter.",
	})

	RateLimitedErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memepool",
		Name:      "rate_limited_errors_total",
		Help:      "Total calls through the Rate Limiter that failed with a rate-limit error.",
	})

	ForecastRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memepool",
		Name:      "forecast_runs_total",
		Help:      "Total Forecaster runs that actually executed (not dropped by the reentrancy guard).",
	})

	ForecastDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memepool",
		Name:      "forecast_dropped_total",
		Help:      "Total Forecaster triggers dropped because a run was already in flight.",
	})

	SandwichesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memepool",
		Name:      "sandwiches_detected_total",
		Help:      "Total sandwich triples flagged by the Sandwich Detector.",
	})

	ReconciliationAccuracy = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "memepool",
		Name:      "reconciliation_accuracy_percent",
		Help:      "Distribution of BlockComparison accuracy scores.",
		Buckets:   []float64{0, 10, 25, 50, 75, 90, 95, 100},
	})

	NodeClientReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memepool",
		Name:      "node_client_reconnects_total",
		Help:      "Total Node Client reconnect attempts.",
	})
)
