package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LookupOutcome captures the result of a store lookup.
type LookupOutcome string

const (
	// LookupHit indicates a fresh entry served the read.
	LookupHit LookupOutcome = "hit"
	// LookupStale indicates an expired entry served a stale-allowed read.
	LookupStale LookupOutcome = "stale"
	// LookupMiss indicates no usable entry was present.
	LookupMiss LookupOutcome = "miss"
)

// RefreshOutcome captures the result of a background revalidation.
type RefreshOutcome string

const (
	// RefreshOK indicates the background fetch repopulated the store.
	RefreshOK RefreshOutcome = "ok"
	// RefreshError indicates the background fetch failed and was dropped.
	RefreshError RefreshOutcome = "error"
)

// Recorder publishes Prometheus metrics for cache and strategy activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	cacheLookups *prometheus.CounterVec
	cacheStores  *prometheus.CounterVec

	strategyRequests *prometheus.CounterVec
	strategyLatency  *prometheus.HistogramVec

	dedupShared        prometheus.Counter
	invalidationPurged *prometheus.CounterVec
	refreshes          *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a
// dedicated registry is created so multiple recorders can coexist
// without conflicting with the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aquacache",
		Subsystem: "store",
		Name:      "lookups_total",
		Help:      "Cache store lookups by outcome and category.",
	}, []string{"result", "category"})

	cacheStores := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aquacache",
		Subsystem: "store",
		Name:      "writes_total",
		Help:      "Cache store writes by category.",
	}, []string{"category"})

	strategyRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aquacache",
		Subsystem: "strategy",
		Name:      "requests_total",
		Help:      "Read requests executed per strategy and outcome.",
	}, []string{"strategy", "outcome"})

	strategyLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aquacache",
		Subsystem: "strategy",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for completed strategy reads.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"strategy", "outcome"})

	dedupShared := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aquacache",
		Subsystem: "dedup",
		Name:      "shared_total",
		Help:      "Reads that joined an already in-flight fetch instead of issuing their own.",
	})

	invalidationPurged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aquacache",
		Subsystem: "invalidation",
		Name:      "purged_total",
		Help:      "Cache entries purged by mutation-triggered invalidation, per entity type.",
	}, []string{"entity"})

	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aquacache",
		Subsystem: "strategy",
		Name:      "background_refreshes_total",
		Help:      "Background stale-while-revalidate refreshes by result.",
	}, []string{"result"})

	reg.MustRegister(cacheLookups, cacheStores, strategyRequests, strategyLatency, dedupShared, invalidationPurged, refreshes)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:           reg,
		handler:            handler,
		cacheLookups:       cacheLookups,
		cacheStores:        cacheStores,
		strategyRequests:   strategyRequests,
		strategyLatency:    strategyLatency,
		dedupShared:        dedupShared,
		invalidationPurged: invalidationPurged,
		refreshes:          refreshes,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and
// advanced integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveLookup records a store lookup outcome.
func (r *Recorder) ObserveLookup(result LookupOutcome, category string) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(LookupMiss)
	}
	r.cacheLookups.WithLabelValues(resultLabel, normalizeLabel(category)).Inc()
}

// ObserveStore records a store write.
func (r *Recorder) ObserveStore(category string) {
	if r == nil {
		return
	}
	r.cacheStores.WithLabelValues(normalizeLabel(category)).Inc()
}

// ObserveStrategy records the outcome and latency of a completed
// strategy read.
func (r *Recorder) ObserveStrategy(strategy, outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	strategyLabel := normalizeLabel(strategy)
	outcomeLabel := normalizeLabel(outcome)
	r.strategyRequests.WithLabelValues(strategyLabel, outcomeLabel).Inc()
	r.strategyLatency.WithLabelValues(strategyLabel, outcomeLabel).Observe(duration.Seconds())
}

// ObserveDedupeShared records a read that piggybacked on an in-flight fetch.
func (r *Recorder) ObserveDedupeShared() {
	if r == nil {
		return
	}
	r.dedupShared.Inc()
}

// ObserveInvalidation records how many entries a mutation purged.
func (r *Recorder) ObserveInvalidation(entity string, purged int) {
	if r == nil {
		return
	}
	r.invalidationPurged.WithLabelValues(normalizeLabel(entity)).Add(float64(purged))
}

// ObserveRefresh records the result of a background revalidation.
func (r *Recorder) ObserveRefresh(result RefreshOutcome) {
	if r == nil {
		return
	}
	r.refreshes.WithLabelValues(resultOrError(result)).Inc()
}

func resultOrError(result RefreshOutcome) string {
	if result == "" {
		return string(RefreshError)
	}
	return string(result)
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
