// Package metrics exposes Prometheus instrumentation for the import pipeline
// and the resource locator. All methods are nil-safe so callers can leave
// metrics disabled without guarding every call.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "assetpipe"

// Import result labels.
const (
	ResultImported  = "imported"
	ResultFailed    = "failed"
	ResultCancelled = "cancelled"
)

// Import instruments batch runs.
type Import struct {
	assets      *prometheus.CounterVec
	duration    prometheus.Histogram
	orphans     prometheus.Counter
	checkpoints prometheus.Counter
	runs        *prometheus.CounterVec
}

// NewImport creates import metrics registered on reg.
func NewImport(reg prometheus.Registerer) *Import {
	m := &Import{
		assets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "assets_total",
			Help:      "Assets processed by result",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "asset_duration_seconds",
			Help:      "Time spent importing a single asset",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms ~ 16s
		}),
		orphans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "orphans_removed_total",
			Help:      "Stale outputs deleted after reimport",
		}),
		checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "checkpoints_total",
			Help:      "Import database persists during and after runs",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Batch runs by final state",
		}, []string{"state"}),
	}
	reg.MustRegister(m.assets, m.duration, m.orphans, m.checkpoints, m.runs)
	return m
}

// ObserveAsset records one asset's result and duration.
func (m *Import) ObserveAsset(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.assets.WithLabelValues(result).Inc()
	m.duration.Observe(d.Seconds())
}

// AddOrphans counts deleted orphan outputs.
func (m *Import) AddOrphans(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.orphans.Add(float64(n))
}

// Checkpoint counts a database persist.
func (m *Import) Checkpoint() {
	if m == nil {
		return
	}
	m.checkpoints.Inc()
}

// RunFinished counts a completed or cancelled run.
func (m *Import) RunFinished(state string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(state).Inc()
}

// Resolve instruments resource lookups.
type Resolve struct {
	lookups *prometheus.CounterVec
	cache   *prometheus.CounterVec
}

// Lookup outcome labels.
const (
	LookupExact    = "exact"
	LookupFallback = "fallback"
	LookupMissing  = "missing"
	LookupError    = "error"
)

// NewResolve creates resolver metrics registered on reg.
func NewResolve(reg prometheus.Registerer) *Resolve {
	m := &Resolve{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resource",
			Name:      "lookups_total",
			Help:      "Resource lookups by outcome",
		}, []string{"outcome"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resource",
			Name:      "cache_requests_total",
			Help:      "Blob cache requests by result",
		}, []string{"result"}),
	}
	reg.MustRegister(m.lookups, m.cache)
	return m
}

// Lookup counts a lookup outcome.
func (m *Resolve) Lookup(outcome string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(outcome).Inc()
}

// CacheHit counts a cache hit or miss.
func (m *Resolve) CacheHit(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
