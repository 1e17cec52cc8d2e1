package observability

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

type metricSet struct {
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	runs          *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	graphRegions  prometheus.Gauge
	graphPoints   prometheus.Gauge
	graphPairs    prometheus.Gauge
	sinkFailures  *prometheus.CounterVec
	eventsApplied *prometheus.CounterVec

	cacheOp     *prometheus.HistogramVec
	cacheErrors *prometheus.CounterVec
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

var active atomic.Pointer[metricSet]

// Init registers the metric set on reg. Until Init is called with enabled set,
// every Observe helper is a no-op.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
		active.Store(nil)
		return
	}
	m := &metricSet{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}, []string{"method", "route", "status"}),

		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adjacency_runs_total",
			Help: "Processing runs by outcome (ok or error kind).",
		}, []string{"outcome"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adjacency_phase_duration_seconds",
			Help:    "Duration of each processing phase in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
		}, []string{"phase"}),
		graphRegions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adjacency_graph_regions",
			Help: "Regions in the last computed graph input.",
		}),
		graphPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adjacency_graph_points",
			Help: "Distinct quantized points in the last computed graph input.",
		}),
		graphPairs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adjacency_graph_pairs",
			Help: "Ordered adjacency pairs in the last computed graph.",
		}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adjacency_sink_failures_total",
			Help: "Failed best-effort publications by sink.",
		}, []string{"sink"}),
		eventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adjacency_graph_events_total",
			Help: "Consumed graph events by outcome (applied, duplicate, stale, invalid, error).",
		}, []string{"outcome"}),

		cacheOp: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Duration of Redis operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"op"}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redis_operation_errors_total",
			Help: "Failed Redis operations.",
		}, []string{"op"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adjacency_store_hits_total",
			Help: "Neighbor lookups answered by the graph store.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adjacency_store_misses_total",
			Help: "Neighbor lookups the graph store could not answer.",
		}),
	}
	reg.MustRegister(
		m.httpRequests, m.httpDuration,
		m.runs, m.phaseDuration, m.graphRegions, m.graphPoints, m.graphPairs, m.sinkFailures, m.eventsApplied,
		m.cacheOp, m.cacheErrors, m.cacheHits, m.cacheMisses,
	)
	active.Store(m)
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	m := active.Load()
	if m == nil {
		return
	}
	st := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, route, st).Inc()
	m.httpDuration.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObserveRun counts a finished run; outcome is "ok" or an error kind name.
func ObserveRun(outcome string) {
	if m := active.Load(); m != nil {
		m.runs.WithLabelValues(outcome).Inc()
	}
}

func ObservePhase(phase string, durationSeconds float64) {
	if m := active.Load(); m != nil {
		m.phaseDuration.WithLabelValues(phase).Observe(durationSeconds)
	}
}

func SetGraphSize(regions, points, pairs int) {
	m := active.Load()
	if m == nil {
		return
	}
	m.graphRegions.Set(float64(regions))
	m.graphPoints.Set(float64(points))
	m.graphPairs.Set(float64(pairs))
}

func IncSinkFailure(sink string) {
	if m := active.Load(); m != nil {
		m.sinkFailures.WithLabelValues(sink).Inc()
	}
}

func IncGraphEvent(outcome string) {
	if m := active.Load(); m != nil {
		m.eventsApplied.WithLabelValues(outcome).Inc()
	}
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	m := active.Load()
	if m == nil {
		return
	}
	m.cacheOp.WithLabelValues(op).Observe(durationSeconds)
	if err != nil {
		m.cacheErrors.WithLabelValues(op).Inc()
	}
}

func AddCacheHits(n int) {
	if m := active.Load(); m != nil && n > 0 {
		m.cacheHits.Add(float64(n))
	}
}

func AddCacheMisses(n int) {
	if m := active.Load(); m != nil && n > 0 {
		m.cacheMisses.Add(float64(n))
	}
}
