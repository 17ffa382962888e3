// Package telemetry holds the Prometheus collectors and the system sampler.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_model/go"
)

// cacheLookups enumerates the lookup label values used for hit-ratio math.
var cacheLookups = []string{"snapshot", "token"}

// Metrics holds all Prometheus collectors for the aggregator. Collectors are
// registered on a private registry so several instances can coexist, which
// the tests rely on.
type Metrics struct {
	registry *prometheus.Registry

	// Tick pipeline metrics
	TickDuration prometheus.Histogram
	TicksTotal   *prometheus.CounterVec
	TicksSkipped prometheus.Counter

	// Upstream fetch metrics
	FetchDuration *prometheus.HistogramVec
	FetchErrors   *prometheus.CounterVec
	RateLimited   *prometheus.CounterVec

	// Snapshot and cache metrics
	SnapshotTokens prometheus.Gauge
	CacheHitRatio  prometheus.Gauge
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec

	// Event and WebSocket metrics
	EventsEmitted *prometheus.CounterVec
	WSClients     prometheus.Gauge
	WSDelivered   prometheus.Counter
	WSDropped     prometheus.Counter

	// HTTP metrics
	HTTPDuration *prometheus.HistogramVec

	// System metrics, fed by the Sampler
	SysCPUPercent prometheus.Gauge
	SysMemUsed    prometheus.Gauge
	SysHeapAlloc  prometheus.Gauge
	SysGoroutines prometheus.Gauge
}

// NewMetrics creates a registry with all aggregator metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "aggregator_tick_duration_seconds",
			Help:    "Duration of a full refresh tick in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 20.0},
		}),

		TicksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_ticks_total",
			Help: "Total refresh ticks by result",
		}, []string{"result"}),

		TicksSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_ticks_skipped_total",
			Help: "Ticks skipped because the previous one was still running",
		}),

		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aggregator_fetch_duration_seconds",
			Help:    "Duration of upstream fetches in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"upstream"}),

		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_fetch_errors_total",
			Help: "Total upstream fetch failures by upstream and reason",
		}, []string{"upstream", "reason"}),

		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_rate_limited_total",
			Help: "Requests refused by the local rate limiter",
		}, []string{"upstream"}),

		SnapshotTokens: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aggregator_snapshot_tokens",
			Help: "Token count in the most recent snapshot",
		}),

		CacheHitRatio: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aggregator_cache_hit_ratio",
			Help: "Current cache hit ratio (0.0 to 1.0)",
		}),

		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_cache_hits_total",
			Help: "Total cache hits by lookup kind",
		}, []string{"lookup"}),

		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_cache_misses_total",
			Help: "Total cache misses by lookup kind",
		}, []string{"lookup"}),

		EventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_events_total",
			Help: "Events produced by the change detector, by kind",
		}, []string{"kind"}),

		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aggregator_ws_clients",
			Help: "Connected WebSocket clients",
		}),

		WSDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_ws_delivered_total",
			Help: "Messages handed to client send queues",
		}),

		WSDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_ws_dropped_total",
			Help: "Messages dropped because a client send queue was full",
		}),

		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aggregator_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"method", "route", "status"}),

		SysCPUPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aggregator_cpu_percent",
			Help: "Process host CPU usage percentage",
		}),

		SysMemUsed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aggregator_memory_used_bytes",
			Help: "Host memory in use in bytes",
		}),

		SysHeapAlloc: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aggregator_heap_alloc_bytes",
			Help: "Go heap bytes currently allocated",
		}),

		SysGoroutines: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aggregator_goroutines",
			Help: "Current goroutine count",
		}),
	}
}

// RecordTick records one completed refresh tick.
func (m *Metrics) RecordTick(result string, d time.Duration) {
	m.TickDuration.Observe(d.Seconds())
	m.TicksTotal.WithLabelValues(result).Inc()
}

// RecordTickSkipped marks a tick that found the previous one still running.
func (m *Metrics) RecordTickSkipped() {
	m.TicksSkipped.Inc()
}

// RecordFetch records a successful upstream fetch.
func (m *Metrics) RecordFetch(upstream string, d time.Duration) {
	m.FetchDuration.WithLabelValues(upstream).Observe(d.Seconds())
}

// RecordFetchError records an upstream fetch failure.
func (m *Metrics) RecordFetchError(upstream, reason string) {
	m.FetchErrors.WithLabelValues(upstream, reason).Inc()
}

// RecordRateLimited records a request refused by the local budget.
func (m *Metrics) RecordRateLimited(upstream string) {
	m.RateLimited.WithLabelValues(upstream).Inc()
}

// RecordCacheHit records a cache hit for the given lookup kind.
func (m *Metrics) RecordCacheHit(lookup string) {
	m.CacheHits.WithLabelValues(lookup).Inc()
	m.updateCacheHitRatio()
}

// RecordCacheMiss records a cache miss for the given lookup kind.
func (m *Metrics) RecordCacheMiss(lookup string) {
	m.CacheMisses.WithLabelValues(lookup).Inc()
	m.updateCacheHitRatio()
}

// RecordEvents bumps the per-kind event counters for a detector batch.
func (m *Metrics) RecordEvents(kinds []string) {
	for _, kind := range kinds {
		m.EventsEmitted.WithLabelValues(kind).Inc()
	}
}

// RecordHTTPRequest observes one served request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	m.HTTPDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// updateCacheHitRatio recomputes the hit ratio from the counter values.
func (m *Metrics) updateCacheHitRatio() {
	var sample io_prometheus_client.Metric

	totalHits := 0.0
	totalMisses := 0.0

	for _, lookup := range cacheLookups {
		if hit, err := m.CacheHits.GetMetricWithLabelValues(lookup); err == nil {
			if err := hit.Write(&sample); err == nil {
				totalHits += sample.GetCounter().GetValue()
			}
		}
		if miss, err := m.CacheMisses.GetMetricWithLabelValues(lookup); err == nil {
			if err := miss.Write(&sample); err == nil {
				totalMisses += sample.GetCounter().GetValue()
			}
		}
	}

	if total := totalHits + totalMisses; total > 0 {
		m.CacheHitRatio.Set(totalHits / total)
	}
}

// HitRatio reads the current cache hit ratio back out of the gauge.
func (m *Metrics) HitRatio() float64 {
	var sample io_prometheus_client.Metric
	if err := m.CacheHitRatio.Write(&sample); err != nil {
		return 0
	}
	return sample.GetGauge().GetValue()
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
