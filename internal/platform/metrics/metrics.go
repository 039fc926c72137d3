package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Registering the same collector twice panics, so Init is guarded.
	once sync.Once

	// HTTPRequestsTotal counts finished requests. route is the registered
	// pattern (/api/polls/:id/qr), never the raw path, to keep cardinality bounded.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// CacheOperations counts lookups per cache layer.
	// layer: qr | visibility_local | visibility_redis
	// result: hit | miss | stale | negative_hit | error | evict (capacity only)
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Cache lookups by layer and result.",
		},
		[]string{"layer", "result"},
	)

	// QRCacheEntries tracks the size of the in-process QR cache.
	QRCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qr_cache_entries",
			Help: "Number of entries currently held in the QR cache.",
		},
	)

	// QRGenerations counts fresh renders. visibility: public | private
	QRGenerations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qr_generations_total",
			Help: "QR codes rendered (cache misses and forced regenerations).",
		},
		[]string{"visibility"},
	)

	QRRenderDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qr_render_duration_seconds",
			Help:    "Time spent encoding both QR renditions.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		},
	)

	// SignedLinks counts signer outcomes. op: issue | verify, result: ok | invalid | expired | error
	SignedLinks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signed_links_total",
			Help: "Signed link issue and verify outcomes.",
		},
		[]string{"op", "result"},
	)

	QREventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qr_events_dropped_total",
			Help: "Issued events dropped because the collector buffer was full.",
		},
	)
)

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			CacheOperations,
			QRCacheEntries,
			QRGenerations,
			QRRenderDurationSeconds,
			SignedLinks,
			QREventsDropped,
		)
	})
}
