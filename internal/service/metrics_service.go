package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/studio-class-api/internal/models"
)

// Booking outcomes recorded by RecordBooking.
const (
	BookingOutcomeConfirmed = "confirmed"
	BookingOutcomeCancelled = "cancelled"
	BookingOutcomeFull      = "full"
	BookingOutcomeDuplicate = "duplicate"
	BookingOutcomeCompleted = "completed"
	BookingOutcomeNoShow    = "no_show"
	BookingOutcomeRejected  = "rejected"
)

// Waitlist events recorded by RecordWaitlist.
const (
	WaitlistEventJoined    = "joined"
	WaitlistEventPromoted  = "promoted"
	WaitlistEventConfirmed = "confirmed"
	WaitlistEventExpired   = "expired"
	WaitlistEventLeft      = "left"
)

// MetricsService wraps the Prometheus registry and keeps counters for the system snapshot endpoint.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheLookups    *prometheus.CounterVec
	bookings        *prometheus.CounterVec
	waitlist        *prometheus.CounterVec
	seriesItems     *prometheus.CounterVec
	notifications   *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	bookingsConfirmed    uint64
	waitlistPromotions   uint64
}

// NewMetricsService registers the HTTP, cache and scheduling collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for session cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Session cache lookups by result",
	}, []string{"result"})

	bookings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "studio_bookings_total",
		Help: "Booking attempts and transitions by outcome",
	}, []string{"outcome"})

	waitlist := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "studio_waitlist_events_total",
		Help: "Waitlist lifecycle events",
	}, []string{"event"})

	seriesItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "studio_series_sessions_total",
		Help: "Sessions touched by series operations",
	}, []string{"operation", "result"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "studio_notifications_total",
		Help: "Notification deliveries by result",
	}, []string{"type", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHitRatio, cacheLookups, bookings, waitlist, seriesItems, notifications, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheHitRatio:   cacheHitRatio,
		cacheLookups:    cacheLookups,
		bookings:        bookings,
		waitlist:        waitlist,
		seriesItems:     seriesItems,
		notifications:   notifications,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache hit or miss and updates the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// RecordBooking counts a booking outcome.
func (m *MetricsService) RecordBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
	if outcome == BookingOutcomeConfirmed {
		atomic.AddUint64(&m.bookingsConfirmed, 1)
	}
}

// RecordWaitlist counts a waitlist lifecycle event.
func (m *MetricsService) RecordWaitlist(event string) {
	if m == nil {
		return
	}
	m.waitlist.WithLabelValues(event).Inc()
	if event == WaitlistEventPromoted {
		atomic.AddUint64(&m.waitlistPromotions, 1)
	}
}

// RecordSeriesOperation counts applied and skipped sessions of a series edit.
func (m *MetricsService) RecordSeriesOperation(operation string, applied, skipped int) {
	if m == nil {
		return
	}
	m.seriesItems.WithLabelValues(operation, "applied").Add(float64(applied))
	m.seriesItems.WithLabelValues(operation, "skipped").Add(float64(skipped))
}

// RecordNotification counts a notification delivery result.
func (m *MetricsService) RecordNotification(notificationType, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(notificationType, result).Inc()
}

// Snapshot returns aggregated metrics for the system metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{GeneratedAt: time.Now().UTC()}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		BookingsConfirmed:        atomic.LoadUint64(&m.bookingsConfirmed),
		WaitlistPromotions:       atomic.LoadUint64(&m.waitlistPromotions),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
