package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, caching and batch jobs.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	jobRuns            *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
	sessionTransitions *prometheus.CounterVec
	attendanceDefault  prometheus.Counter
	qaReports          *prometheus.CounterVec
	requestDecisions   *prometheus.CounterVec
	notifications      *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache set operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "job_runs_total",
			Help: "Scheduled job executions by outcome",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Duration of scheduled job executions",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		sessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_transitions_total",
			Help: "Sessions moved to DONE by the lifecycle job",
		}, []string{"reason"}),
		attendanceDefault: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendance_defaulted_total",
			Help: "PLANNED attendance records defaulted to ABSENT",
		}),
		qaReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qa_reports_created_total",
			Help: "System placeholder QA reports created",
		}, []string{"kind"}),
		requestDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "request_decisions_total",
			Help: "Student request transitions out of PENDING",
		}, []string{"type", "status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification deliveries by outcome",
		}, []string{"outcome"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(m.requestDuration, m.requestTotal, m.cacheLatency, m.cacheWrite,
		m.cacheHitRatio, m.cacheHits, m.cacheMisses, m.jobRuns, m.jobDuration, m.sessionTransitions, m.attendanceDefault,
		m.qaReports, m.requestDecisions, m.notifications, goroutines)

	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
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

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveJobRun records one scheduled job execution.
func (m *MetricsService) ObserveJobRun(job, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// AddSessionTransitions counts sessions completed for the given reason.
func (m *MetricsService) AddSessionTransitions(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionTransitions.WithLabelValues(reason).Add(float64(n))
}

// AddAttendanceDefaulted counts attendance records resolved to ABSENT.
func (m *MetricsService) AddAttendanceDefaulted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.attendanceDefault.Add(float64(n))
}

// AddQAReports counts placeholder reports by kind.
func (m *MetricsService) AddQAReports(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.qaReports.WithLabelValues(kind).Add(float64(n))
}

// RecordRequestDecision counts a request leaving PENDING.
func (m *MetricsService) RecordRequestDecision(requestType, status string) {
	if m == nil {
		return
	}
	m.requestDecisions.WithLabelValues(requestType, status).Inc()
}

// RecordNotification counts a notification delivery attempt.
func (m *MetricsService) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}
