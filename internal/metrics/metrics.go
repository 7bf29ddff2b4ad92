package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the gating mechanism.
// All recording methods are safe on a nil *Metrics.
type Metrics struct {
	// Verification against /api/auth/me
	VerifyAttempts *prometheus.CounterVec
	VerifyDuration *prometheus.HistogramVec

	// Route guard outcomes
	GuardDecisions *prometheus.CounterVec

	// Admin data cache
	AdminCache *prometheus.CounterVec

	// Rejected by the per-IP limiter
	RateLimited *prometheus.CounterVec

	// Web host requests
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		VerifyAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingreso_verify_attempts_total",
				Help: "Total number of identity verification attempts",
			},
			[]string{"attempt", "result"},
		),
		VerifyDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingreso_verify_duration_seconds",
				Help:    "Identity verification round-trip duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"attempt"},
		),
		GuardDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingreso_guard_decisions_total",
				Help: "Total number of route guard decisions",
			},
			[]string{"requirement", "outcome"},
		),
		AdminCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingreso_admin_cache_lookups_total",
				Help: "Total number of admin data cache lookups",
			},
			[]string{"result"},
		),
		RateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingreso_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"route"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingreso_web_requests_total",
				Help: "Total number of requests served by the web host",
			},
			[]string{"method", "route", "status"},
		),
	}
}

// NewRegistry creates a new Prometheus registry with metrics
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	return reg, m
}

// HandlerFor returns an HTTP handler for a specific registry
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// RecordVerify records one verification attempt
func (m *Metrics) RecordVerify(attempt, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.VerifyAttempts.WithLabelValues(attempt, result).Inc()
	m.VerifyDuration.WithLabelValues(attempt).Observe(duration.Seconds())
}

// RecordGuardDecision records the outcome of one guard resolution
func (m *Metrics) RecordGuardDecision(requirement, outcome string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(requirement, outcome).Inc()
}

// RecordAdminCache records a cache hit or miss
func (m *Metrics) RecordAdminCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.AdminCache.WithLabelValues(result).Inc()
}

// RecordRateLimited records a rejected request
func (m *Metrics) RecordRateLimited(route string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(route).Inc()
}

// RecordHTTPRequest records one served request
func (m *Metrics) RecordHTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
