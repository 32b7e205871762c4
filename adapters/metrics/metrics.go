// Package metrics provides Prometheus metrics collection for the
// gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for the gateway.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Auth metrics
	AuthFailures *prometheus.CounterVec
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter

	// Rate limit metrics
	RateLimitDenials *prometheus.CounterVec

	// Usage metrics
	UsageUnits       *prometheus.CounterVec
	UsageFlushes     prometheus.Counter
	UsageFlushErrors prometheus.Counter

	// Store metrics
	StoreErrors *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered on the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector on a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "requests_total",
				Help:      "Total number of requests processed",
			},
			[]string{"method", "path", "status", "tier"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "auth_failures_total",
				Help:      "Total number of credential validation failures",
			},
			[]string{"reason"},
		),
		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "credential_cache_hits_total",
				Help:      "Total credential validations served from cache",
			},
		),
		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "credential_cache_misses_total",
				Help:      "Total credential validations that hit the store",
			},
		),
		RateLimitDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "rate_limit_denials_total",
				Help:      "Total number of rate limited requests",
			},
			[]string{"tier"},
		),
		UsageUnits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "usage_units_total",
				Help:      "Total usage units metered",
			},
			[]string{"tier"},
		),
		UsageFlushes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "usage_flushes_total",
				Help:      "Total usage buffer flushes",
			},
		),
		UsageFlushErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "usage_flush_errors_total",
				Help:      "Total usage records that failed to persist",
			},
		),
		StoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "store_errors_total",
				Help:      "Total document store errors",
			},
			[]string{"op"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}
