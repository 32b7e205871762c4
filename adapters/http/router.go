package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/linkside/gateway/adapters/metrics"
)

// HealthResponse is the health check body.
type HealthResponse struct {
	Status string `json:"status"`
}

// VersionResponse is the version endpoint body.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics        *metrics.Collector
	MetricsHandler http.Handler // overrides the default promhttp handler
	Version        string
	RequestTimeout time.Duration // default 60s
}

// NewRouter creates the main HTTP router.
func NewRouter(h *GatewayHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if cfg.Metrics != nil {
		r.Use(newInFlightMiddleware(cfg.Metrics))
	}

	r.Get("/health", healthHandler)
	r.Get("/health/live", healthHandler)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	} else if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	r.Get("/version", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{Version: version, Service: "gateway"})
	})

	// Account endpoints authenticate via credential, not via the
	// dispatch pipeline; they never consume rate limit quota.
	r.Get("/account/usage", h.Usage)
	r.Get("/account/limits", h.Limits)
	r.Get("/account/endpoints", h.Endpoints)

	// Everything else is a versioned API call.
	r.HandleFunc("/{version}/*", h.Dispatch)

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

// newLoggingMiddleware logs one line per request at debug level.
func newLoggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("latency", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// newInFlightMiddleware tracks concurrent requests.
func newInFlightMiddleware(m *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()
			next.ServeHTTP(w, r)
		})
	}
}
