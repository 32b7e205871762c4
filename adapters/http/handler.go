// Package http provides the HTTP transport for the gateway service.
package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/linkside/gateway/adapters/metrics"
	"github.com/linkside/gateway/app"
	"github.com/linkside/gateway/domain/gateway"
	"github.com/linkside/gateway/domain/usage"
)

// maxBodyBytes caps inbound request bodies.
const maxBodyBytes = 10 << 20 // 10MB

// ErrorResponseBody is the JSON error envelope.
type ErrorResponseBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine code and human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GatewayHandler wraps the dispatch pipeline for HTTP handling.
type GatewayHandler struct {
	service *app.GatewayService
	usage   *app.UsageService
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewGatewayHandler creates a new HTTP gateway handler. The metrics
// collector may be nil.
func NewGatewayHandler(service *app.GatewayService, usageSvc *app.UsageService, logger zerolog.Logger, m *metrics.Collector) *GatewayHandler {
	return &GatewayHandler{
		service: service,
		usage:   usageSvc,
		logger:  logger,
		metrics: m,
	}
}

// Dispatch handles versioned API requests: /{version}/path...
func (h *GatewayHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	version := chi.URLParam(r, "version")
	path := "/" + chi.URLParam(r, "*")

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to read request body")
			writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
			return
		}
	}

	req := gateway.Request{
		ID:         middleware.GetReqID(ctx),
		Path:       path,
		Method:     r.Method,
		Version:    version,
		Credential: extractCredential(r),
		Headers:    extractHeaders(r),
		Body:       body,
		Query:      flattenQuery(r),
		ReceivedAt: time.Now(),
	}

	resp := h.service.Dispatch(ctx, req)
	h.recordMetrics(req, resp)

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("X-Request-Id", resp.RequestID)

	if resp.Err != nil {
		writeError(w, resp.Status, resp.Err.Code(), resp.Err.Message)
		return
	}
	writeJSON(w, resp.Status, map[string]any{"data": resp.Payload})
}

// Usage returns the caller's usage report for a calendar month.
// Query params: month=YYYY-MM (default current).
func (h *GatewayHandler) Usage(w http.ResponseWriter, r *http.Request) {
	cred := extractCredential(r)
	if cred == "" {
		writeError(w, http.StatusUnauthorized, "authentication_failed", "credential required")
		return
	}

	anchor := time.Now().UTC()
	if m := r.URL.Query().Get("month"); m != "" {
		parsed, err := time.Parse("2006-01", m)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "month must be YYYY-MM")
			return
		}
		anchor = parsed
	}
	start, end := usage.PeriodBounds(anchor)

	report, err := h.usage.Report(r.Context(), cred, start, end)
	if err != nil {
		h.logger.Error().Err(err).Msg("usage report failed")
		writeError(w, http.StatusInternalServerError, "internal_server_error", "usage report unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": report})
}

// Limits reports the caller's rate limit standing for an endpoint
// without consuming quota. Query params: path, version.
func (h *GatewayHandler) Limits(w http.ResponseWriter, r *http.Request) {
	cred := extractCredential(r)
	path := r.URL.Query().Get("path")
	version := r.URL.Query().Get("version")

	decision, err := h.service.Status(r.Context(), cred, path, version)
	if err != nil {
		if f, ok := err.(*gateway.Failure); ok {
			writeError(w, f.Status(), f.Code(), f.Message)
			return
		}
		writeError(w, http.StatusUnauthorized, "authentication_failed", "credential validation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"allowed":   decision.Allowed,
		"limit":     decision.Limit,
		"remaining": decision.Remaining,
		"window_ms": decision.Window.Milliseconds(),
		"reset_at":  decision.ResetAt.UTC().Format(time.RFC3339),
	}})
}

// Endpoints lists the endpoints the caller's tier can reach.
func (h *GatewayHandler) Endpoints(w http.ResponseWriter, r *http.Request) {
	cred := extractCredential(r)

	endpoints, err := h.service.Endpoints(r.Context(), cred)
	if err != nil {
		if f, ok := err.(*gateway.Failure); ok {
			writeError(w, f.Status(), f.Code(), f.Message)
			return
		}
		writeError(w, http.StatusUnauthorized, "authentication_failed", "credential validation failed")
		return
	}

	type wireEndpoint struct {
		Path         string `json:"path"`
		Method       string `json:"method"`
		Version      string `json:"version"`
		RequiredTier string `json:"required_tier"`
		BaseUnits    int64  `json:"base_units"`
	}
	out := make([]wireEndpoint, len(endpoints))
	for i, e := range endpoints {
		out[i] = wireEndpoint{
			Path:         e.Path,
			Method:       e.Method,
			Version:      e.Version,
			RequiredTier: e.RequiredTier.String(),
			BaseUnits:    e.BaseUnits,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *GatewayHandler) recordMetrics(req gateway.Request, resp gateway.Response) {
	if h.metrics == nil {
		return
	}

	status := strconv.Itoa(resp.Status)
	h.metrics.RequestsTotal.WithLabelValues(req.Method, req.Path, status, resp.Tier.String()).Inc()
	h.metrics.RequestDuration.WithLabelValues(req.Method, req.Path, status).Observe(resp.Duration.Seconds())

	if resp.Err != nil {
		switch resp.Err.Kind {
		case gateway.FailInvalidCredential, gateway.FailAuthentication:
			h.metrics.AuthFailures.WithLabelValues(resp.Err.Code()).Inc()
		case gateway.FailRateLimitExceeded:
			h.metrics.RateLimitDenials.WithLabelValues(resp.Tier.String()).Inc()
		}
	}
}

// extractCredential pulls the API key from the Authorization header,
// the X-API-Key header, or the api_key query parameter, in that order.
func extractCredential(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

// extractHeaders copies request headers, skipping credentials and
// hop-by-hop headers.
func extractHeaders(r *http.Request) map[string]string {
	headers := make(map[string]string)
	for k, v := range r.Header {
		lower := strings.ToLower(k)
		if lower == "authorization" || lower == "x-api-key" ||
			lower == "connection" || lower == "keep-alive" ||
			lower == "transfer-encoding" || lower == "upgrade" {
			continue
		}
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return headers
}

func flattenQuery(r *http.Request) map[string]string {
	values := r.URL.Query()
	if len(values) == 0 {
		return nil
	}
	query := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}
	return query
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error", code)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponseBody{Error: ErrorDetail{Code: code, Message: message}})
}
