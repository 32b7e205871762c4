package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/linkside/gateway/domain/credential"
	"github.com/linkside/gateway/domain/gateway"
	"github.com/linkside/gateway/domain/ratelimit"
	"github.com/linkside/gateway/domain/tier"
	"github.com/linkside/gateway/ports"
)

// pipelinePath is the placeholder endpoint key for the generic rate
// check that runs before endpoint resolution. It shares the credential's
// quota namespace but never collides with a registered path.
const pipelinePath = "__pipeline__"

// GatewayDeps contains dependencies for GatewayService.
type GatewayDeps struct {
	Credentials *CredentialService
	RateLimits  *RateLimitService
	Usage       *UsageService
	Registry    *EndpointRegistry
	Clock       ports.Clock
	Logger      zerolog.Logger
}

// Stats is a snapshot of the dispatcher's rolling counters.
type Stats struct {
	Requests          int64
	Failures          int64
	AvgLatencyMs      float64
	RequestsPerSecond float64
}

// GatewayService runs the dispatch pipeline: authenticate, rate check,
// resolve, authorize, execute, respond. Every request produces exactly
// one response and exactly one usage record, success or failure.
type GatewayService struct {
	credentials *CredentialService
	rateLimits  *RateLimitService
	usage       *UsageService
	registry    *EndpointRegistry
	clock       ports.Clock
	logger      zerolog.Logger

	detailed atomic.Bool

	statsMu      sync.Mutex
	requests     int64
	failures     int64
	totalLatency time.Duration
	startedAt    time.Time
}

// NewGatewayService creates the dispatcher.
func NewGatewayService(deps GatewayDeps) *GatewayService {
	return &GatewayService{
		credentials: deps.Credentials,
		rateLimits:  deps.RateLimits,
		usage:       deps.Usage,
		registry:    deps.Registry,
		clock:       deps.Clock,
		logger:      deps.Logger,
		startedAt:   deps.Clock.Now(),
	}
}

// SetDetailedLogging toggles per-request debug logging. Safe to call
// concurrently; config reload uses it.
func (s *GatewayService) SetDetailedLogging(on bool) {
	s.detailed.Store(on)
}

// Dispatch runs one request through the pipeline and always returns a
// response. Failures are encoded in Response.Err, never returned as a
// Go error, so the transport layer has a single rendering path.
func (s *GatewayService) Dispatch(ctx context.Context, req gateway.Request) gateway.Response {
	start := s.clock.Now()
	state := gateway.StateReceived
	s.usage.NoteArrival(req.Credential)

	v, err := s.credentials.Validate(ctx, req.Credential)
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", req.ID).Msg("credential validation error")
		return s.fail(ctx, req, nil, v.Tier, state, start, gateway.ErrAuthenticationFailed(err.Error()))
	}
	if !v.Valid {
		return s.fail(ctx, req, nil, v.Tier, state, start, gateway.ErrInvalidCredential(v.Reason))
	}
	state = gateway.StateAuthenticated

	// Generic admission check before the endpoint is known. Limited
	// tiers consume a placeholder window here; unlimited tiers consume
	// their burst window, which the endpoint re-check below must not
	// charge a second time.
	pipeline := s.rateLimits.Check(ctx, req.Credential, v.Tier, gateway.Endpoint{
		Path:           pipelinePath,
		Version:        req.Version,
		CostMultiplier: 1,
	})
	if !pipeline.Allowed {
		return s.fail(ctx, req, nil, v.Tier, state, start, gateway.ErrRateLimited(pipeline))
	}
	state = gateway.StateRateChecked

	endpoint, ok := s.registry.Lookup(req.Path, req.Version)
	if !ok {
		return s.fail(ctx, req, nil, v.Tier, state, start, gateway.ErrEndpointNotFound(req.Path, req.Version))
	}
	if endpoint.Handler == nil {
		return s.fail(ctx, req, &endpoint, v.Tier, state, start, gateway.ErrEndpointNotImplemented(req.Path))
	}

	if !v.Tier.CanAccess(endpoint.RequiredTier) {
		return s.fail(ctx, req, &endpoint, v.Tier, state, start, gateway.ErrInsufficientTier(endpoint.RequiredTier, v.Tier))
	}
	state = gateway.StateTierAuthorized

	decision := pipeline
	if !v.Tier.IsUnlimited() {
		decision = s.rateLimits.Check(ctx, req.Credential, v.Tier, endpoint)
		if !decision.Allowed {
			return s.fail(ctx, req, &endpoint, v.Tier, state, start, gateway.ErrRateLimited(decision))
		}
	}

	payload, handlerErr := s.execute(ctx, endpoint, req)
	state = gateway.StateExecuted
	if handlerErr != nil {
		if f, ok := handlerErr.(*gateway.Failure); ok {
			return s.fail(ctx, req, &endpoint, v.Tier, state, start, f)
		}
		return s.fail(ctx, req, &endpoint, v.Tier, state, start, gateway.ErrInternal(handlerErr.Error()))
	}

	resp := gateway.Response{
		Payload:   payload,
		Status:    200,
		RequestID: req.ID,
		Duration:  s.clock.Now().Sub(start),
		Tier:      v.Tier,
		Headers:   s.responseHeaders(req, decision, nil),
	}
	state = gateway.StateResponded

	s.usage.Record(ctx, req, resp, &endpoint, v.Tier)
	s.observe(resp.Duration, false)
	s.logRequest(req, resp, state, v)
	return resp
}

// Status reports the caller's standing against an endpoint without
// consuming quota.
func (s *GatewayService) Status(ctx context.Context, rawCredential, path, version string) (ratelimit.Decision, error) {
	v, err := s.credentials.Validate(ctx, rawCredential)
	if err != nil {
		return ratelimit.Decision{}, err
	}
	if !v.Valid {
		return ratelimit.Decision{}, gateway.ErrInvalidCredential(v.Reason)
	}
	endpoint, ok := s.registry.Lookup(path, version)
	if !ok {
		return ratelimit.Decision{}, gateway.ErrEndpointNotFound(path, version)
	}
	return s.rateLimits.Status(rawCredential, v.Tier, endpoint), nil
}

// Endpoints lists the endpoints the credential's tier can reach.
func (s *GatewayService) Endpoints(ctx context.Context, rawCredential string) ([]gateway.Endpoint, error) {
	v, err := s.credentials.Validate(ctx, rawCredential)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, gateway.ErrInvalidCredential(v.Reason)
	}
	return s.registry.List(v.Tier), nil
}

// Stats returns the rolling dispatcher counters.
func (s *GatewayService) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	st := Stats{Requests: s.requests, Failures: s.failures}
	if s.requests > 0 {
		st.AvgLatencyMs = float64(s.totalLatency.Milliseconds()) / float64(s.requests)
	}
	if elapsed := s.clock.Now().Sub(s.startedAt).Seconds(); elapsed > 0 {
		st.RequestsPerSecond = float64(s.requests) / elapsed
	}
	return st
}

// execute runs the endpoint handler, converting panics into errors so a
// misbehaving handler cannot take the dispatcher down.
func (s *GatewayService) execute(ctx context.Context, endpoint gateway.Endpoint, req gateway.Request) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("request_id", req.ID).
				Str("endpoint", endpoint.RegistryKey()).
				Interface("panic", r).
				Msg("handler panic")
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return endpoint.Handler(ctx, req)
}

// fail builds the failure response and runs the same accounting path as
// success: one usage record, one stats observation, one log line.
func (s *GatewayService) fail(ctx context.Context, req gateway.Request, endpoint *gateway.Endpoint, t tier.Tier, state gateway.State, start time.Time, f *gateway.Failure) gateway.Response {
	resp := gateway.Response{
		Status:    f.Status(),
		RequestID: req.ID,
		Duration:  s.clock.Now().Sub(start),
		Tier:      t,
		Err:       f,
		Headers:   s.responseHeaders(req, ratelimit.Decision{}, f),
	}

	s.usage.Record(ctx, req, resp, endpoint, t)
	s.observe(resp.Duration, true)

	ev := s.logger.Warn()
	if f.Kind == gateway.FailInternal {
		ev = s.logger.Error().Str("detail", f.Detail)
	}
	ev.Str("request_id", req.ID).
		Str("path", req.Path).
		Str("version", req.Version).
		Str("state", state.String()).
		Str("error", f.Code()).
		Int("status", resp.Status).
		Msg("request failed")

	return resp
}

func (s *GatewayService) responseHeaders(req gateway.Request, d ratelimit.Decision, f *gateway.Failure) map[string]string {
	headers := map[string]string{
		"X-API-Version": req.Version,
	}
	if f != nil {
		headers["X-Error"] = f.Code()
		if f.Kind == gateway.FailRateLimitExceeded {
			wait := ratelimit.RetryAfter(ratelimit.Decision{ResetAt: f.ResetAt}, s.clock.Now())
			headers["Retry-After"] = strconv.Itoa(int(wait.Seconds() + 0.999))
			headers["X-RateLimit-Limit"] = strconv.Itoa(f.Limit)
			headers["X-RateLimit-Remaining"] = "0"
		}
		return headers
	}
	if d.Limit > 0 {
		headers["X-RateLimit-Limit"] = strconv.Itoa(d.Limit)
		headers["X-RateLimit-Remaining"] = strconv.Itoa(d.Remaining)
	}
	return headers
}

func (s *GatewayService) observe(latency time.Duration, failed bool) {
	s.statsMu.Lock()
	s.requests++
	if failed {
		s.failures++
	}
	s.totalLatency += latency
	s.statsMu.Unlock()
}

func (s *GatewayService) logRequest(req gateway.Request, resp gateway.Response, state gateway.State, v credential.Validation) {
	if !s.detailed.Load() {
		return
	}
	s.logger.Debug().
		Str("request_id", req.ID).
		Str("path", req.Path).
		Str("method", req.Method).
		Str("version", req.Version).
		Str("tier", v.Tier.String()).
		Str("identity", v.Identity).
		Str("state", state.String()).
		Int("status", resp.Status).
		Dur("latency", resp.Duration).
		Msg("request dispatched")
}
