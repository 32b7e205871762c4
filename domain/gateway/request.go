// Package gateway provides request/response value types, the endpoint
// table entry, and the typed failure taxonomy for the dispatch pipeline.
// This package has NO dependencies on I/O or external packages.
package gateway

import (
	"context"
	"time"

	"github.com/linkside/gateway/domain/tier"
)

// Request is an immutable inbound call. Middlewares never mutate it;
// enrichment returns a new value.
type Request struct {
	ID         string
	Path       string
	Method     string
	Version    string
	Credential string
	Headers    map[string]string
	Body       []byte
	Query      map[string]string
	ReceivedAt time.Time
}

// WithHeader returns a copy of the request with one header added.
// This is a PURE function.
func (r Request) WithHeader(key, value string) Request {
	headers := make(map[string]string, len(r.Headers)+1)
	for k, v := range r.Headers {
		headers[k] = v
	}
	headers[key] = value
	r.Headers = headers
	return r
}

// Response is the dispatcher's single output per request.
type Response struct {
	Payload   any
	Status    int
	Headers   map[string]string
	RequestID string
	Duration  time.Duration
	Tier      tier.Tier // resolved caller tier; Free when unresolved
	Err       *Failure  // nil on success
}

// Handler executes an endpoint's business logic.
type Handler func(ctx context.Context, req Request) (any, error)

// Endpoint is a registry entry (immutable once registered).
type Endpoint struct {
	Path              string
	Method            string
	Version           string
	RequiredTier      tier.Tier
	BaseUnits         int64   // usage units per request
	CostMultiplier    float64 // quota dilution for rate limiting, >= 0.1
	PremiumMultiplier float64 // applied to slow requests
	Handler           Handler
}

// Key builds the registry key for a version and path.
// This is a PURE function.
func Key(version, path string) string {
	return version + ":" + path
}

// RegistryKey returns the endpoint's own registry key.
func (e Endpoint) RegistryKey() string {
	return Key(e.Version, e.Path)
}

// State tracks a request through the dispatch pipeline.
type State int

const (
	StateReceived State = iota
	StateAuthenticated
	StateRateChecked
	StateTierAuthorized
	StateExecuted
	StateResponded
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateAuthenticated:
		return "authenticated"
	case StateRateChecked:
		return "rate_checked"
	case StateTierAuthorized:
		return "tier_authorized"
	case StateExecuted:
		return "executed"
	case StateResponded:
		return "responded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
