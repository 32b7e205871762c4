package gateway

import (
	"fmt"
	"time"

	"github.com/linkside/gateway/domain/ratelimit"
	"github.com/linkside/gateway/domain/tier"
)

// FailureKind enumerates the typed failures a request can end with.
type FailureKind int

const (
	FailEndpointNotFound FailureKind = iota
	FailEndpointNotImplemented
	FailInvalidCredential
	FailInsufficientTier
	FailRateLimitExceeded
	FailAuthentication
	FailInternal
)

// Failure carries exactly the data needed to render an HTTP status and
// a human message. It is a value type wrapped in a pointer only inside
// Response.
type Failure struct {
	Kind    FailureKind
	Message string

	// Rate limit details (FailRateLimitExceeded only).
	Limit   int
	Window  time.Duration
	ResetAt time.Time

	// Tier details (FailInsufficientTier only).
	RequiredTier tier.Tier
	CurrentTier  tier.Tier

	// Internal detail (FailInternal only), not exposed to callers.
	Detail string
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return f.Code() + ": " + f.Message
}

// Status maps the failure to its HTTP status code.
func (f *Failure) Status() int {
	switch f.Kind {
	case FailEndpointNotFound:
		return 404
	case FailEndpointNotImplemented:
		return 501
	case FailInvalidCredential, FailAuthentication:
		return 401
	case FailInsufficientTier:
		return 403
	case FailRateLimitExceeded:
		return 429
	default:
		return 500
	}
}

// Code returns the machine-readable code used in the X-Error header.
func (f *Failure) Code() string {
	switch f.Kind {
	case FailEndpointNotFound:
		return "endpoint_not_found"
	case FailEndpointNotImplemented:
		return "endpoint_not_implemented"
	case FailInvalidCredential:
		return "invalid_credential"
	case FailInsufficientTier:
		return "insufficient_tier"
	case FailRateLimitExceeded:
		return "rate_limit_exceeded"
	case FailAuthentication:
		return "authentication_failed"
	default:
		return "internal_server_error"
	}
}

// GatewayRejected reports whether the failure happened before any
// handler work ran. Such requests cost zero usage units.
func (f *Failure) GatewayRejected() bool {
	return f.Kind != FailInternal
}

// ErrEndpointNotFound builds a 404 failure.
func ErrEndpointNotFound(path, version string) *Failure {
	return &Failure{
		Kind:    FailEndpointNotFound,
		Message: fmt.Sprintf("no endpoint registered for %s (version %s)", path, version),
	}
}

// ErrEndpointNotImplemented builds a 501 failure.
func ErrEndpointNotImplemented(path string) *Failure {
	return &Failure{
		Kind:    FailEndpointNotImplemented,
		Message: fmt.Sprintf("endpoint %s has no handler", path),
	}
}

// ErrInvalidCredential builds a 401 failure from a validation reason.
func ErrInvalidCredential(reason string) *Failure {
	msg := "invalid credential"
	switch reason {
	case "key_expired":
		msg = "credential has expired"
	case "key_inactive":
		msg = "credential has been revoked"
	case "key_not_found":
		msg = "credential not recognized"
	case "invalid_format":
		msg = "credential format is invalid"
	}
	return &Failure{Kind: FailInvalidCredential, Message: msg}
}

// ErrInsufficientTier builds a 403 failure carrying both tiers.
func ErrInsufficientTier(required, current tier.Tier) *Failure {
	return &Failure{
		Kind:         FailInsufficientTier,
		Message:      fmt.Sprintf("endpoint requires %s tier, caller has %s", required, current),
		RequiredTier: required,
		CurrentTier:  current,
	}
}

// ErrRateLimited builds a 429 failure from a denial decision.
func ErrRateLimited(d ratelimit.Decision) *Failure {
	return &Failure{
		Kind:    FailRateLimitExceeded,
		Message: "rate limit exceeded",
		Limit:   d.Limit,
		Window:  d.Window,
		ResetAt: d.ResetAt,
	}
}

// ErrAuthenticationFailed builds a 401 failure for validator errors.
func ErrAuthenticationFailed(detail string) *Failure {
	return &Failure{Kind: FailAuthentication, Message: "authentication failed", Detail: detail}
}

// ErrInternal builds a 500 failure.
func ErrInternal(detail string) *Failure {
	return &Failure{Kind: FailInternal, Message: "internal server error", Detail: detail}
}
