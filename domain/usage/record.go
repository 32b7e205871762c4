// Package usage provides usage record types and pure cost/aggregation
// functions. All functions are pure - no side effects.
package usage

import "time"

// Record represents one completed request for metering (immutable value type).
type Record struct {
	ID         string
	Credential string
	Endpoint   string // version:path registry key
	Method     string
	Version    string
	StatusCode int
	LatencyMs  int64
	CostUnits  int64
	CostCents  int64
	Timestamp  time.Time
	Metadata   Metadata
}

// Metadata carries request context that is not part of the cost model.
type Metadata struct {
	UserAgent string
	SizeBytes int64
	CacheHit  bool
	Region    string
}

// Aggregate is the realtime per-credential counter set (value type;
// the owner replaces it atomically under its lock).
type Aggregate struct {
	Incoming    int64 // requests that arrived, completed or not
	Processed   int64 // requests fully recorded
	TotalUnits  int64
	LastSeen    time.Time
	WindowStart time.Time
}

// OverageCharge is one billable overage line (value type).
type OverageCharge struct {
	Kind  string // "unit_overage" or "request_overage"
	Units int64
	Cents int64
}

// Charge kinds.
const (
	ChargeUnitOverage    = "unit_overage"
	ChargeRequestOverage = "request_overage"
)
