// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Document Store Port
// -----------------------------------------------------------------------------

// Document is one stored record. Every document carries an "id" field.
type Document = map[string]any

// Filter matches documents by field equality.
type Filter = map[string]any

// Collections used by the gateway core.
const (
	CollectionAPIKeys      = "api_keys"
	CollectionUsageRecords = "usage_records"
)

// DocumentStore is the generic document database collaborator.
type DocumentStore interface {
	// Find returns documents in a collection matching the filter.
	Find(ctx context.Context, collection string, filter Filter) ([]Document, error)

	// Create stores a document and returns it with its assigned id.
	Create(ctx context.Context, collection string, doc Document) (Document, error)

	// Update applies a partial patch to a document by id.
	Update(ctx context.Context, collection, id string, patch Document) error
}

// -----------------------------------------------------------------------------
// Billing Collaborator Ports
// -----------------------------------------------------------------------------

// LedgerEvent is one monetary event for the revenue ledger.
type LedgerEvent struct {
	TenantID  string
	EventType string
	Cents     int64
	Currency  string
	Timestamp time.Time
	Metadata  map[string]string
}

// RevenueLedger records monetary events. Calls are best-effort from the
// gateway's perspective.
type RevenueLedger interface {
	RecordEvent(ctx context.Context, event LedgerEvent) error
}

// OverageInvoice describes an invoice-creation request for overage
// charges in a billing period.
type OverageInvoice struct {
	TenantID    string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Charges     []InvoiceCharge
}

// InvoiceCharge is one overage line item.
type InvoiceCharge struct {
	Kind  string
	Units int64
	Cents int64
}

// BillingService creates invoices in the external billing system.
type BillingService interface {
	CreateOverageInvoice(ctx context.Context, inv OverageInvoice) error
}

// -----------------------------------------------------------------------------
// OAuth Ports
// -----------------------------------------------------------------------------

// OAuthValidation is the normalized result of a provider introspection.
type OAuthValidation struct {
	Valid     bool
	Provider  string
	Subject   string
	Email     string
	ExpiresAt *time.Time
}

// OAuthProvider validates third-party tokens against one provider's
// introspection endpoint.
type OAuthProvider interface {
	// Name returns the provider key (e.g. "google", "github").
	Name() string

	// Introspect validates a token. Network failures are errors;
	// a recognized-but-invalid token is (Valid=false, nil).
	Introspect(ctx context.Context, token string) (OAuthValidation, error)
}

// -----------------------------------------------------------------------------
// Rate Limit Stats Port
// -----------------------------------------------------------------------------

// StatsEvent is one rate-limit decision for best-effort stats sinks.
type StatsEvent struct {
	Credential string
	Endpoint   string
	Allowed    bool
	At         time.Time
}

// RateLimitStatsStore records decisions. Implementations must treat
// errors as best-effort; the limiter never blocks on them.
type RateLimitStatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
