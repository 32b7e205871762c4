package remote

import (
	"context"
	"time"

	"github.com/linkside/gateway/ports"
)

// Ledger delegates revenue events to an external ledger service.
//
// API Contract:
//
//	POST /ledger/events
//	Request:  {"tenant_id": "...", "event_type": "...", "cents": 125,
//	           "currency": "USD", "timestamp": "...", "metadata": {...}}
//	Response: {}
type Ledger struct {
	client *Client
}

// NewLedger creates a remote revenue ledger.
func NewLedger(client *Client) *Ledger {
	return &Ledger{client: client}
}

type wireLedgerEvent struct {
	TenantID  string            `json:"tenant_id"`
	EventType string            `json:"event_type"`
	Cents     int64             `json:"cents"`
	Currency  string            `json:"currency"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// RecordEvent posts one monetary event.
func (l *Ledger) RecordEvent(ctx context.Context, event ports.LedgerEvent) error {
	return l.client.Request(ctx, "POST", "/ledger/events", wireLedgerEvent{
		TenantID:  event.TenantID,
		EventType: event.EventType,
		Cents:     event.Cents,
		Currency:  event.Currency,
		Timestamp: event.Timestamp,
		Metadata:  event.Metadata,
	}, nil)
}

// Ensure interface compliance.
var _ ports.RevenueLedger = (*Ledger)(nil)
