package memory

import (
	"context"
	"sync"

	"github.com/linkside/gateway/ports"
)

// Ledger is an in-memory implementation of ports.RevenueLedger.
type Ledger struct {
	mu     sync.RWMutex
	events []ports.LedgerEvent
	err    error
}

// NewLedger creates a new in-memory revenue ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// RecordEvent appends a monetary event.
func (l *Ledger) RecordEvent(ctx context.Context, event ports.LedgerEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return l.err
	}
	l.events = append(l.events, event)
	return nil
}

// SetError forces subsequent calls to fail with err.
func (l *Ledger) SetError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Events returns all recorded events (for testing).
func (l *Ledger) Events() []ports.LedgerEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ports.LedgerEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Clear removes all events (for testing).
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

// Ensure interface compliance.
var _ ports.RevenueLedger = (*Ledger)(nil)
