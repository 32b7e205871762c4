package memory

import (
	"context"
	"sync"

	"github.com/linkside/gateway/ports"
)

// Billing is an in-memory implementation of ports.BillingService.
type Billing struct {
	mu       sync.RWMutex
	invoices []ports.OverageInvoice
	err      error
}

// NewBilling creates a new in-memory billing service.
func NewBilling() *Billing {
	return &Billing{}
}

// CreateOverageInvoice records an invoice-creation request.
func (b *Billing) CreateOverageInvoice(ctx context.Context, inv ports.OverageInvoice) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return b.err
	}
	b.invoices = append(b.invoices, inv)
	return nil
}

// SetError forces subsequent calls to fail with err.
func (b *Billing) SetError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

// Invoices returns all recorded invoices (for testing).
func (b *Billing) Invoices() []ports.OverageInvoice {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]ports.OverageInvoice, len(b.invoices))
	copy(out, b.invoices)
	return out
}

// Clear removes all invoices (for testing).
func (b *Billing) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invoices = nil
}

// Ensure interface compliance.
var _ ports.BillingService = (*Billing)(nil)
