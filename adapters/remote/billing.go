package remote

import (
	"context"
	"time"

	"github.com/linkside/gateway/ports"
)

// Billing delegates invoice creation to an external billing service.
//
// API Contract:
//
//	POST /billing/invoices/overage
//	Request:  {"tenant_id": "...", "period_start": "...",
//	           "period_end": "...", "charges": [{"kind": "...",
//	           "units": 100, "cents": 125}]}
//	Response: {}
type Billing struct {
	client *Client
}

// NewBilling creates a remote billing service.
func NewBilling(client *Client) *Billing {
	return &Billing{client: client}
}

type wireInvoiceCharge struct {
	Kind  string `json:"kind"`
	Units int64  `json:"units"`
	Cents int64  `json:"cents"`
}

type wireOverageInvoice struct {
	TenantID    string              `json:"tenant_id"`
	PeriodStart time.Time           `json:"period_start"`
	PeriodEnd   time.Time           `json:"period_end"`
	Charges     []wireInvoiceCharge `json:"charges"`
}

// CreateOverageInvoice posts an invoice-creation request.
func (b *Billing) CreateOverageInvoice(ctx context.Context, inv ports.OverageInvoice) error {
	charges := make([]wireInvoiceCharge, len(inv.Charges))
	for i, c := range inv.Charges {
		charges[i] = wireInvoiceCharge{Kind: c.Kind, Units: c.Units, Cents: c.Cents}
	}
	return b.client.Request(ctx, "POST", "/billing/invoices/overage", wireOverageInvoice{
		TenantID:    inv.TenantID,
		PeriodStart: inv.PeriodStart,
		PeriodEnd:   inv.PeriodEnd,
		Charges:     charges,
	}, nil)
}

// Ensure interface compliance.
var _ ports.BillingService = (*Billing)(nil)
