package service

import (
	"context"
	"encoding/json"

	"github.com/mercadoandino/settlement-engine/internal/domain/cashin"
	"github.com/mercadoandino/settlement-engine/internal/domain/cashout"
	"github.com/mercadoandino/settlement-engine/internal/domain/invoice"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
)

// InvoiceService defines the interface for invoice lifecycle operations
type InvoiceService interface {
	// EmitInvoice validates the draft, submits it to the e-invoicing gateway
	// and persists the resulting document. Nothing is persisted when the
	// gateway call fails
	EmitInvoice(ctx context.Context, draft invoice.Draft) (*invoice.Invoice, error)

	// RetryInvoice resubmits the original payload of an OBSERVED or REJECTED
	// document. Returns InvalidTransitionError from any other status
	RetryInvoice(ctx context.Context, id string, actor timeline.Actor) (*invoice.Invoice, error)

	// RecordCDR applies the tax authority's verdict on a SENT_WAIT_CDR
	// document, moving it to ACCEPTED, OBSERVED or REJECTED
	RecordCDR(ctx context.Context, id string, outcome invoice.Status, raw json.RawMessage) (*invoice.Invoice, error)

	// GetInvoice retrieves a single document by voucher id
	GetInvoice(ctx context.Context, id string) (*invoice.Invoice, error)

	// ListInvoices returns a page of documents plus the total count for the
	// filter. SellerID ScopeAll lists across every seller
	ListInvoices(ctx context.Context, filter invoice.ListFilter) ([]*invoice.Invoice, int64, error)
}

// CashInService defines the interface for incoming payment validation
type CashInService interface {
	// Register records a new payment proof in PENDING_VALIDATION
	Register(ctx context.Context, p *cashin.Payment) error

	// Validate confirms the payment proof and enqueues the settlement event
	// in the transactional outbox, all within one database transaction
	Validate(ctx context.Context, id string, actor timeline.Actor, correlationID string) (*cashin.Payment, error)

	// Reject declines the payment proof. A reason is mandatory
	Reject(ctx context.Context, id string, actor timeline.Actor, reason string) (*cashin.Payment, error)

	GetPayment(ctx context.Context, id string) (*cashin.Payment, error)
	ListByStatus(ctx context.Context, status cashin.Status, page, perPage int) ([]*cashin.Payment, int64, error)
}

// CashOutService defines the interface for seller payout operations
type CashOutService interface {
	// Schedule creates a payout for a liquidation window. Net amount is
	// derived from amount minus commission and checked on every payout
	Schedule(ctx context.Context, p *cashout.Payment) error

	// Advance drives a payout through PAY, FAIL, PROCESS or RESCHEDULE.
	// Reschedule behavior follows the configured mode: transition the failed
	// record back in place, or create a replacement referencing it
	Advance(ctx context.Context, id string, action cashout.Action, actor timeline.Actor, reason string) (*cashout.Payment, error)

	// Dispute opens a dispute on a PAID payout. A reason is mandatory
	Dispute(ctx context.Context, id string, actor timeline.Actor, reason string) (*cashout.Payment, error)

	// ResolveDispute closes a dispute back into PAID or FAILED
	ResolveDispute(ctx context.Context, id string, outcome cashout.Status, actor timeline.Actor, reason string) (*cashout.Payment, error)

	GetPayment(ctx context.Context, id string) (*cashout.Payment, error)
	ListByStatus(ctx context.Context, status cashout.Status, page, perPage int) ([]*cashout.Payment, int64, error)
}

// KPIService defines the read-side aggregation over both settlement flows
// and the invoice ledger. Projections are computed on read, never stored
type KPIService interface {
	InvoiceKPIs(ctx context.Context) (*invoice.KPIs, error)
	SettlementKPIs(ctx context.Context) (*SettlementKPIs, error)
}
