package invoice

import (
	"context"
	"encoding/json"

	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
	"github.com/shopspring/decimal"
)

// ScopeAll lists invoices across every seller (admin view). Seller-scoped
// and admin-global reads go through the same records; there is no separate
// admin copy.
const ScopeAll = "ALL"

// ListFilter narrows List queries. Search is a free-text filter over
// customer name, series, number, tax id and order id.
type ListFilter struct {
	SellerID string // ScopeAll for the admin-global view
	Search   string
	Limit    int
	Offset   int
}

// StatusUpdate describes a persisted transition: the new status, the event
// recording it, and optionally the raw provider response for audit.
type StatusUpdate struct {
	From            Status
	To              Status
	Event           timeline.Event
	RapifacResponse json.RawMessage
}

// KPIs is the read-side projection over the invoice ledger
type KPIs struct {
	AcceptedTotal decimal.Decimal  `json:"accepted_total"`
	CountByStatus map[Status]int64 `json:"count_by_status"`
	SuccessRate   float64          `json:"success_rate"`
}

// Repository manages the append-only invoice ledger. Records are never
// deleted; UpdateStatus appends history and is conditional on the expected
// current status to serialize concurrent writers.
type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id string) (*Invoice, error)

	// GetByOrderID returns the most recent invoice emitted for an order.
	// Consumers use it to keep redelivered settlement events idempotent.
	GetByOrderID(ctx context.Context, orderID string) (*Invoice, error)

	List(ctx context.Context, filter ListFilter) ([]*Invoice, error)
	Count(ctx context.Context, filter ListFilter) (int64, error)

	// UpdateStatus applies a transition with compare-and-swap semantics on
	// update.From. Returns ConcurrentModificationError when the record is no
	// longer in the expected state.
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) error

	KPIs(ctx context.Context) (*KPIs, error)
}

// ErrNotFound indicates a missing invoice
type ErrNotFound struct {
	ID string
}

func (e ErrNotFound) Error() string {
	return "invoice not found: " + e.ID
}

// Is implements the errors.Is interface for ErrNotFound
func (e ErrNotFound) Is(target error) bool {
	t, ok := target.(ErrNotFound)
	if !ok {
		return false
	}
	return t.ID == "" || t.ID == e.ID
}

// ErrDuplicate indicates an invoice id uniqueness violation
type ErrDuplicate struct {
	ID string
}

func (e ErrDuplicate) Error() string {
	return "duplicate invoice: " + e.ID
}

// Is implements the errors.Is interface for ErrDuplicate
func (e ErrDuplicate) Is(target error) bool {
	t, ok := target.(ErrDuplicate)
	if !ok {
		return false
	}
	return t.ID == "" || t.ID == e.ID
}
