package cashin

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
)

// Repository manages cash-in payment persistence. Transitions are applied
// with compare-and-swap on the expected current status so that concurrent
// writers on the same record are serialized.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Payment, error)
	CountByStatus(ctx context.Context, status Status) (int64, error)

	// Transition moves the record from expected from-status to the new
	// status, appending the event to the normalized timeline table in the
	// same transaction. Returns ConcurrentModificationError when the record
	// is no longer in the expected state.
	Transition(ctx context.Context, id string, from, to Status, event timeline.Event) error
	WithTx(tx pgx.Tx) Repository
}

// ErrPaymentNotFound indicates a missing cash-in payment
type ErrPaymentNotFound struct {
	ID string
}

func (e ErrPaymentNotFound) Error() string {
	return "cash-in payment not found: " + e.ID
}

// Is implements the errors.Is interface for ErrPaymentNotFound
func (e ErrPaymentNotFound) Is(target error) bool {
	t, ok := target.(ErrPaymentNotFound)
	if !ok {
		return false
	}
	return t.ID == "" || t.ID == e.ID
}
