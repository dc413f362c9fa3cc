package cashout

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
)

// Repository manages cash-out payout persistence. As with cash-in,
// transitions use compare-and-swap on the expected current status.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Payment, error)
	CountByStatus(ctx context.Context, status Status) (int64, error)

	// Transition moves the record from expected from-status to the new
	// status, appending the event in the same transaction. Returns
	// ConcurrentModificationError when the record is no longer in the
	// expected state.
	Transition(ctx context.Context, id string, from, to Status, event timeline.Event) error
	WithTx(tx pgx.Tx) Repository
}

// ErrPayoutNotFound indicates a missing cash-out payment
type ErrPayoutNotFound struct {
	ID string
}

func (e ErrPayoutNotFound) Error() string {
	return "cash-out payment not found: " + e.ID
}

// Is implements the errors.Is interface for ErrPayoutNotFound
func (e ErrPayoutNotFound) Is(target error) bool {
	t, ok := target.(ErrPayoutNotFound)
	if !ok {
		return false
	}
	return t.ID == "" || t.ID == e.ID
}
