package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/mercadoandino/settlement-engine/internal/domain/cashout"
	"github.com/mercadoandino/settlement-engine/internal/domain/money"
	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
	"github.com/mercadoandino/settlement-engine/internal/platform/persistence"
	"github.com/shopspring/decimal"
)

// CashOutRepository implements the cashout.Repository interface for PostgreSQL
type CashOutRepository struct {
	querier persistence.Querier
	inTx    bool // set by WithTx: querier is an open transaction
	logger  *slog.Logger
}

// NewCashOutRepository creates a new PostgreSQL cash-out repository
func NewCashOutRepository(logger *slog.Logger, db *persistence.PostgresDB) cashout.Repository {
	return &CashOutRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction. Reschedule-as-new-record
// uses this to fail the old payout and create its replacement atomically.
func (r *CashOutRepository) WithTx(tx pgx.Tx) cashout.Repository {
	return &CashOutRepository{
		querier: tx,
		inTx:    true,
		logger:  r.logger,
	}
}

func (r *CashOutRepository) withQuerier(q persistence.Querier) *CashOutRepository {
	return &CashOutRepository{querier: q, logger: r.logger}
}

// Create stores a new payout together with its initial timeline event,
// committing both atomically
func (r *CashOutRepository) Create(ctx context.Context, p *cashout.Payment) error {
	return runAtomic(ctx, r.querier, r.inTx, func(q persistence.Querier) error {
		return r.withQuerier(q).create(ctx, p)
	})
}

func (r *CashOutRepository) create(ctx context.Context, p *cashout.Payment) error {
	query := `
		INSERT INTO cash_out_payments (
			id, reference_id, amount, commission, net_amount, currency,
			seller_id, seller_name, seller_bank, seller_account, seller_cci,
			disbursement_voucher_url, period_start, period_end,
			rescheduled_from, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := r.querier.Exec(ctx, query,
		p.ID,
		p.ReferenceID,
		p.Amount.Amount.String(),
		p.Commission.Amount.String(),
		p.NetAmount.Amount.String(),
		string(p.Amount.Currency),
		p.Seller.ID,
		p.Seller.Name,
		p.Seller.BankName,
		p.Seller.AccountNumber,
		p.Seller.CCI,
		p.DisbursementVoucherURL,
		p.LiquidationPeriod.Start,
		p.LiquidationPeriod.End,
		p.RescheduledFrom,
		string(p.Status),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create cash-out payment", "id", p.ID, "error", err)
		return fmt.Errorf("failed to create cash-out payment: %w", err)
	}

	for _, event := range p.Timeline {
		if err := r.insertEvent(ctx, p.ID, event); err != nil {
			return err
		}
	}

	return nil
}

func (r *CashOutRepository) insertEvent(ctx context.Context, paymentID string, event timeline.Event) error {
	query := `
		INSERT INTO cash_out_events (
			id, payment_id, occurred_at, previous_status, new_status,
			actor_id, actor_name, actor_role, reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.querier.Exec(ctx, query,
		event.ID,
		paymentID,
		event.Timestamp,
		event.PreviousStatus,
		event.NewStatus,
		event.Actor.ID,
		event.Actor.Name,
		string(event.Actor.Role),
		event.Reason,
	)
	if err != nil {
		r.logger.Error("Failed to insert cash-out event", "payment_id", paymentID, "error", err)
		return fmt.Errorf("failed to insert cash-out event: %w", err)
	}

	return nil
}

const cashOutColumns = `id, reference_id, amount::text, commission::text, net_amount::text, currency,
	       seller_id, seller_name, seller_bank, seller_account, seller_cci,
	       disbursement_voucher_url, period_start, period_end,
	       rescheduled_from, status, created_at, updated_at`

// GetByID retrieves a payout with its full ordered timeline
func (r *CashOutRepository) GetByID(ctx context.Context, id string) (*cashout.Payment, error) {
	query := `SELECT ` + cashOutColumns + ` FROM cash_out_payments WHERE id = $1`

	p, err := r.scanPayment(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cashout.ErrPayoutNotFound{ID: id}
		}
		r.logger.Error("Failed to get cash-out payment", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get cash-out payment: %w", err)
	}

	events, err := r.loadTimeline(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Timeline = events

	return p, nil
}

func (r *CashOutRepository) scanPayment(row pgx.Row) (*cashout.Payment, error) {
	var p cashout.Payment
	var amount, commission, netAmount, currency, status string
	err := row.Scan(
		&p.ID,
		&p.ReferenceID,
		&amount,
		&commission,
		&netAmount,
		&currency,
		&p.Seller.ID,
		&p.Seller.Name,
		&p.Seller.BankName,
		&p.Seller.AccountNumber,
		&p.Seller.CCI,
		&p.DisbursementVoucherURL,
		&p.LiquidationPeriod.Start,
		&p.LiquidationPeriod.End,
		&p.RescheduledFrom,
		&status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cur := money.Currency(currency)
	for _, pair := range []struct {
		raw  string
		dest *money.Money
	}{
		{amount, &p.Amount},
		{commission, &p.Commission},
		{netAmount, &p.NetAmount},
	} {
		d, err := decimal.NewFromString(pair.raw)
		if err != nil {
			return nil, fmt.Errorf("corrupted amount on cash-out payment %s: %w", p.ID, err)
		}
		*pair.dest = money.Money{Amount: d, Currency: cur}
	}
	p.Status = cashout.Status(status)

	return &p, nil
}

func (r *CashOutRepository) loadTimeline(ctx context.Context, paymentID string) (timeline.History, error) {
	query := `
		SELECT id, occurred_at, previous_status, new_status,
		       actor_id, actor_name, actor_role, reason
		FROM cash_out_events
		WHERE payment_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.querier.Query(ctx, query, paymentID)
	if err != nil {
		r.logger.Error("Failed to load cash-out timeline", "payment_id", paymentID, "error", err)
		return nil, fmt.Errorf("failed to load cash-out timeline: %w", err)
	}
	defer rows.Close()

	var history timeline.History
	for rows.Next() {
		var e timeline.Event
		var role string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.PreviousStatus, &e.NewStatus,
			&e.Actor.ID, &e.Actor.Name, &role, &e.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan cash-out event: %w", err)
		}
		e.Actor.Role = timeline.ActorRole(role)
		history = append(history, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cash-out events: %w", err)
	}

	return history, nil
}

// ListByStatus retrieves payouts in the given status, oldest first
func (r *CashOutRepository) ListByStatus(ctx context.Context, status cashout.Status, limit, offset int) ([]*cashout.Payment, error) {
	query := `SELECT ` + cashOutColumns + `
		FROM cash_out_payments
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`

	rows, err := r.querier.Query(ctx, query, string(status), limit, offset)
	if err != nil {
		r.logger.Error("Failed to list cash-out payments", "status", string(status), "error", err)
		return nil, fmt.Errorf("failed to list cash-out payments: %w", err)
	}
	defer rows.Close()

	var payments []*cashout.Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cash-out payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cash-out payments: %w", err)
	}

	return payments, nil
}

// CountByStatus counts payouts in the given status
func (r *CashOutRepository) CountByStatus(ctx context.Context, status cashout.Status) (int64, error) {
	var count int64
	err := r.querier.QueryRow(ctx,
		`SELECT COUNT(*) FROM cash_out_payments WHERE status = $1`, string(status),
	).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count cash-out payments", "status", string(status), "error", err)
		return 0, fmt.Errorf("failed to count cash-out payments: %w", err)
	}
	return count, nil
}

// Transition moves the payout from the expected status to the new one and
// appends the event in the same transaction, compare-and-swap on the current
// status.
func (r *CashOutRepository) Transition(ctx context.Context, id string, from, to cashout.Status, event timeline.Event) error {
	return runAtomic(ctx, r.querier, r.inTx, func(q persistence.Querier) error {
		return r.withQuerier(q).transition(ctx, id, from, to, event)
	})
}

func (r *CashOutRepository) transition(ctx context.Context, id string, from, to cashout.Status, event timeline.Event) error {
	query := `
		UPDATE cash_out_payments
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.querier.Exec(ctx, query, string(to), event.Timestamp, id, string(from))
	if err != nil {
		r.logger.Error("Failed to transition cash-out payment", "id", id, "to", string(to), "error", err)
		return fmt.Errorf("failed to transition cash-out payment: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.querier.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM cash_out_payments WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check cash-out payment existence: %w", err)
		}
		if !exists {
			return cashout.ErrPayoutNotFound{ID: id}
		}
		return shared.ConcurrentModificationError{RecordID: id}
	}

	return r.insertEvent(ctx, id, event)
}
