// Package postgres provides PostgreSQL implementations of the settlement
// repositories. Timeline history is normalized into child event tables; all
// state transitions use compare-and-swap on the current status so concurrent
// writers on one record are serialized at the database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/mercadoandino/settlement-engine/internal/domain/cashin"
	"github.com/mercadoandino/settlement-engine/internal/domain/money"
	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
	"github.com/mercadoandino/settlement-engine/internal/platform/persistence"
	"github.com/shopspring/decimal"
)

// CashInRepository implements the cashin.Repository interface for PostgreSQL
type CashInRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	inTx    bool                // set by WithTx: querier is an open transaction
	logger  *slog.Logger
}

// NewCashInRepository creates a new PostgreSQL cash-in repository
func NewCashInRepository(logger *slog.Logger, db *persistence.PostgresDB) cashin.Repository {
	return &CashInRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction, allowing the cash-in
// transition, its timeline event and the outbox row to commit atomically.
func (r *CashInRepository) WithTx(tx pgx.Tx) cashin.Repository {
	return &CashInRepository{
		querier: tx,
		inTx:    true,
		logger:  r.logger,
	}
}

func (r *CashInRepository) withQuerier(q persistence.Querier) *CashInRepository {
	return &CashInRepository{querier: q, logger: r.logger}
}

// Create stores a new payment together with its initial timeline event,
// committing both atomically
func (r *CashInRepository) Create(ctx context.Context, p *cashin.Payment) error {
	return runAtomic(ctx, r.querier, r.inTx, func(q persistence.Querier) error {
		return r.withQuerier(q).create(ctx, p)
	})
}

func (r *CashInRepository) create(ctx context.Context, p *cashin.Payment) error {
	query := `
		INSERT INTO cash_in_payments (
			id, reference_id, amount, currency,
			customer_id, customer_name, customer_tax_id,
			voucher_url, invoice_document_url,
			hierarchy_company, hierarchy_seller, hierarchy_seller_name, hierarchy_customer,
			status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.querier.Exec(ctx, query,
		p.ID,
		p.ReferenceID,
		p.Amount.Amount.String(),
		string(p.Amount.Currency),
		p.Customer.ID,
		p.Customer.Name,
		p.Customer.TaxID,
		p.VoucherURL,
		p.InvoiceDocumentURL,
		p.OrderHierarchy.Company,
		p.OrderHierarchy.Seller,
		p.OrderHierarchy.SellerName,
		p.OrderHierarchy.Customer,
		string(p.Status),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create cash-in payment", "id", p.ID, "error", err)
		return fmt.Errorf("failed to create cash-in payment: %w", err)
	}

	for _, event := range p.Timeline {
		if err := r.insertEvent(ctx, p.ID, event); err != nil {
			return err
		}
	}

	return nil
}

func (r *CashInRepository) insertEvent(ctx context.Context, paymentID string, event timeline.Event) error {
	query := `
		INSERT INTO cash_in_events (
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
		r.logger.Error("Failed to insert cash-in event", "payment_id", paymentID, "error", err)
		return fmt.Errorf("failed to insert cash-in event: %w", err)
	}

	return nil
}

// GetByID retrieves a payment with its full ordered timeline
func (r *CashInRepository) GetByID(ctx context.Context, id string) (*cashin.Payment, error) {
	query := `
		SELECT id, reference_id, amount::text, currency,
		       customer_id, customer_name, customer_tax_id,
		       voucher_url, invoice_document_url,
		       hierarchy_company, hierarchy_seller, hierarchy_seller_name, hierarchy_customer,
		       status, created_at, updated_at
		FROM cash_in_payments
		WHERE id = $1
	`

	p, err := r.scanPayment(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cashin.ErrPaymentNotFound{ID: id}
		}
		r.logger.Error("Failed to get cash-in payment", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get cash-in payment: %w", err)
	}

	events, err := r.loadTimeline(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Timeline = events

	return p, nil
}

func (r *CashInRepository) scanPayment(row pgx.Row) (*cashin.Payment, error) {
	var p cashin.Payment
	var amount, currency, status string
	err := row.Scan(
		&p.ID,
		&p.ReferenceID,
		&amount,
		&currency,
		&p.Customer.ID,
		&p.Customer.Name,
		&p.Customer.TaxID,
		&p.VoucherURL,
		&p.InvoiceDocumentURL,
		&p.OrderHierarchy.Company,
		&p.OrderHierarchy.Seller,
		&p.OrderHierarchy.SellerName,
		&p.OrderHierarchy.Customer,
		&status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupted amount on cash-in payment %s: %w", p.ID, err)
	}
	p.Amount = money.Money{Amount: d, Currency: money.Currency(currency)}
	p.Status = cashin.Status(status)

	return &p, nil
}

func (r *CashInRepository) loadTimeline(ctx context.Context, paymentID string) (timeline.History, error) {
	query := `
		SELECT id, occurred_at, previous_status, new_status,
		       actor_id, actor_name, actor_role, reason
		FROM cash_in_events
		WHERE payment_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.querier.Query(ctx, query, paymentID)
	if err != nil {
		r.logger.Error("Failed to load cash-in timeline", "payment_id", paymentID, "error", err)
		return nil, fmt.Errorf("failed to load cash-in timeline: %w", err)
	}
	defer rows.Close()

	var history timeline.History
	for rows.Next() {
		var e timeline.Event
		var role string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.PreviousStatus, &e.NewStatus,
			&e.Actor.ID, &e.Actor.Name, &role, &e.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan cash-in event: %w", err)
		}
		e.Actor.Role = timeline.ActorRole(role)
		history = append(history, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cash-in events: %w", err)
	}

	return history, nil
}

// ListByStatus retrieves payments in the given status, oldest first so
// pending validations surface in arrival order
func (r *CashInRepository) ListByStatus(ctx context.Context, status cashin.Status, limit, offset int) ([]*cashin.Payment, error) {
	query := `
		SELECT id, reference_id, amount::text, currency,
		       customer_id, customer_name, customer_tax_id,
		       voucher_url, invoice_document_url,
		       hierarchy_company, hierarchy_seller, hierarchy_seller_name, hierarchy_customer,
		       status, created_at, updated_at
		FROM cash_in_payments
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, string(status), limit, offset)
	if err != nil {
		r.logger.Error("Failed to list cash-in payments", "status", string(status), "error", err)
		return nil, fmt.Errorf("failed to list cash-in payments: %w", err)
	}
	defer rows.Close()

	var payments []*cashin.Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cash-in payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cash-in payments: %w", err)
	}

	return payments, nil
}

// CountByStatus counts payments in the given status
func (r *CashInRepository) CountByStatus(ctx context.Context, status cashin.Status) (int64, error) {
	var count int64
	err := r.querier.QueryRow(ctx,
		`SELECT COUNT(*) FROM cash_in_payments WHERE status = $1`, string(status),
	).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count cash-in payments", "status", string(status), "error", err)
		return 0, fmt.Errorf("failed to count cash-in payments: %w", err)
	}
	return count, nil
}

// Transition moves the payment from the expected status to the new one and
// appends the event in the same transaction: the status never changes without
// its history entry. The status predicate in the UPDATE is the single-writer
// guard: a row already moved by another caller matches nothing.
func (r *CashInRepository) Transition(ctx context.Context, id string, from, to cashin.Status, event timeline.Event) error {
	return runAtomic(ctx, r.querier, r.inTx, func(q persistence.Querier) error {
		return r.withQuerier(q).transition(ctx, id, from, to, event)
	})
}

func (r *CashInRepository) transition(ctx context.Context, id string, from, to cashin.Status, event timeline.Event) error {
	query := `
		UPDATE cash_in_payments
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.querier.Exec(ctx, query, string(to), event.Timestamp, id, string(from))
	if err != nil {
		r.logger.Error("Failed to transition cash-in payment", "id", id, "to", string(to), "error", err)
		return fmt.Errorf("failed to transition cash-in payment: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.querier.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM cash_in_payments WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check cash-in payment existence: %w", err)
		}
		if !exists {
			return cashin.ErrPaymentNotFound{ID: id}
		}
		return shared.ConcurrentModificationError{RecordID: id}
	}

	return r.insertEvent(ctx, id, event)
}
