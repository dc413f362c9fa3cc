package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mercadoandino/settlement-engine/internal/domain/cashin"
	"github.com/mercadoandino/settlement-engine/internal/domain/outbox"
	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
)

// TxRunner runs a function within a single database transaction.
// Satisfied by persistence.PostgresDB
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// CashInServiceImpl implements the CashInService interface
type CashInServiceImpl struct {
	db         TxRunner
	cashInRepo cashin.Repository
	outboxRepo outbox.Repository
	logger     *slog.Logger
}

// NewCashInService creates a new cash-in service
func NewCashInService(logger *slog.Logger, db TxRunner, cashInRepo cashin.Repository, outboxRepo outbox.Repository) CashInService {
	return &CashInServiceImpl{
		db:         db,
		cashInRepo: cashInRepo,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// Register records a new payment proof in PENDING_VALIDATION
func (s *CashInServiceImpl) Register(ctx context.Context, p *cashin.Payment) error {
	if err := s.cashInRepo.Create(ctx, p); err != nil {
		s.logger.Error("Failed to register cash-in payment",
			"reference_id", p.ReferenceID,
			"error", err,
		)
		return err
	}
	s.logger.Info("Cash-in payment registered",
		"payment_id", p.ID,
		"reference_id", p.ReferenceID,
		"amount", p.Amount.String(),
	)
	return nil
}

// Validate confirms the payment proof. The status transition, its timeline
// event and the outbox row feeding downstream invoice emission are committed
// in a single transaction, so the settlement event is published exactly when
// the validation is durable
func (s *CashInServiceImpl) Validate(ctx context.Context, id string, actor timeline.Actor, correlationID string) (*cashin.Payment, error) {
	p, err := s.cashInRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	from := p.Status
	event, err := p.Apply(cashin.ActionValidate, actor, "payment proof confirmed")
	if err != nil {
		return nil, err
	}

	settlementEvent := &shared.SettlementEvent{
		Type:          shared.SettlementEventCashInValidated,
		PaymentID:     p.ID,
		OrderID:       p.ReferenceID,
		SellerID:      p.OrderHierarchy.Seller,
		SellerName:    p.OrderHierarchy.SellerName,
		CustomerID:    p.Customer.ID,
		CustomerName:  p.Customer.Name,
		CustomerTaxID: p.Customer.TaxID,
		Amount:        p.Amount.Amount,
		Currency:      string(p.Amount.Currency),
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
	}
	message, err := outbox.NewMessage(settlementEvent)
	if err != nil {
		return nil, err
	}

	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.cashInRepo.WithTx(tx).Transition(ctx, id, from, p.Status, event); err != nil {
			return err
		}
		return s.outboxRepo.WithTx(tx).Create(ctx, message)
	})
	if err != nil {
		s.logger.Error("Failed to validate cash-in payment",
			"payment_id", id,
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Cash-in payment validated",
		"payment_id", id,
		"order_id", p.ReferenceID,
		"correlation_id", correlationID,
	)
	return p, nil
}

// Reject declines the payment proof with a mandatory reason
func (s *CashInServiceImpl) Reject(ctx context.Context, id string, actor timeline.Actor, reason string) (*cashin.Payment, error) {
	p, err := s.cashInRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	from := p.Status
	event, err := p.Apply(cashin.ActionReject, actor, reason)
	if err != nil {
		return nil, err
	}

	if err := s.cashInRepo.Transition(ctx, id, from, p.Status, event); err != nil {
		s.logger.Error("Failed to reject cash-in payment",
			"payment_id", id,
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Cash-in payment rejected",
		"payment_id", id,
		"reason", reason,
	)
	return p, nil
}

// GetPayment retrieves a payment by id. Returns ErrPaymentNotFound if missing
func (s *CashInServiceImpl) GetPayment(ctx context.Context, id string) (*cashin.Payment, error) {
	return s.cashInRepo.GetByID(ctx, id)
}

// ListByStatus returns a page of payments in the given status and the total count
func (s *CashInServiceImpl) ListByStatus(ctx context.Context, status cashin.Status, page, perPage int) ([]*cashin.Payment, int64, error) {
	offset := (page - 1) * perPage

	payments, err := s.cashInRepo.ListByStatus(ctx, status, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.cashInRepo.CountByStatus(ctx, status)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}
