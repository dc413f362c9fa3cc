package service

import (
	"context"
	"log/slog"

	"github.com/mercadoandino/settlement-engine/internal/config"
	"github.com/mercadoandino/settlement-engine/internal/domain/cashout"
	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
)

// CashOutServiceImpl implements the CashOutService interface
type CashOutServiceImpl struct {
	cashOutRepo    cashout.Repository
	rescheduleMode config.RescheduleMode
	logger         *slog.Logger
}

// NewCashOutService creates a new cash-out service
func NewCashOutService(logger *slog.Logger, cashOutRepo cashout.Repository, rescheduleMode config.RescheduleMode) CashOutService {
	return &CashOutServiceImpl{
		cashOutRepo:    cashOutRepo,
		rescheduleMode: rescheduleMode,
		logger:         logger,
	}
}

// Schedule creates a payout for a liquidation window
func (s *CashOutServiceImpl) Schedule(ctx context.Context, p *cashout.Payment) error {
	if err := p.CheckConservation(); err != nil {
		return err
	}
	if err := s.cashOutRepo.Create(ctx, p); err != nil {
		s.logger.Error("Failed to schedule cash-out payment",
			"reference_id", p.ReferenceID,
			"seller_id", p.Seller.ID,
			"error", err,
		)
		return err
	}
	s.logger.Info("Cash-out payment scheduled",
		"payment_id", p.ID,
		"seller_id", p.Seller.ID,
		"net_amount", p.NetAmount.String(),
	)
	return nil
}

// Advance drives a payout through PROCESS, PAY, FAIL or RESCHEDULE. The money
// conservation invariant is re-checked before any transition into PAID.
// Reschedule behavior follows the configured mode
func (s *CashOutServiceImpl) Advance(ctx context.Context, id string, action cashout.Action, actor timeline.Actor, reason string) (*cashout.Payment, error) {
	switch action {
	case cashout.ActionProcess, cashout.ActionPay, cashout.ActionFail, cashout.ActionReschedule:
	default:
		return nil, shared.ValidationError{Field: "action", Detail: "must be one of PROCESS, PAY, FAIL, RESCHEDULE"}
	}

	p, err := s.cashOutRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if action == cashout.ActionReschedule && s.rescheduleMode == config.RescheduleNewRecord {
		return s.rescheduleAsNewRecord(ctx, p, actor)
	}

	from := p.Status
	event, err := p.Apply(action, actor, reason)
	if err != nil {
		return nil, err
	}

	if err := s.cashOutRepo.Transition(ctx, id, from, p.Status, event); err != nil {
		s.logger.Error("Failed to advance cash-out payment",
			"payment_id", id,
			"action", string(action),
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Cash-out payment advanced",
		"payment_id", id,
		"action", string(action),
		"status", string(p.Status),
	)
	return p, nil
}

// rescheduleAsNewRecord leaves the failed payout in place for audit and
// creates a fresh SCHEDULED record referencing it
func (s *CashOutServiceImpl) rescheduleAsNewRecord(ctx context.Context, p *cashout.Payment, actor timeline.Actor) (*cashout.Payment, error) {
	replacement, err := p.Reschedule(p.LiquidationPeriod, actor)
	if err != nil {
		return nil, err
	}
	if err := s.cashOutRepo.Create(ctx, replacement); err != nil {
		s.logger.Error("Failed to create rescheduled cash-out payment",
			"failed_payment_id", p.ID,
			"error", err,
		)
		return nil, err
	}
	s.logger.Info("Cash-out payment rescheduled",
		"failed_payment_id", p.ID,
		"payment_id", replacement.ID,
	)
	return replacement, nil
}

// Dispute opens a dispute on a PAID payout
func (s *CashOutServiceImpl) Dispute(ctx context.Context, id string, actor timeline.Actor, reason string) (*cashout.Payment, error) {
	return s.transition(ctx, id, cashout.ActionDispute, actor, reason)
}

// ResolveDispute closes a dispute back into PAID or FAILED
func (s *CashOutServiceImpl) ResolveDispute(ctx context.Context, id string, outcome cashout.Status, actor timeline.Actor, reason string) (*cashout.Payment, error) {
	var action cashout.Action
	switch outcome {
	case cashout.StatusPaid:
		action = cashout.ActionResolvePaid
	case cashout.StatusFailed:
		action = cashout.ActionResolveFailed
	default:
		return nil, shared.ValidationError{Field: "outcome", Detail: "must be PAID or FAILED"}
	}
	return s.transition(ctx, id, action, actor, reason)
}

func (s *CashOutServiceImpl) transition(ctx context.Context, id string, action cashout.Action, actor timeline.Actor, reason string) (*cashout.Payment, error) {
	p, err := s.cashOutRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	from := p.Status
	event, err := p.Apply(action, actor, reason)
	if err != nil {
		return nil, err
	}

	if err := s.cashOutRepo.Transition(ctx, id, from, p.Status, event); err != nil {
		s.logger.Error("Failed to transition cash-out payment",
			"payment_id", id,
			"action", string(action),
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Cash-out payment transitioned",
		"payment_id", id,
		"action", string(action),
		"status", string(p.Status),
	)
	return p, nil
}

// GetPayment retrieves a payout by id. Returns ErrPayoutNotFound if missing
func (s *CashOutServiceImpl) GetPayment(ctx context.Context, id string) (*cashout.Payment, error) {
	return s.cashOutRepo.GetByID(ctx, id)
}

// ListByStatus returns a page of payouts in the given status and the total count
func (s *CashOutServiceImpl) ListByStatus(ctx context.Context, status cashout.Status, page, perPage int) ([]*cashout.Payment, int64, error) {
	offset := (page - 1) * perPage

	payments, err := s.cashOutRepo.ListByStatus(ctx, status, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.cashOutRepo.CountByStatus(ctx, status)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}
