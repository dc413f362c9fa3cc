package service

import (
	"context"
	"log/slog"

	"github.com/mercadoandino/settlement-engine/internal/domain/cashin"
	"github.com/mercadoandino/settlement-engine/internal/domain/cashout"
	"github.com/mercadoandino/settlement-engine/internal/domain/invoice"
	"github.com/shopspring/decimal"
)

// SettlementKPIs aggregates the operational counters across both settlement
// flows plus the commission-derived profit figure
type SettlementKPIs struct {
	CashInPending  int64           `json:"cash_in_pending"`
	CashOutOpen    int64           `json:"cash_out_open"`
	Disputed       int64           `json:"disputed"`
	NetProfit      decimal.Decimal `json:"net_profit"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

// KPIServiceImpl implements the KPIService interface. Every figure is
// recomputed from the underlying records on each call; nothing is stored
type KPIServiceImpl struct {
	invoiceRepo    invoice.Repository
	cashInRepo     cashin.Repository
	cashOutRepo    cashout.Repository
	commissionRate decimal.Decimal
	logger         *slog.Logger
}

// NewKPIService creates a new KPI service
func NewKPIService(logger *slog.Logger, invoiceRepo invoice.Repository, cashInRepo cashin.Repository, cashOutRepo cashout.Repository, commissionRate float64) KPIService {
	return &KPIServiceImpl{
		invoiceRepo:    invoiceRepo,
		cashInRepo:     cashInRepo,
		cashOutRepo:    cashOutRepo,
		commissionRate: decimal.NewFromFloat(commissionRate),
		logger:         logger,
	}
}

// InvoiceKPIs returns the accepted total, count by status and success rate
// over the invoice ledger
func (s *KPIServiceImpl) InvoiceKPIs(ctx context.Context) (*invoice.KPIs, error) {
	kpis, err := s.invoiceRepo.KPIs(ctx)
	if err != nil {
		s.logger.Error("Failed to compute invoice KPIs", "error", err)
		return nil, err
	}
	return kpis, nil
}

// SettlementKPIs returns pending cash-in, open cash-out and disputed counts,
// plus net profit derived as accepted invoice revenue times the commission rate
func (s *KPIServiceImpl) SettlementKPIs(ctx context.Context) (*SettlementKPIs, error) {
	pending, err := s.cashInRepo.CountByStatus(ctx, cashin.StatusPendingValidation)
	if err != nil {
		return nil, err
	}

	scheduled, err := s.cashOutRepo.CountByStatus(ctx, cashout.StatusScheduled)
	if err != nil {
		return nil, err
	}
	processing, err := s.cashOutRepo.CountByStatus(ctx, cashout.StatusProcessing)
	if err != nil {
		return nil, err
	}
	disputed, err := s.cashOutRepo.CountByStatus(ctx, cashout.StatusDisputed)
	if err != nil {
		return nil, err
	}

	invoiceKPIs, err := s.invoiceRepo.KPIs(ctx)
	if err != nil {
		return nil, err
	}

	return &SettlementKPIs{
		CashInPending:  pending,
		CashOutOpen:    scheduled + processing,
		Disputed:       disputed,
		NetProfit:      invoiceKPIs.AcceptedTotal.Mul(s.commissionRate).Round(2),
		CommissionRate: s.commissionRate,
	}, nil
}
