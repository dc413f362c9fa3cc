package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/mercadoandino/settlement-engine/internal/domain/cashin"
	"github.com/mercadoandino/settlement-engine/internal/domain/cashout"
	"github.com/mercadoandino/settlement-engine/internal/domain/invoice"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKPIServiceImpl_SettlementKPIs(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mockInvoiceRepo := new(MockInvoiceRepository)
		mockCashInRepo := new(MockCashInRepository)
		mockCashOutRepo := new(MockCashOutRepository)
		service := NewKPIService(logger, mockInvoiceRepo, mockCashInRepo, mockCashOutRepo, 0.05)

		mockCashInRepo.On("CountByStatus", ctx, cashin.StatusPendingValidation).Return(int64(7), nil).Once()
		mockCashOutRepo.On("CountByStatus", ctx, cashout.StatusScheduled).Return(int64(3), nil).Once()
		mockCashOutRepo.On("CountByStatus", ctx, cashout.StatusProcessing).Return(int64(2), nil).Once()
		mockCashOutRepo.On("CountByStatus", ctx, cashout.StatusDisputed).Return(int64(1), nil).Once()
		mockInvoiceRepo.On("KPIs", ctx).Return(&invoice.KPIs{
			AcceptedTotal: decimal.RequireFromString("10000.00"),
			CountByStatus: map[invoice.Status]int64{invoice.StatusAccepted: 10},
			SuccessRate:   1,
		}, nil).Once()

		kpis, err := service.SettlementKPIs(ctx)

		require.NoError(t, err)
		assert.Equal(t, int64(7), kpis.CashInPending)
		assert.Equal(t, int64(5), kpis.CashOutOpen)
		assert.Equal(t, int64(1), kpis.Disputed)
		assert.True(t, kpis.NetProfit.Equal(decimal.RequireFromString("500.00")),
			"expected 500.00, got %s", kpis.NetProfit)
		mockInvoiceRepo.AssertExpectations(t)
		mockCashInRepo.AssertExpectations(t)
		mockCashOutRepo.AssertExpectations(t)
	})

	t.Run("CashInCountError", func(t *testing.T) {
		mockInvoiceRepo := new(MockInvoiceRepository)
		mockCashInRepo := new(MockCashInRepository)
		mockCashOutRepo := new(MockCashOutRepository)
		service := NewKPIService(logger, mockInvoiceRepo, mockCashInRepo, mockCashOutRepo, 0.05)

		countErr := errors.New("pq: connection refused")
		mockCashInRepo.On("CountByStatus", ctx, cashin.StatusPendingValidation).Return(int64(0), countErr).Once()

		kpis, err := service.SettlementKPIs(ctx)

		assert.Nil(t, kpis)
		assert.Equal(t, countErr, err)
	})
}

func TestKPIServiceImpl_InvoiceKPIs(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	mockInvoiceRepo := new(MockInvoiceRepository)
	mockCashInRepo := new(MockCashInRepository)
	mockCashOutRepo := new(MockCashOutRepository)
	service := NewKPIService(logger, mockInvoiceRepo, mockCashInRepo, mockCashOutRepo, 0.05)

	expected := &invoice.KPIs{
		AcceptedTotal: decimal.RequireFromString("1234.56"),
		CountByStatus: map[invoice.Status]int64{
			invoice.StatusAccepted: 4,
			invoice.StatusObserved: 1,
		},
		SuccessRate: 0.8,
	}
	mockInvoiceRepo.On("KPIs", ctx).Return(expected, nil).Once()

	kpis, err := service.InvoiceKPIs(ctx)

	require.NoError(t, err)
	assert.Equal(t, expected, kpis)
	mockInvoiceRepo.AssertExpectations(t)
}
