package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/mercadoandino/settlement-engine/internal/domain/invoice"
	"github.com/mercadoandino/settlement-engine/internal/domain/money"
	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
	"github.com/mercadoandino/settlement-engine/internal/gateway/rapifac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testDraft(t *testing.T) invoice.Draft {
	t.Helper()
	amount, err := money.NewFromString("150.00", money.CurrencyPEN)
	require.NoError(t, err)
	return invoice.Draft{
		SellerID:     "seller-1",
		SellerName:   "Comercial Andina",
		Type:         invoice.TypeBoleta,
		CustomerName: "Juan Perez",
		Series:       "B001",
		Number:       "1042",
		Amount:       amount,
		OrderID:      "order-77",
	}
}

func testAdmin() timeline.Actor {
	return timeline.Actor{ID: "admin-1", Name: "Back Office", Role: timeline.RoleAdmin}
}

func TestInvoiceServiceImpl_EmitInvoice(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockInvoiceRepository)
		mockGateway := new(MockSubmitter)
		service := NewInvoiceService(logger, mockRepo, mockGateway)

		raw := json.RawMessage(`{"success":true,"description":"documento emitido"}`)
		mockGateway.On("Submit", ctx, mock.AnythingOfType("*rapifac.SalesDocument")).
			Return(&rapifac.ProviderResponse{Success: true, Description: "documento emitido", Raw: raw}, nil).Once()
		mockRepo.On("Create", ctx, mock.AnythingOfType("*invoice.Invoice")).Return(nil).Once()

		inv, err := service.EmitInvoice(ctx, testDraft(t))

		require.NoError(t, err)
		assert.Equal(t, invoice.StatusSentWaitCDR, inv.Status)
		assert.Equal(t, raw, inv.RapifacResponse)
		require.Len(t, inv.History, 2)
		assert.Equal(t, string(invoice.StatusDraft), inv.History[0].NewStatus)
		assert.Equal(t, string(invoice.StatusSentWaitCDR), inv.History[1].NewStatus)
		assert.NoError(t, inv.History.Validate())
		mockGateway.AssertExpectations(t)
		mockRepo.AssertExpectations(t)
	})

	t.Run("ValidationFailsBeforeGatewayContact", func(t *testing.T) {
		mockRepo := new(MockInvoiceRepository)
		mockGateway := new(MockSubmitter)
		service := NewInvoiceService(logger, mockRepo, mockGateway)

		draft := testDraft(t)
		draft.CustomerName = ""

		inv, err := service.EmitInvoice(ctx, draft)

		assert.Nil(t, inv)
		var validationErr shared.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "customer_name", validationErr.Field)
		mockGateway.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
		mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("GatewayFailurePersistsNothing", func(t *testing.T) {
		mockRepo := new(MockInvoiceRepository)
		mockGateway := new(MockSubmitter)
		service := NewInvoiceService(logger, mockRepo, mockGateway)

		gatewayErr := shared.GatewayError{StatusCode: 502, Transient: true}
		mockGateway.On("Submit", ctx, mock.AnythingOfType("*rapifac.SalesDocument")).
			Return(nil, gatewayErr).Once()

		inv, err := service.EmitInvoice(ctx, testDraft(t))

		assert.Nil(t, inv)
		assert.ErrorIs(t, err, shared.GatewayError{})
		mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		mockGateway.AssertExpectations(t)
	})

	t.Run("PersistError", func(t *testing.T) {
		mockRepo := new(MockInvoiceRepository)
		mockGateway := new(MockSubmitter)
		service := NewInvoiceService(logger, mockRepo, mockGateway)

		createErr := errors.New("mongo unavailable")
		mockGateway.On("Submit", ctx, mock.AnythingOfType("*rapifac.SalesDocument")).
			Return(&rapifac.ProviderResponse{Success: true}, nil).Once()
		mockRepo.On("Create", ctx, mock.AnythingOfType("*invoice.Invoice")).Return(createErr).Once()

		inv, err := service.EmitInvoice(ctx, testDraft(t))

		assert.Nil(t, inv)
		assert.Equal(t, createErr, err)
		mockRepo.AssertExpectations(t)
	})
}

func TestInvoiceServiceImpl_RetryInvoice(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	storedInvoice := func(t *testing.T, status invoice.Status) *invoice.Invoice {
		t.Helper()
		inv, err := invoice.New(testDraft(t), time.Now().UTC())
		require.NoError(t, err)
		inv.Status = status
		return inv
	}

	t.Run("SuccessFromObserved", func(t *testing.T) {
		mockRepo := new(MockInvoiceRepository)
		mockGateway := new(MockSubmitter)
		service := NewInvoiceService(logger, mockRepo, mockGateway)

		inv := storedInvoice(t, invoice.StatusObserved)
		historyLen := len(inv.History)
		raw := json.RawMessage(`{"success":true}`)

		mockRepo.On("GetByID", ctx, inv.ID).Return(inv, nil).Once()
		mockGateway.On("Submit", ctx, mock.AnythingOfType("*rapifac.SalesDocument")).
			Return(&rapifac.ProviderResponse{Success: true, Raw: raw}, nil).Once()
		mockRepo.On("UpdateStatus", ctx, inv.ID, mock.MatchedBy(func(u invoice.StatusUpdate) bool {
			return u.From == invoice.StatusObserved && u.To == invoice.StatusSentWaitCDR
		})).Return(nil).Once()

		result, err := service.RetryInvoice(ctx, inv.ID, testAdmin())

		require.NoError(t, err)
		assert.Equal(t, invoice.StatusSentWaitCDR, result.Status)
		assert.Len(t, result.History, historyLen+1)
		mockRepo.AssertExpectations(t)
		mockGateway.AssertExpectations(t)
	})

	t.Run("IllegalFromAccepted", func(t *testing.T) {
		mockRepo := new(MockInvoiceRepository)
		mockGateway := new(MockSubmitter)
		service := NewInvoiceService(logger, mockRepo, mockGateway)

		inv := storedInvoice(t, invoice.StatusAccepted)
		mockRepo.On("GetByID", ctx, inv.ID).Return(inv, nil).Once()

		result, err := service.RetryInvoice(ctx, inv.ID, testAdmin())

		assert.Nil(t, result)
		assert.ErrorIs(t, err, shared.InvalidTransitionError{})
		mockGateway.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
		mockRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("GatewayFailureLeavesStatusUnchanged", func(t *testing.T) {
		mockRepo := new(MockInvoiceRepository)
		mockGateway := new(MockSubmitter)
		service := NewInvoiceService(logger, mockRepo, mockGateway)

		inv := storedInvoice(t, invoice.StatusRejected)
		mockRepo.On("GetByID", ctx, inv.ID).Return(inv, nil).Once()
		mockGateway.On("Submit", ctx, mock.AnythingOfType("*rapifac.SalesDocument")).
			Return(nil, shared.GatewayError{StatusCode: 503, Transient: true}).Once()

		result, err := service.RetryInvoice(ctx, inv.ID, testAdmin())

		assert.Nil(t, result)
		assert.ErrorIs(t, err, shared.GatewayError{})
		mockRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestInvoiceServiceImpl_RecordCDR(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	t.Run("Accepted", func(t *testing.T) {
		mockRepo := new(MockInvoiceRepository)
		mockGateway := new(MockSubmitter)
		service := NewInvoiceService(logger, mockRepo, mockGateway)

		inv, err := invoice.New(testDraft(t), time.Now().UTC())
		require.NoError(t, err)
		inv.Status = invoice.StatusSentWaitCDR
		raw := json.RawMessage(`{"cdr":"0"}`)

		mockRepo.On("GetByID", ctx, inv.ID).Return(inv, nil).Once()
		mockRepo.On("UpdateStatus", ctx, inv.ID, mock.MatchedBy(func(u invoice.StatusUpdate) bool {
			return u.From == invoice.StatusSentWaitCDR && u.To == invoice.StatusAccepted
		})).Return(nil).Once()

		result, err := service.RecordCDR(ctx, inv.ID, invoice.StatusAccepted, raw)

		require.NoError(t, err)
		assert.Equal(t, invoice.StatusAccepted, result.Status)
		assert.Equal(t, raw, result.RapifacResponse)
		mockRepo.AssertExpectations(t)
	})

	t.Run("InvalidOutcome", func(t *testing.T) {
		mockRepo := new(MockInvoiceRepository)
		mockGateway := new(MockSubmitter)
		service := NewInvoiceService(logger, mockRepo, mockGateway)

		result, err := service.RecordCDR(ctx, "V-1", invoice.StatusDraft, nil)

		assert.Nil(t, result)
		assert.ErrorIs(t, err, shared.ValidationError{})
		mockRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})

	t.Run("IllegalFromTerminalStatus", func(t *testing.T) {
		mockRepo := new(MockInvoiceRepository)
		mockGateway := new(MockSubmitter)
		service := NewInvoiceService(logger, mockRepo, mockGateway)

		inv, err := invoice.New(testDraft(t), time.Now().UTC())
		require.NoError(t, err)
		inv.Status = invoice.StatusAccepted

		mockRepo.On("GetByID", ctx, inv.ID).Return(inv, nil).Once()

		result, err := service.RecordCDR(ctx, inv.ID, invoice.StatusObserved, nil)

		assert.Nil(t, result)
		assert.ErrorIs(t, err, shared.InvalidTransitionError{})
		mockRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestInvoiceServiceImpl_ListInvoices(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockInvoiceRepository)
		mockGateway := new(MockSubmitter)
		service := NewInvoiceService(logger, mockRepo, mockGateway)

		filter := invoice.ListFilter{SellerID: "seller-1", Search: "perez", Limit: 20}
		expected := []*invoice.Invoice{{ID: "V-1"}, {ID: "V-2"}}

		mockRepo.On("List", ctx, filter).Return(expected, nil).Once()
		mockRepo.On("Count", ctx, filter).Return(int64(2), nil).Once()

		invoices, total, err := service.ListInvoices(ctx, filter)

		require.NoError(t, err)
		assert.Equal(t, expected, invoices)
		assert.Equal(t, int64(2), total)
		mockRepo.AssertExpectations(t)
	})

	t.Run("ListError", func(t *testing.T) {
		mockRepo := new(MockInvoiceRepository)
		mockGateway := new(MockSubmitter)
		service := NewInvoiceService(logger, mockRepo, mockGateway)

		listErr := errors.New("mongo unavailable")
		filter := invoice.ListFilter{SellerID: invoice.ScopeAll}
		mockRepo.On("List", ctx, filter).Return(nil, listErr).Once()

		invoices, total, err := service.ListInvoices(ctx, filter)

		assert.Nil(t, invoices)
		assert.Zero(t, total)
		assert.Equal(t, listErr, err)
		mockRepo.AssertNotCalled(t, "Count", mock.Anything, mock.Anything)
	})
}
