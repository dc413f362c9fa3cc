package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apiservice "github.com/mercadoandino/settlement-engine/internal/api/service"
	"github.com/mercadoandino/settlement-engine/internal/domain/invoice"
	"github.com/mercadoandino/settlement-engine/internal/domain/money"
	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
)

// Document series per type. Boletas go to consumers without a tax id,
// facturas to registered businesses.
const (
	boletaSeries  = "B001"
	facturaSeries = "F001"
)

type EmissionServiceImpl struct {
	invoiceRepo invoice.Repository
	invoices    apiservice.InvoiceService
	logger      *slog.Logger
}

func NewEmissionService(
	invoiceRepo invoice.Repository,
	invoices apiservice.InvoiceService,
	logger *slog.Logger,
) EmissionService {
	return &EmissionServiceImpl{
		invoiceRepo: invoiceRepo,
		invoices:    invoices,
		logger:      logger,
	}
}

// ProcessEvent emits the tax document for a validated cash-in payment.
// Redelivered events are detected through the order's existing invoice and
// acknowledged without a second emission.
func (s *EmissionServiceImpl) ProcessEvent(ctx context.Context, event *shared.SettlementEvent) error {
	logger := s.logger
	if event.CorrelationID != "" {
		logger = s.logger.With("correlation_id", event.CorrelationID)
	}

	if event.Type != shared.SettlementEventCashInValidated {
		return shared.ValidationError{Field: "type", Detail: fmt.Sprintf("unknown settlement event type %q", event.Type)}
	}
	if event.OrderID == "" {
		return shared.ValidationError{Field: "order_id", Detail: "is required"}
	}

	logger.Info("Processing settlement event",
		"payment_id", event.PaymentID,
		"order_id", event.OrderID,
		"seller_id", event.SellerID,
	)

	existing, err := s.invoiceRepo.GetByOrderID(ctx, event.OrderID)
	if err != nil && !errors.Is(err, invoice.ErrNotFound{}) {
		return fmt.Errorf("failed to check existing invoice for order %s: %w", event.OrderID, err)
	}
	if existing != nil {
		logger.Info("Invoice already emitted for order, skipping",
			"order_id", event.OrderID,
			"invoice_id", existing.ID,
		)
		return nil
	}

	amount, err := money.New(event.Amount, money.Currency(event.Currency))
	if err != nil {
		return shared.ValidationError{Field: "currency", Detail: err.Error()}
	}

	draft := s.draftFor(event, amount)
	inv, err := s.invoices.EmitInvoice(ctx, draft)
	if err != nil {
		logger.Error("Failed to emit invoice for settlement event",
			"payment_id", event.PaymentID,
			"order_id", event.OrderID,
			"error", err,
		)
		return err
	}

	logger.Info("Emitted invoice for validated payment",
		"payment_id", event.PaymentID,
		"order_id", event.OrderID,
		"invoice_id", inv.ID,
		"type", string(inv.Type),
	)
	return nil
}

// draftFor maps a settlement event to a document draft. Customers with a
// tax id get a factura, everyone else a boleta. The order id doubles as the
// document number so a given order always produces the same correlative.
func (s *EmissionServiceImpl) draftFor(event *shared.SettlementEvent, amount money.Money) invoice.Draft {
	docType := invoice.TypeBoleta
	series := boletaSeries
	if event.CustomerTaxID != "" {
		docType = invoice.TypeFactura
		series = facturaSeries
	}

	return invoice.Draft{
		SellerID:      event.SellerID,
		SellerName:    event.SellerName,
		Type:          docType,
		CustomerName:  event.CustomerName,
		CustomerTaxID: event.CustomerTaxID,
		Series:        series,
		Number:        event.OrderID,
		Amount:        amount,
		OrderID:       event.OrderID,
	}
}
