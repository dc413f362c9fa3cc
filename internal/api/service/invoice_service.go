package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mercadoandino/settlement-engine/internal/domain/invoice"
	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
	"github.com/mercadoandino/settlement-engine/internal/gateway/rapifac"
)

// InvoiceServiceImpl implements the InvoiceService interface
type InvoiceServiceImpl struct {
	invoiceRepo invoice.Repository
	gateway     rapifac.Submitter
	logger      *slog.Logger
	now         func() time.Time
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(logger *slog.Logger, invoiceRepo invoice.Repository, gateway rapifac.Submitter) InvoiceService {
	return &InvoiceServiceImpl{
		invoiceRepo: invoiceRepo,
		gateway:     gateway,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// salesDocument maps an invoice draft to the provider's wire format
func salesDocument(d invoice.Draft) *rapifac.SalesDocument {
	return &rapifac.SalesDocument{
		Series:        d.Series,
		Number:        d.Number,
		DocumentType:  string(d.Type),
		CustomerName:  d.CustomerName,
		CustomerTaxID: d.CustomerTaxID,
		Amount:        d.Amount.Amount.String(),
		Currency:      string(d.Amount.Currency),
		OrderID:       d.OrderID,
		SellerID:      d.SellerID,
	}
}

// EmitInvoice validates the draft, submits it to the gateway and persists the
// document in SENT_WAIT_CDR with its full history. A gateway failure leaves
// nothing behind: the DRAFT state only ever exists in memory
func (s *InvoiceServiceImpl) EmitInvoice(ctx context.Context, draft invoice.Draft) (*invoice.Invoice, error) {
	inv, err := invoice.New(draft, s.now())
	if err != nil {
		return nil, err
	}

	resp, err := s.gateway.Submit(ctx, salesDocument(draft))
	if err != nil {
		s.logger.Error("Gateway submission failed, invoice not persisted",
			"series", draft.Series,
			"number", draft.Number,
			"seller_id", draft.SellerID,
			"error", err,
		)
		return nil, err
	}

	actor := timeline.Actor{ID: draft.SellerID, Name: draft.SellerName, Role: timeline.RoleSeller}
	if _, err := inv.Apply(invoice.ActionSubmit, actor, "submitted to provider"); err != nil {
		return nil, err
	}
	inv.RapifacResponse = resp.Raw

	if err := s.invoiceRepo.Create(ctx, inv); err != nil {
		s.logger.Error("Failed to persist emitted invoice",
			"invoice_id", inv.ID,
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Invoice emitted",
		"invoice_id", inv.ID,
		"series", inv.Series,
		"number", inv.Number,
		"seller_id", inv.SellerID,
		"status", string(inv.Status),
	)
	return inv, nil
}

// RetryInvoice resubmits the original payload of an OBSERVED or REJECTED
// document. Exactly one timeline event is appended on success; a gateway
// failure leaves the record untouched
func (s *InvoiceServiceImpl) RetryInvoice(ctx context.Context, id string, actor timeline.Actor) (*invoice.Invoice, error) {
	inv, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inv.Status.Retryable() {
		return nil, shared.InvalidTransitionError{RecordID: id, From: string(inv.Status), Action: string(invoice.ActionRetry)}
	}

	resp, err := s.gateway.Submit(ctx, salesDocument(inv.Payload()))
	if err != nil {
		s.logger.Error("Gateway resubmission failed, invoice status unchanged",
			"invoice_id", id,
			"status", string(inv.Status),
			"error", err,
		)
		return nil, err
	}

	from := inv.Status
	event, err := inv.Apply(invoice.ActionRetry, actor, "resubmitted to provider")
	if err != nil {
		return nil, err
	}
	inv.RapifacResponse = resp.Raw

	update := invoice.StatusUpdate{From: from, To: inv.Status, Event: event, RapifacResponse: resp.Raw}
	if err := s.invoiceRepo.UpdateStatus(ctx, id, update); err != nil {
		return nil, err
	}

	s.logger.Info("Invoice resubmitted",
		"invoice_id", id,
		"previous_status", string(from),
		"status", string(inv.Status),
	)
	return inv, nil
}

// cdrActions maps a CDR verdict to the corresponding state machine action
var cdrActions = map[invoice.Status]invoice.Action{
	invoice.StatusAccepted: invoice.ActionAcceptCDR,
	invoice.StatusObserved: invoice.ActionObserve,
	invoice.StatusRejected: invoice.ActionReject,
}

// RecordCDR applies the tax authority's verdict on a document awaiting its
// CDR. Only ACCEPTED, OBSERVED and REJECTED are valid outcomes
func (s *InvoiceServiceImpl) RecordCDR(ctx context.Context, id string, outcome invoice.Status, raw json.RawMessage) (*invoice.Invoice, error) {
	action, ok := cdrActions[outcome]
	if !ok {
		return nil, shared.ValidationError{Field: "outcome", Detail: "must be one of ACCEPTED, OBSERVED, REJECTED"}
	}

	inv, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	from := inv.Status
	event, err := inv.Apply(action, timeline.SystemActor, "CDR received from tax authority")
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		inv.RapifacResponse = raw
	}

	update := invoice.StatusUpdate{From: from, To: inv.Status, Event: event, RapifacResponse: inv.RapifacResponse}
	if err := s.invoiceRepo.UpdateStatus(ctx, id, update); err != nil {
		return nil, err
	}

	s.logger.Info("CDR recorded",
		"invoice_id", id,
		"outcome", string(outcome),
	)
	return inv, nil
}

// GetInvoice retrieves a document by voucher id. Returns ErrNotFound if missing
func (s *InvoiceServiceImpl) GetInvoice(ctx context.Context, id string) (*invoice.Invoice, error) {
	return s.invoiceRepo.GetByID(ctx, id)
}

// ListInvoices returns a page of documents and the total count for the filter
func (s *InvoiceServiceImpl) ListInvoices(ctx context.Context, filter invoice.ListFilter) ([]*invoice.Invoice, int64, error) {
	invoices, err := s.invoiceRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.invoiceRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}
