package handler

import (
	"encoding/json"
	"time"

	"github.com/mercadoandino/settlement-engine/internal/domain/cashin"
	"github.com/mercadoandino/settlement-engine/internal/domain/cashout"
	"github.com/mercadoandino/settlement-engine/internal/domain/invoice"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
)

// EmitInvoiceRequest represents a request to emit a new tax document
type EmitInvoiceRequest struct {
	SellerID      string `json:"seller_id" binding:"required"`
	SellerName    string `json:"seller_name"`
	Type          string `json:"type" binding:"required,oneof=FACTURA BOLETA NOTA_CREDITO"`
	CustomerName  string `json:"customer_name" binding:"required"`
	CustomerTaxID string `json:"customer_tax_id"`
	Series        string `json:"series" binding:"required"`
	Number        string `json:"number" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	Currency      string `json:"currency" binding:"required,oneof=PEN USD"`
	OrderID       string `json:"order_id"`
}

// RecordCDRRequest represents the tax authority's verdict on a sent document.
// Raw carries the verbatim CDR body, stored with the invoice for audit
type RecordCDRRequest struct {
	Outcome string          `json:"outcome" binding:"required,oneof=ACCEPTED OBSERVED REJECTED"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

// ActorRequest identifies who performs a settlement action
type ActorRequest struct {
	ActorID   string `json:"actor_id" binding:"required"`
	ActorName string `json:"actor_name"`
}

// RegisterCashInRequest represents an uploaded payment proof
type RegisterCashInRequest struct {
	ReferenceID   string `json:"reference_id" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	Currency      string `json:"currency" binding:"required,oneof=PEN USD"`
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name"`
	CustomerTaxID string `json:"customer_tax_id"`
	VoucherURL    string `json:"voucher_url" binding:"required,url"`
	Company       string `json:"company"`
	SellerID      string `json:"seller_id"`
	SellerName    string `json:"seller_name"`
}

// RejectCashInRequest represents a rejection with its mandatory reason
type RejectCashInRequest struct {
	ActorRequest
	Reason string `json:"reason" binding:"required"`
}

// ScheduleCashOutRequest represents a payout to schedule for a liquidation window
type ScheduleCashOutRequest struct {
	ReferenceID   string    `json:"reference_id" binding:"required"`
	Amount        string    `json:"amount" binding:"required"`
	Commission    string    `json:"commission" binding:"required"`
	Currency      string    `json:"currency" binding:"required,oneof=PEN USD"`
	SellerID      string    `json:"seller_id" binding:"required"`
	SellerName    string    `json:"seller_name"`
	BankName      string    `json:"bank_name"`
	AccountNumber string    `json:"account_number" binding:"required"`
	CCI           string    `json:"cci"`
	PeriodStart   time.Time `json:"period_start" binding:"required"`
	PeriodEnd     time.Time `json:"period_end" binding:"required"`
}

// AdvanceCashOutRequest drives a payout through its lifecycle
type AdvanceCashOutRequest struct {
	ActorRequest
	Action string `json:"action" binding:"required,oneof=PROCESS PAY FAIL RESCHEDULE"`
	Reason string `json:"reason"`
}

// DisputeCashOutRequest opens a dispute with its mandatory reason
type DisputeCashOutRequest struct {
	ActorRequest
	Reason string `json:"reason" binding:"required"`
}

// ResolveCashOutRequest closes a dispute into a final outcome
type ResolveCashOutRequest struct {
	ActorRequest
	Outcome string `json:"outcome" binding:"required,oneof=PAID FAILED"`
	Reason  string `json:"reason" binding:"required"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=10" binding:"min=1,max=100"`
}

// InvoiceListParams represents query parameters for the invoice list endpoint
type InvoiceListParams struct {
	PaginationParams
	SellerID string `form:"seller_id"`
	Search   string `form:"search"`
}

// TimelineEventResponse represents one history entry in API responses
type TimelineEventResponse struct {
	PreviousStatus string `json:"previous_status,omitempty"`
	NewStatus      string `json:"new_status"`
	ActorID        string `json:"actor_id,omitempty"`
	ActorName      string `json:"actor_name,omitempty"`
	ActorRole      string `json:"actor_role"`
	Reason         string `json:"reason,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID            string                  `json:"id"`
	Series        string                  `json:"series"`
	Number        string                  `json:"number"`
	Type          string                  `json:"type"`
	CustomerName  string                  `json:"customer_name"`
	CustomerTaxID string                  `json:"customer_tax_id,omitempty"`
	OrderID       string                  `json:"order_id,omitempty"`
	Amount        string                  `json:"amount"`
	Currency      string                  `json:"currency"`
	EmissionDate  string                  `json:"emission_date"`
	Status        string                  `json:"status"`
	SellerID      string                  `json:"seller_id"`
	SellerName    string                  `json:"seller_name,omitempty"`
	History       []TimelineEventResponse `json:"history"`
}

// CashInResponse represents a cash-in payment in API responses
type CashInResponse struct {
	ID           string                  `json:"id"`
	ReferenceID  string                  `json:"reference_id"`
	Amount       string                  `json:"amount"`
	Currency     string                  `json:"currency"`
	CustomerName string                  `json:"customer_name,omitempty"`
	VoucherURL   string                  `json:"voucher_url"`
	Status       string                  `json:"status"`
	Timeline     []TimelineEventResponse `json:"timeline"`
	CreatedAt    string                  `json:"created_at"`
}

// CashOutResponse represents a cash-out payment in API responses
type CashOutResponse struct {
	ID              string                  `json:"id"`
	ReferenceID     string                  `json:"reference_id"`
	Amount          string                  `json:"amount"`
	Commission      string                  `json:"commission"`
	NetAmount       string                  `json:"net_amount"`
	Currency        string                  `json:"currency"`
	SellerID        string                  `json:"seller_id"`
	SellerName      string                  `json:"seller_name,omitempty"`
	PeriodStart     string                  `json:"period_start"`
	PeriodEnd       string                  `json:"period_end"`
	RescheduledFrom string                  `json:"rescheduled_from,omitempty"`
	Status          string                  `json:"status"`
	Timeline        []TimelineEventResponse `json:"timeline"`
	CreatedAt       string                  `json:"created_at"`
}

func mapTimelineToResponse(h timeline.History) []TimelineEventResponse {
	events := make([]TimelineEventResponse, 0, len(h))
	for _, e := range h {
		events = append(events, TimelineEventResponse{
			PreviousStatus: e.PreviousStatus,
			NewStatus:      e.NewStatus,
			ActorID:        e.Actor.ID,
			ActorName:      e.Actor.Name,
			ActorRole:      string(e.Actor.Role),
			Reason:         e.Reason,
			Timestamp:      e.Timestamp.Format(time.RFC3339),
		})
	}
	return events
}

func mapInvoiceToResponse(inv *invoice.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:            inv.ID,
		Series:        inv.Series,
		Number:        inv.Number,
		Type:          string(inv.Type),
		CustomerName:  inv.CustomerName,
		CustomerTaxID: inv.CustomerTaxID,
		OrderID:       inv.OrderID,
		Amount:        inv.Amount.Amount.String(),
		Currency:      string(inv.Amount.Currency),
		EmissionDate:  inv.EmissionDate.Format(time.RFC3339),
		Status:        string(inv.Status),
		SellerID:      inv.SellerID,
		SellerName:    inv.SellerName,
		History:       mapTimelineToResponse(inv.History),
	}
}

func mapCashInToResponse(p *cashin.Payment) CashInResponse {
	return CashInResponse{
		ID:           p.ID,
		ReferenceID:  p.ReferenceID,
		Amount:       p.Amount.Amount.String(),
		Currency:     string(p.Amount.Currency),
		CustomerName: p.Customer.Name,
		VoucherURL:   p.VoucherURL,
		Status:       string(p.Status),
		Timeline:     mapTimelineToResponse(p.Timeline),
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	}
}

func mapCashOutToResponse(p *cashout.Payment) CashOutResponse {
	return CashOutResponse{
		ID:              p.ID,
		ReferenceID:     p.ReferenceID,
		Amount:          p.Amount.Amount.String(),
		Commission:      p.Commission.Amount.String(),
		NetAmount:       p.NetAmount.Amount.String(),
		Currency:        string(p.Amount.Currency),
		SellerID:        p.Seller.ID,
		SellerName:      p.Seller.Name,
		PeriodStart:     p.LiquidationPeriod.Start.Format(time.RFC3339),
		PeriodEnd:       p.LiquidationPeriod.End.Format(time.RFC3339),
		RescheduledFrom: p.RescheduledFrom,
		Status:          string(p.Status),
		Timeline:        mapTimelineToResponse(p.Timeline),
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
	}
}
