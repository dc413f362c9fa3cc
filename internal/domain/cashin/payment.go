package cashin

import (
	"time"

	"github.com/google/uuid"
	"github.com/mercadoandino/settlement-engine/internal/domain/money"
	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
)

// Status defines cash-in payment lifecycle states
type Status string

const (
	StatusPendingValidation Status = "PENDING_VALIDATION"
	StatusValidated         Status = "VALIDATED"
	StatusRejected          Status = "REJECTED"
	StatusExpired           Status = "EXPIRED"
	StatusCanceled          Status = "CANCELED"
)

// Action defines the operations that drive the cash-in state machine
type Action string

const (
	ActionValidate Action = "VALIDATE"
	ActionReject   Action = "REJECT"
	ActionExpire   Action = "EXPIRE"
	ActionCancel   Action = "CANCEL"
)

// transitions: a cash-in record makes exactly one transition out of
// PENDING_VALIDATION and every outcome is terminal. Re-validating a terminal
// record is an InvalidTransitionError, never a silent success; that is what
// prevents double-crediting a seller.
var transitions = map[Status]map[Action]Status{
	StatusPendingValidation: {
		ActionValidate: StatusValidated,
		ActionReject:   StatusRejected,
		ActionExpire:   StatusExpired,
		ActionCancel:   StatusCanceled,
	},
}

// NextStatus resolves an action against the transition table
func NextStatus(id string, current Status, action Action) (Status, error) {
	if next, ok := transitions[current][action]; ok {
		return next, nil
	}
	return "", shared.InvalidTransitionError{RecordID: id, From: string(current), Action: string(action)}
}

// Terminal reports whether the status permits no further transitions
func (s Status) Terminal() bool {
	return s != StatusPendingValidation
}

// Customer identifies the buyer whose payment is being validated
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	TaxID string `json:"tax_id,omitempty"`
}

// OrderHierarchy places the payment in the marketplace structure. SellerName
// travels alongside the seller id so downstream invoice emission can stamp
// the document without a seller directory lookup.
type OrderHierarchy struct {
	Company    string `json:"company"`
	Seller     string `json:"seller"`
	SellerName string `json:"seller_name,omitempty"`
	Customer   string `json:"customer"`
}

// Payment represents money arriving from a buyer, pending validation of the
// uploaded proof before it is recognized as settled.
type Payment struct {
	ID                 string           `json:"id"`
	ReferenceID        string           `json:"reference_id"` // order id
	Amount             money.Money      `json:"amount"`
	Customer           Customer         `json:"customer"`
	VoucherURL         string           `json:"voucher_url"`
	InvoiceDocumentURL string           `json:"invoice_document_url,omitempty"`
	OrderHierarchy     OrderHierarchy   `json:"order_hierarchy"`
	Status             Status           `json:"status"`
	Timeline           timeline.History `json:"timeline"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// New registers a payment proof, entering PENDING_VALIDATION
func New(referenceID string, amount money.Money, customer Customer, voucherURL string, hierarchy OrderHierarchy) (*Payment, error) {
	if referenceID == "" {
		return nil, shared.ValidationError{Field: "reference_id", Detail: "is required"}
	}
	if !amount.IsPositive() {
		return nil, shared.ValidationError{Field: "amount", Detail: "must be positive"}
	}
	if voucherURL == "" {
		return nil, shared.ValidationError{Field: "voucher_url", Detail: "is required"}
	}
	now := time.Now().UTC()
	return &Payment{
		ID:             uuid.New().String(),
		ReferenceID:    referenceID,
		Amount:         amount,
		Customer:       customer,
		VoucherURL:     voucherURL,
		OrderHierarchy: hierarchy,
		Status:         StatusPendingValidation,
		Timeline: timeline.History{
			timeline.NewEvent("", string(StatusPendingValidation), timeline.SystemActor, "payment proof uploaded"),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Apply performs a transition in memory, appending exactly one timeline
// event. Reject, expire and cancel require a reason.
func (p *Payment) Apply(action Action, actor timeline.Actor, reason string) (timeline.Event, error) {
	next, err := NextStatus(p.ID, p.Status, action)
	if err != nil {
		return timeline.Event{}, err
	}
	if action != ActionValidate && reason == "" {
		return timeline.Event{}, shared.ValidationError{Field: "reason", Detail: "is required for " + string(action)}
	}
	event := timeline.NewEvent(string(p.Status), string(next), actor, reason)
	p.Status = next
	p.Timeline = p.Timeline.Append(event)
	p.UpdatedAt = event.Timestamp
	return event, nil
}
