package invoice

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mercadoandino/settlement-engine/internal/domain/money"
	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
)

// Type identifies the kind of tax document
type Type string

const (
	TypeFactura     Type = "FACTURA"
	TypeBoleta      Type = "BOLETA"
	TypeNotaCredito Type = "NOTA_CREDITO"
)

// Valid reports whether the document type is one the authority accepts
func (t Type) Valid() bool {
	switch t {
	case TypeFactura, TypeBoleta, TypeNotaCredito:
		return true
	}
	return false
}

// Status defines invoice lifecycle states
type Status string

const (
	StatusDraft       Status = "DRAFT"
	StatusSentWaitCDR Status = "SENT_WAIT_CDR"
	StatusAccepted    Status = "ACCEPTED"
	StatusObserved    Status = "OBSERVED"
	StatusRejected    Status = "REJECTED"
)

// Action defines the operations that drive the invoice state machine
type Action string

const (
	ActionSubmit    Action = "SUBMIT"
	ActionRetry     Action = "RETRY"
	ActionAcceptCDR Action = "ACCEPT_CDR"
	ActionObserve   Action = "OBSERVE_CDR"
	ActionReject    Action = "REJECT_CDR"
)

// transitions is the legal state machine: current status x action -> next
// status. Anything absent is an InvalidTransitionError at lookup time.
var transitions = map[Status]map[Action]Status{
	StatusDraft: {
		ActionSubmit: StatusSentWaitCDR,
	},
	StatusSentWaitCDR: {
		ActionAcceptCDR: StatusAccepted,
		ActionObserve:   StatusObserved,
		ActionReject:    StatusRejected,
	},
	StatusObserved: {
		ActionRetry: StatusSentWaitCDR,
	},
	StatusRejected: {
		ActionRetry: StatusSentWaitCDR,
	},
	// ACCEPTED is terminal
}

// NextStatus resolves an action against the transition table.
// Returns InvalidTransitionError when the action is not legal from current.
func NextStatus(id string, current Status, action Action) (Status, error) {
	if next, ok := transitions[current][action]; ok {
		return next, nil
	}
	return "", shared.InvalidTransitionError{RecordID: id, From: string(current), Action: string(action)}
}

// Retryable reports whether the status permits a manual retry
func (s Status) Retryable() bool {
	return s == StatusObserved || s == StatusRejected
}

// Terminal reports whether no further transitions are possible
func (s Status) Terminal() bool {
	return s == StatusAccepted
}

// Invoice represents one tax-authority-facing electronic document.
// Superseded or rejected documents are never deleted; they remain in the
// ledger for audit.
type Invoice struct {
	ID              string           `json:"id" bson:"_id"`
	Series          string           `json:"series" bson:"series"`
	Number          string           `json:"number" bson:"number"`
	Type            Type             `json:"type" bson:"type"`
	CustomerName    string           `json:"customer_name" bson:"customer_name"`
	CustomerTaxID   string           `json:"customer_tax_id,omitempty" bson:"customer_tax_id,omitempty"`
	OrderID         string           `json:"order_id" bson:"order_id"`
	Amount          money.Money      `json:"amount" bson:"amount"`
	EmissionDate    time.Time        `json:"emission_date" bson:"emission_date"`
	Status          Status           `json:"status" bson:"status"`
	History         timeline.History `json:"history" bson:"history"`
	SellerID        string           `json:"seller_id" bson:"seller_id"`
	SellerName      string           `json:"seller_name" bson:"seller_name"`
	CreatedAt       time.Time        `json:"created_at" bson:"created_at"`
	RapifacResponse json.RawMessage  `json:"rapifac_response,omitempty" bson:"rapifac_response,omitempty"`
}

// Draft describes the fields a seller provides to emit a new document
type Draft struct {
	SellerID      string
	SellerName    string
	Type          Type
	CustomerName  string
	CustomerTaxID string
	Series        string
	Number        string
	Amount        money.Money
	OrderID       string
}

// Validate checks the draft's required fields before any gateway contact
func (d Draft) Validate() error {
	if d.CustomerName == "" {
		return shared.ValidationError{Field: "customer_name", Detail: "is required"}
	}
	if !d.Type.Valid() {
		return shared.ValidationError{Field: "type", Detail: fmt.Sprintf("unknown document type %q", d.Type)}
	}
	if d.Series == "" {
		return shared.ValidationError{Field: "series", Detail: "is required"}
	}
	if d.Number == "" {
		return shared.ValidationError{Field: "number", Detail: "is required"}
	}
	if !d.Amount.IsPositive() {
		return shared.ValidationError{Field: "amount", Detail: "must be positive"}
	}
	if d.SellerID == "" {
		return shared.ValidationError{Field: "seller_id", Detail: "is required"}
	}
	return nil
}

// NewID generates a voucher id following the V-<unix millis> pattern
func NewID(now time.Time) string {
	return fmt.Sprintf("V-%d", now.UnixMilli())
}

// New builds a draft invoice ready for submission. The DRAFT state itself is
// never persisted: emission either reaches SENT_WAIT_CDR or fails entirely.
func New(d Draft, now time.Time) (*Invoice, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &Invoice{
		ID:            NewID(now),
		Series:        d.Series,
		Number:        d.Number,
		Type:          d.Type,
		CustomerName:  d.CustomerName,
		CustomerTaxID: d.CustomerTaxID,
		OrderID:       d.OrderID,
		Amount:        d.Amount,
		EmissionDate:  now,
		Status:        StatusDraft,
		History: timeline.History{
			timeline.NewEvent("", string(StatusDraft), timeline.Actor{ID: d.SellerID, Name: d.SellerName, Role: timeline.RoleSeller}, "document drafted"),
		},
		SellerID:   d.SellerID,
		SellerName: d.SellerName,
		CreatedAt:  now,
	}, nil
}

// Apply performs a transition in memory: resolves the action against the
// table, updates the status and appends exactly one timeline event. The
// invoice is left untouched on error.
func (inv *Invoice) Apply(action Action, actor timeline.Actor, reason string) (timeline.Event, error) {
	next, err := NextStatus(inv.ID, inv.Status, action)
	if err != nil {
		return timeline.Event{}, err
	}
	event := timeline.NewEvent(string(inv.Status), string(next), actor, reason)
	inv.Status = next
	inv.History = inv.History.Append(event)
	return event, nil
}

// Payload builds the document payload resubmitted on retry. It is derived
// from the stored invoice so retries always send the original content.
func (inv *Invoice) Payload() Draft {
	return Draft{
		SellerID:      inv.SellerID,
		SellerName:    inv.SellerName,
		Type:          inv.Type,
		CustomerName:  inv.CustomerName,
		CustomerTaxID: inv.CustomerTaxID,
		Series:        inv.Series,
		Number:        inv.Number,
		Amount:        inv.Amount,
		OrderID:       inv.OrderID,
	}
}
