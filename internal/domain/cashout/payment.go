package cashout

import (
	"time"

	"github.com/google/uuid"
	"github.com/mercadoandino/settlement-engine/internal/domain/money"
	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
)

// Status defines cash-out payout lifecycle states
type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusProcessing Status = "PROCESSING"
	StatusPaid       Status = "PAID"
	StatusFailed     Status = "FAILED"
	StatusDisputed   Status = "DISPUTED"
)

// Action defines the operations that drive the cash-out state machine
type Action string

const (
	ActionProcess    Action = "PROCESS"
	ActionPay        Action = "PAY"
	ActionFail       Action = "FAIL"
	ActionReschedule Action = "RESCHEDULE"
	ActionDispute    Action = "DISPUTE"
	// Dispute resolution re-enters PAID or FAILED after manual investigation
	ActionResolvePaid   Action = "RESOLVE_PAID"
	ActionResolveFailed Action = "RESOLVE_FAILED"
)

// transitions: PAID is nominally terminal but a seller may dispute it;
// DISPUTED is resolved manually back into PAID or FAILED. RESCHEDULE is
// only legal from FAILED.
var transitions = map[Status]map[Action]Status{
	StatusScheduled: {
		ActionProcess: StatusProcessing,
		ActionPay:     StatusPaid,
		ActionFail:    StatusFailed,
	},
	StatusProcessing: {
		ActionPay:  StatusPaid,
		ActionFail: StatusFailed,
	},
	StatusPaid: {
		ActionDispute: StatusDisputed,
	},
	StatusFailed: {
		ActionReschedule: StatusScheduled,
	},
	StatusDisputed: {
		ActionResolvePaid:   StatusPaid,
		ActionResolveFailed: StatusFailed,
	},
}

// NextStatus resolves an action against the transition table
func NextStatus(id string, current Status, action Action) (Status, error) {
	if next, ok := transitions[current][action]; ok {
		return next, nil
	}
	return "", shared.InvalidTransitionError{RecordID: id, From: string(current), Action: string(action)}
}

// Seller carries the payout destination details
type Seller struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	CCI           string `json:"cci,omitempty"`
}

// LiquidationPeriod is the settlement window the payout covers
type LiquidationPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Payment represents money owed to a seller for a settlement batch, net of
// the marketplace commission.
type Payment struct {
	ID                     string            `json:"id"`
	ReferenceID            string            `json:"reference_id"` // settlement batch id
	Amount                 money.Money       `json:"amount"`
	Seller                 Seller            `json:"seller"`
	Commission             money.Money       `json:"commission"`
	NetAmount              money.Money       `json:"net_amount"`
	DisbursementVoucherURL string            `json:"disbursement_voucher_url,omitempty"`
	LiquidationPeriod      LiquidationPeriod `json:"liquidation_period"`
	// RescheduledFrom references the failed payout this record replaces,
	// when reschedule mode creates new records for audit continuity.
	RescheduledFrom string           `json:"rescheduled_from,omitempty"`
	Status          Status           `json:"status"`
	Timeline        timeline.History `json:"timeline"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// New schedules a payout within a liquidation window. The money conservation
// invariant netAmount = amount - commission is established here and
// re-checked before every transition into PAID.
func New(referenceID string, amount, commission money.Money, seller Seller, period LiquidationPeriod) (*Payment, error) {
	if referenceID == "" {
		return nil, shared.ValidationError{Field: "reference_id", Detail: "is required"}
	}
	if !amount.IsPositive() {
		return nil, shared.ValidationError{Field: "amount", Detail: "must be positive"}
	}
	if commission.IsNegative() {
		return nil, shared.ValidationError{Field: "commission", Detail: "cannot be negative"}
	}
	if seller.ID == "" || seller.AccountNumber == "" {
		return nil, shared.ValidationError{Field: "seller", Detail: "id and account number are required"}
	}
	if !period.End.After(period.Start) {
		return nil, shared.ValidationError{Field: "liquidation_period", Detail: "end must be after start"}
	}
	net, err := amount.Sub(commission)
	if err != nil {
		return nil, shared.ValidationError{Field: "commission", Detail: err.Error()}
	}
	if net.IsNegative() {
		return nil, shared.ValidationError{Field: "commission", Detail: "exceeds gross amount"}
	}
	now := time.Now().UTC()
	return &Payment{
		ID:                uuid.New().String(),
		ReferenceID:       referenceID,
		Amount:            amount,
		Seller:            seller,
		Commission:        commission,
		NetAmount:         net,
		LiquidationPeriod: period,
		Status:            StatusScheduled,
		Timeline: timeline.History{
			timeline.NewEvent("", string(StatusScheduled), timeline.SystemActor, "payout scheduled for liquidation window"),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CheckConservation verifies netAmount = amount - commission. Called before
// committing any transition into PAID; a mismatch fails the transition
// closed rather than paying out a corrupted figure.
func (p *Payment) CheckConservation() error {
	expected, err := p.Amount.Sub(p.Commission)
	if err != nil {
		return shared.InvariantViolationError{RecordID: p.ID, Detail: err.Error()}
	}
	if !p.NetAmount.Equal(expected) {
		return shared.InvariantViolationError{
			RecordID: p.ID,
			Detail:   "net amount " + p.NetAmount.String() + " does not equal amount minus commission " + expected.String(),
		}
	}
	return nil
}

// Apply performs a transition in memory, appending exactly one timeline
// event. Dispute and resolution actions require a reason.
func (p *Payment) Apply(action Action, actor timeline.Actor, reason string) (timeline.Event, error) {
	next, err := NextStatus(p.ID, p.Status, action)
	if err != nil {
		return timeline.Event{}, err
	}
	switch action {
	case ActionDispute, ActionResolvePaid, ActionResolveFailed:
		if reason == "" {
			return timeline.Event{}, shared.ValidationError{Field: "reason", Detail: "is required for " + string(action)}
		}
	}
	if next == StatusPaid {
		if err := p.CheckConservation(); err != nil {
			return timeline.Event{}, err
		}
	}
	event := timeline.NewEvent(string(p.Status), string(next), actor, reason)
	p.Status = next
	p.Timeline = p.Timeline.Append(event)
	p.UpdatedAt = event.Timestamp
	return event, nil
}

// Reschedule builds a fresh SCHEDULED payout replacing a failed one,
// referencing it for audit continuity.
func (p *Payment) Reschedule(period LiquidationPeriod, actor timeline.Actor) (*Payment, error) {
	if p.Status != StatusFailed {
		return nil, shared.InvalidTransitionError{RecordID: p.ID, From: string(p.Status), Action: string(ActionReschedule)}
	}
	replacement, err := New(p.ReferenceID, p.Amount, p.Commission, p.Seller, period)
	if err != nil {
		return nil, err
	}
	replacement.RescheduledFrom = p.ID
	replacement.Timeline = timeline.History{
		timeline.NewEvent("", string(StatusScheduled), actor, "rescheduled from failed payout "+p.ID),
	}
	return replacement, nil
}
