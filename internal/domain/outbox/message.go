package outbox

import (
	"encoding/json"
	"time"

	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
)

// Message stores a settlement event for reliable publishing. Rows are
// written in the same database transaction as the cash-in transition they
// describe, so a validated payment and its event can never diverge.
type Message struct {
	ID            int64               `json:"id"`
	PaymentID     string              `json:"payment_id"`
	OrderID       string              `json:"order_id"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

// NewMessage wraps a settlement event into a pending outbox message
func NewMessage(event *shared.SettlementEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &Message{
		PaymentID: event.PaymentID,
		OrderID:   event.OrderID,
		Payload:   payload,
		Status:    shared.OutboxStatusPending,
		Attempts:  0,
		CreatedAt: time.Now(),
	}, nil
}

func (m *Message) IncrementAttempts() {
	m.Attempts++
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsProcessed() {
	m.Status = shared.OutboxStatusProcessed
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed() {
	m.Status = shared.OutboxStatusFailedToPublish
	now := time.Now()
	m.LastAttemptAt = &now
}

// GetSettlementEvent extracts the settlement event from the payload
func (m *Message) GetSettlementEvent() (*shared.SettlementEvent, error) {
	var event shared.SettlementEvent
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
