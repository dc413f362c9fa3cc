package shared

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementEventType defines the settlement events published to Kafka
type SettlementEventType string

const (
	SettlementEventCashInValidated SettlementEventType = "CASH_IN_VALIDATED"
)

// SettlementEvent is the message published when a cash-in payment is
// validated. The processor consumes it to drive downstream invoice emission
// for the same order.
type SettlementEvent struct {
	Type          SettlementEventType `json:"type"`
	PaymentID     string              `json:"payment_id"`
	OrderID       string              `json:"order_id"`
	SellerID      string              `json:"seller_id"`
	SellerName    string              `json:"seller_name"`
	CustomerID    string              `json:"customer_id"`
	CustomerName  string              `json:"customer_name"`
	CustomerTaxID string              `json:"customer_tax_id,omitempty"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at"`
}
