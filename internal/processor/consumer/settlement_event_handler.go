package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
	"github.com/mercadoandino/settlement-engine/internal/platform/messaging/producers"
	"github.com/mercadoandino/settlement-engine/internal/processor/service"
)

// SettlementEventHandler handles incoming settlement event messages from Kafka
type SettlementEventHandler struct {
	emissionService service.EmissionService
	producer        producers.DeadLetterPublisher
	logger          *slog.Logger
}

// NewSettlementEventHandler creates a new handler
func NewSettlementEventHandler(
	logger *slog.Logger,
	emissionService service.EmissionService,
	producer producers.DeadLetterPublisher,
) *SettlementEventHandler {
	return &SettlementEventHandler{
		emissionService: emissionService,
		producer:        producer,
		logger:          logger,
	}
}

// HandleMessage processes Kafka messages. Unprocessable messages go to the
// DLQ and are committed; transient failures are left uncommitted so Kafka
// redelivers them.
func (h *SettlementEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var event shared.SettlementEvent
	if err := json.Unmarshal(value, &event); err != nil {
		unmarshalErrorMsg := "Failed to unmarshal settlement event from Kafka message"
		h.logger.Error(unmarshalErrorMsg,
			"error", err,
			"message_key", string(key),
		)
		return h.deadLetter(ctx, key, value, fmt.Sprintf("%s: %s", unmarshalErrorMsg, err.Error()), err)
	}

	// Add correlation ID to logger
	logger := h.logger
	if event.CorrelationID != "" {
		logger = h.logger.With("correlation_id", event.CorrelationID)
	}

	logger.Info("Received settlement event for processing",
		"payment_id", event.PaymentID,
		"order_id", event.OrderID,
		"type", string(event.Type),
	)

	if err := h.emissionService.ProcessEvent(ctx, &event); err != nil {
		if permanent(err) {
			logger.Error("Settlement event is unprocessable, routing to DLQ",
				"payment_id", event.PaymentID,
				"order_id", event.OrderID,
				"error", err,
			)
			return h.deadLetter(ctx, key, value, err.Error(), err)
		}

		logger.Error("Failed to process settlement event, leaving for redelivery",
			"payment_id", event.PaymentID,
			"order_id", event.OrderID,
			"error", err,
		)
		return fmt.Errorf("processing settlement event for payment %s failed: %w", event.PaymentID, err)
	}

	logger.Info("Successfully processed settlement event", "payment_id", event.PaymentID)
	return nil // Success, commit offset
}

// deadLetter publishes the raw message to the DLQ. On success the offset is
// committed; when the DLQ itself fails the original error is returned so the
// message is redelivered.
func (h *SettlementEventHandler) deadLetter(ctx context.Context, key []byte, value []byte, reason string, original error) error {
	if h.producer == nil {
		return fmt.Errorf("no DLQ configured for unprocessable message: %w", original)
	}

	if dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, reason); dlqErr != nil {
		h.logger.Error("Failed to publish message to DLQ",
			"dlq_error", dlqErr,
			"original_error", original,
			"message_key", string(key),
		)
		// Return original error if DLQ fails
		return fmt.Errorf("failed to dead-letter message: %w", original)
	}

	h.logger.Info("Successfully published unprocessable message to DLQ", "message_key", string(key), "reason", reason)
	// Message handled, commit offset
	return nil
}

// permanent reports whether an emission error can never succeed on retry.
// Validation failures and rejected gateway submissions need a corrected
// document, not a redelivery.
func permanent(err error) bool {
	if errors.Is(err, shared.ValidationError{}) {
		return true
	}
	var gwErr shared.GatewayError
	if errors.As(err, &gwErr) {
		return !gwErr.Transient
	}
	return false
}
