package service

import (
	"context"

	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
)

// EmissionService defines the interface for turning settlement events into
// emitted tax documents.
type EmissionService interface {
	ProcessEvent(ctx context.Context, event *shared.SettlementEvent) error
}
