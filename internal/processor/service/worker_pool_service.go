package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
	"github.com/panjf2000/ants/v2"
)

// WorkerPoolEmissionService implements the EmissionService interface on top
// of a bounded worker pool.
type WorkerPoolEmissionService struct {
	baseService EmissionService
	pool        *ants.Pool
	logger      *slog.Logger
	// Use a mutex to protect access to the results map
	mu      sync.Mutex
	results map[string]chan error
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolEmissionService(
	baseService EmissionService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolEmissionService, error) {
	// Create a new worker pool with the specified size
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolEmissionService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
		results:     make(map[string]chan error),
	}, nil
}

// ProcessEvent submits a settlement event to the worker pool for processing.
func (s *WorkerPoolEmissionService) ProcessEvent(ctx context.Context, event *shared.SettlementEvent) error {
	logger := s.logger
	if event.CorrelationID != "" {
		logger = s.logger.With("correlation_id", event.CorrelationID)
	}

	logger.Info("Submitting settlement event to worker pool",
		"payment_id", event.PaymentID,
		"order_id", event.OrderID,
	)

	// Create a channel to receive the result of the event processing
	resultChan := make(chan error, 1)

	// Store the result channel in the result map
	paymentID := event.PaymentID
	s.mu.Lock()
	s.results[paymentID] = resultChan
	s.mu.Unlock()

	// Create a copy of the event to avoid data races
	eventCopy := *event

	// Submit the task to the worker pool
	err := s.pool.Submit(func() {
		// Process the event using the base service
		err := s.baseService.ProcessEvent(ctx, &eventCopy)

		// Send the result to the channel
		resultChan <- err

		// Remove the result channel from the map
		s.mu.Lock()
		delete(s.results, paymentID)
		close(resultChan)
		s.mu.Unlock()
	})

	if err != nil {
		// If we couldn't submit the task to the pool, remove the result channel
		s.mu.Lock()
		delete(s.results, paymentID)
		close(resultChan)
		s.mu.Unlock()

		logger.Error("Failed to submit settlement event to worker pool",
			"payment_id", event.PaymentID,
			"error", err,
		)
		return err
	}

	// Wait for the result from the worker
	return <-resultChan
}

// Shutdown gracefully shuts down the worker pool.
func (s *WorkerPoolEmissionService) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolEmissionService) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolEmissionService) Capacity() int {
	return s.pool.Cap()
}
