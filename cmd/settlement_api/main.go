package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mercadoandino/settlement-engine/internal/api"
	"github.com/mercadoandino/settlement-engine/internal/api/service"
	"github.com/mercadoandino/settlement-engine/internal/config"
	"github.com/mercadoandino/settlement-engine/internal/data/mongo"
	"github.com/mercadoandino/settlement-engine/internal/data/postgres"
	"github.com/mercadoandino/settlement-engine/internal/gateway/rapifac"
	"github.com/mercadoandino/settlement-engine/internal/logger"
	"github.com/mercadoandino/settlement-engine/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("settlement_api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Initialize e-invoicing gateway client. Missing credentials fail here,
	// not on the first emission.
	gatewayClient, err := rapifac.NewClient(log, cfg.Rapifac)
	if err != nil {
		log.Error("Failed to initialize e-invoicing gateway client", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	invoiceRepo := mongo.NewInvoiceRepository(log, mongoDB.Database())
	if r, ok := invoiceRepo.(*mongo.InvoiceRepository); ok {
		if err := r.EnsureIndexes(appCtx); err != nil {
			log.Warn("Failed to ensure invoice indexes", "error", err)
		}
	}
	cashInRepo := postgres.NewCashInRepository(log, postgresDB)
	cashOutRepo := postgres.NewCashOutRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)

	// Initialize services
	invoiceService := service.NewInvoiceService(log, invoiceRepo, gatewayClient)
	cashInService := service.NewCashInService(log, postgresDB, cashInRepo, outboxRepo)
	cashOutService := service.NewCashOutService(log, cashOutRepo, cfg.Settlement.RescheduleMode)
	kpiService := service.NewKPIService(log, invoiceRepo, cashInRepo, cashOutRepo, cfg.Settlement.CommissionRate)

	// Initialize REST server
	server := api.NewServer(log, cfg, invoiceService, cashInService, cashOutService, kpiService)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
