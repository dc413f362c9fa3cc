package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mercadoandino/settlement-engine/internal/api/handler"
	"github.com/mercadoandino/settlement-engine/internal/api/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	invoiceHandler *handler.InvoiceHandler,
	cashInHandler *handler.CashInHandler,
	cashOutHandler *handler.CashOutHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Invoice lifecycle operations
		invoices := v1.Group("/invoices")
		{
			invoices.POST("", invoiceHandler.Emit)
			invoices.GET("", invoiceHandler.List)
			invoices.GET("/kpis", invoiceHandler.KPIs)
			invoices.GET("/:id", invoiceHandler.GetByID)
			invoices.POST("/:id/retry", invoiceHandler.Retry)
			invoices.POST("/:id/cdr", invoiceHandler.RecordCDR)
		}

		// Cash-in validation operations
		cashIn := v1.Group("/cashin")
		{
			cashIn.POST("", cashInHandler.Register)
			cashIn.GET("", cashInHandler.List)
			cashIn.GET("/:id", cashInHandler.GetByID)
			cashIn.POST("/:id/validate", cashInHandler.Validate)
			cashIn.POST("/:id/reject", cashInHandler.Reject)
		}

		// Cash-out payout operations
		cashOut := v1.Group("/cashout")
		{
			cashOut.POST("", cashOutHandler.Schedule)
			cashOut.GET("", cashOutHandler.List)
			cashOut.GET("/:id", cashOutHandler.GetByID)
			cashOut.POST("/:id/advance", cashOutHandler.Advance)
			cashOut.POST("/:id/dispute", cashOutHandler.Dispute)
			cashOut.POST("/:id/resolve", cashOutHandler.Resolve)
		}

		v1.GET("/settlements/kpis", cashOutHandler.SettlementKPIs)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
