package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mercadoandino/settlement-engine/internal/api/middleware"
	"github.com/mercadoandino/settlement-engine/internal/api/service"
	"github.com/mercadoandino/settlement-engine/internal/domain/cashin"
	"github.com/mercadoandino/settlement-engine/internal/domain/money"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
)

// CashInHandler handles HTTP requests for incoming payment validation
type CashInHandler struct {
	cashInService service.CashInService
	logger        *slog.Logger
}

// NewCashInHandler creates a new cash-in handler
func NewCashInHandler(logger *slog.Logger, cashInService service.CashInService) *CashInHandler {
	return &CashInHandler{
		cashInService: cashInService,
		logger:        logger,
	}
}

// Register records an uploaded payment proof in PENDING_VALIDATION
func (h *CashInHandler) Register(c *gin.Context) {
	var req RegisterCashInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	amount, err := money.NewFromString(req.Amount, money.Currency(req.Currency))
	if err != nil {
		RespondBadRequest(c, "Invalid amount: "+err.Error())
		return
	}

	payment, err := cashin.New(req.ReferenceID, amount,
		cashin.Customer{ID: req.CustomerID, Name: req.CustomerName, TaxID: req.CustomerTaxID},
		req.VoucherURL,
		cashin.OrderHierarchy{Company: req.Company, Seller: req.SellerID, SellerName: req.SellerName, Customer: req.CustomerID},
	)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	if err := h.cashInService.Register(c.Request.Context(), payment); err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondCreated(c, mapCashInToResponse(payment))
}

// Validate confirms a payment proof and triggers downstream settlement
func (h *CashInHandler) Validate(c *gin.Context) {
	var req ActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	actor := timeline.Actor{ID: req.ActorID, Name: req.ActorName, Role: timeline.RoleAdmin}
	payment, err := h.cashInService.Validate(c.Request.Context(), c.Param("id"), actor, middleware.GetCorrelationID(c))
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapCashInToResponse(payment))
}

// Reject declines a payment proof. The reason is mandatory
func (h *CashInHandler) Reject(c *gin.Context) {
	var req RejectCashInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	actor := timeline.Actor{ID: req.ActorID, Name: req.ActorName, Role: timeline.RoleAdmin}
	payment, err := h.cashInService.Reject(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapCashInToResponse(payment))
}

// GetByID retrieves a single payment with its full timeline
func (h *CashInHandler) GetByID(c *gin.Context) {
	payment, err := h.cashInService.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondOK(c, mapCashInToResponse(payment))
}

// List returns a page of payments, defaulting to those awaiting validation
func (h *CashInHandler) List(c *gin.Context) {
	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		h.logger.Error("Invalid pagination parameters", "error", err)
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	status := cashin.Status(c.DefaultQuery("status", string(cashin.StatusPendingValidation)))

	payments, total, err := h.cashInService.ListByStatus(c.Request.Context(), status, pagination.Page, pagination.PerPage)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	responses := make([]CashInResponse, 0, len(payments))
	for _, p := range payments {
		responses = append(responses, mapCashInToResponse(p))
	}

	RespondWithPaginatedData(c, http.StatusOK, responses, pagination.Page, pagination.PerPage, int(total))
}
