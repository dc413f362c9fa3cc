package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mercadoandino/settlement-engine/internal/api/service"
	"github.com/mercadoandino/settlement-engine/internal/domain/cashout"
	"github.com/mercadoandino/settlement-engine/internal/domain/money"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
)

// CashOutHandler handles HTTP requests for seller payout operations
type CashOutHandler struct {
	cashOutService service.CashOutService
	kpiService     service.KPIService
	logger         *slog.Logger
}

// NewCashOutHandler creates a new cash-out handler
func NewCashOutHandler(logger *slog.Logger, cashOutService service.CashOutService, kpiService service.KPIService) *CashOutHandler {
	return &CashOutHandler{
		cashOutService: cashOutService,
		kpiService:     kpiService,
		logger:         logger,
	}
}

// Schedule creates a payout for a liquidation window
func (h *CashOutHandler) Schedule(c *gin.Context) {
	var req ScheduleCashOutRequest
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
	commission, err := money.NewFromString(req.Commission, money.Currency(req.Currency))
	if err != nil {
		RespondBadRequest(c, "Invalid commission: "+err.Error())
		return
	}

	payment, err := cashout.New(req.ReferenceID, amount, commission,
		cashout.Seller{
			ID:            req.SellerID,
			Name:          req.SellerName,
			BankName:      req.BankName,
			AccountNumber: req.AccountNumber,
			CCI:           req.CCI,
		},
		cashout.LiquidationPeriod{Start: req.PeriodStart, End: req.PeriodEnd},
	)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	if err := h.cashOutService.Schedule(c.Request.Context(), payment); err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondCreated(c, mapCashOutToResponse(payment))
}

// Advance drives a payout through PROCESS, PAY, FAIL or RESCHEDULE
func (h *CashOutHandler) Advance(c *gin.Context) {
	var req AdvanceCashOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	actor := timeline.Actor{ID: req.ActorID, Name: req.ActorName, Role: timeline.RoleAdmin}
	payment, err := h.cashOutService.Advance(c.Request.Context(), c.Param("id"), cashout.Action(req.Action), actor, req.Reason)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapCashOutToResponse(payment))
}

// Dispute opens a dispute on a paid payout. The reason is mandatory
func (h *CashOutHandler) Dispute(c *gin.Context) {
	var req DisputeCashOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	actor := timeline.Actor{ID: req.ActorID, Name: req.ActorName, Role: timeline.RoleAdmin}
	payment, err := h.cashOutService.Dispute(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapCashOutToResponse(payment))
}

// Resolve closes a dispute back into PAID or FAILED
func (h *CashOutHandler) Resolve(c *gin.Context) {
	var req ResolveCashOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	actor := timeline.Actor{ID: req.ActorID, Name: req.ActorName, Role: timeline.RoleAdmin}
	payment, err := h.cashOutService.ResolveDispute(c.Request.Context(), c.Param("id"), cashout.Status(req.Outcome), actor, req.Reason)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapCashOutToResponse(payment))
}

// GetByID retrieves a single payout with its full timeline
func (h *CashOutHandler) GetByID(c *gin.Context) {
	payment, err := h.cashOutService.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondOK(c, mapCashOutToResponse(payment))
}

// List returns a page of payouts in the requested status
func (h *CashOutHandler) List(c *gin.Context) {
	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		h.logger.Error("Invalid pagination parameters", "error", err)
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	status := cashout.Status(c.DefaultQuery("status", string(cashout.StatusScheduled)))

	payments, total, err := h.cashOutService.ListByStatus(c.Request.Context(), status, pagination.Page, pagination.PerPage)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	responses := make([]CashOutResponse, 0, len(payments))
	for _, p := range payments {
		responses = append(responses, mapCashOutToResponse(p))
	}

	RespondWithPaginatedData(c, http.StatusOK, responses, pagination.Page, pagination.PerPage, int(total))
}

// SettlementKPIs returns the aggregated counters across both settlement flows
func (h *CashOutHandler) SettlementKPIs(c *gin.Context) {
	kpis, err := h.kpiService.SettlementKPIs(c.Request.Context())
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondOK(c, kpis)
}
