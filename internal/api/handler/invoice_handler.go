package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mercadoandino/settlement-engine/internal/api/service"
	"github.com/mercadoandino/settlement-engine/internal/domain/invoice"
	"github.com/mercadoandino/settlement-engine/internal/domain/money"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
)

// InvoiceHandler handles HTTP requests for invoice lifecycle operations
type InvoiceHandler struct {
	invoiceService service.InvoiceService
	kpiService     service.KPIService
	logger         *slog.Logger
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(logger *slog.Logger, invoiceService service.InvoiceService, kpiService service.KPIService) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		kpiService:     kpiService,
		logger:         logger,
	}
}

// Emit submits a new tax document to the e-invoicing provider
func (h *InvoiceHandler) Emit(c *gin.Context) {
	var req EmitInvoiceRequest
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

	draft := invoice.Draft{
		SellerID:      req.SellerID,
		SellerName:    req.SellerName,
		Type:          invoice.Type(req.Type),
		CustomerName:  req.CustomerName,
		CustomerTaxID: req.CustomerTaxID,
		Series:        req.Series,
		Number:        req.Number,
		Amount:        amount,
		OrderID:       req.OrderID,
	}

	inv, err := h.invoiceService.EmitInvoice(c.Request.Context(), draft)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondCreated(c, mapInvoiceToResponse(inv))
}

// GetByID retrieves a single document by voucher id
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	inv, err := h.invoiceService.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondOK(c, mapInvoiceToResponse(inv))
}

// List returns a filtered page of documents. Without seller_id the listing
// spans every seller
func (h *InvoiceHandler) List(c *gin.Context) {
	var params InvoiceListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.logger.Error("Invalid query parameters", "error", err)
		RespondBadRequest(c, "Invalid query parameters")
		return
	}

	sellerID := params.SellerID
	if sellerID == "" {
		sellerID = invoice.ScopeAll
	}

	filter := invoice.ListFilter{
		SellerID: sellerID,
		Search:   params.Search,
		Limit:    params.PerPage,
		Offset:   (params.Page - 1) * params.PerPage,
	}

	invoices, total, err := h.invoiceService.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	responses := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		responses = append(responses, mapInvoiceToResponse(inv))
	}

	RespondWithPaginatedData(c, http.StatusOK, responses, params.Page, params.PerPage, int(total))
}

// Retry resubmits an OBSERVED or REJECTED document with its original payload
func (h *InvoiceHandler) Retry(c *gin.Context) {
	var req ActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	actor := timeline.Actor{ID: req.ActorID, Name: req.ActorName, Role: timeline.RoleAdmin}
	inv, err := h.invoiceService.RetryInvoice(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapInvoiceToResponse(inv))
}

// RecordCDR applies the provider's verdict on a document awaiting its CDR
func (h *InvoiceHandler) RecordCDR(c *gin.Context) {
	var req RecordCDRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	inv, err := h.invoiceService.RecordCDR(c.Request.Context(), c.Param("id"), invoice.Status(req.Outcome), req.Raw)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapInvoiceToResponse(inv))
}

// KPIs returns the aggregated read-side view of the invoice ledger
func (h *InvoiceHandler) KPIs(c *gin.Context) {
	kpis, err := h.kpiService.InvoiceKPIs(c.Request.Context())
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondOK(c, kpis)
}
