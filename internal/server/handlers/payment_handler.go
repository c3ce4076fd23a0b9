package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/herdbook/internal/domain/models"
	"github.com/mamadbah2/herdbook/internal/service/payments"
)

// PaymentHandler exposes the payment log over HTTP.
type PaymentHandler struct {
	svc    *payments.Service
	logger *zap.Logger
}

// NewPaymentHandler constructs the HTTP handler adapter.
func NewPaymentHandler(svc *payments.Service, logger *zap.Logger) *PaymentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentHandler{svc: svc, logger: logger}
}

// List returns every log entry.
func (h *PaymentHandler) List(c *gin.Context) {
	list, err := h.svc.ListPayments(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// ByCustomer returns the entries of one customer with their NIS total.
func (h *PaymentHandler) ByCustomer(c *gin.Context) {
	ctx := c.Request.Context()
	customerID := c.Param("customerId")

	list, err := h.svc.GetPaymentsByCustomerID(ctx, customerID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	total, err := h.svc.TotalPaidForCustomerNIS(ctx, customerID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customerId": customerID, "payments": list, "totalPaidNIS": total})
}

// Create appends a log entry.
func (h *PaymentHandler) Create(c *gin.Context) {
	var req models.NewPayment
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, err)
		return
	}

	payment, err := h.svc.AddPayment(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

// Update replaces a log entry.
func (h *PaymentHandler) Update(c *gin.Context) {
	var req models.NewPayment
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, err)
		return
	}

	payment, err := h.svc.UpdatePayment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// Delete removes a log entry.
func (h *PaymentHandler) Delete(c *gin.Context) {
	if err := h.svc.DeletePayment(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
