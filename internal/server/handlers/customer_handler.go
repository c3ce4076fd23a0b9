package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/herdbook/internal/domain/models"
	"github.com/mamadbah2/herdbook/internal/service/customers"
	"github.com/mamadbah2/herdbook/internal/service/payments"
)

// CustomerHandler exposes the customer ledger over HTTP.
type CustomerHandler struct {
	svc      *customers.Service
	payments *payments.Service
	logger   *zap.Logger
}

// NewCustomerHandler constructs the HTTP handler adapter.
func NewCustomerHandler(svc *customers.Service, paymentLog *payments.Service, logger *zap.Logger) *CustomerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CustomerHandler{svc: svc, payments: paymentLog, logger: logger}
}

type removeDiscountRequest struct {
	Reason    string `json:"reason"`
	RemovedBy string `json:"removedBy"`
}

// List returns every customer.
func (h *CustomerHandler) List(c *gin.Context) {
	list, err := h.svc.ListCustomers(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Search filters customers by the q query parameter.
func (h *CustomerHandler) Search(c *gin.Context) {
	list, err := h.svc.SearchCustomers(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Create adds a customer and returns the stored record.
func (h *CustomerHandler) Create(c *gin.Context) {
	var req models.NewCustomer
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, err)
		return
	}

	ctx := c.Request.Context()
	id, err := h.svc.AddCustomer(ctx, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	customer, err := h.svc.GetCustomer(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

// Get returns one customer.
func (h *CustomerHandler) Get(c *gin.Context) {
	customer, err := h.svc.GetCustomer(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

// Update merges a partial customer change.
func (h *CustomerHandler) Update(c *gin.Context) {
	var req models.CustomerUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, err)
		return
	}
	req.ID = c.Param("id")

	customer, err := h.svc.UpdateCustomer(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

// Delete removes a customer.
func (h *CustomerHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteCustomer(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ApplyDiscount sets the customer's discount.
func (h *CustomerHandler) ApplyDiscount(c *gin.Context) {
	var req models.DiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, err)
		return
	}

	customer, err := h.svc.ApplyCustomerDiscount(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

// RemoveDiscount zeroes the customer's discount.
func (h *CustomerHandler) RemoveDiscount(c *gin.Context) {
	var req removeDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, err)
		return
	}

	customer, err := h.svc.RemoveCustomerDiscount(c.Request.Context(), c.Param("id"), req.Reason, req.RemovedBy)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

// AddAnimal attaches an animal to the customer.
func (h *CustomerHandler) AddAnimal(c *gin.Context) {
	var req models.AnimalInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, err)
		return
	}

	animal, err := h.svc.AddAnimalToCustomer(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, animal)
}

// ReplaceAnimals replaces the customer's animal list.
func (h *CustomerHandler) ReplaceAnimals(c *gin.Context) {
	var req []models.AnimalInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, err)
		return
	}

	customer, err := h.svc.BulkUpdateCustomerAnimals(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

// UpdateAnimal patches one animal without status checks.
func (h *CustomerHandler) UpdateAnimal(c *gin.Context) {
	h.patchAnimal(c, h.svc.UpdateCustomerAnimal)
}

// UpdateAnimalDetails patches one animal, guarding the move to cancelled.
func (h *CustomerHandler) UpdateAnimalDetails(c *gin.Context) {
	h.patchAnimal(c, h.svc.UpdateAnimalDetails)
}

type animalPatchFunc func(ctx context.Context, customerID, animalID string, upd models.AnimalUpdate) (models.Animal, error)

func (h *CustomerHandler) patchAnimal(c *gin.Context, patch animalPatchFunc) {
	var req models.AnimalUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, err)
		return
	}

	animal, err := patch(c.Request.Context(), c.Param("id"), c.Param("animalId"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, animal)
}

// RemoveAnimal detaches one animal.
func (h *CustomerHandler) RemoveAnimal(c *gin.Context) {
	if err := h.svc.RemoveAnimalFromCustomer(c.Request.Context(), c.Param("id"), c.Param("animalId")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddPayment appends a payment transaction to the customer.
func (h *CustomerHandler) AddPayment(c *gin.Context) {
	var req models.PaymentDetailInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, h.logger, err)
		return
	}

	detail, err := h.svc.AddCustomerPayment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, detail)
}

// RemovePayment drops a payment transaction from the customer.
func (h *CustomerHandler) RemovePayment(c *gin.Context) {
	if err := h.svc.RemoveCustomerPayment(c.Request.Context(), c.Param("id"), c.Param("paymentId")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Reconciliation compares the customer's embedded payments with the payment log.
func (h *CustomerHandler) Reconciliation(c *gin.Context) {
	ctx := c.Request.Context()
	customer, err := h.svc.GetCustomer(ctx, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	rec, err := h.payments.Reconcile(ctx, customer)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
