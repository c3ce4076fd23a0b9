package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/herdbook/internal/auth"
	"github.com/mamadbah2/herdbook/internal/domain/discount"
	"github.com/mamadbah2/herdbook/internal/domain/ledger"
	"github.com/mamadbah2/herdbook/internal/repository/store"
	"github.com/mamadbah2/herdbook/internal/service/animals"
	"github.com/mamadbah2/herdbook/internal/service/customers"
	"github.com/mamadbah2/herdbook/internal/service/payments"
)

// errorStatus maps domain sentinels to HTTP status codes. Unknown errors are
// storage or programming failures and map to 500.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, customers.ErrCustomerNotFound),
		errors.Is(err, customers.ErrAnimalNotFound),
		errors.Is(err, customers.ErrPaymentNotFound),
		errors.Is(err, payments.ErrPaymentNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, customers.ErrDuplicateAnimal):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidStatusTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, discount.ErrNegativeDiscount),
		errors.Is(err, discount.ErrDiscountExceedsTotal),
		errors.Is(err, discount.ErrReasonRequired),
		errors.Is(err, discount.ErrActorRequired),
		errors.Is(err, ledger.ErrInvalidCurrency),
		errors.Is(err, ledger.ErrMissingNISEquivalent),
		errors.Is(err, ledger.ErrInvalidAnimal),
		errors.Is(err, ledger.ErrInvalidStatus),
		errors.Is(err, ledger.ErrEmptyPayment),
		errors.Is(err, payments.ErrInvalidAmount),
		errors.Is(err, payments.ErrCustomerRequired),
		errors.Is(err, customers.ErrNameRequired),
		errors.Is(err, animals.ErrKeyRequired),
		errors.Is(err, store.ErrInvalidPath):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	logger.Debug("request rejected", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	c.JSON(status, gin.H{"error": err.Error()})
}

func respondBadRequest(c *gin.Context, logger *zap.Logger, err error) {
	logger.Warn("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
}
