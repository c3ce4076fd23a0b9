package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/herdbook/internal/service/animals"
)

// AnimalHandler exposes the animal registry over HTTP.
type AnimalHandler struct {
	registry *animals.Registry
	logger   *zap.Logger
}

// NewAnimalHandler constructs the HTTP handler adapter.
func NewAnimalHandler(registry *animals.Registry, logger *zap.Logger) *AnimalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnimalHandler{registry: registry, logger: logger}
}

// CheckDuplicate reports whether ?key= is sold to anything but animal
// ?exclude= of customer ?customer=.
func (h *AnimalHandler) CheckDuplicate(c *gin.Context) {
	key := c.Query("key")
	dup, err := h.registry.CheckDuplicate(c.Request.Context(), key, c.Query("customer"), c.Query("exclude"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"compositeKey": key, "duplicate": dup})
}

// List returns the registry.
func (h *AnimalHandler) List(c *gin.Context) {
	entries, err := h.registry.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
