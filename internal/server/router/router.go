package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mamadbah2/herdbook/internal/metrics"
	"github.com/mamadbah2/herdbook/internal/server/handlers"
)

// Handlers groups the HTTP handler adapters. Webhook may be nil when WhatsApp
// is not configured.
type Handlers struct {
	Customers *handlers.CustomerHandler
	Payments  *handlers.PaymentHandler
	Animals   *handlers.AnimalHandler
	Reports   *handlers.ReportHandler
	Webhook   *handlers.WebhookHandler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, tokens TokenVerifier, monitor *metrics.Monitor, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	if h.Webhook != nil {
		r.GET("/webhook", h.Webhook.Verify)
		r.POST("/webhook", h.Webhook.Receive)
	}

	api := r.Group("/api", authMiddleware(tokens, logger), monitorMiddleware(monitor))

	customers := api.Group("/customers")
	customers.GET("", h.Customers.List)
	customers.POST("", h.Customers.Create)
	customers.GET("/search", h.Customers.Search)
	customers.GET("/:id", h.Customers.Get)
	customers.PUT("/:id", h.Customers.Update)
	customers.DELETE("/:id", h.Customers.Delete)
	customers.POST("/:id/discount", h.Customers.ApplyDiscount)
	customers.DELETE("/:id/discount", h.Customers.RemoveDiscount)
	customers.POST("/:id/animals", h.Customers.AddAnimal)
	customers.PUT("/:id/animals", h.Customers.ReplaceAnimals)
	customers.PATCH("/:id/animals/:animalId", h.Customers.UpdateAnimal)
	customers.DELETE("/:id/animals/:animalId", h.Customers.RemoveAnimal)
	customers.PATCH("/:id/animals/:animalId/details", h.Customers.UpdateAnimalDetails)
	customers.POST("/:id/payments", h.Customers.AddPayment)
	customers.DELETE("/:id/payments/:paymentId", h.Customers.RemovePayment)
	customers.GET("/:id/reconciliation", h.Customers.Reconciliation)

	payments := api.Group("/payments")
	payments.GET("", h.Payments.List)
	payments.POST("", h.Payments.Create)
	payments.GET("/customer/:customerId", h.Payments.ByCustomer)
	payments.PUT("/:id", h.Payments.Update)
	payments.DELETE("/:id", h.Payments.Delete)

	api.GET("/animals", h.Animals.List)
	api.GET("/animals/duplicate", h.Animals.CheckDuplicate)

	api.GET("/reports/balances", h.Reports.Balances)
	api.GET("/performance", h.Reports.Performance)

	logger.Info("router initialized")
	return r
}
