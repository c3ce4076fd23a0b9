package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/herdbook/internal/metrics"
	"github.com/mamadbah2/herdbook/internal/service/reporting"
)

// ReportHandler exposes balance reports and the performance monitor.
type ReportHandler struct {
	reports *reporting.Service
	monitor *metrics.Monitor
	logger  *zap.Logger
}

// NewReportHandler constructs the HTTP handler adapter.
func NewReportHandler(reports *reporting.Service, monitor *metrics.Monitor, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{reports: reports, monitor: monitor, logger: logger}
}

// Balances returns the balance report; ?format=text renders it as a chat message.
func (h *ReportHandler) Balances(c *gin.Context) {
	report, err := h.reports.BalanceReport(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if c.Query("format") == "text" {
		c.String(http.StatusOK, reporting.FormatBalanceReport(report))
		return
	}
	c.JSON(http.StatusOK, report)
}

// Performance returns the monitor summary.
func (h *ReportHandler) Performance(c *gin.Context) {
	raw, err := h.monitor.ReportJSON()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}
