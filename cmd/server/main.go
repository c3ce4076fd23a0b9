package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mamadbah2/herdbook/internal/auth"
	"github.com/mamadbah2/herdbook/internal/config"
	"github.com/mamadbah2/herdbook/internal/metrics"
	"github.com/mamadbah2/herdbook/internal/repository"
	"github.com/mamadbah2/herdbook/internal/repository/sheets"
	"github.com/mamadbah2/herdbook/internal/scheduler"
	"github.com/mamadbah2/herdbook/internal/server/handlers"
	"github.com/mamadbah2/herdbook/internal/server/router"
	"github.com/mamadbah2/herdbook/internal/service/animals"
	commandsvc "github.com/mamadbah2/herdbook/internal/service/commands"
	customersvc "github.com/mamadbah2/herdbook/internal/service/customers"
	paymentsvc "github.com/mamadbah2/herdbook/internal/service/payments"
	reportingsvc "github.com/mamadbah2/herdbook/internal/service/reporting"
	whatsappsvc "github.com/mamadbah2/herdbook/internal/service/whatsapp"
	whatsappclient "github.com/mamadbah2/herdbook/pkg/clients/whatsapp"
	"github.com/mamadbah2/herdbook/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}
	if err := cfg.ValidateServer(); err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	db, closeStore, err := repository.Open(context.Background(), cfg, baseLogger.Named("repo"))
	if err != nil {
		baseLogger.Fatal("failed to open document store", zap.Error(err))
	}
	defer func() {
		if err := closeStore(context.Background()); err != nil {
			baseLogger.Error("failed to close document store", zap.Error(err))
		}
	}()

	monitor, err := metrics.NewMonitor(metrics.DefaultCapacity, prometheus.DefaultRegisterer)
	if err != nil {
		baseLogger.Fatal("failed to init performance monitor", zap.Error(err))
	}

	var sheetsRepo sheets.Repository
	if cfg.Sheets.Enabled() {
		repo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		sheetsRepo = repo
	} else {
		baseLogger.Info("google sheets export disabled")
	}

	loc, err := time.LoadLocation(cfg.Reporting.Timezone)
	if err != nil {
		baseLogger.Fatal("invalid reporting timezone", zap.String("timezone", cfg.Reporting.Timezone), zap.Error(err))
	}

	registry := animals.NewRegistry(db, baseLogger.Named("svc.animals"))
	customerSvc := customersvc.NewService(db, registry, monitor, baseLogger.Named("svc.customers"))
	paymentSvc := paymentsvc.NewService(db, monitor, baseLogger.Named("svc.payments"))
	reportingSvc := reportingsvc.NewService(customerSvc, db, sheetsRepo, loc, baseLogger.Named("svc.reporting"))

	h := router.Handlers{
		Customers: handlers.NewCustomerHandler(customerSvc, paymentSvc, baseLogger.Named("handlers.customers")),
		Payments:  handlers.NewPaymentHandler(paymentSvc, baseLogger.Named("handlers.payments")),
		Animals:   handlers.NewAnimalHandler(registry, baseLogger.Named("handlers.animals")),
		Reports:   handlers.NewReportHandler(reportingSvc, monitor, baseLogger.Named("handlers.reports")),
	}

	var notifier scheduler.Notifier
	if cfg.WhatsApp.Enabled() {
		if len(cfg.WhatsApp.AllowedSenders) == 0 {
			baseLogger.Warn("no WHATSAPP_ALLOWED_SENDERS or WHATSAPP_REPORT_TO, chat commands will be ignored")
		}
		if cfg.WhatsApp.AppSecret == "" {
			baseLogger.Warn("WHATSAPP_APP_SECRET missing, webhook signatures are not verified")
		}
		commandDispatcher := commandsvc.NewService(customerSvc, cfg.WhatsApp.ActorID, cfg.WhatsApp.AllowedSenders, baseLogger.Named("svc.commands"))
		whatsClient := whatsappclient.NewClient(cfg.WhatsApp)
		messagingSvc := whatsappsvc.NewMetaWhatsAppService(cfg.WhatsApp, whatsClient, commandDispatcher, baseLogger.Named("svc.whatsapp"))
		h.Webhook = handlers.NewWebhookHandler(messagingSvc, baseLogger.Named("handlers.whatsapp"))
		notifier = messagingSvc
		baseLogger.Info("whatsapp integration enabled")
	} else {
		baseLogger.Warn("whatsapp credentials missing, webhook and report delivery disabled")
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	engine := router.New(h, tokens, monitor, prometheus.DefaultGatherer, baseLogger.Named("router"))

	sched, err := scheduler.NewScheduler(*cfg, reportingSvc, notifier, baseLogger.Named("scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
