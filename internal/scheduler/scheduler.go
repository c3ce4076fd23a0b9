package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/herdbook/internal/auth"
	"github.com/mamadbah2/herdbook/internal/config"
	"github.com/mamadbah2/herdbook/internal/domain/models"
)

const jobTimeout = 2 * time.Minute

// ReportGenerator builds the daily report of the actor carried by ctx.
type ReportGenerator interface {
	GenerateDailyReport(ctx context.Context) (string, error)
}

// Notifier delivers a rendered report.
type Notifier interface {
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// Scheduler runs the daily balance report for every configured actor.
type Scheduler struct {
	cron     *cron.Cron
	reports  ReportGenerator
	notifier Notifier
	cfg      config.ReportingConfig
	reportTo string
	logger   *zap.Logger
}

// NewScheduler creates a scheduler in cfg.Reporting.Timezone. notifier may be
// nil, in which case reports are generated and stored but not sent.
func NewScheduler(cfg config.Config, reports ReportGenerator, notifier Notifier, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := time.LoadLocation(cfg.Reporting.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", cfg.Reporting.Timezone, err)
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		reports:  reports,
		notifier: notifier,
		cfg:      cfg.Reporting,
		reportTo: cfg.WhatsApp.ReportTo,
		logger:   logger,
	}, nil
}

// Start registers the report job and starts the scheduler.
func (s *Scheduler) Start() error {
	if len(s.cfg.ActorIDs) == 0 {
		s.logger.Info("no report actors configured, scheduler idle")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.CronSchedule, s.RunDailyReports); err != nil {
		return fmt.Errorf("schedule daily report %q: %w", s.cfg.CronSchedule, err)
	}

	s.logger.Info("starting scheduler",
		zap.String("schedule", s.cfg.CronSchedule),
		zap.Strings("actors", s.cfg.ActorIDs))
	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// RunDailyReports generates, and when possible sends, the report of every actor.
// A failure for one actor does not stop the others.
func (s *Scheduler) RunDailyReports() {
	for _, actorID := range s.cfg.ActorIDs {
		if err := s.runForActor(actorID); err != nil {
			s.logger.Error("daily report failed", zap.String("actor", actorID), zap.Error(err))
		}
	}
}

func (s *Scheduler) runForActor(actorID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	ctx = auth.WithActor(ctx, actorID)

	report, err := s.reports.GenerateDailyReport(ctx)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	if s.notifier == nil || s.reportTo == "" {
		s.logger.Info("daily report stored", zap.String("actor", actorID))
		return nil
	}

	if err := s.notifier.SendOutbound(ctx, models.OutboundMessageRequest{To: s.reportTo, Message: report}); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	s.logger.Info("daily report sent", zap.String("actor", actorID))
	return nil
}
