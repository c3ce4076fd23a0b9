package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/mamadbah2/herdbook/internal/auth"
	"github.com/mamadbah2/herdbook/internal/config"
	"github.com/mamadbah2/herdbook/internal/domain/models"
)

type fakeReports struct {
	actors []string
	fail   map[string]bool
}

func (f *fakeReports) GenerateDailyReport(ctx context.Context) (string, error) {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return "", err
	}
	f.actors = append(f.actors, actor)
	if f.fail[actor] {
		return "", errors.New("boom")
	}
	return "report for " + actor, nil
}

type fakeNotifier struct {
	sent []models.OutboundMessageRequest
}

func (f *fakeNotifier) SendOutbound(_ context.Context, req models.OutboundMessageRequest) error {
	f.sent = append(f.sent, req)
	return nil
}

func testConfig() config.Config {
	return config.Config{
		Reporting: config.ReportingConfig{CronSchedule: "0 20 * * *", Timezone: "UTC", ActorIDs: []string{"a", "b", "c"}},
		WhatsApp:  config.WhatsAppConfig{ReportTo: "9725"},
	}
}

func TestRunDailyReportsContinuesAfterFailure(t *testing.T) {
	reports := &fakeReports{fail: map[string]bool{"b": true}}
	notifier := &fakeNotifier{}
	s, err := NewScheduler(testConfig(), reports, notifier, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	s.RunDailyReports()

	if len(reports.actors) != 3 {
		t.Fatalf("expected every actor to run, got %v", reports.actors)
	}
	if len(notifier.sent) != 2 || notifier.sent[1].Message != "report for c" || notifier.sent[0].To != "9725" {
		t.Fatalf("unexpected sends %+v", notifier.sent)
	}
}

func TestRunDailyReportsWithoutNotifier(t *testing.T) {
	reports := &fakeReports{}
	s, err := NewScheduler(testConfig(), reports, nil, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.RunDailyReports()
	if len(reports.actors) != 3 {
		t.Fatalf("reports must still be generated, got %v", reports.actors)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Reporting.CronSchedule = "not a schedule"
	s, err := NewScheduler(cfg, &fakeReports{}, nil, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Fatalf("expected schedule error")
	}
}

func TestStartStop(t *testing.T) {
	s, err := NewScheduler(testConfig(), &fakeReports{}, nil, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop()
}

func TestNewSchedulerRejectsUnknownTimezone(t *testing.T) {
	cfg := testConfig()
	cfg.Reporting.Timezone = "Mars/Olympus"
	if _, err := NewScheduler(cfg, &fakeReports{}, nil, nil); err == nil {
		t.Fatalf("expected timezone error")
	}
}
