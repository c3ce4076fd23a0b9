package reporting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mamadbah2/herdbook/internal/auth"
	"github.com/mamadbah2/herdbook/internal/domain/models"
	"github.com/mamadbah2/herdbook/internal/repository/memory"
	"github.com/mamadbah2/herdbook/internal/repository/store"
)

type stubCustomers struct {
	customers []models.Customer
	err       error
}

func (s stubCustomers) ListCustomers(context.Context) ([]models.Customer, error) {
	return s.customers, s.err
}

type recordingSheets struct {
	ensured  map[string]int
	appended map[string][][]interface{}
	replaced map[string][][]interface{}
	err      error
}

func newRecordingSheets() *recordingSheets {
	return &recordingSheets{ensured: map[string]int{}, appended: map[string][][]interface{}{}, replaced: map[string][][]interface{}{}}
}

func (r *recordingSheets) EnsureSheet(_ context.Context, title string) error {
	if r.err != nil {
		return r.err
	}
	r.ensured[title]++
	return nil
}

func (r *recordingSheets) AppendRows(_ context.Context, sheetRange string, rows [][]interface{}) error {
	if r.err != nil {
		return r.err
	}
	r.appended[sheetRange] = append(r.appended[sheetRange], rows...)
	return nil
}

func (r *recordingSheets) ReplaceRange(_ context.Context, sheetRange string, rows [][]interface{}) error {
	if r.err != nil {
		return r.err
	}
	r.replaced[sheetRange] = rows
	return nil
}

var reportDay = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

func sampleCustomers() []models.Customer {
	return []models.Customer{
		{
			ID: "c1", Name: "Small debt", TotalAmount: 1000, Discount: 100,
			FinalTotalAmount: 900, TotalPaidNIS: 800, Balance: 100,
			Animals: []models.Animal{{Status: models.AnimalAlive}, {Status: models.AnimalReady}},
		},
		{
			ID: "c2", Name: "Big debt", TotalAmount: 2000,
			FinalTotalAmount: 2000, TotalPaidNIS: 500, Balance: 1500,
			Animals: []models.Animal{{Status: models.AnimalAlive}},
		},
		{
			ID: "c3", Name: "Overpaid", TotalAmount: 300, Discount: 500,
			FinalTotalAmount: 0, TotalPaidNIS: 50, Balance: -50,
		},
	}
}

func TestSummarize(t *testing.T) {
	report := Summarize(sampleCustomers(), reportDay)

	if report.Customers != 3 || report.TotalSales != 3300 {
		t.Fatalf("unexpected totals %+v", report)
	}
	// c3's discount is clamped to its 300 total.
	if report.TotalDiscounts != 400 {
		t.Fatalf("expected discounts 400 got %v", report.TotalDiscounts)
	}
	if report.Outstanding != 1600 || report.Overpaid != 50 || report.TotalPaidNIS != 1350 {
		t.Fatalf("unexpected balances %+v", report)
	}
	if len(report.Debtors) != 2 || report.Debtors[0].CustomerID != "c2" {
		t.Fatalf("debtors not ordered by balance: %+v", report.Debtors)
	}
	if report.AnimalsByStatus["alive"] != 2 || report.AnimalsByStatus["ready"] != 1 {
		t.Fatalf("unexpected status counts %v", report.AnimalsByStatus)
	}

	text := FormatBalanceReport(report)
	for _, want := range []string{"2024-05-01", "Outstanding: 1600.00", "1. Big debt", "Overpaid: 50.00"} {
		if !strings.Contains(text, want) {
			t.Fatalf("report text missing %q:\n%s", want, text)
		}
	}
}

func TestFormatEmptyReport(t *testing.T) {
	text := FormatBalanceReport(Summarize(nil, reportDay))
	if !strings.Contains(text, "No open balances.") {
		t.Fatalf("unexpected text %s", text)
	}
}

func TestFormatCustomerLine(t *testing.T) {
	line := FormatCustomerLine(sampleCustomers()[0])
	if !strings.Contains(line, "balance 100.00") || !strings.Contains(line, "خصم") {
		t.Fatalf("unexpected line %s", line)
	}
	if strings.Contains(FormatCustomerLine(sampleCustomers()[1]), "خصم") {
		t.Fatalf("no discount text expected without discount")
	}
}

func TestGenerateDailyReport(t *testing.T) {
	s := memory.New()
	sheets := newRecordingSheets()
	svc := NewService(stubCustomers{customers: sampleCustomers()}, s, sheets, nil, nil)
	svc.now = func() time.Time { return reportDay }
	ctx := auth.WithActor(context.Background(), "actor-1")

	text, err := svc.GenerateDailyReport(ctx)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(text, "Customers: 3") {
		t.Fatalf("unexpected text %s", text)
	}

	var stored models.BalanceReport
	path, _ := store.UserPath("actor-1", store.CollectionReports, "2024-05-01")
	if err := s.Get(ctx, path, &stored); err != nil {
		t.Fatalf("report not stored: %v", err)
	}
	if stored.Outstanding != 1600 {
		t.Fatalf("unexpected stored report %+v", stored)
	}

	if rows := sheets.replaced["'Ledger actor-1'!A:I"]; len(rows) != 4 {
		t.Fatalf("expected header plus 3 ledger rows got %d", len(rows))
	}
	if rows := sheets.appended[summaryRange]; len(rows) != 1 {
		t.Fatalf("expected 1 summary row got %d", len(rows))
	}
	if sheets.ensured["Ledger actor-1"] != 1 || sheets.ensured["Summary"] != 1 {
		t.Fatalf("sheets not prepared: %v", sheets.ensured)
	}
}

func TestExportKeepsActorsApart(t *testing.T) {
	sheets := newRecordingSheets()
	ledgers := map[string][]models.Customer{
		"actor-1": sampleCustomers(),
		"actor-2": sampleCustomers()[:1],
	}

	for _, actor := range []string{"actor-1", "actor-2"} {
		svc := NewService(stubCustomers{customers: ledgers[actor]}, memory.New(), sheets, nil, nil)
		svc.now = func() time.Time { return reportDay }
		if _, err := svc.GenerateDailyReport(auth.WithActor(context.Background(), actor)); err != nil {
			t.Fatalf("generate %s: %v", actor, err)
		}
	}

	if len(sheets.replaced) != 2 {
		t.Fatalf("expected one ledger range per actor, got %v", len(sheets.replaced))
	}
	if rows := sheets.replaced["'Ledger actor-1'!A:I"]; len(rows) != 4 {
		t.Fatalf("actor-1 ledger overwritten: %d rows", len(rows))
	}
	if rows := sheets.replaced["'Ledger actor-2'!A:I"]; len(rows) != 2 {
		t.Fatalf("unexpected actor-2 ledger: %d rows", len(rows))
	}

	summary := sheets.appended[summaryRange]
	if len(summary) != 2 || summary[0][1] != "actor-1" || summary[1][1] != "actor-2" {
		t.Fatalf("summary rows must carry the actor id: %v", summary)
	}
}

func TestGenerateDailyReportToleratesExportFailure(t *testing.T) {
	sheets := newRecordingSheets()
	sheets.err = errors.New("quota")
	svc := NewService(stubCustomers{customers: sampleCustomers()}, memory.New(), sheets, nil, nil)
	ctx := auth.WithActor(context.Background(), "actor-1")

	if _, err := svc.GenerateDailyReport(ctx); err != nil {
		t.Fatalf("export failure must not fail the report: %v", err)
	}
}

func TestGenerateDailyReportRequiresActor(t *testing.T) {
	svc := NewService(stubCustomers{}, memory.New(), nil, nil, nil)
	if _, err := svc.GenerateDailyReport(context.Background()); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated got %v", err)
	}
}
