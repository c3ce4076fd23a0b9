package reporting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/herdbook/internal/auth"
	"github.com/mamadbah2/herdbook/internal/domain/discount"
	"github.com/mamadbah2/herdbook/internal/domain/models"
	"github.com/mamadbah2/herdbook/internal/repository/sheets"
	"github.com/mamadbah2/herdbook/internal/repository/store"
)

const (
	dateLayout    = "2006-01-02"
	ledgerColumns = "A:I"
	summarySheet  = "Summary"
	summaryRange  = "Summary!A:H"
	maxDebtors    = 10
)

// LedgerSheet is the title of the sheet holding actorID's customer ledger.
func LedgerSheet(actorID string) string {
	return "Ledger " + actorID
}

// CustomerLister is the read side of the customer service used for reports.
type CustomerLister interface {
	ListCustomers(ctx context.Context) ([]models.Customer, error)
}

// Service builds balance summaries of an actor's customers.
type Service struct {
	customers CustomerLister
	store     store.Store
	sheets    sheets.Repository
	location  *time.Location
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires a new reporting service instance. sheetsRepo may be nil,
// in which case exports are skipped; loc defaults to UTC.
func NewService(customers CustomerLister, s store.Store, sheetsRepo sheets.Repository, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		customers: customers,
		store:     s,
		sheets:    sheetsRepo,
		location:  loc,
		logger:    logger,
		now:       time.Now,
	}
}

// BalanceReport aggregates the ledgers of every customer of the actor in ctx.
func (s *Service) BalanceReport(ctx context.Context) (models.BalanceReport, error) {
	customers, err := s.customers.ListCustomers(ctx)
	if err != nil {
		return models.BalanceReport{}, fmt.Errorf("load customers: %w", err)
	}
	return Summarize(customers, s.now().In(s.location)), nil
}

// Summarize builds a report from customers. Debtors are ordered by balance,
// largest first.
func Summarize(customers []models.Customer, at time.Time) models.BalanceReport {
	report := models.BalanceReport{
		Date:            at,
		Customers:       len(customers),
		Debtors:         []models.DebtorLine{},
		AnimalsByStatus: map[string]int{},
		CreatedAt:       at,
	}

	sales, discounts, paid := decimal.Zero, decimal.Zero, decimal.Zero
	outstanding, overpaid := decimal.Zero, decimal.Zero
	for _, c := range customers {
		sales = sales.Add(decimal.NewFromFloat(c.TotalAmount))
		discounts = discounts.Add(decimal.NewFromFloat(discount.Calculate(c.TotalAmount, c.Discount).EffectiveDiscount))
		paid = paid.Add(decimal.NewFromFloat(c.TotalPaidNIS))

		balance := decimal.NewFromFloat(c.Balance)
		switch {
		case balance.IsPositive():
			outstanding = outstanding.Add(balance)
			report.Debtors = append(report.Debtors, models.DebtorLine{
				CustomerID:       c.ID,
				Name:             c.Name,
				Phone:            c.Phone,
				FinalTotalAmount: c.FinalTotalAmount,
				TotalPaidNIS:     c.TotalPaidNIS,
				Balance:          c.Balance,
			})
		case balance.IsNegative():
			overpaid = overpaid.Add(balance.Neg())
		}

		for _, a := range c.Animals {
			report.AnimalsByStatus[string(a.Status)]++
		}
	}

	sort.SliceStable(report.Debtors, func(i, j int) bool {
		return report.Debtors[i].Balance > report.Debtors[j].Balance
	})

	report.TotalSales = sales.InexactFloat64()
	report.TotalDiscounts = discounts.InexactFloat64()
	report.TotalPaidNIS = paid.InexactFloat64()
	report.Outstanding = outstanding.InexactFloat64()
	report.Overpaid = overpaid.InexactFloat64()
	return report
}

// FormatBalanceReport renders report as a chat message.
func FormatBalanceReport(report models.BalanceReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Balance report %s\n", report.Date.Format(dateLayout))
	fmt.Fprintf(&b, "Customers: %d\n", report.Customers)
	fmt.Fprintf(&b, "Sales: %s\n", money(report.TotalSales))
	fmt.Fprintf(&b, "Discounts: %s\n", money(report.TotalDiscounts))
	fmt.Fprintf(&b, "Paid: %s\n", money(report.TotalPaidNIS))
	fmt.Fprintf(&b, "Outstanding: %s", money(report.Outstanding))
	if report.Overpaid > 0 {
		fmt.Fprintf(&b, "\nOverpaid: %s", money(report.Overpaid))
	}

	if len(report.Debtors) == 0 {
		b.WriteString("\nNo open balances.")
		return b.String()
	}

	b.WriteString("\n\nTop balances:")
	for i, d := range report.Debtors {
		if i == maxDebtors {
			fmt.Fprintf(&b, "\n... and %d more", len(report.Debtors)-maxDebtors)
			break
		}
		fmt.Fprintf(&b, "\n%d. %s: %s", i+1, d.Name, money(d.Balance))
	}
	return b.String()
}

// FormatCustomerLine renders one customer's ledger on a single line.
func FormatCustomerLine(c models.Customer) string {
	line := fmt.Sprintf("%s: total %s, paid %s, balance %s", c.Name, money(c.FinalTotalAmount), money(c.TotalPaidNIS), money(c.Balance))
	if discount.HasActive(c.Discount) {
		line += " (" + discount.FormatDisplay(c.Discount, discount.DefaultCurrencySymbol) + ")"
	}
	return line
}

// SaveReport stores report under users/{actor}/reports/{date}.
func (s *Service) SaveReport(ctx context.Context, report models.BalanceReport) error {
	path, err := store.ActorPath(ctx, store.CollectionReports, report.Date.Format(dateLayout))
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, path, report); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// ExportToSheets writes the customer ledger to the actor's own ledger sheet
// and appends the report totals, tagged with the actor, to the shared Summary
// sheet. It is a no-op without a spreadsheet.
func (s *Service) ExportToSheets(ctx context.Context, customers []models.Customer, report models.BalanceReport) error {
	if s.sheets == nil {
		return nil
	}
	actorID, err := auth.ActorFromContext(ctx)
	if err != nil {
		return err
	}
	ledgerSheet := LedgerSheet(actorID)
	for _, title := range []string{ledgerSheet, summarySheet} {
		if err := s.sheets.EnsureSheet(ctx, title); err != nil {
			return fmt.Errorf("prepare sheet %s: %w", title, err)
		}
	}

	rows := make([][]interface{}, 0, len(customers)+1)
	rows = append(rows, []interface{}{"ID", "Name", "Phone", "Animals", "Total", "Discount", "Final", "Paid", "Balance"})
	for _, c := range customers {
		rows = append(rows, []interface{}{
			c.ID, c.Name, c.Phone, len(c.Animals),
			c.TotalAmount, c.Discount, c.FinalTotalAmount, c.TotalPaidNIS, c.Balance,
		})
	}
	if err := s.sheets.ReplaceRange(ctx, sheets.Range(ledgerSheet, ledgerColumns), rows); err != nil {
		return fmt.Errorf("export ledger: %w", err)
	}

	summary := []interface{}{
		report.Date.Format(dateLayout), actorID, report.Customers, report.TotalSales,
		report.TotalDiscounts, report.TotalPaidNIS, report.Outstanding, report.Overpaid,
	}
	if err := s.sheets.AppendRows(ctx, summaryRange, [][]interface{}{summary}); err != nil {
		return fmt.Errorf("export summary: %w", err)
	}
	return nil
}

// GenerateDailyReport builds, stores and exports the report of the actor in
// ctx and returns its chat rendering. Export failures are logged, not returned.
func (s *Service) GenerateDailyReport(ctx context.Context) (string, error) {
	customers, err := s.customers.ListCustomers(ctx)
	if err != nil {
		return "", fmt.Errorf("load customers: %w", err)
	}
	report := Summarize(customers, s.now().In(s.location))

	if err := s.SaveReport(ctx, report); err != nil {
		return "", err
	}
	if err := s.ExportToSheets(ctx, customers, report); err != nil {
		s.logger.Error("sheets export failed", zap.Error(err))
	}

	s.logger.Info("daily report generated",
		zap.Int("customers", report.Customers),
		zap.Float64("outstanding", report.Outstanding))
	return FormatBalanceReport(report), nil
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + " " + discount.DefaultCurrencySymbol
}
