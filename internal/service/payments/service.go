// Package payments maintains the standalone payment log. The log is advisory:
// customer balances are derived from the payments embedded in each customer
// record, and Reconcile reports where the two disagree.
package payments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/herdbook/internal/domain/ledger"
	"github.com/mamadbah2/herdbook/internal/domain/models"
	"github.com/mamadbah2/herdbook/internal/metrics"
	"github.com/mamadbah2/herdbook/internal/repository/store"
)

var (
	// ErrPaymentNotFound indicates the log entry does not exist.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrInvalidAmount indicates a non-positive payment amount.
	ErrInvalidAmount = errors.New("payment amount must be positive")
	// ErrCustomerRequired indicates a payment without a customer id.
	ErrCustomerRequired = errors.New("payment customer id is required")
)

// Service implements the payment log operations.
type Service struct {
	store   store.Store
	monitor *metrics.Monitor
	logger  *zap.Logger
	now     func() time.Time
}

// NewService wires the payment log. monitor may be nil.
func NewService(s store.Store, monitor *metrics.Monitor, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   s,
		monitor: monitor,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// AddPayment appends an entry to the log and returns it with its id.
func (s *Service) AddPayment(ctx context.Context, in models.NewPayment) (models.StoredPayment, error) {
	defer s.monitor.StartMeasurement("payments.add")()

	collection, err := store.ActorPath(ctx, store.CollectionPayments)
	if err != nil {
		return models.StoredPayment{}, err
	}

	payment, err := s.build(in)
	if err != nil {
		return models.StoredPayment{}, err
	}
	now := s.now()
	payment.CreatedAt, payment.UpdatedAt = now, now

	id, err := s.store.Push(ctx, collection, payment)
	if err != nil {
		return models.StoredPayment{}, fmt.Errorf("add payment: %w", err)
	}
	payment.ID = id

	s.logger.Info("payment logged",
		zap.String("payment_id", id),
		zap.String("customer_id", payment.CustomerID),
		zap.Float64("amount", payment.Amount),
		zap.String("currency", string(payment.Currency)),
	)
	return payment, nil
}

// UpdatePayment replaces the fields of an existing entry.
func (s *Service) UpdatePayment(ctx context.Context, id string, in models.NewPayment) (models.StoredPayment, error) {
	defer s.monitor.StartMeasurement("payments.update")()

	existing, path, err := s.load(ctx, id)
	if err != nil {
		return models.StoredPayment{}, err
	}
	payment, err := s.build(in)
	if err != nil {
		return models.StoredPayment{}, err
	}
	payment.ID = id
	payment.CreatedAt = existing.CreatedAt
	payment.UpdatedAt = s.now()

	if err := s.store.Set(ctx, path, payment); err != nil {
		return models.StoredPayment{}, fmt.Errorf("update payment %s: %w", id, err)
	}
	return payment, nil
}

// DeletePayment removes an entry from the log.
func (s *Service) DeletePayment(ctx context.Context, id string) error {
	defer s.monitor.StartMeasurement("payments.delete")()

	_, path, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Remove(ctx, path); err != nil {
		return fmt.Errorf("delete payment %s: %w", id, err)
	}
	s.logger.Info("payment deleted", zap.String("payment_id", id))
	return nil
}

// GetPayment loads one entry.
func (s *Service) GetPayment(ctx context.Context, id string) (models.StoredPayment, error) {
	payment, _, err := s.load(ctx, id)
	return payment, err
}

// ListPayments returns every entry of the actor ordered by payment date.
func (s *Service) ListPayments(ctx context.Context) ([]models.StoredPayment, error) {
	collection, err := store.ActorPath(ctx, store.CollectionPayments)
	if err != nil {
		return nil, err
	}
	snap, err := s.store.List(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	payments, err := store.DecodeAll(snap, func(p *models.StoredPayment, key string) { p.ID = key })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].PaymentDate.Before(payments[j].PaymentDate)
	})
	return payments, nil
}

// GetPaymentsByCustomerID returns the entries recorded for customerID.
func (s *Service) GetPaymentsByCustomerID(ctx context.Context, customerID string) ([]models.StoredPayment, error) {
	all, err := s.ListPayments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.StoredPayment, 0, len(all))
	for _, p := range all {
		if p.CustomerID == customerID {
			out = append(out, p)
		}
	}
	return out, nil
}

// TotalPaidForCustomerNIS sums the NIS contribution of the customer's entries.
func (s *Service) TotalPaidForCustomerNIS(ctx context.Context, customerID string) (float64, error) {
	entries, err := s.GetPaymentsByCustomerID(ctx, customerID)
	if err != nil {
		return 0, err
	}
	return totalNIS(entries), nil
}

// Reconcile compares the log with the customer's embedded payments. It never
// modifies either side.
func (s *Service) Reconcile(ctx context.Context, customer models.Customer) (models.Reconciliation, error) {
	logTotal, err := s.TotalPaidForCustomerNIS(ctx, customer.ID)
	if err != nil {
		return models.Reconciliation{}, err
	}

	ledgerTotal := decimal.Zero
	for _, p := range customer.Payments {
		ledgerTotal = ledgerTotal.Add(decimal.NewFromFloat(ledger.TransactionTotal(p.Parts)))
	}
	diff := ledgerTotal.Sub(decimal.NewFromFloat(logTotal))

	rec := models.Reconciliation{
		CustomerID:    customer.ID,
		LedgerPaidNIS: ledgerTotal.InexactFloat64(),
		LogPaidNIS:    logTotal,
		Difference:    diff.InexactFloat64(),
		InSync:        diff.IsZero(),
	}
	if !rec.InSync {
		s.logger.Warn("payment log out of sync with customer ledger",
			zap.String("customer_id", customer.ID),
			zap.Float64("difference", rec.Difference),
		)
	}
	return rec, nil
}

func (s *Service) build(in models.NewPayment) (models.StoredPayment, error) {
	customerID := strings.TrimSpace(in.CustomerID)
	if customerID == "" {
		return models.StoredPayment{}, ErrCustomerRequired
	}
	if in.Amount <= 0 {
		return models.StoredPayment{}, ErrInvalidAmount
	}
	currency := in.Currency
	if currency == "" {
		currency = models.CurrencyNIS
	}
	if err := ledger.ValidateAmount(currency, in.NISEquivalent); err != nil {
		return models.StoredPayment{}, err
	}

	date := in.PaymentDate
	if date.IsZero() {
		date = s.now()
	}
	return models.StoredPayment{
		CustomerID:    customerID,
		Amount:        in.Amount,
		Currency:      currency,
		NISEquivalent: in.NISEquivalent,
		PaymentDate:   date,
		Method:        in.Method,
		Notes:         in.Notes,
	}, nil
}

func (s *Service) load(ctx context.Context, id string) (models.StoredPayment, string, error) {
	if strings.TrimSpace(id) == "" {
		return models.StoredPayment{}, "", ErrPaymentNotFound
	}
	path, err := store.ActorPath(ctx, store.CollectionPayments, id)
	if err != nil {
		return models.StoredPayment{}, "", err
	}

	var payment models.StoredPayment
	if err := s.store.Get(ctx, path, &payment); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.StoredPayment{}, "", fmt.Errorf("%w: %s", ErrPaymentNotFound, id)
		}
		return models.StoredPayment{}, "", fmt.Errorf("load payment %s: %w", id, err)
	}
	payment.ID = id
	return payment, path, nil
}

func totalNIS(entries []models.StoredPayment) float64 {
	sum := decimal.Zero
	for _, p := range entries {
		sum = sum.Add(decimal.NewFromFloat(ledger.NISContribution(p.Amount, p.Currency, p.NISEquivalent)))
	}
	return sum.InexactFloat64()
}
