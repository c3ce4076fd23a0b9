package migrations

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mamadbah2/herdbook/internal/domain/models"
	"github.com/mamadbah2/herdbook/internal/repository/memory"
	"github.com/mamadbah2/herdbook/internal/repository/store"
)

var (
	fixedNow   = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	legacyTime = time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)
)

func newTestMigrator(s store.Store, dryRun bool) *Migrator {
	m := NewMigrator(s, dryRun, nil)
	m.now = func() time.Time { return fixedNow }
	n := 0
	m.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return m
}

func seedLegacy(t *testing.T, s *memory.Store) {
	t.Helper()
	ctx := context.Background()

	docs := map[string]bson.M{
		"customers/c1": {
			"name":          "أبو خالد",
			"createdAt":     legacyTime.UnixMilli(),
			"totalAmount":   1500,
			"totalPayments": 300,
			"animals": bson.A{
				bson.M{"type": "عجل", "number": 12, "weight": 500, "price": 3, "status": "جاهز", "compositeKey": "عجل-12"},
			},
		},
		"payments/p1": {
			"customerId":  "c1",
			"amount":      300,
			"paymentDate": legacyTime.UnixMilli(),
		},
		"payments/p2": {
			"amount": 50,
		},
		"globalAnimals/عجل-12": {
			"type":       "عجل",
			"number":     "12",
			"weight":     500,
			"price":      3,
			"status":     "حي",
			"customerId": "c1",
		},
	}
	for path, doc := range docs {
		if err := s.Set(ctx, path, doc); err != nil {
			t.Fatalf("seed %s: %v", path, err)
		}
	}
}

func TestScopeToActorNormalizesLegacyRecords(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedLegacy(t, s)

	res, err := newTestMigrator(s, false).ScopeToActor(ctx, "actor-1")
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	if res.Migrated[LegacyCustomers] != 1 || res.Migrated[LegacyPayments] != 1 || res.Migrated[LegacyAnimals] != 1 {
		t.Fatalf("unexpected migrated counts %+v", res.Migrated)
	}
	if res.Failed != 1 || len(res.Warnings) != 1 {
		t.Fatalf("expected the payment without customer to fail, got %+v", res)
	}

	var c models.Customer
	if err := s.Get(ctx, "users/actor-1/customers/c1", &c); err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if len(c.Animals) != 1 {
		t.Fatalf("expected one animal, got %+v", c.Animals)
	}
	a := c.Animals[0]
	if a.Status != models.AnimalReady || a.PricePerUnit != 3 || a.Total != 1500 || a.CompositeKey != "عجل_12" || a.ID == "" {
		t.Fatalf("animal not normalized: %+v", a)
	}
	if c.TotalAmount != 1500 || c.TotalPaidNIS != 300 || c.FinalTotalAmount != 1500 || c.Balance != 1200 {
		t.Fatalf("ledger not recomputed: %+v", c)
	}
	if len(c.Payments) != 1 || c.Payments[0].Notes != carriedOverNote {
		t.Fatalf("expected carried over payment, got %+v", c.Payments)
	}
	if !c.CreatedAt.Equal(legacyTime) || !c.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected timestamps %v %v", c.CreatedAt, c.UpdatedAt)
	}

	var p models.StoredPayment
	if err := s.Get(ctx, "users/actor-1/payments/p1", &p); err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if p.Currency != models.CurrencyNIS || p.Amount != 300 || !p.PaymentDate.Equal(legacyTime) {
		t.Fatalf("payment not normalized: %+v", p)
	}

	var entry models.RegistryEntry
	if err := s.Get(ctx, "users/actor-1/_globalAnimalRegistry/عجل_12", &entry); err != nil {
		t.Fatalf("registry entry must be re-keyed: %v", err)
	}
	if entry.CustomerID != "c1" || entry.Status != models.AnimalAlive {
		t.Fatalf("unexpected registry entry %+v", entry)
	}

	var meta Metadata
	if err := s.Get(ctx, "users/actor-1/metadata/migration", &meta); err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if meta.Version != SchemaVersion || meta.MigratedFrom != "global" || meta.Migrated[LegacyCustomers] != 1 {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}

func TestScopeToActorSkipsPopulatedTargets(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedLegacy(t, s)
	if err := s.Set(ctx, "users/actor-1/customers/existing", bson.M{"name": "موجود"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := newTestMigrator(s, false).ScopeToActor(ctx, "actor-1")
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != LegacyCustomers {
		t.Fatalf("expected customers skipped, got %+v", res.Skipped)
	}
	var c models.Customer
	if err := s.Get(ctx, "users/actor-1/customers/c1", &c); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if res.Migrated[LegacyPayments] != 1 {
		t.Fatalf("other collections must still migrate, got %+v", res.Migrated)
	}
}

func TestScopeToActorDryRunWritesNothing(t *testing.T) {
	s := memory.New()
	seedLegacy(t, s)
	before := s.Len()

	res, err := newTestMigrator(s, true).ScopeToActor(context.Background(), "actor-1")
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	if s.Len() != before {
		t.Fatalf("dry run wrote documents: %d -> %d", before, s.Len())
	}
	if !res.DryRun || res.Migrated[LegacyCustomers] != 1 {
		t.Fatalf("dry run must still report, got %+v", res)
	}
}

func TestScopeToActorRequiresActor(t *testing.T) {
	if _, err := newTestMigrator(memory.New(), false).ScopeToActor(context.Background(), " "); err == nil {
		t.Fatalf("expected error for empty actor")
	}
}

func TestBackupRoundTrip(t *testing.T) {
	s := memory.New()
	seedLegacy(t, s)
	m := newTestMigrator(s, false)

	var buf bytes.Buffer
	backup, err := m.Backup(context.Background(), &buf)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if backup.Count(LegacyCustomers) != 1 || backup.Count(LegacyPayments) != 2 {
		t.Fatalf("unexpected backup counts %d %d", backup.Count(LegacyCustomers), backup.Count(LegacyPayments))
	}

	loaded, err := LoadBackup(&buf)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Count(LegacyPayments) != 2 || loaded.Count(LegacyAnimals) != 1 {
		t.Fatalf("unexpected loaded counts %+v", loaded.Collections)
	}

	var nilBackup *Backup
	if nilBackup.Count(LegacyCustomers) != 0 {
		t.Fatalf("nil backup must count zero")
	}
}

func TestBackfillDiscounts(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	created := primitive.NewDateTimeFromTime(legacyTime)
	err := s.Set(ctx, "users/a/customers/c9", bson.M{
		"name":        "سالم",
		"createdAt":   created,
		"updatedAt":   created,
		"totalAmount": 1000,
		"discount":    bson.M{"amount": 200},
		"animals": bson.A{
			bson.M{"id": "an1", "type": "خروف", "number": "7", "weight": 100, "pricePerUnit": 10, "status": "alive"},
		},
		"payments": bson.A{
			bson.M{"id": "pd1", "paymentDate": created, "parts": bson.A{
				bson.M{"id": "pp1", "amount": 300, "currency": "NIS"},
			}},
		},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	m := newTestMigrator(s, false)
	res, err := m.BackfillDiscounts(ctx, "a")
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if res.Scanned != 1 || res.Updated != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	var c models.Customer
	if err := s.Get(ctx, "users/a/customers/c9", &c); err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.Discount != 200 || c.TotalAmountBeforeDiscount != 1000 || c.FinalTotalAmount != 800 ||
		c.TotalPaidNIS != 300 || c.Balance != 500 {
		t.Fatalf("unexpected backfilled ledger %+v", c)
	}
	if c.Animals[0].ID != "an1" || c.Payments[0].Parts[0].ID != "pp1" {
		t.Fatalf("existing ids must be kept: %+v", c)
	}

	res, err = m.BackfillDiscounts(ctx, "a")
	if err != nil {
		t.Fatalf("second backfill: %v", err)
	}
	if res.Updated != 0 {
		t.Fatalf("backfill must be idempotent, got %+v", res)
	}
}

func TestBackfillDiscountsClampsOverLimitDiscount(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	err := s.Set(ctx, "users/a/customers/c1", bson.M{
		"name":     "x",
		"discount": 250,
		"animals": bson.A{
			bson.M{"id": "an1", "type": "جدي", "number": "1", "weight": 50, "pricePerUnit": 4},
		},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := newTestMigrator(s, false).BackfillDiscounts(ctx, "a"); err != nil {
		t.Fatalf("backfill: %v", err)
	}
	var c models.Customer
	if err := s.Get(ctx, "users/a/customers/c1", &c); err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.TotalAmount != 200 || c.FinalTotalAmount != 0 || c.Balance != 0 {
		t.Fatalf("expected clamped discount, got %+v", c)
	}
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedLegacy(t, s)
	m := newTestMigrator(s, false)

	var buf bytes.Buffer
	backup, err := m.Backup(ctx, &buf)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if _, err := m.ScopeToActor(ctx, "actor-1"); err != nil {
		t.Fatalf("scope: %v", err)
	}

	report, err := m.Verify(ctx, "actor-1", backup)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.OK() {
		t.Fatalf("unexpected errors %v", report.Errors)
	}
	if !report.Collections[LegacyCustomers].Complete {
		t.Fatalf("customers must be complete: %+v", report.Collections)
	}
	if check := report.Collections[LegacyPayments]; check.Complete || check.Legacy != 2 || check.Migrated != 1 {
		t.Fatalf("expected payment mismatch, got %+v", check)
	}
	if len(report.Warnings) == 0 || report.Remnants[LegacyCustomers] != 1 {
		t.Fatalf("expected warnings and remnants, got %+v", report)
	}

	if err := s.Set(ctx, "users/actor-1/customers/broken", bson.M{"name": "x"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	report, err = m.Verify(ctx, "actor-1", nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.OK() {
		t.Fatalf("expected missing field errors")
	}
}
