package migrations

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/mamadbah2/herdbook/internal/domain/ledger"
	"github.com/mamadbah2/herdbook/internal/domain/models"
	"github.com/mamadbah2/herdbook/internal/repository/store"
)

// CollectionCheck compares one scoped collection with its legacy source.
type CollectionCheck struct {
	Legacy   int  `json:"legacy"`
	Migrated int  `json:"migrated"`
	Complete bool `json:"complete"`
}

// VerifyReport is the outcome of Verify. Errors are structural problems in
// migrated records, Warnings are count mismatches and soft issues, and
// Remnants counts documents still present in the legacy collections.
type VerifyReport struct {
	Actor       string                     `json:"actor"`
	Collections map[string]CollectionCheck `json:"collections"`
	Errors      []string                   `json:"errors,omitempty"`
	Warnings    []string                   `json:"warnings,omitempty"`
	Remnants    map[string]int             `json:"remnants,omitempty"`
}

// OK reports whether no structural error was found.
func (r VerifyReport) OK() bool {
	return len(r.Errors) == 0
}

func (r *VerifyReport) errorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *VerifyReport) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

var (
	requiredCustomerFields = []string{"name", "animals", "totalAmount", "createdAt"}
	requiredAnimalFields   = []string{"type", "number", "weight", "pricePerUnit"}
	requiredPaymentFields  = []string{"customerId", "amount", "paymentDate", "createdAt"}
)

// Verify checks the scoped collections of actorID. Counts are compared with
// backup when given, otherwise with the legacy collections as they are now.
func (m *Migrator) Verify(ctx context.Context, actorID string, backup *Backup) (VerifyReport, error) {
	report := VerifyReport{
		Actor:       actorID,
		Collections: make(map[string]CollectionCheck, len(plans)),
		Remnants:    make(map[string]int),
	}

	for _, p := range plans {
		legacy, err := m.store.List(ctx, p.legacy)
		if err != nil {
			return report, fmt.Errorf("read %s: %w", p.legacy, err)
		}
		if legacy.Exists() {
			report.Remnants[p.legacy] = len(legacy.Documents)
		}

		target, err := store.UserPath(actorID, p.target)
		if err != nil {
			return report, err
		}
		scoped, err := m.store.List(ctx, target)
		if err != nil {
			return report, fmt.Errorf("read %s: %w", target, err)
		}

		check := CollectionCheck{Legacy: len(legacy.Documents), Migrated: len(scoped.Documents)}
		if backup != nil {
			check.Legacy = backup.Count(p.legacy)
		}
		check.Complete = check.Legacy == check.Migrated
		report.Collections[p.legacy] = check

		switch {
		case check.Migrated == 0 && check.Legacy > 0:
			report.warnf("no %s data found for %s", p.target, actorID)
		case !check.Complete:
			report.warnf("%s count mismatch: migrated=%d, legacy=%d", p.target, check.Migrated, check.Legacy)
		}

		for _, d := range scoped.Documents {
			var raw bson.M
			if err := bson.Unmarshal(d.Data, &raw); err != nil {
				report.errorf("%s/%s cannot be decoded: %v", p.target, d.Key, err)
				continue
			}
			switch p.legacy {
			case LegacyCustomers:
				checkCustomer(&report, d.Key, raw)
			case LegacyPayments:
				checkPayment(&report, d.Key, raw)
			}
		}
	}

	m.logger.Info("migration verified",
		zap.String("actor", actorID),
		zap.Int("errors", len(report.Errors)),
		zap.Int("warnings", len(report.Warnings)))
	return report, nil
}

func checkCustomer(report *VerifyReport, id string, raw bson.M) {
	for _, field := range requiredCustomerFields {
		if _, ok := raw[field]; !ok {
			report.errorf("customer %s missing required field: %s", id, field)
		}
	}

	switch raw["animals"].(type) {
	case bson.A, nil:
	default:
		report.warnf("customer %s has invalid animals array", id)
	}

	for i, item := range toArray(raw["animals"]) {
		animal, ok := item.(bson.M)
		if !ok {
			report.errorf("customer %s animal %d is not a document", id, i)
			continue
		}
		for _, field := range requiredAnimalFields {
			if _, ok := animal[field]; !ok {
				report.errorf("customer %s animal %d missing field: %s", id, i, field)
			}
		}
		if !models.AnimalStatus(toString(animal["status"])).Valid() {
			report.errorf("customer %s animal %d has unknown status %q", id, i, toString(animal["status"]))
		}
		want := ledger.CompositeKey(toString(animal["type"]), toString(animal["number"]))
		if key := toString(animal["compositeKey"]); key != want {
			report.warnf("customer %s animal %d has composite key %q, want %q", id, i, key, want)
		}
	}

	if v, ok := raw["totalAmount"]; ok && (!isNumber(v) || toFloat(v) < 0) {
		report.errorf("customer %s has invalid totalAmount", id)
	}
	if v, ok := raw["balance"]; ok && !isNumber(v) {
		report.errorf("customer %s has invalid balance", id)
	}
}

func checkPayment(report *VerifyReport, id string, raw bson.M) {
	for _, field := range requiredPaymentFields {
		if _, ok := raw[field]; !ok {
			report.errorf("payment %s missing required field: %s", id, field)
		}
	}
	if v, ok := raw["amount"]; ok && (!isNumber(v) || toFloat(v) <= 0) {
		report.errorf("payment %s has invalid amount", id)
	}
	if v, ok := raw["paymentDate"]; ok {
		if _, isDate := v.(primitive.DateTime); !isDate {
			report.errorf("payment %s has invalid paymentDate", id)
		}
	}
}
