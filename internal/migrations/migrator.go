// Package migrations moves records written by the single-tenant layout into
// the per-actor layout and backfills derived ledger fields on old records.
package migrations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/mamadbah2/herdbook/internal/domain/ledger"
	"github.com/mamadbah2/herdbook/internal/domain/models"
	"github.com/mamadbah2/herdbook/internal/repository/store"
)

// Root collections of the single-tenant layout.
const (
	LegacyCustomers = "customers"
	LegacyPayments  = "payments"
	LegacyAnimals   = "globalAnimals"
)

// SchemaVersion is recorded in the migration metadata document.
const SchemaVersion = "1.0.0"

const metadataKey = "migration"

// ErrInvalidRecord indicates a legacy record that cannot be normalized.
var ErrInvalidRecord = errors.New("invalid legacy record")

type collectionPlan struct {
	legacy string
	target string
}

var plans = []collectionPlan{
	{legacy: LegacyCustomers, target: store.CollectionCustomers},
	{legacy: LegacyPayments, target: store.CollectionPayments},
	{legacy: LegacyAnimals, target: store.CollectionAnimalRegistry},
}

// Metadata is written to users/{actor}/metadata/migration after a scope run.
type Metadata struct {
	MigratedAt   time.Time      `bson:"migratedAt" json:"migratedAt"`
	MigratedFrom string         `bson:"migratedFrom" json:"migratedFrom"`
	Version      string         `bson:"version" json:"version"`
	Migrated     map[string]int `bson:"migrated" json:"migrated"`
}

// ScopeResult summarizes a ScopeToActor run.
type ScopeResult struct {
	Actor    string         `json:"actor"`
	Migrated map[string]int `json:"migrated"`
	Skipped  []string       `json:"skipped,omitempty"`
	Failed   int            `json:"failed"`
	Warnings []string       `json:"warnings,omitempty"`
	DryRun   bool           `json:"dryRun"`
}

// BackfillResult summarizes a BackfillDiscounts run.
type BackfillResult struct {
	Actor    string   `json:"actor"`
	Scanned  int      `json:"scanned"`
	Updated  int      `json:"updated"`
	Failed   int      `json:"failed"`
	Warnings []string `json:"warnings,omitempty"`
	DryRun   bool     `json:"dryRun"`
}

// Migrator runs the migration steps against a store. In dry-run mode every
// step reads and reports but never writes.
type Migrator struct {
	store  store.Store
	dryRun bool
	logger *zap.Logger
	now    func() time.Time
	newID  ledger.IDFunc
}

// NewMigrator builds a Migrator over s.
func NewMigrator(s store.Store, dryRun bool, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{
		store:  s,
		dryRun: dryRun,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  ledger.NewID,
	}
}

// Backup is a snapshot of the single-tenant collections, keyed by collection
// and then by document key.
type Backup struct {
	CreatedAt   time.Time                      `bson:"createdAt"`
	Collections map[string]map[string]bson.Raw `bson:"collections"`
}

// Count returns the number of documents backed up for collection.
func (b *Backup) Count(collection string) int {
	if b == nil {
		return 0
	}
	return len(b.Collections[collection])
}

// Backup reads every legacy collection and writes it to w as relaxed
// extended JSON.
func (m *Migrator) Backup(ctx context.Context, w io.Writer) (*Backup, error) {
	backup := &Backup{
		CreatedAt:   m.now(),
		Collections: make(map[string]map[string]bson.Raw, len(plans)),
	}

	for _, p := range plans {
		snap, err := m.store.List(ctx, p.legacy)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p.legacy, err)
		}
		docs := make(map[string]bson.Raw, len(snap.Documents))
		for _, d := range snap.Documents {
			docs[d.Key] = d.Data
		}
		backup.Collections[p.legacy] = docs
		m.logger.Info("collection backed up",
			zap.String("collection", p.legacy),
			zap.Int("documents", len(docs)))
	}

	data, err := bson.MarshalExtJSON(backup, false, false)
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}
	return backup, nil
}

// LoadBackup reads a backup produced by Migrator.Backup.
func LoadBackup(r io.Reader) (*Backup, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	var backup Backup
	if err := bson.UnmarshalExtJSON(data, false, &backup); err != nil {
		return nil, fmt.Errorf("decode backup: %w", err)
	}
	return &backup, nil
}

// ScopeToActor copies the legacy collections below users/{actorID}/,
// normalizing every record on the way. A target collection that already holds
// data is skipped. Legacy collections are left in place.
func (m *Migrator) ScopeToActor(ctx context.Context, actorID string) (ScopeResult, error) {
	res := ScopeResult{Actor: actorID, Migrated: make(map[string]int, len(plans)), DryRun: m.dryRun}

	for _, p := range plans {
		target, err := store.UserPath(actorID, p.target)
		if err != nil {
			return res, err
		}

		existing, err := m.store.List(ctx, target)
		if err != nil {
			return res, fmt.Errorf("read %s: %w", target, err)
		}
		if existing.Exists() {
			m.logger.Warn("target already holds data, skipping", zap.String("path", target))
			res.Skipped = append(res.Skipped, p.legacy)
			continue
		}

		legacy, err := m.store.List(ctx, p.legacy)
		if err != nil {
			return res, fmt.Errorf("read %s: %w", p.legacy, err)
		}

		for _, d := range legacy.Documents {
			key, doc, err := m.transform(p.legacy, d)
			if err != nil {
				res.Failed++
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s/%s: %v", p.legacy, d.Key, err))
				m.logger.Warn("legacy record skipped",
					zap.String("collection", p.legacy),
					zap.String("key", d.Key),
					zap.Error(err))
				continue
			}

			if !m.dryRun {
				path, err := store.Join(target, key)
				if err != nil {
					return res, fmt.Errorf("target path for %s/%s: %w", p.legacy, d.Key, err)
				}
				if err := m.store.Set(ctx, path, doc); err != nil {
					return res, fmt.Errorf("write %s: %w", path, err)
				}
			}
			res.Migrated[p.legacy]++
		}

		m.logger.Info("collection scoped",
			zap.String("collection", p.legacy),
			zap.String("target", target),
			zap.Int("documents", res.Migrated[p.legacy]),
			zap.Bool("dry_run", m.dryRun))
	}

	if m.dryRun {
		return res, nil
	}

	metaPath, err := store.UserPath(actorID, store.CollectionMetadata, metadataKey)
	if err != nil {
		return res, err
	}
	meta := Metadata{
		MigratedAt:   m.now(),
		MigratedFrom: "global",
		Version:      SchemaVersion,
		Migrated:     res.Migrated,
	}
	if err := m.store.Set(ctx, metaPath, meta); err != nil {
		return res, fmt.Errorf("write migration metadata: %w", err)
	}
	return res, nil
}

// BackfillDiscounts rewrites every customer of actorID whose stored derived
// fields are missing or disagree with a fresh recomputation. Running it twice
// updates nothing the second time.
func (m *Migrator) BackfillDiscounts(ctx context.Context, actorID string) (BackfillResult, error) {
	res := BackfillResult{Actor: actorID, DryRun: m.dryRun}

	root, err := store.UserPath(actorID, store.CollectionCustomers)
	if err != nil {
		return res, err
	}
	snap, err := m.store.List(ctx, root)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", root, err)
	}

	for _, d := range snap.Documents {
		res.Scanned++

		var raw bson.M
		if err := bson.Unmarshal(d.Data, &raw); err != nil {
			res.Failed++
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", d.Key, err))
			continue
		}
		c, err := m.normalizeCustomer(raw)
		if err != nil {
			res.Failed++
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", d.Key, err))
			m.logger.Warn("customer not backfilled", zap.String("customer_id", d.Key), zap.Error(err))
			continue
		}
		if !needsBackfill(raw, c) {
			continue
		}

		if !m.dryRun {
			path, err := store.Join(root, d.Key)
			if err != nil {
				return res, err
			}
			if err := m.store.Set(ctx, path, c); err != nil {
				return res, fmt.Errorf("write %s: %w", path, err)
			}
		}
		res.Updated++
		m.logger.Debug("customer backfilled",
			zap.String("customer_id", d.Key),
			zap.Float64("final_total_amount", c.FinalTotalAmount),
			zap.Float64("balance", c.Balance))
	}

	m.logger.Info("discount backfill finished",
		zap.String("actor", actorID),
		zap.Int("scanned", res.Scanned),
		zap.Int("updated", res.Updated),
		zap.Bool("dry_run", m.dryRun))
	return res, nil
}

func (m *Migrator) transform(collection string, d store.Document) (string, interface{}, error) {
	var raw bson.M
	if err := bson.Unmarshal(d.Data, &raw); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	switch collection {
	case LegacyCustomers:
		c, err := m.normalizeCustomer(raw)
		return d.Key, c, err
	case LegacyPayments:
		p, err := m.normalizePayment(raw)
		return d.Key, p, err
	case LegacyAnimals:
		entry, err := m.normalizeRegistryEntry(raw)
		return entry.CompositeKey, entry, err
	default:
		return "", nil, fmt.Errorf("unknown legacy collection %q", collection)
	}
}

func needsBackfill(raw bson.M, c models.Customer) bool {
	if _, isDoc := raw["discount"].(bson.M); isDoc {
		return true
	}
	if len(toArray(raw["payments"])) != len(c.Payments) {
		return true
	}

	derived := map[string]float64{
		"totalAmount":               c.TotalAmount,
		"totalAmountBeforeDiscount": c.TotalAmountBeforeDiscount,
		"finalTotalAmount":          c.FinalTotalAmount,
		"totalPaidNIS":              c.TotalPaidNIS,
		"balance":                   c.Balance,
	}
	for field, want := range derived {
		v, ok := raw[field]
		if !ok || !isNumber(v) || !sameAmount(toFloat(v), want) {
			return true
		}
	}
	return false
}
