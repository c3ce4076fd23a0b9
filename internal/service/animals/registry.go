// Package animals maintains the per-actor registry of sold animals keyed by
// composite key, used to detect the same animal being sold twice.
package animals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/herdbook/internal/domain/models"
	"github.com/mamadbah2/herdbook/internal/repository/store"
)

// ErrKeyRequired indicates an empty composite key.
var ErrKeyRequired = errors.New("composite key is required")

// Registry reads and writes users/{actor}/_globalAnimalRegistry.
type Registry struct {
	store  store.Store
	logger *zap.Logger
}

// NewRegistry wires a Registry on top of s.
func NewRegistry(s store.Store, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: s, logger: logger}
}

// AddOrUpdate records animal as sold to customerID under its composite key.
// An entry held by another customer is left in place.
func (r *Registry) AddOrUpdate(ctx context.Context, customerID string, animal models.Animal) error {
	current, ok, err := r.Lookup(ctx, animal.CompositeKey)
	if err != nil {
		return err
	}
	if ok && current.CustomerID != customerID {
		r.logger.Warn("animal registered to another customer",
			zap.String("key", animal.CompositeKey),
			zap.String("owner_id", current.CustomerID),
			zap.String("customer_id", customerID))
		return nil
	}
	path, err := store.ActorPath(ctx, store.CollectionAnimalRegistry, animal.CompositeKey)
	if err != nil {
		return err
	}

	entry := models.RegistryEntry{Animal: animal, CustomerID: customerID}
	if err := r.store.Set(ctx, path, entry); err != nil {
		return fmt.Errorf("register animal %s: %w", animal.CompositeKey, err)
	}
	r.logger.Debug("animal registered", zap.String("key", animal.CompositeKey), zap.String("customer_id", customerID))
	return nil
}

// Remove drops compositeKey from the registry when it is held by customerID.
// Removing a missing key or a key held by someone else is not an error.
func (r *Registry) Remove(ctx context.Context, customerID, compositeKey string) error {
	current, ok, err := r.Lookup(ctx, compositeKey)
	if err != nil || !ok {
		return err
	}
	if current.CustomerID != customerID {
		r.logger.Debug("registry entry kept for its owner",
			zap.String("key", compositeKey),
			zap.String("owner_id", current.CustomerID),
			zap.String("customer_id", customerID))
		return nil
	}
	path, err := store.ActorPath(ctx, store.CollectionAnimalRegistry, compositeKey)
	if err != nil {
		return err
	}
	if err := r.store.Remove(ctx, path); err != nil {
		return fmt.Errorf("unregister animal %s: %w", compositeKey, err)
	}
	return nil
}

// Lookup returns the registry entry of compositeKey and whether it exists.
func (r *Registry) Lookup(ctx context.Context, compositeKey string) (models.RegistryEntry, bool, error) {
	if strings.TrimSpace(compositeKey) == "" {
		return models.RegistryEntry{}, false, ErrKeyRequired
	}
	path, err := store.ActorPath(ctx, store.CollectionAnimalRegistry, compositeKey)
	if err != nil {
		return models.RegistryEntry{}, false, err
	}

	var entry models.RegistryEntry
	err = r.store.Get(ctx, path, &entry)
	if errors.Is(err, store.ErrNotFound) {
		return models.RegistryEntry{}, false, nil
	}
	if err != nil {
		return models.RegistryEntry{}, false, fmt.Errorf("lookup animal %s: %w", compositeKey, err)
	}
	return entry, true, nil
}

// CheckDuplicate reports whether compositeKey is registered to anything but
// animal excludeAnimalID of customerID.
func (r *Registry) CheckDuplicate(ctx context.Context, compositeKey, customerID, excludeAnimalID string) (bool, error) {
	entry, ok, err := r.Lookup(ctx, compositeKey)
	if err != nil || !ok {
		return false, err
	}
	self := excludeAnimalID != "" && entry.ID == excludeAnimalID && entry.CustomerID == customerID
	return !self, nil
}

// List returns every registered animal of the actor ordered by composite key.
func (r *Registry) List(ctx context.Context) ([]models.RegistryEntry, error) {
	path, err := store.ActorPath(ctx, store.CollectionAnimalRegistry)
	if err != nil {
		return nil, err
	}
	snap, err := r.store.List(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("list animal registry: %w", err)
	}
	return store.DecodeAll[models.RegistryEntry](snap, nil)
}
