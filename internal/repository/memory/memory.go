// Package memory is an in-process Store used by tests and the "memory" store driver.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/mamadbah2/herdbook/internal/repository/store"
)

// Store keeps bson-encoded copies of every document keyed by full path.
// Listeners run synchronously on the writing goroutine, after the lock is released.
type Store struct {
	mu        sync.RWMutex
	docs      map[string]bson.Raw
	listeners map[uint64]*subscription
	nextID    uint64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		docs:      make(map[string]bson.Raw),
		listeners: make(map[uint64]*subscription),
	}
}

var _ store.Store = (*Store)(nil)

// Get decodes the document at path into out.
func (s *Store) Get(ctx context.Context, path string, out interface{}) error {
	path, err := store.Join(path)
	if err != nil {
		return err
	}

	s.mu.RLock()
	raw, ok := s.docs[path]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("get %s: %w", path, store.ErrNotFound)
	}
	return store.Document{Key: path, Data: raw}.Decode(out)
}

// List returns the direct children of path ordered by key.
func (s *Store) List(ctx context.Context, path string) (store.Snapshot, error) {
	path, err := store.Join(path)
	if err != nil {
		return store.Snapshot{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(path), nil
}

// Set replaces the document at path.
func (s *Store) Set(ctx context.Context, path string, doc interface{}) error {
	path, err := store.Join(path)
	if err != nil {
		return err
	}
	raw, err := store.Encode(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.docs[path] = raw
	s.mu.Unlock()

	s.notify(path)
	return nil
}

// Push stores doc under a generated UUIDv7 key below path.
func (s *Store) Push(ctx context.Context, path string, doc interface{}) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	full, err := store.Join(path, id.String())
	if err != nil {
		return "", err
	}
	if err := s.Set(ctx, full, doc); err != nil {
		return "", err
	}
	return id.String(), nil
}

// Remove deletes path and all of its descendants.
func (s *Store) Remove(ctx context.Context, path string) error {
	path, err := store.Join(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for key := range s.docs {
		if store.Within(key, path) {
			delete(s.docs, key)
		}
	}
	s.mu.Unlock()

	s.notify(path)
	return nil
}

// Subscribe registers fn for path and delivers the current snapshot at once.
func (s *Store) Subscribe(ctx context.Context, path string, fn store.Listener) (store.Subscription, error) {
	path, err := store.Join(path)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("subscribe %s: nil listener", path)
	}

	s.mu.Lock()
	s.nextID++
	sub := &subscription{id: s.nextID, path: path, fn: fn, owner: s}
	s.listeners[sub.id] = sub
	initial := s.snapshotLocked(path)
	s.mu.Unlock()

	fn(initial)
	return sub, nil
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *Store) snapshotLocked(path string) store.Snapshot {
	snap := store.Snapshot{Path: path}
	for key, raw := range s.docs {
		parent, child := store.Split(key)
		if parent != path {
			continue
		}
		copied := make(bson.Raw, len(raw))
		copy(copied, raw)
		snap.Documents = append(snap.Documents, store.Document{Key: child, Data: copied})
	}
	store.SortDocuments(snap.Documents)
	return snap
}

// notify delivers a fresh snapshot to every subscription whose path contains
// the changed path or lies below a removed subtree.
func (s *Store) notify(changed string) {
	type delivery struct {
		fn   store.Listener
		snap store.Snapshot
	}

	s.mu.RLock()
	var deliveries []delivery
	for _, sub := range s.listeners {
		if store.Within(changed, sub.path) || store.Within(sub.path, changed) {
			deliveries = append(deliveries, delivery{fn: sub.fn, snap: s.snapshotLocked(sub.path)})
		}
	}
	s.mu.RUnlock()

	for _, d := range deliveries {
		d.fn(d.snap)
	}
}

type subscription struct {
	id    uint64
	path  string
	fn    store.Listener
	owner *Store
	once  sync.Once
}

func (sub *subscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.owner.mu.Lock()
		delete(sub.owner.listeners, sub.id)
		sub.owner.mu.Unlock()
	})
}
