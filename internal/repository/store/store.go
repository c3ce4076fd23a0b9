// Package store defines the generic, path-addressed document access layer
// shared by every service. Paths look like "users/{actor}/customers/{id}".
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mamadbah2/herdbook/internal/auth"
)

// Collection names below users/{actor}/.
const (
	CollectionCustomers      = "customers"
	CollectionPayments       = "payments"
	CollectionAnimalRegistry = "_globalAnimalRegistry"
	CollectionMetadata       = "metadata"
	CollectionReports        = "reports"
)

var (
	// ErrNotFound is returned by Get when no document exists at the path.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidPath indicates an empty path, an empty path segment or a
	// segment that would escape its actor's tree.
	ErrInvalidPath = errors.New("invalid document path")
)

// Store is the read/subscribe/write/delete surface over path strings.
type Store interface {
	// Get decodes the document at path into out.
	Get(ctx context.Context, path string, out interface{}) error
	// List returns the direct children of path.
	List(ctx context.Context, path string) (Snapshot, error)
	// Set replaces the document at path.
	Set(ctx context.Context, path string, doc interface{}) error
	// Push stores doc under a generated, time-ordered key below path.
	Push(ctx context.Context, path string, doc interface{}) (string, error)
	// Remove deletes the document at path and everything below it.
	Remove(ctx context.Context, path string) error
	// Subscribe delivers the current children of path and then a full
	// replacement snapshot after every change below path.
	Subscribe(ctx context.Context, path string, fn Listener) (Subscription, error)
}

// Listener receives snapshots from a subscription.
type Listener func(Snapshot)

// Subscription is a live registration returned by Subscribe.
type Subscription interface {
	Unsubscribe()
}

// Document is one stored document with its key.
type Document struct {
	Key  string
	Data bson.Raw
}

// Decode unmarshals the document into out.
func (d Document) Decode(out interface{}) error {
	if err := bson.Unmarshal(d.Data, out); err != nil {
		return fmt.Errorf("decode document %s: %w", d.Key, err)
	}
	return nil
}

// Snapshot is the full set of children of a path at one point in time.
type Snapshot struct {
	Path      string
	Documents []Document
}

// Exists reports whether the snapshot holds any document.
func (s Snapshot) Exists() bool {
	return len(s.Documents) > 0
}

// Keys returns the document keys in snapshot order.
func (s Snapshot) Keys() []string {
	keys := make([]string, len(s.Documents))
	for i, d := range s.Documents {
		keys[i] = d.Key
	}
	return keys
}

// DecodeAll decodes every document of s and hands each key to setKey.
func DecodeAll[T any](s Snapshot, setKey func(*T, string)) ([]T, error) {
	out := make([]T, 0, len(s.Documents))
	for _, d := range s.Documents {
		var item T
		if err := d.Decode(&item); err != nil {
			return nil, err
		}
		if setKey != nil {
			setKey(&item, d.Key)
		}
		out = append(out, item)
	}
	return out, nil
}

// Encode marshals doc into its stored form.
func Encode(doc interface{}) (bson.Raw, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return bson.Raw(raw), nil
}

// Join builds a path from segments, rejecting empty segments.
func Join(segments ...string) (string, error) {
	cleaned := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s == "" {
			return "", ErrInvalidPath
		}
		cleaned = append(cleaned, s)
	}
	if len(cleaned) == 0 {
		return "", ErrInvalidPath
	}
	return strings.Join(cleaned, "/"), nil
}

// UserPath scopes a collection (and optional sub keys) to actorID. The actor
// id and every key must be a single segment.
func UserPath(actorID, collection string, keys ...string) (string, error) {
	if strings.TrimSpace(actorID) == "" {
		return "", auth.ErrUnauthenticated
	}
	if strings.Contains(actorID, "/") {
		return "", fmt.Errorf("%w: actor id %q", ErrInvalidPath, actorID)
	}
	for _, k := range keys {
		if strings.Contains(k, "/") {
			return "", fmt.Errorf("%w: key %q", ErrInvalidPath, k)
		}
	}
	return Join(append([]string{"users", actorID, collection}, keys...)...)
}

// ActorPath is UserPath with the actor taken from ctx.
func ActorPath(ctx context.Context, collection string, keys ...string) (string, error) {
	actorID, err := auth.ActorFromContext(ctx)
	if err != nil {
		return "", err
	}
	return UserPath(actorID, collection, keys...)
}

// Split returns the parent path and last segment of path.
func Split(path string) (parent, key string) {
	path = strings.Trim(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

// Within reports whether path equals root or lies below it.
func Within(path, root string) bool {
	path, root = strings.Trim(path, "/"), strings.Trim(root, "/")
	return path == root || strings.HasPrefix(path, root+"/")
}

// SortDocuments orders documents by key.
func SortDocuments(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
}
