package mongodb

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/mamadbah2/herdbook/internal/config"
	"github.com/mamadbah2/herdbook/internal/repository/store"
)

type testDoc struct {
	Name string `bson:"name"`
}

// newTestStore connects to MONGODB_TEST_URI; the tests are skipped without it.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewStore(ctx, config.MongoDBConfig{URI: uri, DBName: "herdbook_test", Collection: "documents_" + time.Now().Format("150405.000000")}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		_ = s.coll.Drop(context.Background())
		_ = s.Close(context.Background())
	})
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "users/u1/customers/c1", testDoc{Name: "a"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	key, err := s.Push(ctx, "users/u1/customers", testDoc{Name: "b"})
	if err != nil {
		t.Fatalf("push: %v", err)
	}

	var got testDoc
	if err := s.Get(ctx, "users/u1/customers/"+key, &got); err != nil || got.Name != "b" {
		t.Fatalf("get pushed doc: %+v %v", got, err)
	}

	snap, err := s.List(ctx, "users/u1/customers")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snap.Documents) != 2 {
		t.Fatalf("expected 2 docs got %d", len(snap.Documents))
	}

	if err := s.Remove(ctx, "users/u1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Get(ctx, "users/u1/customers/c1", &got); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}
