package store

import (
	"context"
	"errors"
	"testing"

	"github.com/mamadbah2/herdbook/internal/auth"
)

func TestUserPath(t *testing.T) {
	path, err := UserPath("u1", CollectionCustomers, "c1")
	if err != nil {
		t.Fatalf("user path: %v", err)
	}
	if path != "users/u1/customers/c1" {
		t.Fatalf("unexpected path %q", path)
	}
	if _, err := UserPath("", CollectionCustomers); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated got %v", err)
	}
	if _, err := UserPath("u1", CollectionCustomers, ""); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath got %v", err)
	}
}

func TestUserPathRejectsNestedSegments(t *testing.T) {
	for _, tc := range []struct {
		actor string
		keys  []string
	}{
		{actor: "alice/customers/x"},
		{actor: "u1/"},
		{actor: "u1", keys: []string{"c1/animals"}},
		{actor: "u1", keys: []string{"/c1"}},
	} {
		if _, err := UserPath(tc.actor, CollectionCustomers, tc.keys...); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("%q %q: expected ErrInvalidPath got %v", tc.actor, tc.keys, err)
		}
	}

	ctx := auth.WithActor(context.Background(), "bob/customers")
	if _, err := ActorPath(ctx, CollectionCustomers); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath got %v", err)
	}
}

func TestActorPath(t *testing.T) {
	if _, err := ActorPath(context.Background(), CollectionPayments); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated got %v", err)
	}
	path, err := ActorPath(auth.WithActor(context.Background(), "u9"), CollectionAnimalRegistry, "sheep_1")
	if err != nil || path != "users/u9/_globalAnimalRegistry/sheep_1" {
		t.Fatalf("unexpected %q (%v)", path, err)
	}
}

func TestSplitAndWithin(t *testing.T) {
	parent, key := Split("users/u1/customers/c1")
	if parent != "users/u1/customers" || key != "c1" {
		t.Fatalf("unexpected split %q %q", parent, key)
	}
	if parent, key := Split("customers"); parent != "" || key != "customers" {
		t.Fatalf("unexpected root split %q %q", parent, key)
	}
	if !Within("users/u1/customers/c1", "users/u1/customers") || !Within("users/u1", "users/u1") {
		t.Fatalf("expected paths to be within root")
	}
	if Within("users/u10/customers", "users/u1") {
		t.Fatalf("sibling prefix must not match")
	}
}

func TestDecodeAll(t *testing.T) {
	type item struct {
		ID   string `bson:"-"`
		Name string `bson:"name"`
	}
	raw, err := Encode(item{Name: "a"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	items, err := DecodeAll(Snapshot{Documents: []Document{{Key: "k1", Data: raw}}}, func(it *item, key string) { it.ID = key })
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].ID != "k1" || items[0].Name != "a" {
		t.Fatalf("unexpected items %+v", items)
	}
}
