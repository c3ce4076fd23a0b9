package animals

import (
	"context"
	"errors"
	"testing"

	"github.com/mamadbah2/herdbook/internal/auth"
	"github.com/mamadbah2/herdbook/internal/domain/models"
	"github.com/mamadbah2/herdbook/internal/repository/memory"
)

func TestRegistryLifecycle(t *testing.T) {
	ctx := auth.WithActor(context.Background(), "actor-1")
	reg := NewRegistry(memory.New(), nil)

	animal := models.Animal{ID: "a1", Type: "عجل", Number: "12", CompositeKey: "عجل_12", Status: models.AnimalAlive}
	if err := reg.AddOrUpdate(ctx, "c1", animal); err != nil {
		t.Fatalf("add: %v", err)
	}

	dup, err := reg.CheckDuplicate(ctx, "عجل_12", "c1", "")
	if err != nil || !dup {
		t.Fatalf("expected duplicate, got %v %v", dup, err)
	}
	dup, err = reg.CheckDuplicate(ctx, "عجل_12", "c1", "a1")
	if err != nil || dup {
		t.Fatalf("same animal must not be a duplicate, got %v %v", dup, err)
	}
	dup, err = reg.CheckDuplicate(ctx, "عجل_13", "c1", "")
	if err != nil || dup {
		t.Fatalf("unknown key must not be a duplicate, got %v %v", dup, err)
	}

	entries, err := reg.List(ctx)
	if err != nil || len(entries) != 1 || entries[0].CustomerID != "c1" {
		t.Fatalf("unexpected list %+v %v", entries, err)
	}

	if err := reg.Remove(ctx, "c1", "عجل_12"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, err := reg.Lookup(ctx, "عجل_12"); err != nil || ok {
		t.Fatalf("expected entry removed, got %v %v", ok, err)
	}
}

func TestRegistryIsScopedPerActor(t *testing.T) {
	s := memory.New()
	reg := NewRegistry(s, nil)
	a := auth.WithActor(context.Background(), "a")
	b := auth.WithActor(context.Background(), "b")

	if err := reg.AddOrUpdate(a, "c1", models.Animal{ID: "x", CompositeKey: "cow_1"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if dup, err := reg.CheckDuplicate(b, "cow_1", "c1", "x"); err != nil || dup {
		t.Fatalf("registry leaked across actors: %v %v", dup, err)
	}
}

func TestRegistryRequiresActorAndKey(t *testing.T) {
	reg := NewRegistry(memory.New(), nil)
	if err := reg.AddOrUpdate(context.Background(), "c1", models.Animal{CompositeKey: "cow_1"}); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated got %v", err)
	}
	ctx := auth.WithActor(context.Background(), "a")
	if err := reg.Remove(ctx, "c1", " "); !errors.Is(err, ErrKeyRequired) {
		t.Fatalf("expected ErrKeyRequired got %v", err)
	}
}

func TestRegistryEntryBelongsToItsCustomer(t *testing.T) {
	ctx := auth.WithActor(context.Background(), "actor-1")
	reg := NewRegistry(memory.New(), nil)

	sold := models.Animal{ID: "animal-x", Type: "cow", Number: "7", CompositeKey: "cow_7"}
	if err := reg.AddOrUpdate(ctx, "c-a", sold); err != nil {
		t.Fatalf("add: %v", err)
	}

	dup, err := reg.CheckDuplicate(ctx, "cow_7", "c-b", "animal-x")
	if err != nil || !dup {
		t.Fatalf("a reused animal id on another customer must be a duplicate, got %v %v", dup, err)
	}

	if err := reg.AddOrUpdate(ctx, "c-b", sold); err != nil {
		t.Fatalf("add for other customer: %v", err)
	}
	if err := reg.Remove(ctx, "c-b", "cow_7"); err != nil {
		t.Fatalf("remove for other customer: %v", err)
	}
	entry, ok, err := reg.Lookup(ctx, "cow_7")
	if err != nil || !ok || entry.CustomerID != "c-a" {
		t.Fatalf("entry must stay with its owner, got %+v %v %v", entry, ok, err)
	}

	if err := reg.Remove(ctx, "c-a", "cow_7"); err != nil {
		t.Fatalf("remove by owner: %v", err)
	}
	if _, ok, err := reg.Lookup(ctx, "cow_7"); err != nil || ok {
		t.Fatalf("expected entry removed by owner, got %v %v", ok, err)
	}
}
