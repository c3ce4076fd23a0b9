package repository

import (
	"context"
	"testing"

	"github.com/mamadbah2/herdbook/internal/config"
	"github.com/mamadbah2/herdbook/internal/repository/memory"
)

func TestOpenMemory(t *testing.T) {
	s, closeFn, err := Open(context.Background(), &config.Config{Store: config.StoreConfig{Driver: config.DriverMemory}}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Fatalf("expected memory store got %T", s)
	}
	if err := closeFn(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, _, err := Open(context.Background(), &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}, nil); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
