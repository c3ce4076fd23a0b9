// Package repository selects the document store implementation.
package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/herdbook/internal/config"
	"github.com/mamadbah2/herdbook/internal/repository/memory"
	"github.com/mamadbah2/herdbook/internal/repository/mongodb"
	"github.com/mamadbah2/herdbook/internal/repository/store"
)

// CloseFunc releases the resources held by a store.
type CloseFunc func(context.Context) error

// Open builds the store named by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, CloseFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, data will not survive a restart")
		return memory.New(), func(context.Context) error { return nil }, nil
	case config.DriverMongoDB:
		s, err := mongodb.NewStore(ctx, cfg.MongoDB, logger.Named("store.mongodb"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
