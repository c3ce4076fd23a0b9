package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/mamadbah2/herdbook/internal/config"
	"github.com/mamadbah2/herdbook/internal/migrations"
	"github.com/mamadbah2/herdbook/internal/repository"
	"github.com/mamadbah2/herdbook/pkg/logger"
)

const (
	stepScope     = "scope"
	stepDiscounts = "discounts"
	stepVerify    = "verify"
	stepAll       = "all"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	var (
		envFile    = flag.String("env", "", "optional .env file")
		actorID    = flag.String("actor", "", "actor id that receives the migrated records")
		step       = flag.String("step", stepAll, "scope|discounts|verify|all")
		backupPath = flag.String("backup", "herdbook-backup.json", "backup file written before scoping and read by verify")
		dryRun     = flag.Bool("dry-run", false, "report what would change without writing")
	)
	flag.Parse()

	if *actorID == "" {
		fmt.Fprintln(os.Stderr, "-actor is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	db, closeStore, err := repository.Open(ctx, cfg, baseLogger.Named("repo"))
	if err != nil {
		baseLogger.Fatal("failed to open document store", zap.Error(err))
	}
	defer func() {
		if err := closeStore(context.Background()); err != nil {
			baseLogger.Error("failed to close document store", zap.Error(err))
		}
	}()

	m := migrations.NewMigrator(db, *dryRun, baseLogger.Named("migrate"))
	if err := run(ctx, m, *step, *actorID, *backupPath); err != nil {
		baseLogger.Error("migration failed", zap.String("step", *step), zap.Error(err))
		_ = baseLogger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, m *migrations.Migrator, step, actorID, backupPath string) error {
	var backup *migrations.Backup

	switch step {
	case stepScope, stepAll:
		b, err := writeBackup(ctx, m, backupPath)
		if err != nil {
			return err
		}
		backup = b

		res, err := m.ScopeToActor(ctx, actorID)
		if err != nil {
			return err
		}
		if err := printJSON("scope", res); err != nil {
			return err
		}
		if step == stepScope {
			return nil
		}
		fallthrough
	case stepDiscounts:
		res, err := m.BackfillDiscounts(ctx, actorID)
		if err != nil {
			return err
		}
		if err := printJSON("discounts", res); err != nil {
			return err
		}
		if step == stepDiscounts {
			return nil
		}
		fallthrough
	case stepVerify:
		if backup == nil {
			b, err := readBackup(backupPath)
			if err != nil {
				return err
			}
			backup = b
		}
		report, err := m.Verify(ctx, actorID, backup)
		if err != nil {
			return err
		}
		if err := printJSON("verify", report); err != nil {
			return err
		}
		if !report.OK() {
			return fmt.Errorf("verification found %d errors", len(report.Errors))
		}
		return nil
	default:
		return fmt.Errorf("unknown step %q", step)
	}
}

func writeBackup(ctx context.Context, m *migrations.Migrator, path string) (*migrations.Backup, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create backup file: %w", err)
	}
	defer f.Close()

	backup, err := m.Backup(ctx, f)
	if err != nil {
		return nil, err
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("sync backup file: %w", err)
	}
	return backup, nil
}

// readBackup returns nil when no backup file exists; Verify then compares
// against the legacy collections as they are now.
func readBackup(path string) (*migrations.Backup, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open backup file: %w", err)
	}
	defer f.Close()
	return migrations.LoadBackup(f)
}

func printJSON(step string, v interface{}) error {
	out, err := json.MarshalIndent(map[string]interface{}{"step": step, "result": v}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s result: %w", step, err)
	}
	fmt.Println(string(out))
	return nil
}
