package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/migration"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/storage"
)

// owner returns the configured owner id.
func (a *app) owner() (string, error) {
	owner := strings.TrimSpace(a.v.GetString("owner"))
	if owner == "" {
		return "", common.NewUserError("no owner configured, pass --owner or set BOOKS_OWNER", common.ErrMissingConfig)
	}
	return owner, nil
}

// openStore opens the configured database and brings its schema up to date.
func (a *app) openStore(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(a.cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func closeStore(store *storage.SQLiteStorage) {
	if err := store.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}

// newOrchestrator wires an orchestrator to store using the loaded
// configuration. progress may be nil.
func (a *app) newOrchestrator(store *storage.SQLiteStorage, progress *cli.ProgressReporter) *migration.Orchestrator {
	opts := []migration.Option{
		migration.WithGroups(store),
		migration.WithDefaultGroupName(a.cfg.DefaultGroup),
		migration.WithWriteTimeout(a.cfg.WriteTimeout),
		migration.WithRetry(a.cfg.Retry),
	}
	if limiter := a.cfg.WriteLimiter(); limiter != nil {
		opts = append(opts, migration.WithWriteLimiter(limiter))
	}
	if progress != nil {
		opts = append(opts, migration.WithProgress(progress.Report))
	}

	flags := storage.NewCachedFlagStore(store, a.cfg.FlagCacheTTL)
	return migration.New(store, flags, opts...)
}

// withBackup snapshots the database once consent to migrate is given. A
// failed snapshot withholds consent so nothing is written unprotected.
func withBackup(consent migration.ConsentFunc, store *storage.SQLiteStorage) migration.ConsentFunc {
	return func(ctx context.Context, plan *model.MigrationPlan) (migration.Decision, error) {
		decision, err := consent(ctx, plan)
		if err != nil || decision != migration.DecisionProceed {
			return decision, err
		}

		manager, err := store.NewBackupManager()
		if errors.Is(err, storage.ErrInMemoryDatabase) {
			slog.Debug("Skipping backup of in-memory database")
			return decision, nil
		}
		if err != nil {
			return migration.DecisionDecline, fmt.Errorf("failed to prepare backup: %w", err)
		}

		info, err := manager.AutoBackup(ctx, "migration")
		if err != nil {
			return migration.DecisionDecline, fmt.Errorf("failed to back up before migrating: %w", err)
		}
		slog.Info("Backed up database before migration", "backup", info.ID)
		return decision, nil
	}
}

// parseLocation maps the --legacy flag to a storage location.
func parseLocation(legacy bool) model.Location {
	if legacy {
		return model.LocationLegacy
	}
	return model.LocationCurrent
}

// isNonDecision reports whether err only means the user did not answer.
func isNonDecision(err error) bool {
	return errors.Is(err, cli.ErrConsentDeferred) ||
		errors.Is(err, cli.ErrInputCancelled) ||
		errors.Is(err, context.Canceled)
}
