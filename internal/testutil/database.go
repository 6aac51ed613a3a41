// Package testutil provides shared fixtures for the books-must-balance tests:
// a migrated in-memory SQLite database and an in-memory document store with
// failure injection.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/the-books-must-balance/internal/storage"
)

// TestDB wraps a migrated in-memory SQLite storage.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database seeded with the given
// legacy documents. It automatically handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t,
//		testutil.LegacyDoc("a", "u1").Amount("150.00").Build(),
//	)
func SetupTestDB(t *testing.T, legacy ...map[string]any) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	if len(legacy) > 0 {
		if _, err := store.ImportLegacy(ctx, legacy); err != nil {
			_ = store.Close()
			t.Fatalf("failed to seed legacy documents: %v", err)
		}
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}
