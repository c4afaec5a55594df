// Package testutil provides shared helpers for tests that need a migrated
// database with realistic fixture data.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ledgerloom/ledgerloom/internal/service"
	"github.com/ledgerloom/ledgerloom/internal/storage"
)

// TestDB wraps a migrated throwaway database for one test.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates a migrated SQLite database in a temp directory. The
// migration seeds the default chart of accounts; cleanup is automatic.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})

	return &TestDB{Storage: store, t: t}
}

// MustSaveTransactions seeds transactions or fails the test.
func (db *TestDB) MustSaveTransactions(ctx context.Context, txns ...Transaction) {
	db.t.Helper()
	models := Transactions(txns...)
	if err := db.Storage.SaveTransactions(ctx, models); err != nil {
		db.t.Fatalf("failed to seed transactions: %v", err)
	}
}
