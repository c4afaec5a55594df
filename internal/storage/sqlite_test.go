package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerloom/ledgerloom/internal/common"
	"github.com/ledgerloom/ledgerloom/internal/model"
)

func setupTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrate_Idempotent(t *testing.T) {
	s := setupTestStorage(t)
	// A second run over an up-to-date database is a no-op.
	require.NoError(t, s.Migrate(context.Background()))
}

func TestNewSQLiteStorage_RejectsEmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage("")
	require.Error(t, err)
}

func TestAccounts_SeededChart(t *testing.T) {
	s := setupTestStorage(t)

	accounts, err := s.ListAccounts(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, accounts)

	supplies, err := s.GetAccount(context.Background(), "6000 Supplies")
	require.NoError(t, err)
	assert.Equal(t, "Office Supplies", supplies.Name)
	assert.Equal(t, model.AccountTypeExpense, supplies.Type)
	assert.True(t, supplies.IsActive)
}

func TestAccounts_SaveAndUpdate(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	account := &model.Account{
		Code:     "6600 Insurance",
		Name:     "Insurance",
		Type:     model.AccountTypeExpense,
		IsActive: true,
	}
	require.NoError(t, s.SaveAccount(ctx, account))

	got, err := s.GetAccount(ctx, "6600 Insurance")
	require.NoError(t, err)
	assert.Equal(t, "Insurance", got.Name)

	account.IsActive = false
	require.NoError(t, s.SaveAccount(ctx, account))

	got, err = s.GetAccount(ctx, "6600 Insurance")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestAccounts_GetMissing(t *testing.T) {
	s := setupTestStorage(t)

	_, err := s.GetAccount(context.Background(), "9999 Nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
