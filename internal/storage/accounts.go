package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ledgerloom/ledgerloom/internal/common"
	"github.com/ledgerloom/ledgerloom/internal/model"
)

// ListAccounts returns the full chart of accounts, ordered by code.
func (s *SQLiteStorage) ListAccounts(ctx context.Context) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT code, name, type, COALESCE(description, ''), is_active
		FROM accounts ORDER BY code ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		var accountType string
		if err := rows.Scan(&a.Code, &a.Name, &accountType, &a.Description, &a.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.Type = model.AccountType(accountType)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetAccount fetches one account by code.
func (s *SQLiteStorage) GetAccount(ctx context.Context, code string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(code, "code"); err != nil {
		return nil, err
	}

	var a model.Account
	var accountType string
	err := s.db.QueryRowContext(ctx, `
		SELECT code, name, type, COALESCE(description, ''), is_active
		FROM accounts WHERE code = ?
	`, code).Scan(&a.Code, &a.Name, &accountType, &a.Description, &a.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", code, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	a.Type = model.AccountType(accountType)
	return &a, nil
}

// SaveAccount inserts or updates a chart-of-accounts entry.
func (s *SQLiteStorage) SaveAccount(ctx context.Context, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("%w: account", ErrNilParameter)
	}
	if err := validateString(account.Code, "account.Code"); err != nil {
		return err
	}
	if err := validateString(account.Name, "account.Name"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (code, name, type, description, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			description = excluded.description,
			is_active = excluded.is_active
	`, account.Code, account.Name, string(account.Type), account.Description, account.IsActive)
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", account.Code, err)
	}
	return nil
}
