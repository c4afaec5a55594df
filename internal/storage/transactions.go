package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerloom/ledgerloom/internal/common"
	"github.com/ledgerloom/ledgerloom/internal/model"
)

// SaveTransactions inserts a batch of transactions, ignoring duplicates by
// hash. Transactions are written by the ingestion layer only.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			id, tenant_id, hash, date, raw_description, merchant_name,
			account_id, transaction_type, amount
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range transactions {
		t := &transactions[i]
		if _, err := stmt.ExecContext(ctx,
			t.ID, t.TenantID, t.Hash, t.Date, t.RawDescription, t.MerchantName,
			t.AccountID, t.Type, t.Amount.String()); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// GetTransaction fetches one transaction by ID.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, hash, date, raw_description, merchant_name,
		       account_id, transaction_type, amount
		FROM transactions WHERE id = ?
	`, id)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	return txn, err
}

// ListPendingTransactions returns transactions that have no decision yet,
// oldest first.
func (s *SQLiteStorage) ListPendingTransactions(ctx context.Context, tenantID string, limit int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.tenant_id, t.hash, t.date, t.raw_description,
		       t.merchant_name, t.account_id, t.transaction_type, t.amount
		FROM transactions t
		LEFT JOIN decisions d ON d.transaction_id = t.id
		WHERE t.tenant_id = ? AND d.id IS NULL
		ORDER BY t.date ASC, t.id ASC
		LIMIT ?
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTransactions(rows)
}

// ListTransactionsByWindow returns a tenant's transactions within [start, end).
func (s *SQLiteStorage) ListTransactionsByWindow(ctx context.Context, tenantID string, start, end time.Time) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if !start.Before(end) {
		return nil, ErrInvalidDateRange
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, hash, date, raw_description, merchant_name,
		       account_id, transaction_type, amount
		FROM transactions
		WHERE tenant_id = ? AND date >= ? AND date < ?
		ORDER BY date ASC, id ASC
	`, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction window: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTransactions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var t model.Transaction
	var merchant, accountID, txnType sql.NullString
	var amount string

	if err := row.Scan(&t.ID, &t.TenantID, &t.Hash, &t.Date, &t.RawDescription,
		&merchant, &accountID, &txnType, &amount); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %s has malformed amount %q: %w", t.ID, amount, err)
	}
	t.Amount = parsed
	t.MerchantName = merchant.String
	t.AccountID = accountID.String
	t.Type = txnType.String
	return &t, nil
}

func collectTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	var txns []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txns, nil
}
