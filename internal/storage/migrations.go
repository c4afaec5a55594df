package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version the application
// expects. A database that cannot be migrated to this version is unusable.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				// Amounts are stored as decimal strings, never floats, so
				// journal balance checks stay exact.
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					hash TEXT UNIQUE NOT NULL,
					date DATETIME NOT NULL,
					raw_description TEXT NOT NULL,
					merchant_name TEXT,
					account_id TEXT,
					transaction_type TEXT,
					amount TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_tenant_date ON transactions(tenant_id, date)`,
				`CREATE INDEX idx_transactions_hash ON transactions(hash)`,

				`CREATE TABLE IF NOT EXISTS accounts (
					code TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					type TEXT NOT NULL,
					description TEXT,
					is_active INTEGER NOT NULL DEFAULT 1
				)`,

				`CREATE TABLE IF NOT EXISTS vendor_memory (
					tenant_id TEXT NOT NULL,
					vendor TEXT NOT NULL,
					account TEXT NOT NULL,
					embedding BLOB,
					label_count INTEGER NOT NULL DEFAULT 0,
					streak INTEGER NOT NULL DEFAULT 0,
					consistent INTEGER NOT NULL DEFAULT 1,
					last_confirmed_at DATETIME,
					PRIMARY KEY (tenant_id, vendor)
				)`,

				`CREATE TABLE IF NOT EXISTS vendor_labels (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tenant_id TEXT NOT NULL,
					vendor TEXT NOT NULL,
					transaction_id TEXT NOT NULL,
					account TEXT NOT NULL,
					confirmed_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_vendor_labels_vendor ON vendor_labels(tenant_id, vendor)`,
				`CREATE INDEX idx_vendor_labels_transaction ON vendor_labels(transaction_id)`,

				`CREATE TABLE IF NOT EXISTS decisions (
					id TEXT PRIMARY KEY,
					transaction_id TEXT NOT NULL,
					tenant_id TEXT NOT NULL,
					proposed_account TEXT,
					state TEXT NOT NULL,
					not_auto_post_reason TEXT,
					sources TEXT NOT NULL,
					applied_weights TEXT,
					blended_raw REAL NOT NULL,
					calibrated_p REAL NOT NULL,
					calibration_method TEXT NOT NULL,
					calibration_version INTEGER NOT NULL,
					threshold_used REAL NOT NULL,
					cold_start_eligible INTEGER NOT NULL,
					auto_post_eligible INTEGER NOT NULL,
					created_at DATETIME NOT NULL,
					FOREIGN KEY (transaction_id) REFERENCES transactions(id)
				)`,
				`CREATE INDEX idx_decisions_transaction ON decisions(transaction_id, created_at)`,

				`CREATE TABLE IF NOT EXISTS calibration_models (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tenant_id TEXT NOT NULL DEFAULT '',
					method TEXT NOT NULL,
					parameters TEXT NOT NULL,
					trained_on_n INTEGER NOT NULL,
					brier_score REAL NOT NULL,
					ece REAL NOT NULL,
					active INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_calibration_scope ON calibration_models(tenant_id, active)`,

				`CREATE TABLE IF NOT EXISTS drift_snapshots (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tenant_id TEXT NOT NULL,
					window_start DATETIME NOT NULL,
					window_end DATETIME NOT NULL,
					psi_vendor REAL NOT NULL,
					psi_amount REAL NOT NULL,
					ks_vendor REAL NOT NULL,
					ks_amount REAL NOT NULL,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_drift_tenant ON drift_snapshots(tenant_id, created_at)`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "LLM usage log",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS llm_usage (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					transaction_id TEXT NOT NULL,
					provider TEXT NOT NULL,
					model TEXT NOT NULL,
					latency_ms INTEGER NOT NULL,
					cost_cents INTEGER NOT NULL,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_llm_usage_created ON llm_usage(created_at)`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Seed default chart of accounts",
		Up: func(tx *sql.Tx) error {
			seed := []struct {
				code, name, accountType string
			}{
				{"1000 Checking", "Checking", "asset"},
				{"4000 Revenue", "Revenue", "income"},
				{"6000 Supplies", "Office Supplies", "expense"},
				{"6100 Software", "Software & Subscriptions", "expense"},
				{"6200 Meals", "Meals & Entertainment", "expense"},
				{"6300 Fees", "Bank & Processing Fees", "expense"},
				{"6400 Travel", "Travel", "expense"},
				{"6500 Utilities", "Utilities", "expense"},
			}
			for _, a := range seed {
				if _, err := tx.Exec(
					`INSERT OR IGNORE INTO accounts (code, name, type, is_active) VALUES (?, ?, ?, 1)`,
					a.code, a.name, a.accountType); err != nil {
					return fmt.Errorf("failed to seed account %s: %w", a.code, err)
				}
			}
			return nil
		},
	},
}

// Migrate applies any pending migrations, tracked via PRAGMA user_version.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}
		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set schema version %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}

		slog.Info("applied migration", "version", m.Version, "description", m.Description)
		current = m.Version
	}

	if current != ExpectedSchemaVersion {
		return fmt.Errorf("schema version %d does not match expected %d", current, ExpectedSchemaVersion)
	}
	return nil
}
