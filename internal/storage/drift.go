package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

// SaveDriftSnapshot appends one snapshot to the drift time series.
func (s *SQLiteStorage) SaveDriftSnapshot(ctx context.Context, snapshot *model.DriftSnapshot) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if snapshot == nil {
		return fmt.Errorf("%w: snapshot", ErrNilParameter)
	}
	if err := validateString(snapshot.TenantID, "snapshot.TenantID"); err != nil {
		return err
	}

	createdAt := snapshot.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO drift_snapshots (
			tenant_id, window_start, window_end, psi_vendor, psi_amount,
			ks_vendor, ks_amount, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, snapshot.TenantID, snapshot.WindowStart, snapshot.WindowEnd,
		snapshot.PSIVendor, snapshot.PSIAmount, snapshot.KSVendor, snapshot.KSAmount,
		createdAt)
	if err != nil {
		return fmt.Errorf("failed to save drift snapshot: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		snapshot.ID = id
	}
	return nil
}

// ListDriftSnapshots returns a tenant's snapshots, newest first.
func (s *SQLiteStorage) ListDriftSnapshots(ctx context.Context, tenantID string, limit int) ([]model.DriftSnapshot, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 30
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, window_start, window_end, psi_vendor,
		       psi_amount, ks_vendor, ks_amount, created_at
		FROM drift_snapshots
		WHERE tenant_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query drift snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshots []model.DriftSnapshot
	for rows.Next() {
		var d model.DriftSnapshot
		if err := rows.Scan(&d.ID, &d.TenantID, &d.WindowStart, &d.WindowEnd,
			&d.PSIVendor, &d.PSIAmount, &d.KSVendor, &d.KSAmount, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan drift snapshot: %w", err)
		}
		snapshots = append(snapshots, d)
	}
	return snapshots, rows.Err()
}
