package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerloom/ledgerloom/internal/common"
	"github.com/ledgerloom/ledgerloom/internal/model"
)

// SaveCalibrationModel inserts a new inactive artifact and returns its ID.
// Artifacts are immutable; retraining always inserts a new row.
func (s *SQLiteStorage) SaveCalibrationModel(ctx context.Context, artifact *model.CalibrationModel) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if artifact == nil {
		return 0, fmt.Errorf("%w: artifact", ErrNilParameter)
	}

	params, err := json.Marshal(artifact.Parameters)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal parameters: %w", err)
	}

	createdAt := artifact.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO calibration_models (
			tenant_id, method, parameters, trained_on_n, brier_score, ece,
			active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`, artifact.TenantID, string(artifact.Method), string(params),
		artifact.TrainedOnN, artifact.BrierScore, artifact.ECE, createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to save calibration model: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get calibration model id: %w", err)
	}
	return id, nil
}

// ActivateCalibrationModel makes the artifact the single active model for
// its scope. Deactivation of the previous model and activation of the new
// one commit in one transaction, so readers never observe zero or two
// active models.
func (s *SQLiteStorage) ActivateCalibrationModel(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin activation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var tenantID string
	err = tx.QueryRowContext(ctx,
		`SELECT tenant_id FROM calibration_models WHERE id = ?`, id).Scan(&tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("calibration model %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up calibration model %d: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE calibration_models SET active = 0 WHERE tenant_id = ? AND active = 1`,
		tenantID); err != nil {
		return fmt.Errorf("failed to deactivate previous model: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE calibration_models SET active = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to activate model %d: %w", id, err)
	}

	return tx.Commit()
}

// GetActiveCalibrationModel returns the active artifact for the exact scope.
// The empty tenant ID is the global scope; fallback resolution lives in the
// calibrate package.
func (s *SQLiteStorage) GetActiveCalibrationModel(ctx context.Context, tenantID string) (*model.CalibrationModel, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, method, parameters, trained_on_n, brier_score,
		       ece, active, created_at
		FROM calibration_models
		WHERE tenant_id = ? AND active = 1
	`, tenantID)

	var artifact model.CalibrationModel
	var method, params string
	err := row.Scan(&artifact.ID, &artifact.TenantID, &method, &params,
		&artifact.TrainedOnN, &artifact.BrierScore, &artifact.ECE,
		&artifact.Active, &artifact.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active calibration model for scope %q: %w", tenantID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calibration model: %w", err)
	}

	artifact.Method = model.CalibrationMethod(method)
	if err := json.Unmarshal([]byte(params), &artifact.Parameters); err != nil {
		return nil, fmt.Errorf("calibration model %d has malformed parameters: %w", artifact.ID, err)
	}
	return &artifact, nil
}
