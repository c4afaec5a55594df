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

// SaveDecision persists one immutable decision record. A decision ID can
// only be written once.
func (s *SQLiteStorage) SaveDecision(ctx context.Context, decision *model.Decision) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateDecision(decision); err != nil {
		return err
	}

	sources, err := json.Marshal(decision.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}
	weights, err := json.Marshal(decision.AppliedWeights)
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}

	var reason sql.NullString
	if decision.NotAutoPostReason != nil {
		reason = sql.NullString{String: string(*decision.NotAutoPostReason), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decisions (
			id, transaction_id, tenant_id, proposed_account, state,
			not_auto_post_reason, sources, applied_weights, blended_raw,
			calibrated_p, calibration_method, calibration_version,
			threshold_used, cold_start_eligible, auto_post_eligible, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, decision.ID, decision.TransactionID, decision.TenantID, decision.ProposedAccount,
		string(decision.State), reason, string(sources), string(weights),
		decision.BlendedRaw, decision.CalibratedP, string(decision.CalibrationMethod),
		decision.CalibrationVersion, decision.ThresholdUsed,
		decision.ColdStartEligible, decision.AutoPostEligible, decision.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save decision %s: %w", decision.ID, err)
	}
	return nil
}

// GetDecision returns the latest decision for a transaction.
func (s *SQLiteStorage) GetDecision(ctx context.Context, transactionID string) (*model.Decision, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, tenant_id, proposed_account, state,
		       not_auto_post_reason, sources, applied_weights, blended_raw,
		       calibrated_p, calibration_method, calibration_version,
		       threshold_used, cold_start_eligible, auto_post_eligible, created_at
		FROM decisions
		WHERE transaction_id = ?
		ORDER BY created_at DESC LIMIT 1
	`, transactionID)

	decision, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decision for transaction %s: %w", transactionID, common.ErrNotFound)
	}
	return decision, err
}

// ListDecisionsByWindow returns a tenant's decisions created within
// [start, end), oldest first.
func (s *SQLiteStorage) ListDecisionsByWindow(ctx context.Context, tenantID string, start, end time.Time) ([]model.Decision, error) {
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
		SELECT id, transaction_id, tenant_id, proposed_account, state,
		       not_auto_post_reason, sources, applied_weights, blended_raw,
		       calibrated_p, calibration_method, calibration_version,
		       threshold_used, cold_start_eligible, auto_post_eligible, created_at
		FROM decisions
		WHERE tenant_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC
	`, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var decisions []model.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, *d)
	}
	return decisions, rows.Err()
}

// ListOutcomes joins decisions against the confirmation log: every decision
// whose transaction was later confirmed yields one training outcome, marked
// confirmed when the human agreed with the proposed account.
func (s *SQLiteStorage) ListOutcomes(ctx context.Context, tenantID string) ([]model.Outcome, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.blended_raw, d.proposed_account = l.account
		FROM decisions d
		JOIN vendor_labels l ON l.transaction_id = d.transaction_id
		WHERE d.tenant_id = ?
		ORDER BY d.created_at ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var outcomes []model.Outcome
	for rows.Next() {
		var o model.Outcome
		if err := rows.Scan(&o.RawScore, &o.Confirmed); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func scanDecision(row rowScanner) (*model.Decision, error) {
	var d model.Decision
	var state, method string
	var reason sql.NullString
	var sources, weights string

	if err := row.Scan(&d.ID, &d.TransactionID, &d.TenantID, &d.ProposedAccount,
		&state, &reason, &sources, &weights, &d.BlendedRaw, &d.CalibratedP,
		&method, &d.CalibrationVersion, &d.ThresholdUsed,
		&d.ColdStartEligible, &d.AutoPostEligible, &d.CreatedAt); err != nil {
		return nil, err
	}

	d.State = model.DecisionState(state)
	d.CalibrationMethod = model.CalibrationMethod(method)
	if reason.Valid {
		r := model.NotAutoPostReason(reason.String)
		d.NotAutoPostReason = &r
	}
	if err := json.Unmarshal([]byte(sources), &d.Sources); err != nil {
		return nil, fmt.Errorf("decision %s has malformed sources: %w", d.ID, err)
	}
	if weights != "" && weights != "null" {
		if err := json.Unmarshal([]byte(weights), &d.AppliedWeights); err != nil {
			return nil, fmt.Errorf("decision %s has malformed weights: %w", d.ID, err)
		}
	}
	return &d, nil
}
