package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/ledgerloom/ledgerloom/internal/common"
	"github.com/ledgerloom/ledgerloom/internal/model"
)

// GetVendorMemory fetches the memory row for one normalized vendor.
func (s *SQLiteStorage) GetVendorMemory(ctx context.Context, tenantID, vendor string) (*model.VendorMemory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateString(vendor, "vendor"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, vendor, account, embedding, label_count, streak,
		       consistent, last_confirmed_at
		FROM vendor_memory WHERE tenant_id = ? AND vendor = ?
	`, tenantID, vendor)

	mem, err := scanVendorMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vendor %s/%s: %w", tenantID, vendor, common.ErrNotFound)
	}
	return mem, err
}

// ListVendorMemory returns all memory rows for a tenant. The similarity
// matcher scans these for nearest neighbors.
func (s *SQLiteStorage) ListVendorMemory(ctx context.Context, tenantID string) ([]model.VendorMemory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, vendor, account, embedding, label_count, streak,
		       consistent, last_confirmed_at
		FROM vendor_memory WHERE tenant_id = ? ORDER BY vendor ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query vendor memory: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []model.VendorMemory
	for rows.Next() {
		mem, err := scanVendorMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vendor memory: %w", err)
		}
		memories = append(memories, *mem)
	}
	return memories, rows.Err()
}

// SaveVendorMemory inserts or replaces a vendor memory row.
func (s *SQLiteStorage) SaveVendorMemory(ctx context.Context, mem *model.VendorMemory) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if mem == nil {
		return fmt.Errorf("%w: mem", ErrNilParameter)
	}
	if err := validateString(mem.TenantID, "mem.TenantID"); err != nil {
		return err
	}
	if err := validateString(mem.Vendor, "mem.Vendor"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendor_memory (
			tenant_id, vendor, account, embedding, label_count, streak,
			consistent, last_confirmed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, vendor) DO UPDATE SET
			account = excluded.account,
			embedding = excluded.embedding,
			label_count = excluded.label_count,
			streak = excluded.streak,
			consistent = excluded.consistent,
			last_confirmed_at = excluded.last_confirmed_at
	`, mem.TenantID, mem.Vendor, mem.Account, encodeEmbedding(mem.Embedding),
		mem.LabelCount, mem.Streak, mem.Consistent, mem.LastConfirmedAt)
	if err != nil {
		return fmt.Errorf("failed to save vendor memory %s/%s: %w", mem.TenantID, mem.Vendor, err)
	}
	return nil
}

// AppendVendorLabel appends one confirmation event to the label log. The log
// is append-only; rows are never updated or deleted.
func (s *SQLiteStorage) AppendVendorLabel(ctx context.Context, event *model.ConfirmationEvent) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if event == nil {
		return fmt.Errorf("%w: event", ErrNilParameter)
	}
	if err := validateString(event.TenantID, "event.TenantID"); err != nil {
		return err
	}
	if err := validateString(event.Vendor, "event.Vendor"); err != nil {
		return err
	}
	if err := validateString(event.Account, "event.Account"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendor_labels (tenant_id, vendor, transaction_id, account, confirmed_at)
		VALUES (?, ?, ?, ?, ?)
	`, event.TenantID, event.Vendor, event.TransactionID, event.Account, event.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("failed to append vendor label: %w", err)
	}
	return nil
}

// ListVendorLabels returns the confirmation history for one vendor, oldest
// first.
func (s *SQLiteStorage) ListVendorLabels(ctx context.Context, tenantID, vendor string) ([]model.ConfirmationEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateString(vendor, "vendor"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, vendor, transaction_id, account, confirmed_at
		FROM vendor_labels
		WHERE tenant_id = ? AND vendor = ?
		ORDER BY id ASC
	`, tenantID, vendor)
	if err != nil {
		return nil, fmt.Errorf("failed to query vendor labels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.ConfirmationEvent
	for rows.Next() {
		var e model.ConfirmationEvent
		if err := rows.Scan(&e.TenantID, &e.Vendor, &e.TransactionID, &e.Account, &e.ConfirmedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vendor label: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanVendorMemory(row rowScanner) (*model.VendorMemory, error) {
	var mem model.VendorMemory
	var embedding []byte
	var confirmedAt sql.NullTime

	if err := row.Scan(&mem.TenantID, &mem.Vendor, &mem.Account, &embedding,
		&mem.LabelCount, &mem.Streak, &mem.Consistent, &confirmedAt); err != nil {
		return nil, err
	}
	mem.Embedding = decodeEmbedding(embedding)
	if confirmedAt.Valid {
		mem.LastConfirmedAt = confirmedAt.Time
	}
	return &mem, nil
}

// Embeddings are stored as little-endian float32 blobs.

func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) < 4 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}
