// Package coldstart gates auto-posting on confirmed vendor history. A vendor
// with too little consistent history is never auto-posted, no matter how
// confident the calibrated score is.
package coldstart

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/ledgerloom/ledgerloom/internal/common"
	"github.com/ledgerloom/ledgerloom/internal/model"
	"github.com/ledgerloom/ledgerloom/internal/similarity"
)

// lockStripes bounds the per-vendor lock table. Confirmations for the same
// vendor serialize; different vendors almost always proceed in parallel.
const lockStripes = 64

// MemoryStore is the vendor memory surface the tracker mutates.
type MemoryStore interface {
	GetVendorMemory(ctx context.Context, tenantID, vendor string) (*model.VendorMemory, error)
	SaveVendorMemory(ctx context.Context, mem *model.VendorMemory) error
	AppendVendorLabel(ctx context.Context, event *model.ConfirmationEvent) error
}

// Tracker maintains per-vendor confirmed-label counters and the consistency
// flag. Human confirmation events are its only mutation trigger.
type Tracker struct {
	store     MemoryStore
	embedder  similarity.Embedder
	requiredN int
	locks     [lockStripes]sync.Mutex
}

// NewTracker creates a cold-start tracker requiring n consistent labels for
// eligibility.
func NewTracker(store MemoryStore, embedder similarity.Embedder, n int) *Tracker {
	if n <= 0 {
		n = 3
	}
	return &Tracker{store: store, embedder: embedder, requiredN: n}
}

// RequiredN returns the configured eligibility threshold.
func (t *Tracker) RequiredN() int {
	return t.requiredN
}

// Eligible reports whether the vendor has earned auto-post eligibility, and
// returns the memory snapshot used so the decision trace can record it.
// Unknown vendors are always ineligible.
func (t *Tracker) Eligible(ctx context.Context, tenantID, vendor string) (bool, *model.VendorMemory, error) {
	mem, err := t.store.GetVendorMemory(ctx, tenantID, vendor)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, nil, nil
		}
		return false, nil, err
	}
	if mem == nil {
		return false, nil, nil
	}
	return mem.Consistent && mem.Streak >= t.requiredN, mem, nil
}

// Confirm applies a human confirmation or correction. The label is appended
// to the event log and counters are recomputed: agreement extends the
// streak, disagreement flips consistency and restarts it. Consistency is
// re-earned only by a fresh run of RequiredN agreeing labels; the total
// label count never resets.
func (t *Tracker) Confirm(ctx context.Context, event *model.ConfirmationEvent) (*model.VendorMemory, error) {
	lock := t.stripe(event.TenantID, event.Vendor)
	lock.Lock()
	defer lock.Unlock()

	mem, err := t.store.GetVendorMemory(ctx, event.TenantID, event.Vendor)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("failed to load vendor memory: %w", err)
		}
		mem = nil
	}

	switch {
	case mem == nil:
		mem = &model.VendorMemory{
			TenantID:   event.TenantID,
			Vendor:     event.Vendor,
			Account:    event.Account,
			LabelCount: 1,
			Streak:     1,
			Consistent: true,
		}
		if t.embedder != nil {
			mem.Embedding = t.embedder.Embed(event.Vendor)
		}
	case mem.Account == event.Account:
		mem.LabelCount++
		mem.Streak++
		if !mem.Consistent && mem.Streak >= t.requiredN {
			mem.Consistent = true
		}
	default:
		mem.LabelCount++
		mem.Streak = 1
		mem.Consistent = false
		mem.Account = event.Account
	}
	mem.LastConfirmedAt = event.ConfirmedAt

	if err := t.store.AppendVendorLabel(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to append label event: %w", err)
	}
	if err := t.store.SaveVendorMemory(ctx, mem); err != nil {
		return nil, fmt.Errorf("failed to save vendor memory: %w", err)
	}

	return mem, nil
}

func (t *Tracker) stripe(tenantID, vendor string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tenantID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(vendor))
	return &t.locks[h.Sum32()%lockStripes]
}
