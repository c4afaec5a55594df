package coldstart

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerloom/ledgerloom/internal/common"
	"github.com/ledgerloom/ledgerloom/internal/model"
	"github.com/ledgerloom/ledgerloom/internal/similarity"
	"github.com/ledgerloom/ledgerloom/internal/testutil"
)

// fakeMemoryStore is an in-memory MemoryStore.
type fakeMemoryStore struct {
	mu      sync.Mutex
	vendors map[string]*model.VendorMemory
	labels  []*model.ConfirmationEvent
}

func newFakeMemoryStore() *fakeMemoryStore {
	return &fakeMemoryStore{vendors: make(map[string]*model.VendorMemory)}
}

func (f *fakeMemoryStore) GetVendorMemory(_ context.Context, tenantID, vendor string) (*model.VendorMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if mem, ok := f.vendors[tenantID+"/"+vendor]; ok {
		copied := *mem
		return &copied, nil
	}
	// Same contract as SQLiteStorage: unknown vendors are a not-found error.
	return nil, fmt.Errorf("vendor %s/%s: %w", tenantID, vendor, common.ErrNotFound)
}

func (f *fakeMemoryStore) SaveVendorMemory(_ context.Context, mem *model.VendorMemory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *mem
	f.vendors[mem.TenantID+"/"+mem.Vendor] = &copied
	return nil
}

func (f *fakeMemoryStore) AppendVendorLabel(_ context.Context, event *model.ConfirmationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels = append(f.labels, event)
	return nil
}

func confirm(t *testing.T, tracker *Tracker, vendor, account string) *model.VendorMemory {
	t.Helper()
	mem, err := tracker.Confirm(context.Background(), &model.ConfirmationEvent{
		TenantID:    "t1",
		Vendor:      vendor,
		Account:     account,
		ConfirmedAt: time.Now(),
	})
	require.NoError(t, err)
	return mem
}

func eligible(t *testing.T, tracker *Tracker, vendor string) bool {
	t.Helper()
	ok, _, err := tracker.Eligible(context.Background(), "t1", vendor)
	require.NoError(t, err)
	return ok
}

func TestTracker_NewVendorIneligible(t *testing.T) {
	tracker := NewTracker(newFakeMemoryStore(), similarity.NewTrigramEmbedder(), 3)
	assert.False(t, eligible(t, tracker, "brand new vendor"))
}

func TestTracker_NewVendorAgainstSQLite(t *testing.T) {
	db := testutil.SetupTestDB(t)
	tracker := NewTracker(db.Storage, similarity.NewTrigramEmbedder(), 3)
	ctx := context.Background()

	// An unknown vendor is plain ineligibility, not an error.
	ok, mem, err := tracker.Eligible(ctx, "tenant-1", "never seen before")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, mem)

	// First confirmation seeds the memory row through the real store.
	seeded, err := tracker.Confirm(ctx, &model.ConfirmationEvent{
		TenantID:      "tenant-1",
		Vendor:        "never seen before",
		TransactionID: "txn-first",
		Account:       "6000 Supplies",
		ConfirmedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, seeded.LabelCount)
	assert.Equal(t, 1, seeded.Streak)
	assert.True(t, seeded.Consistent)

	ok, mem, err = tracker.Eligible(ctx, "tenant-1", "never seen before")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NotNil(t, mem)
	assert.Equal(t, 1, mem.LabelCount)
}

func TestTracker_EligibleAfterNConsistentLabels(t *testing.T) {
	tracker := NewTracker(newFakeMemoryStore(), similarity.NewTrigramEmbedder(), 3)

	confirm(t, tracker, "office depot", "6000")
	assert.False(t, eligible(t, tracker, "office depot"))

	confirm(t, tracker, "office depot", "6000")
	assert.False(t, eligible(t, tracker, "office depot"))

	mem := confirm(t, tracker, "office depot", "6000")
	assert.True(t, eligible(t, tracker, "office depot"))
	assert.Equal(t, 3, mem.LabelCount)
	assert.True(t, mem.Consistent)
	assert.NotEmpty(t, mem.Embedding)
}

func TestTracker_DisagreementResetsConsistency(t *testing.T) {
	tracker := NewTracker(newFakeMemoryStore(), similarity.NewTrigramEmbedder(), 3)

	for i := 0; i < 5; i++ {
		confirm(t, tracker, "acme", "6000")
	}
	require.True(t, eligible(t, tracker, "acme"))

	// One correction to a different account kills eligibility.
	mem := confirm(t, tracker, "acme", "6200")
	assert.False(t, eligible(t, tracker, "acme"))
	assert.False(t, mem.Consistent)
	assert.Equal(t, 1, mem.Streak)
	// Total label count keeps growing; only consistency state resets.
	assert.Equal(t, 6, mem.LabelCount)
}

func TestTracker_EligibilityReEarnedByFreshStreak(t *testing.T) {
	tracker := NewTracker(newFakeMemoryStore(), similarity.NewTrigramEmbedder(), 3)

	confirm(t, tracker, "acme", "6000")
	confirm(t, tracker, "acme", "6000")
	confirm(t, tracker, "acme", "6200") // disagreement

	confirm(t, tracker, "acme", "6200")
	assert.False(t, eligible(t, tracker, "acme"))

	mem := confirm(t, tracker, "acme", "6200")
	assert.True(t, mem.Consistent)
	assert.True(t, eligible(t, tracker, "acme"))
}

func TestTracker_LabelEventsAreAppendOnly(t *testing.T) {
	store := newFakeMemoryStore()
	tracker := NewTracker(store, similarity.NewTrigramEmbedder(), 3)

	confirm(t, tracker, "acme", "6000")
	confirm(t, tracker, "acme", "6200")
	confirm(t, tracker, "acme", "6000")

	assert.Len(t, store.labels, 3)
}

func TestTracker_ConcurrentConfirmationsSameVendor(t *testing.T) {
	store := newFakeMemoryStore()
	tracker := NewTracker(store, similarity.NewTrigramEmbedder(), 3)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.Confirm(context.Background(), &model.ConfirmationEvent{
				TenantID: "t1", Vendor: "acme", Account: "6000", ConfirmedAt: time.Now(),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, mem, err := tracker.Eligible(context.Background(), "t1", "acme")
	require.NoError(t, err)
	// Per-vendor serialization means no lost counter updates.
	assert.Equal(t, 20, mem.LabelCount)
	assert.Equal(t, 20, mem.Streak)
}
