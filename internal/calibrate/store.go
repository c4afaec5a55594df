package calibrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ledgerloom/ledgerloom/internal/common"
	"github.com/ledgerloom/ledgerloom/internal/model"
)

// ArtifactReader fetches the active artifact for a scope.
type ArtifactReader interface {
	GetActiveCalibrationModel(ctx context.Context, tenantID string) (*model.CalibrationModel, error)
}

type cachedArtifact struct {
	expiry     time.Time
	calibrator Calibrator
	artifact   *model.CalibrationModel
}

// Store resolves the active calibrator for a tenant, falling back to the
// global scope. Artifacts are immutable, so a short read-mostly cache keeps
// the hot path off the database; activation swaps are picked up when an
// entry expires or Invalidate is called.
type Store struct {
	reader ArtifactReader
	cache  map[string]cachedArtifact
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewStore creates an artifact store with the given cache TTL.
func NewStore(reader ArtifactReader, ttl time.Duration) *Store {
	if ttl == 0 {
		ttl = time.Minute
	}
	return &Store{
		reader: reader,
		cache:  make(map[string]cachedArtifact),
		ttl:    ttl,
	}
}

// Active returns the calibrator and its artifact for the tenant, trying the
// tenant scope then the global scope. A missing model in both scopes is a
// loud ErrCalibrationMissing: uncalibrated raw scores must never be compared
// to the configured threshold.
func (s *Store) Active(ctx context.Context, tenantID string) (Calibrator, *model.CalibrationModel, error) {
	if cal, artifact, ok := s.cached(tenantID); ok {
		return cal, artifact, nil
	}

	artifact, err := s.reader.GetActiveCalibrationModel(ctx, tenantID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, nil, fmt.Errorf("failed to load calibration model: %w", err)
	}
	if artifact == nil && tenantID != "" {
		artifact, err = s.reader.GetActiveCalibrationModel(ctx, "")
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return nil, nil, fmt.Errorf("failed to load global calibration model: %w", err)
		}
	}
	if artifact == nil {
		return nil, nil, fmt.Errorf("%w for tenant %q", common.ErrCalibrationMissing, tenantID)
	}

	calibrator, err := New(artifact)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	s.cache[tenantID] = cachedArtifact{
		calibrator: calibrator,
		artifact:   artifact,
		expiry:     time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	return calibrator, artifact, nil
}

// Invalidate drops all cached artifacts, forcing the next Active call to the
// database. Called after training activates a new artifact.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cache = make(map[string]cachedArtifact)
	s.mu.Unlock()
}

func (s *Store) cached(tenantID string) (Calibrator, *model.CalibrationModel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cache[tenantID]
	if !ok || time.Now().After(entry.expiry) {
		return nil, nil, false
	}
	return entry.calibrator, entry.artifact, true
}
