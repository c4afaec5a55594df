package similarity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerloom/ledgerloom/internal/common"
	"github.com/ledgerloom/ledgerloom/internal/model"
)

// MemoryReader is the read-only view of vendor memory the matcher needs.
type MemoryReader interface {
	GetVendorMemory(ctx context.Context, tenantID, vendor string) (*model.VendorMemory, error)
	ListVendorMemory(ctx context.Context, tenantID string) ([]model.VendorMemory, error)
}

// Config holds the similarity matcher tunables.
type Config struct {
	// Floor is the minimum cosine similarity for accepting a neighbor.
	Floor float64
	// InconsistentCap bounds confidence when the neighbor's label history
	// disagrees with itself; it must sit well below the auto-post threshold.
	InconsistentCap float64
}

// DefaultConfig returns the default matcher configuration.
func DefaultConfig() Config {
	return Config{
		Floor:           0.80,
		InconsistentCap: 0.45,
	}
}

// Matcher looks up normalized vendors in confirmed history: exact match
// first, then embedding nearest neighbor. It is read-only against vendor
// memory and has no side effects.
type Matcher struct {
	memory   MemoryReader
	embedder Embedder
	cfg      Config
}

// NewMatcher creates a similarity matcher.
func NewMatcher(memory MemoryReader, embedder Embedder, cfg Config) *Matcher {
	if cfg.Floor <= 0 {
		cfg.Floor = DefaultConfig().Floor
	}
	if cfg.InconsistentCap <= 0 {
		cfg.InconsistentCap = DefaultConfig().InconsistentCap
	}
	return &Matcher{memory: memory, embedder: embedder, cfg: cfg}
}

// Match returns an opinion for the normalized vendor, or nil when no known
// vendor is similar enough. Confidence increases monotonically with both
// similarity and the neighbor's label history.
func (m *Matcher) Match(ctx context.Context, tenantID, vendor string) (*model.SourceOpinion, error) {
	start := time.Now()

	mem, err := m.memory.GetVendorMemory(ctx, tenantID, vendor)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("vendor memory lookup failed: %w", err)
	}
	if mem != nil {
		return m.opinion(mem, 1.0, fmt.Sprintf("exact match on %d confirmed labels", mem.LabelCount), start), nil
	}

	known, err := m.memory.ListVendorMemory(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("vendor memory scan failed: %w", err)
	}
	if len(known) == 0 {
		return nil, nil
	}

	query := m.embedder.Embed(vendor)

	var best *model.VendorMemory
	bestSim := 0.0
	for i := range known {
		candidate := known[i].Embedding
		if len(candidate) == 0 {
			candidate = m.embedder.Embed(known[i].Vendor)
		}
		sim := Cosine(query, candidate)
		if sim > bestSim {
			bestSim = sim
			best = &known[i]
		}
	}

	if best == nil || bestSim < m.cfg.Floor {
		return nil, nil
	}

	rationale := fmt.Sprintf("nearest neighbor %q at similarity %.2f", best.Vendor, bestSim)
	return m.opinion(best, bestSim, rationale, start), nil
}

// opinion converts a memory hit into a source opinion. A consistent history
// scales confidence toward the raw similarity as labels accumulate; an
// inconsistent one is capped regardless of similarity.
func (m *Matcher) opinion(mem *model.VendorMemory, sim float64, rationale string, start time.Time) *model.SourceOpinion {
	history := 0.70 + 0.06*float64(mem.LabelCount)
	if history > 1.0 {
		history = 1.0
	}

	confidence := sim * history
	if !mem.Consistent && confidence > m.cfg.InconsistentCap {
		confidence = m.cfg.InconsistentCap
		rationale += " (history inconsistent)"
	}

	return &model.SourceOpinion{
		Source:          model.SourceSimilarity,
		ProposedAccount: mem.Account,
		RawConfidence:   confidence,
		Rationale:       rationale,
		LatencyMS:       time.Since(start).Milliseconds(),
	}
}
