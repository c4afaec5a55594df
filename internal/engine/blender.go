package engine

import (
	"sort"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

// Weights are the per-source blend weights. They apply only to sources that
// produced an opinion; an absent source's weight is redistributed
// proportionally among the present ones rather than contributing zero.
type Weights map[model.Source]float64

// DefaultWeights returns the standard blend weights.
func DefaultWeights() Weights {
	return Weights{
		model.SourceRule:       0.55,
		model.SourceSimilarity: 0.35,
		model.SourceLLM:        0.10,
	}
}

// sourceRank breaks ties deterministically when two candidate accounts carry
// the same weighted score.
var sourceRank = map[model.Source]int{
	model.SourceRule:       0,
	model.SourceSimilarity: 1,
	model.SourceLLM:        2,
}

// Blend combines the available opinions into one proposed account and raw
// score. The raw score is the top candidate account's weighted share divided
// by the total weight of all present opinions, so agreement among sources
// raises it and disagreement drops it. The returned weights are the
// renormalized weights actually applied. With no opinions, Blend returns an
// empty account and zero score.
func Blend(opinions []model.SourceOpinion, weights Weights) (account string, raw float64, applied map[model.Source]float64) {
	if len(opinions) == 0 {
		return "", 0, nil
	}

	var totalWeight float64
	for _, op := range opinions {
		totalWeight += weights[op.Source]
	}
	if totalWeight == 0 {
		return "", 0, nil
	}

	applied = make(map[model.Source]float64, len(opinions))
	for _, op := range opinions {
		applied[op.Source] = weights[op.Source] / totalWeight
	}

	// Weighted score per candidate account.
	scores := make(map[string]float64)
	for _, op := range opinions {
		scores[op.ProposedAccount] += weights[op.Source] * op.RawConfidence
	}

	candidates := make([]string, 0, len(scores))
	for acct := range scores {
		candidates = append(candidates, acct)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if scores[candidates[i]] != scores[candidates[j]] {
			return scores[candidates[i]] > scores[candidates[j]]
		}
		return bestRank(opinions, candidates[i]) < bestRank(opinions, candidates[j])
	})

	account = candidates[0]
	raw = scores[account] / totalWeight
	return account, raw, applied
}

func bestRank(opinions []model.SourceOpinion, account string) int {
	best := len(sourceRank)
	for _, op := range opinions {
		if op.ProposedAccount == account && sourceRank[op.Source] < best {
			best = sourceRank[op.Source]
		}
	}
	return best
}
