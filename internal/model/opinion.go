package model

// Source identifies which classification source produced an opinion.
type Source string

// Classification source constants.
const (
	SourceRule       Source = "RULE"
	SourceSimilarity Source = "SIMILARITY"
	SourceLLM        Source = "LLM"
)

// SourceOpinion is one classification source's answer for a transaction.
// Opinions are created fresh per evaluation and only ever persisted embedded
// in a Decision. A source that cannot answer emits no opinion at all; absence
// is distinct from a zero-confidence opinion.
type SourceOpinion struct {
	Source          Source  `json:"source"`
	ProposedAccount string  `json:"proposed_account"`
	RawConfidence   float64 `json:"raw_confidence"`
	Rationale       string  `json:"rationale,omitempty"`
	LatencyMS       int64   `json:"latency_ms"`
}
