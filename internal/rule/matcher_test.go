package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

func newSet(rules ...model.Rule) *Set {
	return &Set{Version: "test-1", Rules: rules}
}

func TestMatcher_FirstMatchWins(t *testing.T) {
	m, err := NewMatcher(newSet(
		model.Rule{ID: 1, Name: "low", Pattern: "office depot", Account: "6100", Confidence: 0.9, Priority: 10, IsActive: true},
		model.Rule{ID: 2, Name: "high", Pattern: "office depot", Account: "6000", Confidence: 1.0, Priority: 100, IsActive: true},
	))
	require.NoError(t, err)

	opinion, conflicted := m.Match("office depot", "OFFICE DEPOT, INC.")
	require.NotNil(t, opinion)
	assert.False(t, conflicted)
	assert.Equal(t, "6000", opinion.ProposedAccount)
	assert.Equal(t, model.SourceRule, opinion.Source)
	assert.InDelta(t, 1.0, opinion.RawConfidence, 1e-9)
}

func TestMatcher_NoMatchIsAbsence(t *testing.T) {
	m, err := NewMatcher(newSet(
		model.Rule{ID: 1, Name: "supplies", Pattern: "office depot", Account: "6000", Confidence: 1.0, IsActive: true},
	))
	require.NoError(t, err)

	opinion, conflicted := m.Match("some new vendor", "SOME NEW VENDOR")
	assert.Nil(t, opinion)
	assert.False(t, conflicted)
}

func TestMatcher_RegexAgainstNormalizedAndRaw(t *testing.T) {
	m, err := NewMatcher(newSet(
		model.Rule{ID: 1, Name: "coffee", Pattern: `.*coffee.*`, Account: "6300", Confidence: 0.95, IsRegex: true, IsActive: true},
	))
	require.NoError(t, err)

	opinion, _ := m.Match("blue bottle coffee", "SQ BLUE BOTTLE COFFEE #12")
	require.NotNil(t, opinion)
	assert.Equal(t, "6300", opinion.ProposedAccount)
}

func TestMatcher_InactiveRulesSkipped(t *testing.T) {
	m, err := NewMatcher(newSet(
		model.Rule{ID: 1, Name: "disabled", Pattern: "office depot", Account: "6000", Confidence: 1.0, IsActive: false},
	))
	require.NoError(t, err)

	opinion, _ := m.Match("office depot", "Office Depot")
	assert.Nil(t, opinion)
}

func TestMatcher_MalformedPatternRejectedAtLoad(t *testing.T) {
	_, err := NewMatcher(newSet(
		model.Rule{ID: 1, Name: "broken", Pattern: `([unclosed`, Account: "6000", IsRegex: true, IsActive: true},
	))
	assert.Error(t, err)
}

func TestMatcher_ConflictDetection(t *testing.T) {
	m, err := NewMatcher(newSet(
		model.Rule{ID: 1, Name: "a", Pattern: "acme", Account: "6000", Confidence: 1.0, Priority: 50, IsActive: true},
		model.Rule{ID: 2, Name: "b", Pattern: "acme", Account: "6200", Confidence: 1.0, Priority: 50, IsActive: true},
	))
	require.NoError(t, err)

	opinion, conflicted := m.Match("acme", "ACME")
	require.NotNil(t, opinion)
	assert.True(t, conflicted)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "valid ruleset",
			yaml: `
version: "2024-06"
rules:
  - name: supplies
    pattern: office depot
    account: "6000"
    confidence: 1.0
    priority: 100
`,
		},
		{
			name: "missing version",
			yaml: `
rules:
  - name: supplies
    pattern: office depot
    account: "6000"
`,
			wantErr: "version",
		},
		{
			name: "confidence out of range",
			yaml: `
version: "1"
rules:
  - name: supplies
    pattern: office depot
    account: "6000"
    confidence: 1.5
`,
			wantErr: "outside [0,1]",
		},
		{
			name: "malformed regex",
			yaml: `
version: "1"
rules:
  - name: broken
    pattern: "([bad"
    regex: true
    account: "6000"
`,
			wantErr: "invalid pattern",
		},
		{
			name: "duplicate names",
			yaml: `
version: "1"
rules:
  - name: dup
    pattern: a
    account: "6000"
  - name: dup
    pattern: b
    account: "6100"
`,
			wantErr: "duplicate name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Parse([]byte(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "2024-06", set.Version)
			require.Len(t, set.Rules, 1)
			assert.True(t, set.Rules[0].IsActive)
		})
	}
}
