// Package rule implements the deterministic first-match-wins rule matcher.
package rule

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

// Matcher evaluates an ordered list of pattern rules against normalized
// vendor text. Malformed patterns are rejected when the matcher is built;
// evaluation never fails.
type Matcher struct {
	compiled   map[int]*regexp.Regexp
	conflicted map[int]bool
	rules      []model.Rule
	version    string
}

// NewMatcher builds a matcher from a rule set. Rules are ordered by priority
// (highest first), ties broken by ID for determinism.
func NewMatcher(set *Set) (*Matcher, error) {
	m := &Matcher{
		compiled:   make(map[int]*regexp.Regexp),
		conflicted: make(map[int]bool),
		version:    set.Version,
	}

	for _, r := range set.Rules {
		if !r.IsActive {
			continue
		}
		if r.IsRegex {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %q: invalid pattern %q: %w", r.Name, r.Pattern, err)
			}
			m.compiled[r.ID] = re
		}
		m.rules = append(m.rules, r)
	}

	sort.Slice(m.rules, func(i, j int) bool {
		if m.rules[i].Priority != m.rules[j].Priority {
			return m.rules[i].Priority > m.rules[j].Priority
		}
		return m.rules[i].ID < m.rules[j].ID
	})

	m.detectConflicts()

	return m, nil
}

// detectConflicts marks rules that share a priority and pattern but bind
// different accounts. A match on a conflicted rule routes to review.
func (m *Matcher) detectConflicts() {
	type key struct {
		pattern  string
		priority int
		isRegex  bool
	}
	byKey := make(map[key][]model.Rule)
	for _, r := range m.rules {
		k := key{pattern: strings.ToLower(r.Pattern), priority: r.Priority, isRegex: r.IsRegex}
		byKey[k] = append(byKey[k], r)
	}
	for _, group := range byKey {
		if len(group) < 2 {
			continue
		}
		accounts := make(map[string]bool)
		for _, r := range group {
			accounts[r.Account] = true
		}
		if len(accounts) > 1 {
			for _, r := range group {
				m.conflicted[r.ID] = true
			}
		}
	}
}

// Version returns the loaded ruleset version identifier.
func (m *Matcher) Version() string {
	return m.version
}

// Match evaluates the normalized vendor (and raw description for regex rules)
// against the rule list. It returns the first matching rule's opinion, or nil
// when no rule matches; absence is not a zero-confidence opinion. The second
// return reports whether the matched rule belongs to a conflicting group.
func (m *Matcher) Match(normalized, raw string) (*model.SourceOpinion, bool) {
	start := time.Now()
	lowerRaw := strings.ToLower(raw)

	for _, r := range m.rules {
		if !m.matches(r, normalized, lowerRaw) {
			continue
		}
		return &model.SourceOpinion{
			Source:          model.SourceRule,
			ProposedAccount: r.Account,
			RawConfidence:   r.Confidence,
			Rationale:       fmt.Sprintf("matched rule %q", r.Name),
			LatencyMS:       time.Since(start).Milliseconds(),
		}, m.conflicted[r.ID]
	}

	return nil, false
}

func (m *Matcher) matches(r model.Rule, normalized, lowerRaw string) bool {
	if r.IsRegex {
		re, ok := m.compiled[r.ID]
		if !ok {
			return false
		}
		return re.MatchString(normalized) || re.MatchString(lowerRaw)
	}
	return strings.ToLower(r.Pattern) == normalized
}
