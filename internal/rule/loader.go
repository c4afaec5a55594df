package rule

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

// Set is a versioned collection of rules loaded from a ruleset document.
type Set struct {
	Version string
	Rules   []model.Rule
}

type ruleDoc struct {
	Version string      `yaml:"version"`
	Rules   []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	Name       string  `yaml:"name"`
	Pattern    string  `yaml:"pattern"`
	Account    string  `yaml:"account"`
	Confidence float64 `yaml:"confidence"`
	Priority   int     `yaml:"priority"`
	Regex      bool    `yaml:"regex"`
	Disabled   bool    `yaml:"disabled"`
}

// LoadFile reads and validates a YAML ruleset. Every pattern is compiled
// here so a malformed rule fails the load, never an evaluation.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied ruleset path
	if err != nil {
		return nil, fmt.Errorf("failed to read ruleset: %w", err)
	}
	return Parse(data)
}

// Parse validates a YAML ruleset document.
func Parse(data []byte) (*Set, error) {
	var doc ruleDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset: %w", err)
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("ruleset is missing a version")
	}

	now := time.Now()
	set := &Set{Version: doc.Version}
	seen := make(map[string]bool)

	for i, entry := range doc.Rules {
		if entry.Name == "" {
			return nil, fmt.Errorf("rule %d: name is required", i+1)
		}
		if seen[entry.Name] {
			return nil, fmt.Errorf("rule %q: duplicate name", entry.Name)
		}
		seen[entry.Name] = true

		if entry.Pattern == "" {
			return nil, fmt.Errorf("rule %q: pattern is required", entry.Name)
		}
		if entry.Account == "" {
			return nil, fmt.Errorf("rule %q: account is required", entry.Name)
		}
		if entry.Confidence < 0 || entry.Confidence > 1 {
			return nil, fmt.Errorf("rule %q: confidence %v is outside [0,1]", entry.Name, entry.Confidence)
		}
		if entry.Regex {
			if _, err := regexp.Compile(entry.Pattern); err != nil {
				return nil, fmt.Errorf("rule %q: invalid pattern: %w", entry.Name, err)
			}
		}

		confidence := entry.Confidence
		if confidence == 0 {
			confidence = 1.0 // curated rules default to exact-match confidence
		}

		set.Rules = append(set.Rules, model.Rule{
			ID:         i + 1,
			Name:       entry.Name,
			Pattern:    entry.Pattern,
			Account:    entry.Account,
			Confidence: confidence,
			Priority:   entry.Priority,
			IsRegex:    entry.Regex,
			IsActive:   !entry.Disabled,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	return set, nil
}
