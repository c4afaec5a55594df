// Package normalize canonicalizes free-text vendor descriptions so every
// downstream component keys on the same vendor identity.
package normalize

import (
	"regexp"
	"strings"
)

var (
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N} ]+`)
	refNumberRe  = regexp.MustCompile(`\b(?:#?\d{3,}|x{2,}\d+)\b`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Legal entity suffixes stripped from the end of vendor names.
var legalSuffixes = map[string]bool{
	"inc":          true,
	"incorporated": true,
	"llc":          true,
	"llp":          true,
	"ltd":          true,
	"limited":      true,
	"corp":         true,
	"corporation":  true,
	"co":           true,
	"company":      true,
	"plc":          true,
	"gmbh":         true,
}

// Transaction-processor prefixes that obscure the actual merchant.
var processorPrefixes = []string{
	"sq ",
	"tst ",
	"pos ",
	"ach ",
	"sp ",
	"pp ",
	"paypal ",
}

// Vendor canonicalizes a raw vendor or description string: lowercase, strip
// punctuation and legal suffixes, drop store/reference numbers, collapse
// whitespace. Deterministic and idempotent: normalizing an already-normalized
// string is a no-op.
func Vendor(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))

	s = punctRe.ReplaceAllString(s, " ")
	s = refNumberRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	// Prefixes strip only after punctuation folds away, so "SQ* BLUE BOTTLE"
	// and "SQ BLUE BOTTLE" land on the same key.
	for stripped := true; stripped; {
		stripped = false
		for _, prefix := range processorPrefixes {
			if strings.HasPrefix(s, prefix) {
				s = s[len(prefix):]
				stripped = true
			}
		}
	}

	// Strip trailing legal suffixes, possibly stacked ("co inc")
	words := strings.Fields(s)
	for len(words) > 1 && legalSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}

	return strings.Join(words, " ")
}
