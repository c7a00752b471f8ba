// Package match resolves freeform name strings (typically AI-extracted text
// with OCR noise) back to candidate records by approximate name matching.
//
// The predicate is deliberately permissive: case-insensitive, bidirectional
// substring containment. It tolerates partial names and trailing-token noise
// at the cost of false positives on short or common names. When several
// candidates match, the first in collection-load order wins; there is no
// scoring. First-match-wins is a known limitation kept on purpose, since
// changing the tie-break changes observable outcomes for ambiguous names.
//
// Empty candidate names are skipped rather than treated as a substring of
// everything. Naive containment would let a nameless record match any query
// and, with first-match-wins, shadow every real candidate behind it.
package match

import (
	"strings"

	"github.com/kursbuero/kursd/internal/livingapps"
)

// Name reports whether query matches any of the candidate strings: both
// sides are lowercased and trimmed, then either may contain the other.
func Name(query string, candidates []string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	for _, c := range candidates {
		cl := strings.ToLower(strings.TrimSpace(c))
		if cl == "" {
			continue
		}
		if strings.Contains(cl, q) || strings.Contains(q, cl) {
			return true
		}
	}
	return false
}

// First scans records in their given order and returns a pointer to the
// first whose extracted name matches query, or nil if none does. nameFn
// derives the candidate name string from a record's fields.
func First(query string, records []livingapps.Record, nameFn func(livingapps.Record) string) *livingapps.Record {
	for i := range records {
		if Name(query, []string{nameFn(records[i])}) {
			return &records[i]
		}
	}
	return nil
}
