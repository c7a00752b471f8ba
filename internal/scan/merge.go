package scan

import (
	"github.com/kursbuero/kursd/internal/catalog"
	"github.com/kursbuero/kursd/internal/livingapps"
	"github.com/kursbuero/kursd/internal/match"
)

// Candidates supplies the currently loaded records of a collection, in
// collection-load order (first-match-wins depends on that order).
type Candidates func(k catalog.Key) []livingapps.Record

// RefEncoder re-encodes a matched record id as a lookup reference scoped to
// the target collection.
type RefEncoder func(target catalog.Key, recordID string) string

// Result is the outcome of merging an extraction into a draft.
type Result struct {
	// Fields is the merged draft.
	Fields map[string]any `json:"fields"`
	// Resolved maps each lookup key that was fuzzy-resolved to the
	// reference it was set to.
	Resolved map[string]string `json:"resolved"`
	// Unmatched lists lookup keys where extraction produced a name but no
	// candidate matched; the operator resolves those manually.
	Unmatched []string `json:"unmatched,omitempty"`
}

// Merge folds an extracted field map into the current draft of a collection.
//
// Non-lookup keys follow a fill-missing-only policy: an extracted value is
// adopted only when non-null and the draft holds nothing for that key yet.
// User-entered values are never overwritten, and nulls never overwrite
// anything, which also makes the merge idempotent.
//
// For each lookup key whose draft slot is still empty, the extracted name is
// fuzzy-matched against the target collection; on a hit the slot is set to
// the re-encoded reference, on a miss it stays unset.
func Merge(collection catalog.Key, current, extracted map[string]any, candidates Candidates, encode RefEncoder) Result {
	merged := make(map[string]any, len(current)+len(extracted))
	for k, v := range current {
		merged[k] = v
	}

	lookups := catalog.LookupFields(collection)
	isLookup := make(map[string]bool, len(lookups))
	for _, f := range lookups {
		isLookup[f.Key] = true
	}

	for k, v := range extracted {
		if isLookup[k] {
			continue
		}
		if v == nil {
			continue
		}
		if empty(merged[k]) {
			merged[k] = v
		}
	}

	res := Result{Fields: merged, Resolved: make(map[string]string)}
	for _, f := range lookups {
		name := catalog.StringField(extracted, f.Key)
		if name == "" || !empty(merged[f.Key]) {
			continue
		}
		hit := match.First(name, candidates(f.Lookup.Target), func(r livingapps.Record) string {
			return catalog.JoinName(r.Fields, f.Lookup.NameFields...)
		})
		if hit == nil {
			res.Unmatched = append(res.Unmatched, f.Key)
			continue
		}
		ref := encode(f.Lookup.Target, hit.ID)
		merged[f.Key] = ref
		res.Resolved[f.Key] = ref
	}
	return res
}

func empty(v any) bool {
	return v == nil || v == ""
}
