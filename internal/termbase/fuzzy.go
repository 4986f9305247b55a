package termbase

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/hieromt/hieromt/pkg/types"
)

// fuzzyMatch scores candidates against sourceForm with Jaro-Winkler string
// similarity and returns every candidate at or above threshold, in
// descending score order.
func fuzzyMatch(sourceForm string, candidates []types.TermEntry, threshold float64) []types.TermLookupHit {
	needle := strings.ToLower(sourceForm)

	var hits []types.TermLookupHit
	for _, cand := range candidates {
		score := matchr.JaroWinkler(needle, strings.ToLower(cand.SourceForm), true)
		if score < threshold {
			continue
		}
		hits = append(hits, types.TermLookupHit{
			Entry:      cand,
			Similarity: score,
			Source:     types.TermMatchFuzzy,
		})
	}

	// Highest similarity first; ties keep the store's original ordering
	// (stable sort), consistent with the rank-preserving de-dup contract
	// applied once all three passes are merged.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Similarity > hits[j-1].Similarity; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	return hits
}
