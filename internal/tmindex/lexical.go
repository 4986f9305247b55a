package tmindex

import (
	"strings"

	"github.com/hieromt/hieromt/pkg/types"
)

// tokenize lower-cases and splits on whitespace, the same normalisation used
// when an entry's lexical tokens are computed at ingest time.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// jaccard returns the Jaccard similarity of two token sets: the size of
// their intersection over the size of their union.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	inter := 0
	union := make(map[string]bool, len(a)+len(b))
	for _, t := range a {
		union[t] = true
	}
	for _, t := range b {
		if set[t] {
			inter++
			delete(set, t)
		}
		union[t] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(inter) / float64(len(union))
}

// lexicalSearch scores every candidate's lexical tokens against query's
// tokens by Jaccard similarity and returns every candidate, unsorted.
func lexicalSearch(query string, candidates []types.TMEntry) []types.TMHit {
	queryTokens := tokenize(query)
	hits := make([]types.TMHit, 0, len(candidates))
	for _, c := range candidates {
		hits = append(hits, types.TMHit{Entry: c, Score: jaccard(queryTokens, c.LexicalTokens)})
	}
	return hits
}
