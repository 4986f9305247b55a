// Package termbase's Termbase type is the public entry point the
// terminology layer (C6) calls into: it fuses the exact, fuzzy, and
// dense-vector passes into one ranked, de-duplicated hit list.
package termbase

import (
	"context"
	"fmt"
	"sort"

	"github.com/hieromt/hieromt/pkg/types"
)

// Embedder is the subset of [embedclient.Client] the termbase needs for its
// dense-vector pass, kept narrow so tests can supply a stub.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher is the subset of *Store used for the dense-vector pass.
type VectorSearcher interface {
	VectorLookup(ctx context.Context, vector []float32, pair types.LanguagePair, k int) ([]types.TermLookupHit, error)
}

// Lookuper is the subset of *Store used for the exact and fuzzy passes.
type Lookuper interface {
	ExactLookup(ctx context.Context, sourceForm string, pair types.LanguagePair) ([]types.TermEntry, error)
	AllForPair(ctx context.Context, pair types.LanguagePair) ([]types.TermEntry, error)
}

// Ingester is the subset of *Store used to persist new term entries.
type Ingester interface {
	Upsert(ctx context.Context, entry types.TermEntry, vec []float32) error
}

// Backend is the full storage surface a Termbase needs; *Store satisfies it.
type Backend interface {
	Lookuper
	VectorSearcher
	Ingester
}

// Option configures a [Termbase].
type Option func(*Termbase)

// WithFuzzyThreshold overrides the minimum Jaro-Winkler similarity (spec
// default: 0.85) a candidate must meet to surface in the fuzzy pass.
func WithFuzzyThreshold(t float64) Option {
	return func(tb *Termbase) { tb.fuzzyThreshold = t }
}

// WithVectorThreshold overrides the minimum cosine similarity (spec default:
// 0.75) a candidate must meet to surface in the vector pass.
func WithVectorThreshold(t float64) Option {
	return func(tb *Termbase) { tb.vectorThreshold = t }
}

// WithMaxResults caps the number of hits Lookup returns after merging and
// de-duplicating all three passes. Default: 5.
func WithMaxResults(n int) Option {
	return func(tb *Termbase) { tb.maxResults = n }
}

// Termbase is the fused exact/fuzzy/vector lookup and ingest surface over a
// persisted term store (spec 4.3, C3).
type Termbase struct {
	store    Lookuper
	vectors  VectorSearcher
	ingester Ingester
	embedder Embedder

	fuzzyThreshold  float64
	vectorThreshold float64
	maxResults      int
}

// New builds a Termbase over store (used for all three roles) and embedder.
func New(store Backend, embedder Embedder, opts ...Option) *Termbase {
	tb := &Termbase{
		store:           store,
		vectors:         store,
		ingester:        store,
		embedder:        embedder,
		fuzzyThreshold:  0.85,
		vectorThreshold: 0.75,
		maxResults:      5,
	}
	for _, o := range opts {
		o(tb)
	}
	return tb
}

// Lookup runs the three-pass retrieval contract for sourceForm within pair:
// exact string match, then Jaro-Winkler fuzzy match, then pgvector
// dense-vector similarity. Results from every pass that finds at least one
// candidate are merged, de-duplicated by (source form, target form) — the
// earliest pass to surface an entry wins its rank — and returned sorted by
// similarity descending, ties broken by confidence then occurrence count.
func (tb *Termbase) Lookup(ctx context.Context, sourceForm string, pair types.LanguagePair) ([]types.TermLookupHit, error) {
	seen := make(map[string]bool)
	var merged []types.TermLookupHit

	exact, err := tb.store.ExactLookup(ctx, sourceForm, pair)
	if err != nil {
		return nil, fmt.Errorf("termbase: lookup: %w", err)
	}
	for _, e := range exact {
		merged = append(merged, types.TermLookupHit{Entry: e, Similarity: 1.0, Source: types.TermMatchExact})
		seen[dedupKey(e)] = true
	}

	candidates, err := tb.store.AllForPair(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("termbase: lookup: %w", err)
	}
	for _, hit := range fuzzyMatch(sourceForm, candidates, tb.fuzzyThreshold) {
		if seen[dedupKey(hit.Entry)] {
			continue
		}
		merged = append(merged, hit)
		seen[dedupKey(hit.Entry)] = true
	}

	if tb.embedder != nil {
		vec, err := tb.embedder.Embed(ctx, sourceForm)
		if err != nil {
			return nil, fmt.Errorf("termbase: lookup: embed query: %w", err)
		}
		vecHits, err := tb.vectors.VectorLookup(ctx, vec, pair, tb.maxResults)
		if err != nil {
			return nil, fmt.Errorf("termbase: lookup: %w", err)
		}
		for _, hit := range vecHits {
			if hit.Similarity < tb.vectorThreshold || seen[dedupKey(hit.Entry)] {
				continue
			}
			merged = append(merged, hit)
			seen[dedupKey(hit.Entry)] = true
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Entry.Confidence != b.Entry.Confidence {
			return a.Entry.Confidence > b.Entry.Confidence
		}
		return a.Entry.OccurrenceCount > b.Entry.OccurrenceCount
	})

	if tb.maxResults > 0 && len(merged) > tb.maxResults {
		merged = merged[:tb.maxResults]
	}
	return merged, nil
}

// LookupExactFuzzy runs only the first two passes of Lookup (exact, then
// fuzzy), skipping the dense-vector pass regardless of whether an embedder
// is configured. The offline preprocessing pipeline uses this to decide
// which deduplicated terms still need translation (spec 4.11 stage 3),
// where a vector-pass false positive would silently suppress a term that
// should have been translated and ingested under its own entry.
func (tb *Termbase) LookupExactFuzzy(ctx context.Context, sourceForm string, pair types.LanguagePair) ([]types.TermLookupHit, error) {
	seen := make(map[string]bool)
	var merged []types.TermLookupHit

	exact, err := tb.store.ExactLookup(ctx, sourceForm, pair)
	if err != nil {
		return nil, fmt.Errorf("termbase: lookup exact+fuzzy: %w", err)
	}
	for _, e := range exact {
		merged = append(merged, types.TermLookupHit{Entry: e, Similarity: 1.0, Source: types.TermMatchExact})
		seen[dedupKey(e)] = true
	}

	candidates, err := tb.store.AllForPair(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("termbase: lookup exact+fuzzy: %w", err)
	}
	for _, hit := range fuzzyMatch(sourceForm, candidates, tb.fuzzyThreshold) {
		if seen[dedupKey(hit.Entry)] {
			continue
		}
		merged = append(merged, hit)
		seen[dedupKey(hit.Entry)] = true
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Entry.Confidence != b.Entry.Confidence {
			return a.Entry.Confidence > b.Entry.Confidence
		}
		return a.Entry.OccurrenceCount > b.Entry.OccurrenceCount
	})

	if tb.maxResults > 0 && len(merged) > tb.maxResults {
		merged = merged[:tb.maxResults]
	}
	return merged, nil
}

// Ingest idempotently upserts entry, embedding its source form first when an
// embedder is configured so the dense-vector pass can retrieve it later.
func (tb *Termbase) Ingest(ctx context.Context, entry types.TermEntry) error {
	var vec []float32
	if tb.embedder != nil {
		v, err := tb.embedder.Embed(ctx, entry.SourceForm)
		if err != nil {
			return fmt.Errorf("termbase: ingest: embed: %w", err)
		}
		vec = v
	}
	if err := tb.ingester.Upsert(ctx, entry, vec); err != nil {
		return fmt.Errorf("termbase: ingest: %w", err)
	}
	return nil
}

func dedupKey(e types.TermEntry) string {
	return e.SourceForm + "\x00" + e.TargetForm + "\x00" + e.Pair.String()
}
