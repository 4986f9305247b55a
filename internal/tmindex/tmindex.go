// Package tmindex's Index type fuses dense-vector and lexical retrieval
// into the ranked, floor-filtered, de-duplicated hit list the translation
// layers search for prior, human- or machine-aligned renderings (spec 4.4).
package tmindex

import (
	"context"
	"fmt"
	"sort"

	"github.com/hieromt/hieromt/pkg/types"
)

// Embedder is the subset of [embedclient.Client] the index needs to embed a
// query string for the dense-vector pass.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher is the subset of *Store used for the dense pass.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, vector []float32, pair types.LanguagePair, k int) ([]types.TMHit, error)
}

// LexicalSource is the subset of *Store used for the lexical pass.
type LexicalSource interface {
	AllForPair(ctx context.Context, pair types.LanguagePair) ([]types.TMEntry, error)
}

// Ingester is the subset of *Store used to persist new TM entries.
type Ingester interface {
	Upsert(ctx context.Context, entry types.TMEntry) error
}

// Option configures an [Index].
type Option func(*Index)

// WithAlpha overrides the dense/lexical fusion weight (spec default: 0.5).
// Score = alpha*denseSimilarity + (1-alpha)*lexicalSimilarity.
func WithAlpha(alpha float64) Option {
	return func(idx *Index) { idx.alpha = alpha }
}

// WithSimilarityFloor overrides tau_tm, the minimum fused score (spec
// default: 0.70) a hit must meet to be returned.
func WithSimilarityFloor(tau float64) Option {
	return func(idx *Index) { idx.floor = tau }
}

// WithMaxResults caps the number of hits Search returns. Default: 5.
func WithMaxResults(n int) Option {
	return func(idx *Index) { idx.maxResults = n }
}

// WithCandidatePoolSize bounds how many dense-pass neighbours are fetched
// before fusion. Default: 50.
func WithCandidatePoolSize(n int) Option {
	return func(idx *Index) { idx.poolSize = n }
}

// Backend is the full storage surface an Index needs; *Store satisfies it.
type Backend interface {
	VectorSearcher
	LexicalSource
	Ingester
}

// Index is the fused hybrid dense+lexical translation-memory search surface.
type Index struct {
	vectors  VectorSearcher
	lexical  LexicalSource
	ingester Ingester
	embedder Embedder

	alpha      float64
	floor      float64
	maxResults int
	poolSize   int
}

// New builds an Index over store (used for all three roles) and embedder.
func New(store Backend, embedder Embedder, opts ...Option) *Index {
	idx := &Index{
		vectors:    store,
		lexical:    store,
		ingester:   store,
		embedder:   embedder,
		alpha:      0.5,
		floor:      0.70,
		maxResults: 5,
		poolSize:   50,
	}
	for _, o := range opts {
		o(idx)
	}
	return idx
}

// Search runs the hybrid retrieval contract for query within pair: the dense
// pass finds the nearest neighbours by embedding cosine similarity, the
// lexical pass scores every candidate for the pair by token-set Jaccard
// similarity, and the two are combined as
//
//	score = alpha*dense + (1-alpha)*lexical
//
// Entries present in only one pass are scored with 0 for the missing side.
// Each (source, target) pair yields a single hit carrying its fused score;
// hits below the similarity floor are dropped and the rest are returned
// sorted by fused score descending.
func (idx *Index) Search(ctx context.Context, query string, pair types.LanguagePair) ([]types.TMHit, error) {
	denseScore := make(map[string]float64)
	denseEntry := make(map[string]types.TMEntry)
	if idx.embedder != nil {
		vec, err := idx.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("tmindex: search: embed query: %w", err)
		}
		denseHits, err := idx.vectors.VectorSearch(ctx, vec, pair, idx.poolSize)
		if err != nil {
			return nil, fmt.Errorf("tmindex: search: %w", err)
		}
		for _, h := range denseHits {
			key := dedupKey(h.Entry)
			denseScore[key] = h.Score
			denseEntry[key] = h.Entry
		}
	}

	candidates, err := idx.lexical.AllForPair(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("tmindex: search: %w", err)
	}
	lexHits := lexicalSearch(query, candidates)

	byKey := make(map[string]types.TMHit, len(lexHits)+len(denseScore))
	for _, h := range lexHits {
		key := dedupKey(h.Entry)
		fused := idx.alpha*denseScore[key] + (1-idx.alpha)*h.Score
		byKey[key] = types.TMHit{Entry: h.Entry, Score: fused}
	}
	// Dense hits with no lexical counterpart (the lexical candidate set
	// didn't include them) still count on their dense component alone.
	for key, score := range denseScore {
		if _, ok := byKey[key]; ok {
			continue
		}
		byKey[key] = types.TMHit{Entry: denseEntry[key], Score: idx.alpha * score}
	}

	var out []types.TMHit
	for _, h := range byKey {
		if h.Score < idx.floor {
			continue
		}
		out = append(out, h)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if idx.maxResults > 0 && len(out) > idx.maxResults {
		out = out[:idx.maxResults]
	}
	return out, nil
}

// Ingest idempotently upserts entry, embedding its source text first when an
// embedder is configured, and computing lexical tokens if entry did not
// already carry them.
func (idx *Index) Ingest(ctx context.Context, entry types.TMEntry) error {
	if entry.LexicalTokens == nil {
		entry.LexicalTokens = tokenize(entry.SourceText)
	}
	if idx.embedder != nil && entry.DenseVector == nil {
		vec, err := idx.embedder.Embed(ctx, entry.SourceText)
		if err != nil {
			return fmt.Errorf("tmindex: ingest: embed: %w", err)
		}
		entry.DenseVector = vec
	}
	if err := idx.ingester.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("tmindex: ingest: %w", err)
	}
	return nil
}

func dedupKey(e types.TMEntry) string {
	return e.SourceText + "\x00" + e.TargetText
}
