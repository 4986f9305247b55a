package termbase

import (
	"context"
	"errors"
	"testing"

	"github.com/hieromt/hieromt/pkg/types"
)

var enUS = types.LanguagePair{Src: "en", Tgt: "fr"}

// fakeStore implements Lookuper, VectorSearcher, and Ingester in memory so
// Termbase's merge/dedup/threshold logic can be exercised without Postgres.
type fakeStore struct {
	entries    []types.TermEntry
	vectorHits []types.TermLookupHit
	upserted   []types.TermEntry
}

func (f *fakeStore) ExactLookup(_ context.Context, sourceForm string, pair types.LanguagePair) ([]types.TermEntry, error) {
	var out []types.TermEntry
	for _, e := range f.entries {
		if e.SourceForm == sourceForm && e.Pair == pair {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) AllForPair(_ context.Context, pair types.LanguagePair) ([]types.TermEntry, error) {
	var out []types.TermEntry
	for _, e := range f.entries {
		if e.Pair == pair {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) VectorLookup(_ context.Context, _ []float32, _ types.LanguagePair, _ int) ([]types.TermLookupHit, error) {
	return f.vectorHits, nil
}

func (f *fakeStore) Upsert(_ context.Context, entry types.TermEntry, _ []float32) error {
	f.upserted = append(f.upserted, entry)
	return nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

func TestLookup_ExactMatchWins(t *testing.T) {
	store := &fakeStore{entries: []types.TermEntry{
		{SourceForm: "force majeure", TargetForm: "force majeure", Pair: enUS, Confidence: 0.9, OccurrenceCount: 3},
	}}
	tb := New(&Store{}, nil)
	tb.store, tb.vectors, tb.ingester = store, store, store
	tb.embedder = nil

	hits, err := tb.Lookup(context.Background(), "force majeure", enUS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].Source != types.TermMatchExact {
		t.Fatalf("expected one exact hit, got %+v", hits)
	}
}

func TestLookup_FuzzyFallsBackWhenNoExact(t *testing.T) {
	store := &fakeStore{entries: []types.TermEntry{
		{SourceForm: "indemnification", TargetForm: "indemnisation", Pair: enUS, Confidence: 0.7, OccurrenceCount: 1},
	}}
	tb := New(&Store{}, nil)
	tb.store, tb.vectors, tb.ingester = store, store, store

	hits, err := tb.Lookup(context.Background(), "indemnificaton", enUS) // typo
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].Source != types.TermMatchFuzzy {
		t.Fatalf("expected one fuzzy hit, got %+v", hits)
	}
}

func TestLookup_VectorPassRespectsThreshold(t *testing.T) {
	store := &fakeStore{
		vectorHits: []types.TermLookupHit{
			{Entry: types.TermEntry{SourceForm: "a", TargetForm: "b", Pair: enUS}, Similarity: 0.6, Source: types.TermMatchVector},
			{Entry: types.TermEntry{SourceForm: "c", TargetForm: "d", Pair: enUS}, Similarity: 0.9, Source: types.TermMatchVector},
		},
	}
	tb := New(&Store{}, &fakeEmbedder{vec: []float32{1, 2, 3}}, WithVectorThreshold(0.75))
	tb.store, tb.vectors, tb.ingester = store, store, store

	hits, err := tb.Lookup(context.Background(), "unrelated phrase", enUS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].Entry.SourceForm != "c" {
		t.Fatalf("expected only the above-threshold vector hit, got %+v", hits)
	}
}

func TestLookupExactFuzzy_IgnoresVectorPassEvenWithEmbedder(t *testing.T) {
	store := &fakeStore{
		vectorHits: []types.TermLookupHit{
			{Entry: types.TermEntry{SourceForm: "c", TargetForm: "d", Pair: enUS}, Similarity: 0.99, Source: types.TermMatchVector},
		},
	}
	tb := New(&Store{}, &fakeEmbedder{vec: []float32{1, 2, 3}})
	tb.store, tb.vectors, tb.ingester = store, store, store

	hits, err := tb.LookupExactFuzzy(context.Background(), "unrelated phrase", enUS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits from exact+fuzzy-only lookup, got %+v", hits)
	}
}

func TestLookup_DeduplicatesAcrossPassesPreservingExactRank(t *testing.T) {
	entry := types.TermEntry{SourceForm: "lien", TargetForm: "nantissement", Pair: enUS, Confidence: 0.95, OccurrenceCount: 5}
	store := &fakeStore{
		entries:    []types.TermEntry{entry},
		vectorHits: []types.TermLookupHit{{Entry: entry, Similarity: 0.99, Source: types.TermMatchVector}},
	}
	tb := New(&Store{}, &fakeEmbedder{vec: []float32{1}})
	tb.store, tb.vectors, tb.ingester = store, store, store

	hits, err := tb.Lookup(context.Background(), "lien", enUS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected exactly one de-duplicated hit, got %d: %+v", len(hits), hits)
	}
	if hits[0].Source != types.TermMatchExact {
		t.Errorf("expected the exact-pass hit to win the dedup, got source %q", hits[0].Source)
	}
}

func TestLookup_TiesBrokenByConfidenceThenOccurrenceCount(t *testing.T) {
	store := &fakeStore{
		vectorHits: []types.TermLookupHit{
			{Entry: types.TermEntry{SourceForm: "a", TargetForm: "x", Pair: enUS, Confidence: 0.5, OccurrenceCount: 10}, Similarity: 0.9, Source: types.TermMatchVector},
			{Entry: types.TermEntry{SourceForm: "b", TargetForm: "y", Pair: enUS, Confidence: 0.9, OccurrenceCount: 1}, Similarity: 0.9, Source: types.TermMatchVector},
		},
	}
	tb := New(&Store{}, &fakeEmbedder{vec: []float32{1}}, WithVectorThreshold(0.1))
	tb.store, tb.vectors, tb.ingester = store, store, store

	hits, err := tb.Lookup(context.Background(), "anything", enUS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 || hits[0].Entry.SourceForm != "b" {
		t.Fatalf("expected higher-confidence entry first, got %+v", hits)
	}
}

func TestLookup_MaxResultsCapsOutput(t *testing.T) {
	store := &fakeStore{vectorHits: []types.TermLookupHit{
		{Entry: types.TermEntry{SourceForm: "a", TargetForm: "1", Pair: enUS}, Similarity: 0.9, Source: types.TermMatchVector},
		{Entry: types.TermEntry{SourceForm: "b", TargetForm: "2", Pair: enUS}, Similarity: 0.88, Source: types.TermMatchVector},
		{Entry: types.TermEntry{SourceForm: "c", TargetForm: "3", Pair: enUS}, Similarity: 0.87, Source: types.TermMatchVector},
	}}
	tb := New(&Store{}, &fakeEmbedder{vec: []float32{1}}, WithVectorThreshold(0.1), WithMaxResults(2))
	tb.store, tb.vectors, tb.ingester = store, store, store

	hits, err := tb.Lookup(context.Background(), "anything", enUS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected maxResults=2 to cap output, got %d", len(hits))
	}
}

func TestLookup_EmbedErrorPropagates(t *testing.T) {
	store := &fakeStore{}
	tb := New(&Store{}, &fakeEmbedder{err: errors.New("embedding backend down")})
	tb.store, tb.vectors, tb.ingester = store, store, store

	if _, err := tb.Lookup(context.Background(), "anything", enUS); err == nil {
		t.Fatal("expected embed error to propagate")
	}
}

func TestIngest_EmbedsAndUpserts(t *testing.T) {
	store := &fakeStore{}
	tb := New(&Store{}, &fakeEmbedder{vec: []float32{1, 2, 3}})
	tb.store, tb.vectors, tb.ingester = store, store, store

	entry := types.TermEntry{SourceForm: "escrow", TargetForm: "séquestre", Pair: enUS, Confidence: 0.8, OccurrenceCount: 1}
	if err := tb.Ingest(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.upserted) != 1 || store.upserted[0].SourceForm != "escrow" {
		t.Fatalf("expected entry to be upserted, got %+v", store.upserted)
	}
}
