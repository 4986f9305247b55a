package preprocess

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hieromt/hieromt/internal/llmclient"
	"github.com/hieromt/hieromt/internal/retry"
	"github.com/hieromt/hieromt/internal/termbase"
	"github.com/hieromt/hieromt/pkg/provider/llm"
	"github.com/hieromt/hieromt/pkg/types"
)

var enFR = types.LanguagePair{Src: "en", Tgt: "fr"}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

// scriptedProvider resolves a canned response by matching a substring of the
// request's user content, so concurrently-issued extract/translate calls
// (whose ordering is not deterministic under errgroup.SetLimit) can each get
// the right reply regardless of call order. When several substrings occur in
// one request, the one occurring earliest in the content wins.
type scriptedProvider struct {
	mu        sync.Mutex
	responses map[string]string // substring -> response
	errOn     map[string]error  // substring -> forced error (checked before responses)
	calls     []string
}

func (p *scriptedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	content := req.Messages[0].Content
	p.mu.Lock()
	p.calls = append(p.calls, content)
	p.mu.Unlock()
	for substr, err := range p.errOn {
		if strings.Contains(content, substr) {
			return nil, err
		}
	}
	best, bestAt := "", -1
	for substr, resp := range p.responses {
		if at := strings.Index(content, substr); at >= 0 && (bestAt < 0 || at < bestAt) {
			best, bestAt = resp, at
		}
	}
	if bestAt >= 0 {
		return &llm.CompletionResponse{Content: best}, nil
	}
	return nil, fmt.Errorf("scriptedProvider: no response scripted for content: %s", content)
}

func (p *scriptedProvider) StreamCompletion(context.Context, llm.CompletionRequest) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) CountTokens(messages []types.Message) (int, error) { return 0, nil }
func (p *scriptedProvider) Capabilities() types.ModelCapabilities              { return types.ModelCapabilities{} }

var _ llm.Provider = (*scriptedProvider)(nil)

type fakeTermStore struct {
	mu       sync.Mutex
	entries  []types.TermEntry
	upserted []types.TermEntry
}

func (f *fakeTermStore) ExactLookup(ctx context.Context, sourceForm string, pair types.LanguagePair) ([]types.TermEntry, error) {
	var out []types.TermEntry
	for _, e := range f.entries {
		if e.SourceForm == sourceForm && e.Pair == pair {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeTermStore) AllForPair(ctx context.Context, pair types.LanguagePair) ([]types.TermEntry, error) {
	var out []types.TermEntry
	for _, e := range f.entries {
		if e.Pair == pair {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeTermStore) VectorLookup(ctx context.Context, vector []float32, pair types.LanguagePair, k int) ([]types.TermLookupHit, error) {
	return nil, nil
}

func (f *fakeTermStore) Upsert(ctx context.Context, entry types.TermEntry, vec []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, entry)
	return nil
}

func newTestTermbase(store *fakeTermStore) *termbase.Termbase {
	return termbase.New(store, nil)
}

func TestRun_ExtractsDedupesLooksUpTranslatesAndIngests(t *testing.T) {
	store := &fakeTermStore{
		entries: []types.TermEntry{
			{SourceForm: "lessor", TargetForm: "bailleur", Pair: enFR, Confidence: 0.9, OccurrenceCount: 1},
		},
	}
	tb := newTestTermbase(store)

	provider := &scriptedProvider{responses: map[string]string{
		"The lessor shall repair":  `{"terms":[{"term":"lessor","importance":0.9},{"term":"force majeure","importance":0.8}]}`,
		"Force majeure excuses":    `{"terms":[{"term":"force majeure","importance":0.85}]}`,
		`"term":"force majeure"`:  `{"force majeure":"force majeure"}`,
	}}
	client := llmclient.New(provider, llmclient.WithRetryPolicy(fastPolicy()))

	segments := []types.Segment{
		{ID: "s1", Source: "The lessor shall repair the premises.", Pair: enFR},
		{ID: "s2", Source: "Force majeure excuses non-performance.", Pair: enFR},
	}

	report, err := Run(context.Background(), client, tb, segments, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalSegments != 2 {
		t.Errorf("TotalSegments = %d, want 2", report.TotalSegments)
	}
	if report.UniqueTerms != 2 {
		t.Errorf("UniqueTerms = %d, want 2 (lessor, force majeure)", report.UniqueTerms)
	}
	if report.DBHits != 1 {
		t.Errorf("DBHits = %d, want 1 (lessor already in termbase)", report.DBHits)
	}
	if report.NewTranslations != 1 {
		t.Errorf("NewTranslations = %d, want 1 (force majeure)", report.NewTranslations)
	}
	if len(store.upserted) != 2 {
		t.Fatalf("expected 2 ingested entries, got %d: %+v", len(store.upserted), store.upserted)
	}
}

func TestRun_RecordsFailedTranslationAfterRetryWithoutRaising(t *testing.T) {
	store := &fakeTermStore{}
	tb := newTestTermbase(store)

	provider := &scriptedProvider{
		responses: map[string]string{
			"Novel clause with no precedent": `{"terms":[{"term":"indemnitor","importance":0.7}]}`,
		},
		errOn: map[string]error{
			`"term":"indemnitor"`: fmt.Errorf("judge backend unavailable"),
		},
	}
	client := llmclient.New(provider, llmclient.WithRetryPolicy(fastPolicy()))

	segments := []types.Segment{
		{ID: "s1", Source: "Novel clause with no precedent binds the indemnitor.", Pair: enFR},
	}

	report, err := Run(context.Background(), client, tb, segments, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.NewTranslations != 0 {
		t.Errorf("NewTranslations = %d, want 0", report.NewTranslations)
	}
	if len(report.FailedTranslations) != 1 || report.FailedTranslations[0] != "indemnitor" {
		t.Errorf("FailedTranslations = %+v, want [indemnitor]", report.FailedTranslations)
	}
	if len(store.upserted) != 0 {
		t.Errorf("expected no ingests for a failed translation, got %+v", store.upserted)
	}
}

func TestDeduplicate_MergesByNormalizedFormSummingCountsAndKeepingMaxConfidence(t *testing.T) {
	merged := deduplicate([]extraction{
		{term: "Force Majeure", importance: 0.6, context: "short"},
		{term: "force majeure!", importance: 0.9, context: "a much longer context sentence"},
		{term: "force  majeure", importance: 0.3, context: "mid length context"},
	})
	if len(merged) != 1 {
		t.Fatalf("expected a single merged group, got %d: %+v", len(merged), merged)
	}
	m := merged[0]
	if m.count != 3 {
		t.Errorf("count = %d, want 3", m.count)
	}
	if m.confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9 (max)", m.confidence)
	}
	if len(m.contexts) != 2 {
		t.Fatalf("expected at most 2 retained contexts, got %+v", m.contexts)
	}
	if m.contexts[0] != "a much longer context sentence" {
		t.Errorf("contexts[0] = %q, want the longest context first", m.contexts[0])
	}
}

func TestNormalize_CaseWhitespaceAndPunctuation(t *testing.T) {
	got := normalize(" Force-Majeure,  Clause. ")
	want := "forcemajeure clause"
	if got != want {
		t.Errorf("normalize() = %q, want %q", got, want)
	}
}
