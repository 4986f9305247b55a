package discourse

import (
	"context"
	"testing"
	"time"

	"github.com/hieromt/hieromt/internal/llmclient"
	"github.com/hieromt/hieromt/internal/retry"
	"github.com/hieromt/hieromt/internal/tmindex"
	"github.com/hieromt/hieromt/pkg/provider/llm"
	"github.com/hieromt/hieromt/pkg/types"
)

var enFR = types.LanguagePair{Src: "en", Tgt: "fr"}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

type sequenceProvider struct {
	responses []string
	calls     int
}

func (p *sequenceProvider) StreamCompletion(context.Context, llm.CompletionRequest) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}

func (p *sequenceProvider) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	i := p.calls
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.calls++
	return &llm.CompletionResponse{Content: p.responses[i]}, nil
}

func (p *sequenceProvider) CountTokens(messages []types.Message) (int, error) { return 0, nil }
func (p *sequenceProvider) Capabilities() types.ModelCapabilities              { return types.ModelCapabilities{} }

var _ llm.Provider = (*sequenceProvider)(nil)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1}, nil }

type fakeTMStore struct {
	all        []types.TMEntry
	vectorHits []types.TMHit
}

func (f *fakeTMStore) AllForPair(context.Context, types.LanguagePair) ([]types.TMEntry, error) {
	return f.all, nil
}

func (f *fakeTMStore) VectorSearch(context.Context, []float32, types.LanguagePair, int) ([]types.TMHit, error) {
	return f.vectorHits, nil
}

func (f *fakeTMStore) Upsert(context.Context, types.TMEntry) error { return nil }

func TestLayer_NoOpWhenNoReferencesAboveFloor(t *testing.T) {
	idx := tmindex.New(&fakeTMStore{}, fakeEmbedder{}, tmindex.WithSimilarityFloor(0.70))
	client := llmclient.New(&sequenceProvider{responses: []string{"should not be called"}}, llmclient.WithRetryPolicy(fastPolicy()))
	loop := New(client, idx, Options{})

	segment := types.Segment{ID: "s1", Source: "Novel clause with no precedent.", Pair: enFR}
	out, err := loop.Run(context.Background(), segment, "prior translation")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Translation != "prior translation" {
		t.Errorf("expected no-op pass-through, got %q", out.Translation)
	}
	if !out.Gated || out.GatedReason != "no_references" {
		t.Errorf("expected Gated=true with reason no_references, got %+v", out)
	}
}

func TestLayer_RevisesConservativelyWithReferences(t *testing.T) {
	entry := types.TMEntry{SourceText: "the lessor shall repair", TargetText: "le bailleur doit réparer", Pair: enFR}
	idx := tmindex.New(&fakeTMStore{
		all:        []types.TMEntry{entry},
		vectorHits: []types.TMHit{{Entry: entry, Score: 0.95}},
	}, fakeEmbedder{}, tmindex.WithSimilarityFloor(0.1))

	provider := &sequenceProvider{responses: []string{
		`{"term_consistency":0.5,"syntactic_alignment":0.6,"style_alignment":0.4,"overall":0.5,"divergence_report":["inconsistent modal"]}`,
		"le bailleur doit réparer les lieux loués.",
	}}
	client := llmclient.New(provider, llmclient.WithRetryPolicy(fastPolicy()))
	loop := New(client, idx, Options{GatingEnabled: true, GatingThreshold: 0.75})

	segment := types.Segment{ID: "s2", Source: "The lessor shall repair the leased premises.", Pair: enFR}
	out, err := loop.Run(context.Background(), segment, "le bailleur peut réparer les lieux loués.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Gated {
		t.Error("expected gating not to trigger at score 0.5")
	}
	if out.Translation != "le bailleur doit réparer les lieux loués." {
		t.Errorf("translation = %q", out.Translation)
	}
}
