package base

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hieromt/hieromt/internal/llmclient"
	"github.com/hieromt/hieromt/internal/retry"
	"github.com/hieromt/hieromt/pkg/provider/llm"
	"github.com/hieromt/hieromt/pkg/types"
)

var enFR = types.LanguagePair{Src: "en", Tgt: "fr"}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

type stubProvider struct {
	response string
	err      error
}

func (p *stubProvider) StreamCompletion(context.Context, llm.CompletionRequest) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}

func (p *stubProvider) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llm.CompletionResponse{Content: p.response}, nil
}

func (p *stubProvider) CountTokens(messages []types.Message) (int, error) { return 0, nil }
func (p *stubProvider) Capabilities() types.ModelCapabilities              { return types.ModelCapabilities{} }

var _ llm.Provider = (*stubProvider)(nil)

func TestBaseTranslate_ReturnsDirectLLMTranslation(t *testing.T) {
	client := llmclient.New(&stubProvider{response: "la partie doit payer"}, llmclient.WithRetryPolicy(fastPolicy()))
	translate := New(client, Options{})

	segment := types.Segment{ID: "s1", Source: "The party shall pay.", Pair: enFR}
	got, err := translate(context.Background(), segment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "la partie doit payer" {
		t.Errorf("translation = %q", got)
	}
}

func TestBaseTranslate_UpstreamFailureSurfacesAsLayerFailure(t *testing.T) {
	client := llmclient.New(&stubProvider{err: errors.New("upstream down")}, llmclient.WithRetryPolicy(fastPolicy()))
	translate := New(client, Options{})

	segment := types.Segment{ID: "s2", Source: "Some text.", Pair: enFR}
	if _, err := translate(context.Background(), segment); err == nil {
		t.Fatal("expected upstream failure to propagate")
	}
}
