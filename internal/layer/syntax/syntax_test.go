package syntax

import (
	"context"
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

func TestLayer_RevisesBasedOnIssues(t *testing.T) {
	provider := &sequenceProvider{responses: []string{
		`{"patterns":[{"SourcePattern":"shall","TargetPattern":"doit","Category":"modal","Confidence":0.9}]}`,
		`{"modal_fidelity":0.3,"connective_consistency":0.6,"conditional_logic_preservation":0.7,"voice_appropriateness":0.5,"overall":0.4,"issues":["modal weakened"]}`,
		"The tenant doit pay rent by the fifth.",
	}}
	client := llmclient.New(provider, llmclient.WithRetryPolicy(fastPolicy()))
	loop := New(client, Options{GatingEnabled: true, GatingThreshold: 0.85})

	segment := types.Segment{ID: "s1", Source: "The tenant shall pay rent by the fifth.", Pair: enFR}
	out, err := loop.Run(context.Background(), segment, "The tenant may pay rent by the fifth.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Gated {
		t.Error("expected gating not to trigger at score 0.4")
	}
	if out.Translation == "" {
		t.Error("expected a revised translation")
	}
}

func TestLayer_GatingPassesThroughAboveThreshold(t *testing.T) {
	provider := &sequenceProvider{responses: []string{
		`{"patterns":[]}`,
		`{"overall":0.9}`,
	}}
	client := llmclient.New(provider, llmclient.WithRetryPolicy(fastPolicy()))
	loop := New(client, Options{GatingEnabled: true, GatingThreshold: 0.85})

	segment := types.Segment{ID: "s2", Source: "Plain text.", Pair: enFR}
	out, err := loop.Run(context.Background(), segment, "prior")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Gated || out.Translation != "prior" {
		t.Errorf("expected gated pass-through, got %+v", out)
	}
}
