package scoring

import (
	"context"
	"fmt"
	"math"

	"github.com/hieromt/hieromt/internal/llmclient"
	"github.com/hieromt/hieromt/pkg/provider/llm"
	"github.com/hieromt/hieromt/pkg/types"
)

// GEMBAMode selects which GEMBA prompting scheme a [GEMBAScorer] uses.
type GEMBAMode string

const (
	// GEMBADA prompts for a direct-assessment score in [0,100].
	GEMBADA GEMBAMode = "DA"
	// GEMBAMQM prompts for an MQM-style error-annotated score, converted to
	// [0,100] by deducting a fixed penalty per annotated error severity.
	GEMBAMQM GEMBAMode = "MQM"
)

// GEMBAScorer computes a reference-based GEMBA score by asking an LLM judge
// to rate a prediction against its reference, reusing the same
// [llmclient.Client] the refinement layers use.
type GEMBAScorer struct {
	client *llmclient.Client
	mode   GEMBAMode
}

// NewGEMBAScorer builds a GEMBAScorer in mode over client.
func NewGEMBAScorer(client *llmclient.Client, mode GEMBAMode) *GEMBAScorer {
	return &GEMBAScorer{client: client, mode: mode}
}

func (g *GEMBAScorer) Name() string {
	if g.mode == GEMBAMQM {
		return "gemba_mqm"
	}
	return "gemba_da"
}

type gembaDAResult struct {
	Score float64 `json:"score"`
}

type gembaMQMError struct {
	Severity string `json:"severity"` // "minor", "major", "critical"
}

type gembaMQMResult struct {
	Errors []gembaMQMError `json:"errors"`
}

var mqmPenalty = map[string]float64{
	"minor":    1,
	"major":    5,
	"critical": 25,
}

func (g *GEMBAScorer) Score(ctx context.Context, source, prediction, reference string, pair types.LanguagePair) (float64, error) {
	if reference == "" {
		return math.NaN(), nil
	}

	if g.mode == GEMBAMQM {
		return g.scoreMQM(ctx, source, prediction, reference, pair)
	}
	return g.scoreDA(ctx, source, prediction, reference, pair)
}

func (g *GEMBAScorer) scoreDA(ctx context.Context, source, prediction, reference string, pair types.LanguagePair) (float64, error) {
	var result gembaDAResult
	req := llm.CompletionRequest{
		SystemPrompt: "You are a professional translation quality evaluator performing direct assessment. Score the candidate translation's adequacy and fluency relative to the reference on a continuous scale from 0 (nonsense) to 100 (perfect). Respond with JSON: {\"score\":number}.",
		Messages: []types.Message{
			{Role: "user", Content: gembaPrompt(source, prediction, reference, pair)},
		},
	}
	if err := g.client.CompleteJSON(ctx, req, &result); err != nil {
		return math.NaN(), fmt.Errorf("scoring: gemba_da: %w", err)
	}
	return result.Score, nil
}

func (g *GEMBAScorer) scoreMQM(ctx context.Context, source, prediction, reference string, pair types.LanguagePair) (float64, error) {
	var result gembaMQMResult
	req := llm.CompletionRequest{
		SystemPrompt: "You are a professional translation quality evaluator performing MQM error annotation. List every translation error in the candidate relative to the reference, each tagged with a severity of \"minor\", \"major\", or \"critical\". Respond with JSON: {\"errors\":[{\"severity\":string}]}.",
		Messages: []types.Message{
			{Role: "user", Content: gembaPrompt(source, prediction, reference, pair)},
		},
	}
	if err := g.client.CompleteJSON(ctx, req, &result); err != nil {
		return math.NaN(), fmt.Errorf("scoring: gemba_mqm: %w", err)
	}

	score := 100.0
	for _, e := range result.Errors {
		score -= mqmPenalty[e.Severity]
	}
	if score < 0 {
		score = 0
	}
	return score, nil
}

func gembaPrompt(source, prediction, reference string, pair types.LanguagePair) string {
	return fmt.Sprintf("Language pair: %s\nSource:\n%s\n\nCandidate translation:\n%s\n\nReference translation:\n%s",
		pair, source, prediction, reference)
}

var _ Scorer = (*GEMBAScorer)(nil)
