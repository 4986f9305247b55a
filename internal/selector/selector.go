// Package selector implements the N-candidate selection contract (spec 4.9,
// C9): generate N candidate translations from a layer's translate agent,
// then ask a single LLM judge call to pick the best one, falling back to
// candidate 0 on any judge failure.
package selector

import (
	"context"
	"fmt"

	"github.com/hieromt/hieromt/internal/llmclient"
	"github.com/hieromt/hieromt/pkg/provider/llm"
	"github.com/hieromt/hieromt/pkg/types"
)

// GenerateFunc produces one candidate translation. attempt is the 0-based
// candidate index, passed through so callers can vary sampling temperature
// or seed per call.
type GenerateFunc func(ctx context.Context, attempt int) (string, error)

type judgeResult struct {
	ChosenIndex       int       `json:"chosen_index"`
	ScorePerCandidate []float64 `json:"score_per_candidate"`
	Rationale         string    `json:"rationale"`
}

// Select generates n candidates via generate, then invokes client as a judge
// to choose the best one against goal (a short description of the layer's
// objective, e.g. "fix modal fidelity issues"). It always returns a valid
// ChosenIndex into the returned candidate slice, falling back to 0 if the
// judge call fails or returns an out-of-range index.
func Select(ctx context.Context, client *llmclient.Client, source, goal string, n int, generate GenerateFunc) (candidates []types.CandidateText, chosenIndex int, err error) {
	if n < 1 {
		n = 1
	}

	texts := make([]string, n)
	for i := 0; i < n; i++ {
		t, genErr := generate(ctx, i)
		if genErr != nil {
			return nil, 0, fmt.Errorf("selector: generate candidate %d: %w", i, genErr)
		}
		texts[i] = t
	}

	if n == 1 {
		return []types.CandidateText{{Text: texts[0], Rank: 0}}, 0, nil
	}

	var judge judgeResult
	req := llm.CompletionRequest{
		SystemPrompt: "You are a translation candidate judge. Given a source text, a goal, and a numbered list of candidate translations, choose the single best candidate and score every candidate in [0,1]. Respond with JSON: {\"chosen_index\":integer,\"score_per_candidate\":[number],\"rationale\":string}.",
		Messages: []types.Message{
			{Role: "user", Content: judgePrompt(source, goal, texts)},
		},
	}
	if jerr := client.CompleteJSON(ctx, req, &judge); jerr != nil || judge.ChosenIndex < 0 || judge.ChosenIndex >= n {
		return buildCandidates(texts, nil, -1, ""), 0, nil
	}
	return buildCandidates(texts, judge.ScorePerCandidate, judge.ChosenIndex, judge.Rationale), judge.ChosenIndex, nil
}

func buildCandidates(texts []string, scores []float64, chosenIndex int, rationale string) []types.CandidateText {
	out := make([]types.CandidateText, len(texts))
	for i, t := range texts {
		r := ""
		if i < len(scores) {
			r = fmt.Sprintf("score=%.3f", scores[i])
		}
		if i == chosenIndex && rationale != "" {
			if r != "" {
				r += "; "
			}
			r += rationale
		}
		out[i] = types.CandidateText{Text: t, Rank: i, Rationale: r}
	}
	return out
}

func judgePrompt(source, goal string, texts []string) string {
	s := fmt.Sprintf("Source:\n%s\n\nGoal: %s\n\nCandidates:\n", source, goal)
	for i, t := range texts {
		s += fmt.Sprintf("[%d] %s\n", i, t)
	}
	return s
}
