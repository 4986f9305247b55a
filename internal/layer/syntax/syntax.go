// Package syntax implements the syntax refinement layer (spec 4.7, C7): a
// bilingual-pattern extract -> fidelity evaluate -> revise workflow built on
// the shared [kernel.Loop].
package syntax

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hieromt/hieromt/internal/kernel"
	"github.com/hieromt/hieromt/internal/llmclient"
	"github.com/hieromt/hieromt/internal/pipelineerr"
	"github.com/hieromt/hieromt/internal/selector"
	"github.com/hieromt/hieromt/pkg/provider/llm"
	"github.com/hieromt/hieromt/pkg/types"
)

// Features is the syntax layer's extracted bilingual pattern list.
type Features struct {
	Patterns []types.SyntaxPattern
}

type biExtractResult struct {
	Patterns []types.SyntaxPattern `json:"patterns"`
}

type syntaxEvaluateResult struct {
	ModalFidelity                 float64  `json:"modal_fidelity"`
	ConnectiveConsistency         float64  `json:"connective_consistency"`
	ConditionalLogicPreservation  float64  `json:"conditional_logic_preservation"`
	VoiceAppropriateness          float64  `json:"voice_appropriateness"`
	Overall                       float64  `json:"overall"`
	Issues                        []string `json:"issues"`
}

// Options configures [New].
type Options struct {
	GatingEnabled    bool
	GatingThreshold  float64
	SelectionEnabled bool
	NumCandidates    int
	Log              *slog.Logger
}

// New builds the syntax layer's [kernel.Loop] over client.
func New(client *llmclient.Client, opts Options) kernel.Loop[Features] {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return kernel.Loop[Features]{
		Layer:            types.LayerSyntax,
		GatingEnabled:    opts.GatingEnabled,
		GatingThreshold:  opts.GatingThreshold,
		SelectionEnabled: opts.SelectionEnabled,
		NumCandidates:    opts.NumCandidates,
		Extract:          extractFunc(client, log),
		Evaluate:         evaluateFunc(client, log),
		Translate:        translateFunc(client),
		Select:           selectFunc(client),
		Artifacts: func(f Features, eval kernel.Evaluation) map[string]any {
			return map[string]any{"patterns": f.Patterns, "issues": eval.Feedback}
		},
	}
}

func extractFunc(client *llmclient.Client, log *slog.Logger) kernel.ExtractFunc[Features] {
	return func(ctx context.Context, segment types.Segment, translation string) (Features, error) {
		var result biExtractResult
		req := llm.CompletionRequest{
			SystemPrompt: "You are a bilingual syntax-pattern extraction agent for legal text. Identify modal expressions (shall/must/may/should), conditional frames (where/if/when), voice choices, connectives, and nominalizations present or expected in the translation pair. Respond with JSON: {\"patterns\":[{\"SourcePattern\":string,\"TargetPattern\":string,\"Category\":\"modal\"|\"connective\"|\"conditional\"|\"voice\"|\"nominalization\"|\"other\",\"Confidence\":number}]}.",
			Messages: []types.Message{
				{Role: "user", Content: fmt.Sprintf("Source:\n%s\n\nCurrent translation:\n%s", segment.Source, translation)},
			},
		}
		if err := client.CompleteJSON(ctx, req, &result); err != nil {
			log.WarnContext(ctx, "syntax: BiExtract failed, proceeding with empty pattern list", "segment_id", segment.ID, "error", err)
			return Features{}, nil
		}
		return Features{Patterns: result.Patterns}, nil
	}
}

func evaluateFunc(client *llmclient.Client, log *slog.Logger) kernel.EvaluateFunc[Features] {
	return func(ctx context.Context, segment types.Segment, translation string, features Features) (kernel.Evaluation, error) {
		var result syntaxEvaluateResult
		patterns, _ := json.Marshal(features.Patterns)
		req := llm.CompletionRequest{
			SystemPrompt: "You are a bilingual syntax fidelity evaluation agent. Score the translation's modal fidelity, connective consistency, conditional logic preservation, and voice appropriateness, each in [0,1], plus an overall score. List issues keyed to specific spans. Respond with JSON: {\"modal_fidelity\":number,\"connective_consistency\":number,\"conditional_logic_preservation\":number,\"voice_appropriateness\":number,\"overall\":number,\"issues\":[string]}.",
			Messages: []types.Message{
				{Role: "user", Content: fmt.Sprintf("Source:\n%s\n\nTranslation:\n%s\n\nExpected patterns:\n%s", segment.Source, translation, patterns)},
			},
		}
		if err := client.CompleteJSON(ctx, req, &result); err != nil {
			log.WarnContext(ctx, "syntax: SyntaxEvaluate failed, forcing revision with score=0", "segment_id", segment.ID, "error", err)
			return kernel.Evaluation{Score: 0, Feedback: "evaluation unavailable"}, nil
		}
		issues, _ := json.Marshal(result.Issues)
		return kernel.Evaluation{Score: result.Overall, Feedback: string(issues)}, nil
	}
}

func translateFunc(client *llmclient.Client) kernel.TranslateFunc[Features] {
	return func(ctx context.Context, segment types.Segment, translation string, features Features, eval kernel.Evaluation) (string, error) {
		resp, err := client.Complete(ctx, syntaxRevisionRequest(segment, translation, features, eval, 0))
		if err != nil {
			return "", fmt.Errorf("%w: syntax translate: %w", pipelineerr.LayerFailure, err)
		}
		return resp.Content, nil
	}
}

// selectFunc implements the N-candidate selection contract (spec 4.9, C9).
func selectFunc(client *llmclient.Client) kernel.SelectFunc[Features] {
	return func(ctx context.Context, segment types.Segment, translation string, features Features, eval kernel.Evaluation, n int) ([]types.CandidateText, int, error) {
		generate := func(ctx context.Context, attempt int) (string, error) {
			resp, err := client.Complete(ctx, syntaxRevisionRequest(segment, translation, features, eval, attempt))
			if err != nil {
				return "", fmt.Errorf("%w: syntax translate candidate %d: %w", pipelineerr.LayerFailure, attempt, err)
			}
			return resp.Content, nil
		}
		return selector.Select(ctx, client, segment.Source, "fix the listed modal, connective, conditional, voice, and nominalization issues", n, generate)
	}
}

func syntaxRevisionRequest(segment types.Segment, translation string, features Features, eval kernel.Evaluation, attempt int) llm.CompletionRequest {
	patterns, _ := json.Marshal(features.Patterns)
	return llm.CompletionRequest{
		SystemPrompt: "You are a bilingual syntax revision agent for legal text. Revise the translation to fix the listed issues in modal, connective, conditional, voice, or nominalization choices. Do not change term choices already made in the draft unless strictly necessary; if you do, explain in a structured \"overrides\" note appended after a line of three dashes. Respond with the revised translation only (plus the optional overrides note).",
		Messages: []types.Message{
			{Role: "user", Content: fmt.Sprintf("Source:\n%s\n\nCurrent translation:\n%s\n\nExpected patterns:\n%s\n\nIssues to fix:\n%s", segment.Source, translation, patterns, eval.Feedback)},
		},
		Temperature: candidateTemperature(attempt),
	}
}

// candidateTemperature spreads candidate attempts across a fixed sampling
// range so repeated calls against the same prompt diverge.
func candidateTemperature(attempt int) float64 {
	return 0.2 + 0.3*float64(attempt)
}
