// Package terminology implements the terminology refinement layer (spec
// 4.6, C6): a three-agent extract -> lookup -> evaluate -> translate
// workflow built on the shared [kernel.Loop], backed by [termbase.Termbase].
package terminology

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hieromt/hieromt/internal/kernel"
	"github.com/hieromt/hieromt/internal/llmclient"
	"github.com/hieromt/hieromt/internal/pipelineerr"
	"github.com/hieromt/hieromt/internal/selector"
	"github.com/hieromt/hieromt/internal/termbase"
	"github.com/hieromt/hieromt/pkg/provider/llm"
	"github.com/hieromt/hieromt/pkg/types"
)

// TermTableEntry is one source term's resolved candidate target forms, the
// TermTable record described in spec 4.6.
type TermTableEntry struct {
	SourceTerm       string
	Importance       float64
	Candidates       []types.TermLookupHit
	NeedsTranslation bool
}

// Features is the terminology layer's extracted feature set: the candidate
// term list plus its resolved TermTable.
type Features struct {
	Terms []TermTableEntry
}

type monoExtractTerm struct {
	Term       string  `json:"term"`
	Importance float64 `json:"importance"`
}

type monoExtractResult struct {
	Terms []monoExtractTerm `json:"terms"`
}

type evaluateResult struct {
	Accuracy     float64  `json:"accuracy"`
	Consistency  float64  `json:"consistency"`
	Completeness float64  `json:"completeness"`
	Overall      float64  `json:"overall"`
	Issues       []string `json:"issues"`
}

// Options configures [New].
type Options struct {
	GatingEnabled    bool
	GatingThreshold  float64
	SelectionEnabled bool
	NumCandidates    int
	Log              *slog.Logger
}

// New builds the terminology layer's [kernel.Loop] over client and tb.
func New(client *llmclient.Client, tb *termbase.Termbase, opts Options) kernel.Loop[Features] {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	return kernel.Loop[Features]{
		Layer:            types.LayerTerminology,
		GatingEnabled:    opts.GatingEnabled,
		GatingThreshold:  opts.GatingThreshold,
		SelectionEnabled: opts.SelectionEnabled,
		NumCandidates:    opts.NumCandidates,
		Extract:          extractFunc(client, tb, log),
		Evaluate:         evaluateFunc(client, log),
		Translate:        translateFunc(client),
		Select:           selectFunc(client),
		Artifacts: func(f Features, eval kernel.Evaluation) map[string]any {
			return map[string]any{"term_table": f.Terms, "issues": eval.Feedback}
		},
	}
}

// extractFunc implements MonoExtract + TermLookup. Per spec 4.6, a failure
// in MonoExtract is not fatal: the layer proceeds with an empty TermTable.
func extractFunc(client *llmclient.Client, tb *termbase.Termbase, log *slog.Logger) kernel.ExtractFunc[Features] {
	return func(ctx context.Context, segment types.Segment, _ string) (Features, error) {
		var result monoExtractResult
		req := llm.CompletionRequest{
			SystemPrompt: "You are a legal-domain terminology extraction agent. Identify salient source-language legal terms: proper nouns, specialized nominals, and modal/deontic anchors. Respond with JSON: {\"terms\":[{\"term\":string,\"importance\":number in [0,1]}]}.",
			Messages: []types.Message{
				{Role: "user", Content: segment.Source},
			},
		}
		if err := client.CompleteJSON(ctx, req, &result); err != nil {
			log.WarnContext(ctx, "terminology: MonoExtract failed, proceeding with empty term table", "segment_id", segment.ID, "error", err)
			return Features{}, nil
		}

		terms := make([]TermTableEntry, 0, len(result.Terms))
		for _, t := range result.Terms {
			hits, err := tb.Lookup(ctx, t.Term, segment.Pair)
			if err != nil {
				log.WarnContext(ctx, "terminology: termbase lookup failed, marking needs-translation", "term", t.Term, "error", err)
				terms = append(terms, TermTableEntry{SourceTerm: t.Term, Importance: t.Importance, NeedsTranslation: true})
				continue
			}
			terms = append(terms, TermTableEntry{
				SourceTerm:       t.Term,
				Importance:       t.Importance,
				Candidates:       hits,
				NeedsTranslation: len(hits) == 0,
			})
		}
		return Features{Terms: terms}, nil
	}
}

// evaluateFunc implements Evaluate. Per spec 4.6, a failure here is not
// fatal either: the layer proceeds with score=0, forcing re-translation.
func evaluateFunc(client *llmclient.Client, log *slog.Logger) kernel.EvaluateFunc[Features] {
	return func(ctx context.Context, segment types.Segment, translation string, features Features) (kernel.Evaluation, error) {
		var result evaluateResult
		req := llm.CompletionRequest{
			SystemPrompt: "You are a legal-domain terminology evaluation agent. Score the translation's use of the given term table on accuracy, consistency, and completeness, each in [0,1], plus an overall score. Respond with JSON: {\"accuracy\":number,\"consistency\":number,\"completeness\":number,\"overall\":number,\"issues\":[string]}.",
			Messages: []types.Message{
				{Role: "user", Content: evaluatePrompt(segment.Source, translation, features)},
			},
		}
		if err := client.CompleteJSON(ctx, req, &result); err != nil {
			log.WarnContext(ctx, "terminology: Evaluate failed, forcing re-translation with score=0", "segment_id", segment.ID, "error", err)
			return kernel.Evaluation{Score: 0, Feedback: "evaluation unavailable"}, nil
		}
		return kernel.Evaluation{Score: result.Overall, Feedback: joinIssues(result.Issues)}, nil
	}
}

// translateFunc implements Translate. Per spec 4.6, a failure here is fatal
// and surfaces as [pipelineerr.LayerFailure].
func translateFunc(client *llmclient.Client) kernel.TranslateFunc[Features] {
	return func(ctx context.Context, segment types.Segment, _ string, features Features, eval kernel.Evaluation) (string, error) {
		req := llm.CompletionRequest{
			SystemPrompt: "You are a legal-domain translation agent. Produce a translation of the source text that honors every constrained term in the term table exactly as given and addresses the listed issues. Respond with only the translation, no commentary.",
			Messages: []types.Message{
				{Role: "user", Content: translatePrompt(segment.Source, segment.Pair, features, eval)},
			},
		}
		resp, err := client.Complete(ctx, req)
		if err != nil {
			return "", fmt.Errorf("%w: terminology translate: %w", pipelineerr.LayerFailure, err)
		}
		return resp.Content, nil
	}
}

// selectFunc implements the N-candidate selection contract (spec 4.9, C9):
// generate n candidate translations, varying sampling temperature per
// attempt, then judge the best one via [selector.Select].
func selectFunc(client *llmclient.Client) kernel.SelectFunc[Features] {
	return func(ctx context.Context, segment types.Segment, _ string, features Features, eval kernel.Evaluation, n int) ([]types.CandidateText, int, error) {
		generate := func(ctx context.Context, attempt int) (string, error) {
			req := llm.CompletionRequest{
				SystemPrompt: "You are a legal-domain translation agent. Produce a translation of the source text that honors every constrained term in the term table exactly as given and addresses the listed issues. Respond with only the translation, no commentary.",
				Messages: []types.Message{
					{Role: "user", Content: translatePrompt(segment.Source, segment.Pair, features, eval)},
				},
				Temperature: candidateTemperature(attempt),
			}
			resp, err := client.Complete(ctx, req)
			if err != nil {
				return "", fmt.Errorf("%w: terminology translate candidate %d: %w", pipelineerr.LayerFailure, attempt, err)
			}
			return resp.Content, nil
		}
		return selector.Select(ctx, client, segment.Source, "satisfy every constrained term in the term table and address the listed issues", n, generate)
	}
}

// candidateTemperature spreads candidate attempts across a fixed sampling
// range so repeated calls against the same prompt diverge.
func candidateTemperature(attempt int) float64 {
	return 0.2 + 0.3*float64(attempt)
}

func evaluatePrompt(source, translation string, features Features) string {
	table, _ := json.Marshal(features.Terms)
	return fmt.Sprintf("Source:\n%s\n\nTranslation:\n%s\n\nTerm table:\n%s", source, translation, table)
}

func translatePrompt(source string, pair types.LanguagePair, features Features, eval kernel.Evaluation) string {
	table, _ := json.Marshal(features.Terms)
	return fmt.Sprintf("Language pair: %s\nSource:\n%s\n\nTerm table:\n%s\n\nIssues to address:\n%s", pair, source, table, eval.Feedback)
}

func joinIssues(issues []string) string {
	if len(issues) == 0 {
		return ""
	}
	b, err := json.Marshal(issues)
	if err != nil {
		return ""
	}
	return string(b)
}
