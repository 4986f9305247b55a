// Package discourse implements the discourse refinement layer (spec 4.8,
// C8): a TM retrieval -> divergence analysis -> conservative style-aligned
// revision workflow built on the shared [kernel.Loop] and [tmindex.Index].
package discourse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hieromt/hieromt/internal/kernel"
	"github.com/hieromt/hieromt/internal/llmclient"
	"github.com/hieromt/hieromt/internal/pipelineerr"
	"github.com/hieromt/hieromt/internal/selector"
	"github.com/hieromt/hieromt/internal/tmindex"
	"github.com/hieromt/hieromt/pkg/provider/llm"
	"github.com/hieromt/hieromt/pkg/types"
)

// Features is the discourse layer's extracted reference set: the TM hits
// that passed the similarity floor, capped to NRef.
type Features struct {
	References []types.TMHit
}

type divergenceResult struct {
	TermConsistency     float64  `json:"term_consistency"`
	SyntacticAlignment  float64  `json:"syntactic_alignment"`
	StyleAlignment      float64  `json:"style_alignment"`
	Overall             float64  `json:"overall"`
	DivergenceReport    []string `json:"divergence_report"`
}

// Options configures [New].
type Options struct {
	K                int // NRef's value when NRef is unset (default 5)
	NRef             int // max references retained after the floor filter
	GatingEnabled    bool
	GatingThreshold  float64
	SelectionEnabled bool
	NumCandidates    int
	Log              *slog.Logger
}

// New builds the discourse layer's [kernel.Loop] over client and idx. When a
// segment has no TM references above the similarity floor, the loop is a
// no-op: the prior translation passes through unchanged without spending an
// LLM call on evaluation or revision.
func New(client *llmclient.Client, idx *tmindex.Index, opts Options) kernel.Loop[Features] {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	k := opts.K
	if k <= 0 {
		k = 5
	}
	nRef := opts.NRef
	if nRef <= 0 {
		nRef = k
	}

	return kernel.Loop[Features]{
		Layer:            types.LayerDiscourse,
		GatingEnabled:    opts.GatingEnabled,
		GatingThreshold:  opts.GatingThreshold,
		SelectionEnabled: opts.SelectionEnabled,
		NumCandidates:    opts.NumCandidates,
		Extract:          extractFunc(idx, k, nRef, log),
		Evaluate:         evaluateFunc(client, log),
		Translate:        translateFunc(client),
		Select:           selectFunc(client),
		Artifacts: func(f Features, eval kernel.Evaluation) map[string]any {
			return map[string]any{"references": f.References, "divergence_report": eval.Feedback}
		},
	}
}

// extractFunc implements DiscourseQuery: idx.Search already applies the
// alpha-fused score and similarity floor (tau_tm); this caps the result to
// NRef.
func extractFunc(idx *tmindex.Index, k, nRef int, log *slog.Logger) kernel.ExtractFunc[Features] {
	return func(ctx context.Context, segment types.Segment, _ string) (Features, error) {
		hits, err := idx.Search(ctx, segment.Source, segment.Pair)
		if err != nil {
			log.WarnContext(ctx, "discourse: DiscourseQuery failed, treating as no-op", "segment_id", segment.ID, "error", err)
			return Features{}, nil
		}
		if len(hits) > nRef {
			hits = hits[:nRef]
		}
		return Features{References: hits}, nil
	}
}

func evaluateFunc(client *llmclient.Client, log *slog.Logger) kernel.EvaluateFunc[Features] {
	return func(ctx context.Context, segment types.Segment, translation string, features Features) (kernel.Evaluation, error) {
		if len(features.References) == 0 {
			return kernel.Evaluation{Score: 1.0, Feedback: "no_references", Gated: true, GatedReason: "no_references"}, nil
		}

		refs, _ := json.Marshal(features.References)
		var result divergenceResult
		req := llm.CompletionRequest{
			SystemPrompt: "You are a discourse-consistency evaluation agent for legal translation. Compare the current translation to the given translation-memory references along term consistency, syntactic alignment, and style alignment, each in [0,1], plus an overall score. Produce a concrete token/clause-level divergence report. Respond with JSON: {\"term_consistency\":number,\"syntactic_alignment\":number,\"style_alignment\":number,\"overall\":number,\"divergence_report\":[string]}.",
			Messages: []types.Message{
				{Role: "user", Content: fmt.Sprintf("Source:\n%s\n\nCurrent translation:\n%s\n\nReferences:\n%s", segment.Source, translation, refs)},
			},
		}
		if err := client.CompleteJSON(ctx, req, &result); err != nil {
			log.WarnContext(ctx, "discourse: DiscourseEvaluate failed, forcing revision with score=0", "segment_id", segment.ID, "error", err)
			return kernel.Evaluation{Score: 0, Feedback: "evaluation unavailable"}, nil
		}
		report, _ := json.Marshal(result.DivergenceReport)
		return kernel.Evaluation{Score: result.Overall, Feedback: string(report)}, nil
	}
}

func translateFunc(client *llmclient.Client) kernel.TranslateFunc[Features] {
	return func(ctx context.Context, segment types.Segment, translation string, features Features, eval kernel.Evaluation) (string, error) {
		if len(features.References) == 0 {
			return translation, nil
		}

		resp, err := client.Complete(ctx, discourseRevisionRequest(segment, translation, eval, 0))
		if err != nil {
			return "", fmt.Errorf("%w: discourse translate: %w", pipelineerr.LayerFailure, err)
		}
		return resp.Content, nil
	}
}

// selectFunc implements the N-candidate selection contract (spec 4.9, C9).
// Unreachable when features.References is empty: that case is surfaced as
// an intrinsic gate (kernel.Evaluation.Gated) before selection runs.
func selectFunc(client *llmclient.Client) kernel.SelectFunc[Features] {
	return func(ctx context.Context, segment types.Segment, translation string, features Features, eval kernel.Evaluation, n int) ([]types.CandidateText, int, error) {
		generate := func(ctx context.Context, attempt int) (string, error) {
			resp, err := client.Complete(ctx, discourseRevisionRequest(segment, translation, eval, attempt))
			if err != nil {
				return "", fmt.Errorf("%w: discourse translate candidate %d: %w", pipelineerr.LayerFailure, attempt, err)
			}
			return resp.Content, nil
		}
		return selector.Select(ctx, client, segment.Source, "address the divergence report with minimal, conservative edits", n, generate)
	}
}

func discourseRevisionRequest(segment types.Segment, translation string, eval kernel.Evaluation, attempt int) llm.CompletionRequest {
	return llm.CompletionRequest{
		SystemPrompt: "You are a conservative discourse-revision agent for legal translation. Make only the minimal changes needed to address the items in the divergence report. Do not paraphrase or rewrite passages the report does not flag; free paraphrasing measurably hurts downstream n-gram evaluation. Respond with the revised translation only.",
		Messages: []types.Message{
			{Role: "user", Content: fmt.Sprintf("Source:\n%s\n\nCurrent translation:\n%s\n\nDivergence report:\n%s", segment.Source, translation, eval.Feedback)},
		},
		Temperature: candidateTemperature(attempt),
	}
}

// candidateTemperature spreads candidate attempts across a fixed sampling
// range so repeated calls against the same prompt diverge.
func candidateTemperature(attempt int) float64 {
	return 0.2 + 0.3*float64(attempt)
}
