// Package base implements the pipeline's INIT state (spec 4.10, C10): a
// single direct-LLM translation of the source segment, with no term table,
// pattern list, or TM reference conditioning. This is the seed translation
// every enabled refinement layer refines in turn, and it is the baseline
// ablation's output unchanged.
package base

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hieromt/hieromt/internal/llmclient"
	"github.com/hieromt/hieromt/internal/orchestrator"
	"github.com/hieromt/hieromt/internal/pipelineerr"
	"github.com/hieromt/hieromt/pkg/provider/llm"
	"github.com/hieromt/hieromt/pkg/types"
)

// Options configures [New].
type Options struct {
	Log *slog.Logger
}

// New builds the INIT-state [orchestrator.BaseTranslateFunc] over client.
func New(client *llmclient.Client, opts Options) orchestrator.BaseTranslateFunc {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	return func(ctx context.Context, segment types.Segment) (string, error) {
		req := llm.CompletionRequest{
			SystemPrompt: "You are a professional legal translator. Produce a direct, faithful translation of the source text, preserving its legal meaning and register. Respond with only the translation, no commentary.",
			Messages: []types.Message{
				{Role: "user", Content: fmt.Sprintf("Language pair: %s\nSource:\n%s", segment.Pair, segment.Source)},
			},
		}
		resp, err := client.Complete(ctx, req)
		if err != nil {
			log.WarnContext(ctx, "base: direct translation failed", "segment_id", segment.ID, "error", err)
			return "", fmt.Errorf("%w: base translate: %w", pipelineerr.LayerFailure, err)
		}
		return resp.Content, nil
	}
}
