// Package kernel implements the extract -> evaluate -> translate agent loop
// shared by all three refinement layers (spec 4.5-4.8, C5): each layer
// instantiates [Loop] with its own feature type and three agent calls, and
// the kernel owns the shared control flow — gating, artifact capture, and
// error wrapping — so the layers themselves stay declarative.
package kernel

import (
	"context"
	"fmt"

	"github.com/hieromt/hieromt/pkg/types"
)

// Evaluation is the evaluate agent's verdict on the current translation: a
// quality score in [0,1] and natural-language feedback the translate agent
// conditions its re-translation on.
//
// Gated lets the evaluator itself force a no-op pass-through independent of
// the ablation's threshold-based gating (e.g. discourse has nothing to
// evaluate against when a segment has no TM references). GatedReason is
// recorded on the layer's output verbatim.
type Evaluation struct {
	Score       float64
	Feedback    string
	Gated       bool
	GatedReason string
}

// ExtractFunc runs the layer's extraction agent over the segment and its
// current translation, producing the layer-specific feature set F (a term
// table, a pattern list, a discourse/coreference map, ...).
type ExtractFunc[F any] func(ctx context.Context, segment types.Segment, currentTranslation string) (F, error)

// EvaluateFunc runs the layer's evaluation agent, scoring currentTranslation
// against the extracted features.
type EvaluateFunc[F any] func(ctx context.Context, segment types.Segment, currentTranslation string, features F) (Evaluation, error)

// TranslateFunc runs the layer's re-translation agent, producing an improved
// translation conditioned on the extracted features and the evaluation.
type TranslateFunc[F any] func(ctx context.Context, segment types.Segment, currentTranslation string, features F, eval Evaluation) (string, error)

// ArtifactFunc renders features and eval into the opaque evidence map
// attached to the layer's [types.LayerOutput]. Optional: a nil ArtifactFunc
// leaves Artifacts nil.
type ArtifactFunc[F any] func(features F, eval Evaluation) map[string]any

// SelectFunc runs the layer's translate agent n times and selects the best
// candidate via the N-candidate selection contract (spec 4.9, C9), used in
// place of Translate when SelectionEnabled is set.
type SelectFunc[F any] func(ctx context.Context, segment types.Segment, currentTranslation string, features F, eval Evaluation, n int) (candidates []types.CandidateText, chosenIndex int, err error)

// Loop is one layer's extract -> evaluate -> (gate | select | translate)
// agent loop.
type Loop[F any] struct {
	Layer     types.LayerName
	Extract   ExtractFunc[F]
	Evaluate  EvaluateFunc[F]
	Translate TranslateFunc[F]
	Select    SelectFunc[F]
	Artifacts ArtifactFunc[F]

	// GatingEnabled, when true, skips the translate call and passes
	// currentTranslation through unchanged if Evaluate's score meets
	// GatingThreshold.
	GatingEnabled   bool
	GatingThreshold float64

	// SelectionEnabled, when true, replaces the single Translate call with
	// NumCandidates candidates generated and judged via Select (spec 4.9).
	// Has no effect when the loop gates (threshold-based or intrinsic).
	SelectionEnabled bool
	NumCandidates    int
}

// Run executes one pass of the loop over segment, given the translation
// produced by the previous layer (or the orchestrator's base direct-LLM
// translation, for the first layer).
func (l Loop[F]) Run(ctx context.Context, segment types.Segment, currentTranslation string) (types.LayerOutput, error) {
	features, err := l.Extract(ctx, segment, currentTranslation)
	if err != nil {
		return types.LayerOutput{}, fmt.Errorf("kernel: %s: extract: %w", l.Layer, err)
	}

	eval, err := l.Evaluate(ctx, segment, currentTranslation, features)
	if err != nil {
		return types.LayerOutput{}, fmt.Errorf("kernel: %s: evaluate: %w", l.Layer, err)
	}

	out := types.LayerOutput{
		Layer:      l.Layer,
		Confidence: eval.Score,
	}
	if l.Artifacts != nil {
		out.Artifacts = l.Artifacts(features, eval)
	}

	if eval.Gated {
		out.Translation = currentTranslation
		out.Gated = true
		out.GatedReason = eval.GatedReason
		return out, nil
	}

	if l.GatingEnabled && eval.Score >= l.GatingThreshold {
		out.Translation = currentTranslation
		out.Gated = true
		out.GatedReason = "threshold_met"
		return out, nil
	}

	if l.SelectionEnabled && l.Select != nil {
		n := l.NumCandidates
		if n < 1 {
			n = 1
		}
		candidates, chosenIndex, err := l.Select(ctx, segment, currentTranslation, features, eval, n)
		if err != nil {
			return types.LayerOutput{}, fmt.Errorf("kernel: %s: select: %w", l.Layer, err)
		}
		out.Candidates = candidates
		out.ChosenIndex = chosenIndex
		out.Translation = candidates[chosenIndex].Text
		return out, nil
	}

	translation, err := l.Translate(ctx, segment, currentTranslation, features, eval)
	if err != nil {
		return types.LayerOutput{}, fmt.Errorf("kernel: %s: translate: %w", l.Layer, err)
	}
	out.Translation = translation
	return out, nil
}
