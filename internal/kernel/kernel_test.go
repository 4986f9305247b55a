package kernel

import (
	"context"
	"errors"
	"testing"

	"github.com/hieromt/hieromt/pkg/types"
)

type stubFeatures struct{ terms []string }

func TestLoop_RunsFullExtractEvaluateTranslate(t *testing.T) {
	loop := Loop[stubFeatures]{
		Layer: types.LayerTerminology,
		Extract: func(context.Context, types.Segment, string) (stubFeatures, error) {
			return stubFeatures{terms: []string{"lien"}}, nil
		},
		Evaluate: func(context.Context, types.Segment, string, stubFeatures) (Evaluation, error) {
			return Evaluation{Score: 0.5, Feedback: "missed a term"}, nil
		},
		Translate: func(_ context.Context, _ types.Segment, _ string, f stubFeatures, eval Evaluation) (string, error) {
			return "improved: " + eval.Feedback, nil
		},
		Artifacts: func(f stubFeatures, eval Evaluation) map[string]any {
			return map[string]any{"terms": f.terms}
		},
		GatingEnabled:   true,
		GatingThreshold: 0.90,
	}

	out, err := loop.Run(context.Background(), types.Segment{}, "draft")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Gated {
		t.Error("expected gating not to trigger below threshold")
	}
	if out.Translation != "improved: missed a term" {
		t.Errorf("translation = %q", out.Translation)
	}
	if out.Confidence != 0.5 {
		t.Errorf("confidence = %f, want 0.5", out.Confidence)
	}
	if out.Artifacts["terms"].([]string)[0] != "lien" {
		t.Errorf("artifacts not captured: %+v", out.Artifacts)
	}
}

func TestLoop_GatingSkipsTranslateAboveThreshold(t *testing.T) {
	translateCalled := false
	loop := Loop[stubFeatures]{
		Layer: types.LayerSyntax,
		Extract: func(context.Context, types.Segment, string) (stubFeatures, error) {
			return stubFeatures{}, nil
		},
		Evaluate: func(context.Context, types.Segment, string, stubFeatures) (Evaluation, error) {
			return Evaluation{Score: 0.95}, nil
		},
		Translate: func(context.Context, types.Segment, string, stubFeatures, Evaluation) (string, error) {
			translateCalled = true
			return "should not be used", nil
		},
		GatingEnabled:   true,
		GatingThreshold: 0.85,
	}

	out, err := loop.Run(context.Background(), types.Segment{}, "draft translation")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Gated || out.GatedReason != "threshold_met" {
		t.Errorf("expected gating to trigger, got %+v", out)
	}
	if out.Translation != "draft translation" {
		t.Errorf("expected gated output to pass through input unchanged, got %q", out.Translation)
	}
	if translateCalled {
		t.Error("translate agent should not be called when gating triggers")
	}
}

func TestLoop_GatingDisabledAlwaysTranslates(t *testing.T) {
	loop := Loop[stubFeatures]{
		Layer: types.LayerDiscourse,
		Extract: func(context.Context, types.Segment, string) (stubFeatures, error) {
			return stubFeatures{}, nil
		},
		Evaluate: func(context.Context, types.Segment, string, stubFeatures) (Evaluation, error) {
			return Evaluation{Score: 0.99}, nil
		},
		Translate: func(context.Context, types.Segment, string, stubFeatures, Evaluation) (string, error) {
			return "retranslated", nil
		},
		GatingEnabled: false,
	}

	out, err := loop.Run(context.Background(), types.Segment{}, "draft")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Gated {
		t.Error("gating disabled but output reports gated")
	}
	if out.Translation != "retranslated" {
		t.Errorf("translation = %q", out.Translation)
	}
}

func TestLoop_IntrinsicGateSkipsSelectAndTranslate(t *testing.T) {
	selectCalled, translateCalled := false, false
	loop := Loop[stubFeatures]{
		Layer: types.LayerDiscourse,
		Extract: func(context.Context, types.Segment, string) (stubFeatures, error) {
			return stubFeatures{}, nil
		},
		Evaluate: func(context.Context, types.Segment, string, stubFeatures) (Evaluation, error) {
			return Evaluation{Score: 1.0, Feedback: "no_references", Gated: true, GatedReason: "no_references"}, nil
		},
		Translate: func(context.Context, types.Segment, string, stubFeatures, Evaluation) (string, error) {
			translateCalled = true
			return "should not be used", nil
		},
		Select: func(context.Context, types.Segment, string, stubFeatures, Evaluation, int) ([]types.CandidateText, int, error) {
			selectCalled = true
			return nil, 0, nil
		},
		SelectionEnabled: true,
		NumCandidates:    3,
	}

	out, err := loop.Run(context.Background(), types.Segment{}, "prior translation")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Gated || out.GatedReason != "no_references" {
		t.Errorf("expected intrinsic gate to surface, got %+v", out)
	}
	if out.Translation != "prior translation" {
		t.Errorf("expected gated translation to pass through, got %q", out.Translation)
	}
	if selectCalled || translateCalled {
		t.Error("select and translate must not be called when the evaluator's intrinsic gate fires")
	}
}

func TestLoop_SelectionEnabledRecordsCandidatesAndChosenIndex(t *testing.T) {
	loop := Loop[stubFeatures]{
		Layer: types.LayerSyntax,
		Extract: func(context.Context, types.Segment, string) (stubFeatures, error) {
			return stubFeatures{}, nil
		},
		Evaluate: func(context.Context, types.Segment, string, stubFeatures) (Evaluation, error) {
			return Evaluation{Score: 0.4}, nil
		},
		Translate: func(context.Context, types.Segment, string, stubFeatures, Evaluation) (string, error) {
			t.Fatal("translate should not be called when selection is enabled")
			return "", nil
		},
		Select: func(context.Context, types.Segment, string, stubFeatures, Evaluation, int) ([]types.CandidateText, int, error) {
			return []types.CandidateText{{Text: "candidate zero", Rank: 0}, {Text: "candidate one", Rank: 1}}, 1, nil
		},
		SelectionEnabled: true,
		NumCandidates:    2,
	}

	out, err := loop.Run(context.Background(), types.Segment{}, "draft")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Candidates) != 2 {
		t.Fatalf("expected 2 candidates recorded, got %d", len(out.Candidates))
	}
	if out.ChosenIndex != 1 {
		t.Errorf("ChosenIndex = %d, want 1", out.ChosenIndex)
	}
	if out.Translation != "candidate one" {
		t.Errorf("Translation = %q, want the chosen candidate's text", out.Translation)
	}
}

func TestLoop_ExtractErrorWraps(t *testing.T) {
	loop := Loop[stubFeatures]{
		Layer: types.LayerTerminology,
		Extract: func(context.Context, types.Segment, string) (stubFeatures, error) {
			return stubFeatures{}, errors.New("upstream down")
		},
		Evaluate:  func(context.Context, types.Segment, string, stubFeatures) (Evaluation, error) { return Evaluation{}, nil },
		Translate: func(context.Context, types.Segment, string, stubFeatures, Evaluation) (string, error) { return "", nil },
	}
	if _, err := loop.Run(context.Background(), types.Segment{}, "draft"); err == nil {
		t.Fatal("expected extract error to propagate")
	}
}

func TestLoop_EvaluateErrorWraps(t *testing.T) {
	loop := Loop[stubFeatures]{
		Layer:    types.LayerTerminology,
		Extract:  func(context.Context, types.Segment, string) (stubFeatures, error) { return stubFeatures{}, nil },
		Evaluate: func(context.Context, types.Segment, string, stubFeatures) (Evaluation, error) { return Evaluation{}, errors.New("boom") },
		Translate: func(context.Context, types.Segment, string, stubFeatures, Evaluation) (string, error) {
			t.Fatal("translate should not be called when evaluate fails")
			return "", nil
		},
	}
	if _, err := loop.Run(context.Background(), types.Segment{}, "draft"); err == nil {
		t.Fatal("expected evaluate error to propagate")
	}
}

func TestLoop_TranslateErrorWraps(t *testing.T) {
	loop := Loop[stubFeatures]{
		Layer:    types.LayerTerminology,
		Extract:  func(context.Context, types.Segment, string) (stubFeatures, error) { return stubFeatures{}, nil },
		Evaluate: func(context.Context, types.Segment, string, stubFeatures) (Evaluation, error) { return Evaluation{Score: 0.1}, nil },
		Translate: func(context.Context, types.Segment, string, stubFeatures, Evaluation) (string, error) {
			return "", errors.New("boom")
		},
	}
	if _, err := loop.Run(context.Background(), types.Segment{}, "draft"); err == nil {
		t.Fatal("expected translate error to propagate")
	}
}
