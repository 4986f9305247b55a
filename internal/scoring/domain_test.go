package scoring

import (
	"context"
	"math"
	"testing"
)

func TestDeonticPreservationScorer_PreservedObligationScoresOne(t *testing.T) {
	s := DeonticPreservationScorer{}
	score, err := s.Score(context.Background(), "The lessor shall repair.", "Le bailleur doit réparer.", "Le bailleur doit réparer.", enFR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 1.0 {
		t.Errorf("score = %v, want 1.0", score)
	}
}

func TestDeonticPreservationScorer_DowngradedObligationScoresZero(t *testing.T) {
	s := DeonticPreservationScorer{}
	score, err := s.Score(context.Background(), "The lessor shall repair.", "Le bailleur peut réparer.", "Le bailleur doit réparer.", enFR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0.0 {
		t.Errorf("score = %v, want 0.0 (permission != obligation)", score)
	}
}

func TestDeonticPreservationScorer_NoModalsInReferenceReturnsNaN(t *testing.T) {
	s := DeonticPreservationScorer{}
	score, err := s.Score(context.Background(), "src", "pred", "Le chat est noir.", enFR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !math.IsNaN(score) {
		t.Errorf("score = %v, want NaN", score)
	}
}

func TestConditionalLogicScorer_PreservedConnectiveScoresOne(t *testing.T) {
	s := ConditionalLogicScorer{}
	score, err := s.Score(context.Background(), "Where the tenant defaults, the lease terminates.", "Lorsque le locataire est en défaut, le bail prend fin.", "Lorsque le locataire est en défaut, le bail prend fin.", enFR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 1.0 {
		t.Errorf("score = %v, want 1.0", score)
	}
}

func TestConditionalLogicScorer_DroppedConnectiveScoresZero(t *testing.T) {
	s := ConditionalLogicScorer{}
	score, err := s.Score(context.Background(), "src", "Le locataire est en défaut.", "Lorsque le locataire est en défaut, le bail prend fin.", enFR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0.0 {
		t.Errorf("score = %v, want 0.0", score)
	}
}

func TestTerminologyAccuracyScorer_MatchesGlossaryTermsInPrediction(t *testing.T) {
	s := NewTerminologyAccuracyScorer([]string{"bailleur", "force majeure"})
	score, err := s.Score(context.Background(), "src", "Le bailleur invoque la force majeure.", "Le bailleur invoque la force majeure.", enFR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 1.0 {
		t.Errorf("score = %v, want 1.0", score)
	}
}

func TestTerminologyAccuracyScorer_MissingTermInPredictionLowersScore(t *testing.T) {
	s := NewTerminologyAccuracyScorer([]string{"bailleur", "force majeure"})
	score, err := s.Score(context.Background(), "src", "Le bailleur invoque un cas fortuit.", "Le bailleur invoque la force majeure.", enFR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0.5 {
		t.Errorf("score = %v, want 0.5 (1 of 2 relevant terms present)", score)
	}
}

func TestTerminologyAccuracyScorer_EmptyGlossaryReturnsNaN(t *testing.T) {
	s := NewTerminologyAccuracyScorer(nil)
	score, err := s.Score(context.Background(), "src", "pred", "ref", enFR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !math.IsNaN(score) {
		t.Errorf("score = %v, want NaN", score)
	}
}
