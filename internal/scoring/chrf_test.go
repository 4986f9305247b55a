package scoring

import (
	"context"
	"math"
	"testing"
)

func TestChrFScorer_IdenticalStringsScoreOne(t *testing.T) {
	s := ChrFScorer{}
	score, err := s.Score(context.Background(), "src", "le chat noir", "le chat noir", enFR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score < 0.999 {
		t.Errorf("score = %v, want ~1.0", score)
	}
}

func TestChrFScorer_NoReferenceReturnsNaN(t *testing.T) {
	s := ChrFScorer{}
	score, err := s.Score(context.Background(), "src", "pred", "", enFR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !math.IsNaN(score) {
		t.Errorf("score = %v, want NaN", score)
	}
}

func TestChrFScorer_DisjointStringsScoreLow(t *testing.T) {
	s := ChrFScorer{}
	score, err := s.Score(context.Background(), "src", "xyz qrs tuv", "le chat noir mange", enFR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score > 0.3 {
		t.Errorf("score = %v, want low score for disjoint character content", score)
	}
}
