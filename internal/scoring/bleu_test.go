package scoring

import (
	"context"
	"math"
	"testing"

	"github.com/hieromt/hieromt/pkg/types"
)

var enFR = types.LanguagePair{Src: "en", Tgt: "fr"}

func TestSentenceBLEUScorer_PerfectMatchScoresHigh(t *testing.T) {
	s := SentenceBLEUScorer{}
	score, err := s.Score(context.Background(), "src", "le chat est noir", "le chat est noir", enFR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score < 0.99 {
		t.Errorf("score = %v, want ~1.0 for identical strings", score)
	}
}

func TestSentenceBLEUScorer_NoReferenceReturnsNaN(t *testing.T) {
	s := SentenceBLEUScorer{}
	score, err := s.Score(context.Background(), "src", "anything", "", enFR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !math.IsNaN(score) {
		t.Errorf("score = %v, want NaN for missing reference", score)
	}
}

func TestSentenceBLEUScorer_CompleteMismatchScoresLow(t *testing.T) {
	s := SentenceBLEUScorer{}
	score, err := s.Score(context.Background(), "src", "completely unrelated words here", "le chat est noir", enFR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score > 0.2 {
		t.Errorf("score = %v, want low score for disjoint n-grams", score)
	}
}

func TestCorpusBLEU_IdenticalCorpusScoresHigh(t *testing.T) {
	preds := []string{"le chat est noir", "le chien court vite"}
	refs := []string{"le chat est noir", "le chien court vite"}
	score := CorpusBLEU(preds, refs)
	if score < 0.99 {
		t.Errorf("CorpusBLEU = %v, want ~1.0", score)
	}
}

func TestCorpusBLEU_MismatchedLengthsReturnsNaN(t *testing.T) {
	score := CorpusBLEU([]string{"a"}, []string{"a", "b"})
	if !math.IsNaN(score) {
		t.Errorf("CorpusBLEU = %v, want NaN for mismatched slice lengths", score)
	}
}

func TestBrevityPenalty_ShorterPredictionIsPenalized(t *testing.T) {
	full := brevityPenalty(10, 10)
	short := brevityPenalty(5, 10)
	if full != 1.0 {
		t.Errorf("brevityPenalty(10,10) = %v, want 1.0", full)
	}
	if short >= full {
		t.Errorf("brevityPenalty(5,10) = %v, want < brevityPenalty(10,10)", short)
	}
}
