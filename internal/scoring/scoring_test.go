package scoring

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hieromt/hieromt/pkg/types"
)

type erroringScorer struct{}

func (erroringScorer) Name() string { return "always_errors" }
func (erroringScorer) Score(context.Context, string, string, string, types.LanguagePair) (float64, error) {
	return 0, errors.New("boom")
}

func TestSet_ScoreCollectsEveryScorerKeyedByName(t *testing.T) {
	s := NewSet(SentenceBLEUScorer{}, ChrFScorer{}, erroringScorer{})
	out := s.Score(context.Background(), "src", "le chat noir", "le chat noir", enFR)

	if _, ok := out["bleu_sentence"]; !ok {
		t.Error("expected bleu_sentence key present")
	}
	if _, ok := out["chrf++"]; !ok {
		t.Error("expected chrf++ key present")
	}
	v, ok := out["always_errors"]
	if !ok || !math.IsNaN(v) {
		t.Errorf("expected always_errors to resolve to NaN on scorer error, got %v (present=%v)", v, ok)
	}
}
