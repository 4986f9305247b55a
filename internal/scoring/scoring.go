// Package scoring computes the translation-quality metrics the experiment
// harness attaches to each sample (spec 4.12, C12): corpus/sentence BLEU,
// chrF++, BERTScore-F1, COMET, GEMBA-DA/MQM, and the domain-specific
// terminology_accuracy, deontic_preservation, and conditional_logic scores.
//
// Every metric is a total function from (source, prediction, reference,
// pair) to a scalar; math.NaN() is reserved for "not computable" (most
// commonly a missing reference).
package scoring

import (
	"context"
	"math"

	"github.com/hieromt/hieromt/pkg/types"
)

// Scorer computes one named metric for a single sample. Implementations
// must never panic on malformed input; they return math.NaN() instead.
type Scorer interface {
	Name() string
	Score(ctx context.Context, source, prediction, reference string, pair types.LanguagePair) (float64, error)
}

// Set runs a fixed collection of Scorers over one sample and returns their
// results keyed by Name(). A scorer that errors contributes math.NaN() for
// its key rather than aborting the remaining scorers.
type Set struct {
	scorers []Scorer
}

// NewSet builds a Set from scorers, in the order results should be computed.
func NewSet(scorers ...Scorer) *Set {
	return &Set{scorers: scorers}
}

// Score runs every configured Scorer and returns one map of metric name to
// value.
func (s *Set) Score(ctx context.Context, source, prediction, reference string, pair types.LanguagePair) map[string]float64 {
	out := make(map[string]float64, len(s.scorers))
	for _, sc := range s.scorers {
		v, err := sc.Score(ctx, source, prediction, reference, pair)
		if err != nil {
			v = math.NaN()
		}
		out[sc.Name()] = v
	}
	return out
}

// CorpusBLEU aggregates BLEU across a batch of (prediction, reference)
// pairs the way corpus-level BLEU is conventionally reported: n-gram match
// and length counts are summed across the whole corpus before the final
// score is derived, rather than averaging per-sentence scores.
func CorpusBLEU(predictions, references []string) float64 {
	if len(predictions) != len(references) || len(predictions) == 0 {
		return math.NaN()
	}
	return corpusBLEU(predictions, references)
}
