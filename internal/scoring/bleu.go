package scoring

import (
	"context"
	"math"
	"strings"

	"github.com/hieromt/hieromt/pkg/types"
)

const maxNgram = 4

// SentenceBLEUScorer computes single-sentence BLEU-4 with add-one smoothing
// on unmatched higher-order n-grams, the standard adjustment so a single
// short sentence with one missing 4-gram doesn't collapse to zero.
type SentenceBLEUScorer struct{}

func (SentenceBLEUScorer) Name() string { return "bleu_sentence" }

func (SentenceBLEUScorer) Score(_ context.Context, _, prediction, reference string, _ types.LanguagePair) (float64, error) {
	if reference == "" {
		return math.NaN(), nil
	}
	return sentenceBLEU(tokenize(prediction), tokenize(reference)), nil
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

func ngramCounts(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	if len(tokens) < n {
		return counts
	}
	for i := 0; i+n <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+n], " ")]++
	}
	return counts
}

func clippedMatches(pred, ref []string, n int) (matches, total int) {
	predCounts := ngramCounts(pred, n)
	refCounts := ngramCounts(ref, n)
	for gram, c := range predCounts {
		total += c
		if rc, ok := refCounts[gram]; ok {
			if rc < c {
				matches += rc
			} else {
				matches += c
			}
		}
	}
	return matches, total
}

func brevityPenalty(predLen, refLen int) float64 {
	if predLen == 0 {
		return 0
	}
	if predLen >= refLen {
		return 1.0
	}
	return math.Exp(1 - float64(refLen)/float64(predLen))
}

// sentenceBLEU computes BLEU-4 for a single (prediction, reference) pair
// with add-one smoothing on the n>=2 precisions; with no unigram match the
// score is 0.
func sentenceBLEU(pred, ref []string) float64 {
	if len(pred) == 0 {
		return 0
	}
	logSum := 0.0
	for n := 1; n <= maxNgram; n++ {
		matches, total := clippedMatches(pred, ref, n)
		if n == 1 && matches == 0 {
			return 0
		}
		precision := (float64(matches) + 1) / (float64(total) + 1)
		if n == 1 {
			precision = float64(matches) / float64(total)
		}
		logSum += math.Log(precision)
	}
	bp := brevityPenalty(len(pred), len(ref))
	return bp * math.Exp(logSum/maxNgram)
}

// corpusBLEU sums n-gram match and total counts across the whole corpus
// before deriving precisions, per the standard corpus-BLEU definition (no
// smoothing is applied at this level; a corpus large enough to report BLEU
// over rarely needs it).
func corpusBLEU(predictions, references []string) float64 {
	var matchTotals, candTotals [maxNgram + 1]int
	var predLenSum, refLenSum int

	for i := range predictions {
		pred := tokenize(predictions[i])
		ref := tokenize(references[i])
		predLenSum += len(pred)
		refLenSum += len(ref)
		for n := 1; n <= maxNgram; n++ {
			m, t := clippedMatches(pred, ref, n)
			matchTotals[n] += m
			candTotals[n] += t
		}
	}

	if predLenSum == 0 {
		return 0
	}

	logSum := 0.0
	for n := 1; n <= maxNgram; n++ {
		if candTotals[n] == 0 {
			return 0
		}
		precision := float64(matchTotals[n]) / float64(candTotals[n])
		if precision == 0 {
			return 0
		}
		logSum += math.Log(precision)
	}

	bp := brevityPenalty(predLenSum, refLenSum)
	return bp * math.Exp(logSum/maxNgram)
}
