package scoring

import (
	"context"
	"math"
	"strings"

	"github.com/hieromt/hieromt/pkg/types"
)

const (
	chrfMaxCharOrder = 6
	chrfMaxWordOrder = 2
	chrfBeta         = 2.0 // chrF++ weights recall beta^2 times precision, beta=2
)

// ChrFScorer computes chrF++: the F-score over character n-grams (orders
// 1-6) extended with word unigram/bigram matches, averaged across all
// orders with equal weight.
type ChrFScorer struct{}

func (ChrFScorer) Name() string { return "chrf++" }

func (ChrFScorer) Score(_ context.Context, _, prediction, reference string, _ types.LanguagePair) (float64, error) {
	if reference == "" {
		return math.NaN(), nil
	}
	return chrF(prediction, reference), nil
}

func charNgramCounts(s string, n int) map[string]int {
	r := []rune(strings.Join(strings.Fields(s), " "))
	counts := make(map[string]int)
	if len(r) < n {
		return counts
	}
	for i := 0; i+n <= len(r); i++ {
		counts[string(r[i:i+n])]++
	}
	return counts
}

func fScore(predCounts, refCounts map[string]int) (precision, recall float64, ok bool) {
	var matched, predTotal, refTotal int
	for gram, c := range predCounts {
		predTotal += c
		if rc, present := refCounts[gram]; present {
			if rc < c {
				matched += rc
			} else {
				matched += c
			}
		}
	}
	for _, c := range refCounts {
		refTotal += c
	}
	if predTotal == 0 || refTotal == 0 {
		return 0, 0, false
	}
	return float64(matched) / float64(predTotal), float64(matched) / float64(refTotal), true
}

// chrF computes the chrF++ score for one (prediction, reference) pair,
// averaging the F-beta score over character n-grams 1..6 and word
// n-grams 1..2.
func chrF(prediction, reference string) float64 {
	var total float64
	var n int

	for order := 1; order <= chrfMaxCharOrder; order++ {
		p, r, ok := fScore(charNgramCounts(prediction, order), charNgramCounts(reference, order))
		if !ok {
			continue
		}
		total += fBeta(p, r)
		n++
	}
	predTokens := tokenize(prediction)
	refTokens := tokenize(reference)
	for order := 1; order <= chrfMaxWordOrder; order++ {
		p, r, ok := fScore(ngramCounts(predTokens, order), ngramCounts(refTokens, order))
		if !ok {
			continue
		}
		total += fBeta(p, r)
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func fBeta(precision, recall float64) float64 {
	if precision == 0 && recall == 0 {
		return 0
	}
	beta2 := chrfBeta * chrfBeta
	return (1 + beta2) * precision * recall / (beta2*precision + recall)
}
