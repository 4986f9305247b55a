package scoring

import (
	"context"
	"math"
	"strings"

	"github.com/hieromt/hieromt/pkg/types"
)

// modalClass groups modal/deontic anchors by the obligation strength they
// express, independent of source or target language.
type modalClass string

const (
	modalObligation  modalClass = "obligation"  // shall, must, doit, deberá
	modalProhibition modalClass = "prohibition" // shall not, must not, ne...pas, no deberá
	modalPermission  modalClass = "permission"  // may, peut, podrá
	modalRecommend   modalClass = "recommend"   // should, devrait, debería
)

// modalLexicon maps a language pair to the token -> modalClass table used to
// classify modal anchors in that pair's target language. Source-side
// classification always uses the English table, since every pair in this
// system translates from English legal source text.
var modalLexicon = map[string]map[string]modalClass{
	"en": {
		"shall": modalObligation, "must": modalObligation,
		"shall not": modalProhibition, "must not": modalProhibition,
		"may": modalPermission, "should": modalRecommend,
	},
	"fr": {
		"doit": modalObligation, "doivent": modalObligation,
		"ne doit pas": modalProhibition, "ne peut pas": modalProhibition,
		"peut": modalPermission, "peuvent": modalPermission,
		"devrait": modalRecommend, "devraient": modalRecommend,
	},
	"es": {
		"deberá": modalObligation, "deberán": modalObligation,
		"no deberá": modalProhibition, "no podrá": modalProhibition,
		"podrá": modalPermission, "podrán": modalPermission,
		"debería": modalRecommend, "deberían": modalRecommend,
	},
	"de": {
		"muss": modalObligation, "müssen": modalObligation,
		"darf nicht": modalProhibition, "dürfen nicht": modalProhibition,
		"kann": modalPermission, "können": modalPermission,
		"sollte": modalRecommend, "sollten": modalRecommend,
	},
}

// conditionalLexicon maps a language to the connective tokens that introduce
// a conditional clause in that language.
var conditionalLexicon = map[string][]string{
	"en": {"if", "where", "unless", "provided that"},
	"fr": {"si", "lorsque", "à moins que", "sous réserve que"},
	"es": {"si", "cuando", "a menos que", "siempre que"},
	"de": {"wenn", "falls", "sofern", "es sei denn"},
}

func classify(text, lang string) map[modalClass]bool {
	table := modalLexicon[lang]
	found := make(map[modalClass]bool)
	lower := " " + strings.ToLower(text) + " "
	for token, class := range table {
		if strings.Contains(lower, " "+token+" ") || strings.Contains(lower, " "+token+",") {
			found[class] = true
		}
	}
	return found
}

func matchedConnectives(text, lang string) map[string]bool {
	found := make(map[string]bool)
	lower := strings.ToLower(text)
	for _, token := range conditionalLexicon[lang] {
		if strings.Contains(lower, token) {
			found[token] = true
		}
	}
	return found
}

// DeonticPreservationScorer scores how well modal/deontic anchors present in
// the reference (obligation, prohibition, permission, recommendation) are
// also present, in the same class, in the prediction.
type DeonticPreservationScorer struct{}

func (DeonticPreservationScorer) Name() string { return "deontic_preservation" }

func (DeonticPreservationScorer) Score(_ context.Context, _, prediction, reference string, pair types.LanguagePair) (float64, error) {
	if reference == "" {
		return math.NaN(), nil
	}
	refClasses := classify(reference, pair.Tgt)
	if len(refClasses) == 0 {
		return math.NaN(), nil
	}
	predClasses := classify(prediction, pair.Tgt)

	matched := 0
	for class := range refClasses {
		if predClasses[class] {
			matched++
		}
	}
	return float64(matched) / float64(len(refClasses)), nil
}

// ConditionalLogicScorer scores how well conditional connectives present in
// the reference are also present in the prediction.
type ConditionalLogicScorer struct{}

func (ConditionalLogicScorer) Name() string { return "conditional_logic" }

func (ConditionalLogicScorer) Score(_ context.Context, _, prediction, reference string, pair types.LanguagePair) (float64, error) {
	if reference == "" {
		return math.NaN(), nil
	}
	refConnectives := matchedConnectives(reference, pair.Tgt)
	if len(refConnectives) == 0 {
		return math.NaN(), nil
	}
	predConnectives := matchedConnectives(prediction, pair.Tgt)

	matched := 0
	for token := range refConnectives {
		if predConnectives[token] {
			matched++
		}
	}
	return float64(matched) / float64(len(refConnectives)), nil
}

// TerminologyAccuracyScorer scores how many of a fixed legal-domain glossary's
// target forms, found in the reference, also appear in the prediction. It is
// a coarse proxy for termbase-grounded accuracy that holds without requiring
// a live termbase connection (the Scorer contract takes no termbase
// argument); the harness may prefer termbase-aware scoring where available.
type TerminologyAccuracyScorer struct {
	glossary []string // target-language terms to check for, e.g. from the dataset's domain glossary
}

// NewTerminologyAccuracyScorer builds a scorer checking presence of each
// term in glossary.
func NewTerminologyAccuracyScorer(glossary []string) TerminologyAccuracyScorer {
	return TerminologyAccuracyScorer{glossary: glossary}
}

func (s TerminologyAccuracyScorer) Name() string { return "terminology_accuracy" }

func (s TerminologyAccuracyScorer) Score(_ context.Context, _, prediction, reference string, _ types.LanguagePair) (float64, error) {
	if reference == "" || len(s.glossary) == 0 {
		return math.NaN(), nil
	}
	lowerRef := strings.ToLower(reference)
	lowerPred := strings.ToLower(prediction)

	var relevant, matched int
	for _, term := range s.glossary {
		t := strings.ToLower(term)
		if !strings.Contains(lowerRef, t) {
			continue
		}
		relevant++
		if strings.Contains(lowerPred, t) {
			matched++
		}
	}
	if relevant == 0 {
		return math.NaN(), nil
	}
	return float64(matched) / float64(relevant), nil
}

var (
	_ Scorer = DeonticPreservationScorer{}
	_ Scorer = ConditionalLogicScorer{}
	_ Scorer = TerminologyAccuracyScorer{}
)
