package termbase

import (
	"testing"

	"github.com/hieromt/hieromt/pkg/types"
)

func TestFuzzyMatch_OrdersBySimilarityDescending(t *testing.T) {
	candidates := []types.TermEntry{
		{SourceForm: "arbitration clause"},
		{SourceForm: "arbitraton clause"}, // one-letter typo, should score higher
		{SourceForm: "completely unrelated term"},
	}

	hits := fuzzyMatch("arbitration clause", candidates, 0.5)
	if len(hits) < 2 {
		t.Fatalf("expected at least 2 hits above threshold, got %d", len(hits))
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Similarity > hits[i-1].Similarity {
			t.Fatalf("hits not sorted descending at index %d: %+v", i, hits)
		}
	}
	if hits[0].Entry.SourceForm != "arbitration clause" {
		t.Errorf("expected exact string to score highest, got %q", hits[0].Entry.SourceForm)
	}
}

func TestFuzzyMatch_ExcludesBelowThreshold(t *testing.T) {
	candidates := []types.TermEntry{{SourceForm: "zzzzzzzzzz"}}
	hits := fuzzyMatch("arbitration clause", candidates, 0.9)
	if len(hits) != 0 {
		t.Fatalf("expected no hits below threshold, got %+v", hits)
	}
}

func TestFuzzyMatch_CaseInsensitive(t *testing.T) {
	candidates := []types.TermEntry{{SourceForm: "Force Majeure"}}
	hits := fuzzyMatch("force majeure", candidates, 0.95)
	if len(hits) != 1 {
		t.Fatalf("expected case-insensitive match, got %+v", hits)
	}
}
