// Package dataset loads the JSON corpus files the cmd/hieromt binary hands
// to the preprocessing pipeline and the experiment harness. Parsing a raw
// data file's on-disk format is explicitly out of the core pipeline's scope
// (spec 1); this package is the caller-supplied seam that produces the
// []types.Segment the core packages actually operate on.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hieromt/hieromt/pkg/types"
)

// segmentRecord is the on-disk shape of one corpus entry.
type segmentRecord struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Reference string `json:"reference"`
	SrcLang   string `json:"src_lang"`
	TgtLang   string `json:"tgt_lang"`
}

// Load reads a JSON array of segment records from path and converts it to
// []types.Segment. A record missing id or source is rejected outright rather
// than silently producing an empty segment.
func Load(path string) ([]types.Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: read %q: %w", path, err)
	}

	var records []segmentRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("dataset: parse %q: %w", path, err)
	}

	segments := make([]types.Segment, 0, len(records))
	for i, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("dataset: record %d in %q: missing id", i, path)
		}
		if r.Source == "" {
			return nil, fmt.Errorf("dataset: record %d (%q) in %q: missing source", i, r.ID, path)
		}
		segments = append(segments, types.Segment{
			ID:        r.ID,
			Source:    r.Source,
			Reference: r.Reference,
			Pair:      types.LanguagePair{Src: r.SrcLang, Tgt: r.TgtLang},
		})
	}
	return segments, nil
}
