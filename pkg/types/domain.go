package types

// LanguagePair identifies the source and target language of a translation
// unit, e.g. {Src: "zh", Tgt: "en"}.
type LanguagePair struct {
	Src string
	Tgt string
}

// String renders the pair as "zh->en", used as a cache/lookup key component.
func (p LanguagePair) String() string {
	return p.Src + "->" + p.Tgt
}

// Segment is one unit of source text to translate, optionally paired with a
// reference translation used for evaluation.
type Segment struct {
	ID        string
	Source    string
	Pair      LanguagePair
	Reference string // empty when no reference is available
}

// TermEntry is a persisted source-term -> target-term mapping. The triple
// (SourceForm, TargetForm, Pair) is unique; ingest never overwrites an
// existing entry for a different TargetForm — it is stored as an alternative.
type TermEntry struct {
	SourceForm      string
	TargetForm      string
	Pair            LanguagePair
	Definition      string
	Domain          string
	Confidence      float64 // [0,1]
	OccurrenceCount int     // >= 1
	ExampleContexts []string // at most 2
}

// TermMatchSource records which termbase pass produced a lookup hit.
type TermMatchSource string

const (
	TermMatchExact  TermMatchSource = "db-exact"
	TermMatchFuzzy  TermMatchSource = "db-fuzzy"
	TermMatchVector TermMatchSource = "db-vector"
	TermMatchLLM    TermMatchSource = "llm"
)

// TermLookupHit is one ranked result from [ termbase ].Lookup.
type TermLookupHit struct {
	Entry      TermEntry
	Similarity float64 // [0,1]
	Source     TermMatchSource
}

// TMEntry is a persisted aligned (source, target) translation-memory pair.
type TMEntry struct {
	SourceText    string
	TargetText    string
	Pair          LanguagePair
	DenseVector   []float32
	LexicalTokens []string
}

// TMHit is one ranked result from the TM index's hybrid search.
type TMHit struct {
	Entry TMEntry
	Score float64 // fused hybrid score in [0,1]
}

// SyntaxPatternCategory is the closed set of bilingual pattern categories
// the syntax layer extracts.
type SyntaxPatternCategory string

const (
	PatternModal          SyntaxPatternCategory = "modal"
	PatternConnective     SyntaxPatternCategory = "connective"
	PatternConditional    SyntaxPatternCategory = "conditional"
	PatternVoice          SyntaxPatternCategory = "voice"
	PatternNominalization SyntaxPatternCategory = "nominalization"
	PatternOther          SyntaxPatternCategory = "other"
)

// SyntaxPattern is a bilingual template pair identified by BiExtract.
type SyntaxPattern struct {
	SourcePattern string
	TargetPattern string
	Category      SyntaxPatternCategory
	Confidence    float64
}

// LayerName identifies one of the three refinement layers, in pipeline order.
type LayerName string

const (
	LayerTerminology LayerName = "terminology"
	LayerSyntax      LayerName = "syntax"
	LayerDiscourse   LayerName = "discourse"
)

// OrderedLayers is the fixed execution order of the three refinement layers.
var OrderedLayers = []LayerName{LayerTerminology, LayerSyntax, LayerDiscourse}

// CandidateText is one generated candidate translation considered by the
// selector (spec 4.9).
type CandidateText struct {
	Text      string
	Rank      int
	Rationale string
}

// LayerOutput is the result record for one layer's pass over a segment.
type LayerOutput struct {
	Layer       LayerName
	Translation string
	Confidence  float64
	Artifacts   map[string]any // component-specific evidence: term table, pattern list, TM refs, divergence report
	Gated       bool
	GatedReason string // e.g. "threshold_met", "no_references"
	Candidates  []CandidateText
	ChosenIndex int // valid only when len(Candidates) > 0
}

// PipelineTrace is the ordered, immutable record of a segment's run through
// the enabled layers, plus the final selected translation.
type PipelineTrace struct {
	SegmentID        string
	Layers           []LayerOutput // in execution order; only enabled layers appear
	FinalTranslation string
}

// AblationConfig names one experiment configuration: which layers run, which
// retrieval substrates feed them, and how candidate generation/gating behave.
type AblationConfig struct {
	Name                string               `yaml:"name"`
	EnabledLayers       []LayerName          `yaml:"enabled_layers"`
	UseTermbase         bool                 `yaml:"use_termbase"`
	UseTM               bool                 `yaml:"use_tm"`
	SelectionLayers     []LayerName          `yaml:"selection_layers"` // layers for which N-candidate selection runs
	NumCandidates       int                  `yaml:"num_candidates"`   // >= 1
	GatingEnabledLayers []LayerName          `yaml:"gating_enabled_layers"`
	GatingThresholds    map[LayerName]float64 `yaml:"gating_thresholds"`
}

// HasLayer reports whether layer is enabled under this config.
func (c AblationConfig) HasLayer(layer LayerName) bool {
	for _, l := range c.EnabledLayers {
		if l == layer {
			return true
		}
	}
	return false
}

// SelectionEnabled reports whether candidate selection runs for layer.
func (c AblationConfig) SelectionEnabled(layer LayerName) bool {
	for _, l := range c.SelectionLayers {
		if l == layer {
			return true
		}
	}
	return false
}

// GatingEnabled reports whether gating is opt-in for layer under this config.
func (c AblationConfig) GatingEnabled(layer LayerName) bool {
	for _, l := range c.GatingEnabledLayers {
		if l == layer {
			return true
		}
	}
	return false
}

// GatingThreshold returns the configured gating threshold for layer, or the
// spec-default when unset: terminology 0.90, syntax 0.85, discourse 0.75.
func (c AblationConfig) GatingThreshold(layer LayerName) float64 {
	if v, ok := c.GatingThresholds[layer]; ok {
		return v
	}
	switch layer {
	case LayerTerminology:
		return 0.90
	case LayerSyntax:
		return 0.85
	case LayerDiscourse:
		return 0.75
	default:
		return 0.90
	}
}

// SampleResult is one segment's outcome under one ablation config, the unit
// persisted by the experiment harness (spec 4.12, 6).
type SampleResult struct {
	SampleID     string
	Source       string
	Reference    string
	Prediction   string
	Success      bool
	ErrorKind    string
	Intermediate map[string]string // optional: "terminology" -> r1 translation, "terminology_syntax" -> r2 translation
	Trace        *PipelineTrace    // optional, only when trace saving is requested
	Metrics      map[string]float64
}

// RunResult is the full artifact for one ablation config's run over a dataset.
type RunResult struct {
	RunID      string
	Config     AblationConfig
	Samples    []SampleResult
	Aggregate  map[string]float64
	GeneratedUTC string
}
