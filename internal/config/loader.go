package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/hieromt/hieromt/pkg/types"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path, fills in spec-mandated
// defaults, and returns a validated [Config]. It is a convenience wrapper
// around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{Pipeline: PipelineConfig{TMFloorEnabled: true}}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in every default named in spec section 6. Called before
// validation so Validate sees a fully-populated config.
func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	if cfg.Pipeline.MaxConcurrentLLM <= 0 {
		cfg.Pipeline.MaxConcurrentLLM = 10
	}
	if cfg.Pipeline.MaxConcurrentEmbeddings <= 0 {
		cfg.Pipeline.MaxConcurrentEmbeddings = 10
	}
	if cfg.Pipeline.RetryMaxAttempts <= 0 {
		cfg.Pipeline.RetryMaxAttempts = 3
	}
	if cfg.Pipeline.TermbaseFuzzyThreshold <= 0 {
		cfg.Pipeline.TermbaseFuzzyThreshold = 0.85
	}
	if cfg.Pipeline.TermbaseVectorThreshold <= 0 {
		cfg.Pipeline.TermbaseVectorThreshold = 0.75
	}
	if cfg.Pipeline.TMAlpha == 0 {
		cfg.Pipeline.TMAlpha = 0.5
	}
	if cfg.Pipeline.TMSimilarityFloor == 0 {
		cfg.Pipeline.TMSimilarityFloor = 0.70
	}

	if cfg.Preprocessing.ExtractConcurrency <= 0 {
		cfg.Preprocessing.ExtractConcurrency = 10
	}
	if cfg.Preprocessing.BatchSize <= 0 {
		cfg.Preprocessing.BatchSize = 20
	}
	if cfg.Preprocessing.BatchConcurrency <= 0 {
		cfg.Preprocessing.BatchConcurrency = 5
	}

	if cfg.Harness.MaxConcurrentSegments <= 0 {
		cfg.Harness.MaxConcurrentSegments = 10
	}
	if len(cfg.Harness.Metrics) == 0 {
		cfg.Harness.Metrics = []string{"bleu", "chrf", "comet"}
	}

	for i := range cfg.Harness.Ablations {
		a := &cfg.Harness.Ablations[i]
		if a.NumCandidates <= 0 {
			a.NumCandidates = 1
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found; callers
// should treat a non-nil return as [ConfigInvalid] (spec 7) and exit without
// starting the harness.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}

	if cfg.Database.PostgresDSN == "" {
		errs = append(errs, errors.New("database.postgres_dsn is required"))
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Database.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but database.embedding_dimensions is not set; defaulting to 1536")
		cfg.Database.EmbeddingDimensions = 1536
	}

	if cfg.Pipeline.TermbaseFuzzyThreshold < 0 || cfg.Pipeline.TermbaseFuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.termbase_fuzzy_threshold %.2f out of range [0,1]", cfg.Pipeline.TermbaseFuzzyThreshold))
	}
	if cfg.Pipeline.TMAlpha < 0 || cfg.Pipeline.TMAlpha > 1 {
		errs = append(errs, fmt.Errorf("pipeline.tm_alpha %.2f out of range [0,1]", cfg.Pipeline.TMAlpha))
	}

	seen := make(map[string]int, len(cfg.Harness.Ablations))
	for i, a := range cfg.Harness.Ablations {
		prefix := fmt.Sprintf("harness.ablations[%d]", i)
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, ok := seen[a.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q duplicates ablations[%d]", prefix, a.Name, prev))
		} else {
			seen[a.Name] = i
		}
		for _, layer := range a.EnabledLayers {
			if !validLayerName(layer) {
				errs = append(errs, fmt.Errorf("%s.enabled_layers contains unknown layer %q", prefix, layer))
			}
		}
		for _, layer := range a.SelectionLayers {
			if !a.HasLayer(layer) {
				slog.Warn("ablation selection_layers references a layer not in enabled_layers",
					"ablation", a.Name, "layer", layer)
			}
		}
		for _, layer := range a.GatingEnabledLayers {
			if !a.HasLayer(layer) {
				slog.Warn("ablation gating_enabled_layers references a layer not in enabled_layers",
					"ablation", a.Name, "layer", layer)
			}
		}
		if a.NumCandidates < 1 {
			errs = append(errs, fmt.Errorf("%s.num_candidates must be >= 1, got %d", prefix, a.NumCandidates))
		}
	}

	return errors.Join(errs...)
}

func validLayerName(l types.LayerName) bool {
	switch l {
	case types.LayerTerminology, types.LayerSyntax, types.LayerDiscourse:
		return true
	default:
		return false
	}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
