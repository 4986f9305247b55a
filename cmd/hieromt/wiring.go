package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hieromt/hieromt/internal/config"
	"github.com/hieromt/hieromt/internal/embedclient"
	"github.com/hieromt/hieromt/internal/layer/base"
	"github.com/hieromt/hieromt/internal/layer/discourse"
	"github.com/hieromt/hieromt/internal/layer/syntax"
	"github.com/hieromt/hieromt/internal/layer/terminology"
	"github.com/hieromt/hieromt/internal/llmclient"
	"github.com/hieromt/hieromt/internal/orchestrator"
	"github.com/hieromt/hieromt/internal/resilience"
	"github.com/hieromt/hieromt/internal/retry"
	"github.com/hieromt/hieromt/internal/telemetry"
	"github.com/hieromt/hieromt/internal/termbase"
	"github.com/hieromt/hieromt/internal/tmindex"
	"github.com/hieromt/hieromt/pkg/provider/embeddings"
	embeddingsollama "github.com/hieromt/hieromt/pkg/provider/embeddings/ollama"
	embeddingsopenai "github.com/hieromt/hieromt/pkg/provider/embeddings/openai"
	"github.com/hieromt/hieromt/pkg/provider/llm"
	"github.com/hieromt/hieromt/pkg/provider/llm/anyllm"
	llmopenai "github.com/hieromt/hieromt/pkg/provider/llm/openai"
	"github.com/hieromt/hieromt/pkg/types"
)

// registerBuiltinProviders wires every provider implementation the module
// ships into reg, keyed by the same names cfg.Providers.*.Name is checked
// against in config.ValidProviderNames.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if e.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(e.BaseURL))
		}
		return llmopenai.New(e.APIKey, e.Model, opts...)
	})
	reg.RegisterLLM("anthropic", func(e config.ProviderEntry) (llm.Provider, error) { return anyllm.NewAnthropic(e.Model) })
	reg.RegisterLLM("gemini", func(e config.ProviderEntry) (llm.Provider, error) { return anyllm.NewGemini(e.Model) })
	reg.RegisterLLM("deepseek", func(e config.ProviderEntry) (llm.Provider, error) { return anyllm.NewDeepSeek(e.Model) })
	reg.RegisterLLM("mistral", func(e config.ProviderEntry) (llm.Provider, error) { return anyllm.NewMistral(e.Model) })
	reg.RegisterLLM("groq", func(e config.ProviderEntry) (llm.Provider, error) { return anyllm.NewGroq(e.Model) })
	reg.RegisterLLM("ollama", func(e config.ProviderEntry) (llm.Provider, error) { return anyllm.NewOllama(e.Model) })

	reg.RegisterEmbeddings("openai", func(e config.ProviderEntry) (embeddings.Provider, error) {
		return embeddingsopenai.New(e.APIKey, e.Model)
	})
	reg.RegisterEmbeddings("ollama", func(e config.ProviderEntry) (embeddings.Provider, error) {
		baseURL := e.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return embeddingsollama.New(baseURL, e.Model)
	})
}

// components holds the expensive, ablation-independent collaborators every
// refinement layer is rebuilt from: the LLM client and the two persisted
// retrieval substrates. They are constructed once per process and shared
// across every ablation config a run touches.
type components struct {
	client   *llmclient.Client
	termbase *termbase.Termbase
	tmIndex  *tmindex.Index
}

// buildComponents connects to the configured LLM/embedding providers and the
// termbase/TM-index Postgres stores.
func buildComponents(ctx context.Context, cfg *config.Config, reg *config.Registry, metrics *telemetry.Metrics, log *slog.Logger) (*components, error) {
	backend, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("build llm provider: %w", err)
	}
	if len(cfg.Providers.LLMFallbacks) > 0 {
		fb := resilience.NewLLMFallback(backend, cfg.Providers.LLM.Name, resilience.FallbackConfig{})
		for _, entry := range cfg.Providers.LLMFallbacks {
			fallbackBackend, ferr := reg.CreateLLM(entry)
			if ferr != nil {
				return nil, fmt.Errorf("build llm fallback provider %q: %w", entry.Name, ferr)
			}
			fb.AddFallback(entry.Name, fallbackBackend)
		}
		backend = fb
	}
	client := llmclient.New(backend,
		llmclient.WithMaxConcurrent(cfg.Pipeline.MaxConcurrentLLM),
		llmclient.WithRetryPolicy(retry.Policy{MaxAttempts: cfg.Pipeline.RetryMaxAttempts}),
		llmclient.WithMetrics(metrics),
		llmclient.WithProviderName(cfg.Providers.LLM.Name),
		llmclient.WithLogger(log),
	)

	var embedder embeddings.Provider
	if cfg.Providers.Embeddings.Name != "" {
		embeddingsBackend, eerr := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if eerr != nil {
			return nil, fmt.Errorf("build embeddings provider: %w", eerr)
		}
		embedder = embedclient.New(embeddingsBackend,
			embedclient.WithMaxConcurrent(cfg.Pipeline.MaxConcurrentEmbeddings),
			embedclient.WithRetryPolicy(retry.Policy{MaxAttempts: cfg.Pipeline.RetryMaxAttempts}),
			embedclient.WithMetrics(metrics),
			embedclient.WithProviderName(cfg.Providers.Embeddings.Name),
			embedclient.WithCache(),
		)
	}

	termStore, _, err := termbase.NewPoolStore(ctx, cfg.Database.PostgresDSN, cfg.Database.EmbeddingDimensions)
	if err != nil {
		return nil, fmt.Errorf("connect termbase store: %w", err)
	}
	tb := termbase.New(termStore, embedder,
		termbase.WithFuzzyThreshold(cfg.Pipeline.TermbaseFuzzyThreshold),
		termbase.WithVectorThreshold(cfg.Pipeline.TermbaseVectorThreshold),
	)

	tmStore, _, err := tmindex.NewPoolStore(ctx, cfg.Database.PostgresDSN, cfg.Database.EmbeddingDimensions)
	if err != nil {
		return nil, fmt.Errorf("connect tm index store: %w", err)
	}
	floor := cfg.Pipeline.TMSimilarityFloor
	if !cfg.Pipeline.TMFloorEnabled {
		floor = 0
	}
	idx := tmindex.New(tmStore, embedder,
		tmindex.WithAlpha(cfg.Pipeline.TMAlpha),
		tmindex.WithSimilarityFloor(floor),
	)

	return &components{client: client, termbase: tb, tmIndex: idx}, nil
}

// buildOrchestrator rebuilds the three refinement layers' [kernel.Loop]s
// under ablation's gating settings and assembles them behind one
// [orchestrator.Orchestrator]. Layer construction is cheap (no I/O), so a
// fresh set is built per ablation config rather than threading ablation
// state through a shared, long-lived Loop.
func buildOrchestrator(c *components, ablation types.AblationConfig, metrics *telemetry.Metrics, log *slog.Logger) *orchestrator.Orchestrator {
	baseTranslate := base.New(c.client, base.Options{Log: log})
	termLoop := terminology.New(c.client, c.termbase, terminology.Options{
		GatingEnabled:    ablation.GatingEnabled(types.LayerTerminology),
		GatingThreshold:  ablation.GatingThreshold(types.LayerTerminology),
		SelectionEnabled: ablation.SelectionEnabled(types.LayerTerminology),
		NumCandidates:    ablation.NumCandidates,
		Log:              log,
	})
	syntaxLoop := syntax.New(c.client, syntax.Options{
		GatingEnabled:    ablation.GatingEnabled(types.LayerSyntax),
		GatingThreshold:  ablation.GatingThreshold(types.LayerSyntax),
		SelectionEnabled: ablation.SelectionEnabled(types.LayerSyntax),
		NumCandidates:    ablation.NumCandidates,
		Log:              log,
	})
	discourseLoop := discourse.New(c.client, c.tmIndex, discourse.Options{
		GatingEnabled:    ablation.GatingEnabled(types.LayerDiscourse),
		GatingThreshold:  ablation.GatingThreshold(types.LayerDiscourse),
		SelectionEnabled: ablation.SelectionEnabled(types.LayerDiscourse),
		NumCandidates:    ablation.NumCandidates,
		Log:              log,
	})

	return orchestrator.New(baseTranslate, map[types.LayerName]orchestrator.LayerRunner{
		types.LayerTerminology: termLoop.Run,
		types.LayerSyntax:      syntaxLoop.Run,
		types.LayerDiscourse:   discourseLoop.Run,
	}, orchestrator.WithLogger(log), orchestrator.WithMetrics(metrics))
}
