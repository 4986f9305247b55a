// Command hieromt drives the legal-translation refinement pipeline: either
// the offline term-preprocessing step (spec 4.11) or the ablation/experiment
// harness (spec 4.12) against a JSON corpus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hieromt/hieromt/internal/config"
	"github.com/hieromt/hieromt/internal/dataset"
	"github.com/hieromt/hieromt/internal/harness"
	"github.com/hieromt/hieromt/internal/pipelineerr"
	"github.com/hieromt/hieromt/internal/preprocess"
	"github.com/hieromt/hieromt/internal/scoring"
	"github.com/hieromt/hieromt/internal/telemetry"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// Exit codes, per spec 6: 0 success, 2 invalid configuration, 3 upstream
// unavailable after retries, 4 all samples failed.
const (
	exitOK            = 0
	exitConfigInvalid = 2
	exitUpstreamDown  = 3
	exitAllFailed     = 4
)

func run(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: hieromt <preprocess|run> [flags]")
		return exitConfigInvalid
	}

	switch args[0] {
	case "preprocess":
		return runPreprocess(args[1:])
	case "run":
		return runHarness(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "hieromt: unknown subcommand %q\n", args[0])
		return exitConfigInvalid
	}
}

func runPreprocess(args []string) int {
	fs := flag.NewFlagSet("preprocess", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	corpusPath := fs.String("corpus", "", "path to the JSON corpus file")
	if err := fs.Parse(args); err != nil {
		return exitConfigInvalid
	}
	if *corpusPath == "" {
		fmt.Fprintln(os.Stderr, "hieromt preprocess: -corpus is required")
		return exitConfigInvalid
	}

	cfg, log, err := loadConfigAndLogger(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hieromt: %v\n", err)
		return exitConfigInvalid
	}

	segments, err := dataset.Load(*corpusPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hieromt: %v\n", err)
		return exitConfigInvalid
	}
	if len(segments) == 0 {
		fmt.Fprintln(os.Stderr, "hieromt: corpus is empty")
		return exitConfigInvalid
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := telemetry.DefaultMetrics()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	comps, err := buildComponents(ctx, cfg, reg, metrics, log)
	if err != nil {
		log.Error("failed to build pipeline components", "err", err)
		return exitConfigInvalid
	}

	log.Info("preprocessing starting", "segments", len(segments), "corpus", *corpusPath)

	report, err := preprocess.Run(ctx, comps.client, comps.termbase, segments, preprocess.Options{
		ExtractConcurrency:   cfg.Preprocessing.ExtractConcurrency,
		TranslateConcurrency: cfg.Preprocessing.BatchConcurrency,
		BatchSize:            cfg.Preprocessing.BatchSize,
		Log:                  log,
	})
	if err != nil {
		if errors.Is(err, pipelineerr.UpstreamUnavailable) {
			log.Error("preprocessing aborted: upstream unavailable", "err", err)
			return exitUpstreamDown
		}
		log.Error("preprocessing failed", "err", err)
		return exitConfigInvalid
	}

	log.Info("preprocessing complete",
		"total_segments", report.TotalSegments,
		"unique_terms", report.UniqueTerms,
		"db_hits", report.DBHits,
		"new_translations", report.NewTranslations,
		"ingest_errors", report.IngestErrors,
		"failed_translations", len(report.FailedTranslations),
	)
	return exitOK
}

func runHarness(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	corpusPath := fs.String("corpus", "", "path to the JSON corpus file")
	outputDir := fs.String("output", "", "directory to write run artifacts to (overrides harness.output_dir)")
	if err := fs.Parse(args); err != nil {
		return exitConfigInvalid
	}
	if *corpusPath == "" {
		fmt.Fprintln(os.Stderr, "hieromt run: -corpus is required")
		return exitConfigInvalid
	}

	cfg, log, err := loadConfigAndLogger(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hieromt: %v\n", err)
		return exitConfigInvalid
	}
	if *outputDir != "" {
		cfg.Harness.OutputDir = *outputDir
	}
	if len(cfg.Harness.Ablations) == 0 {
		fmt.Fprintln(os.Stderr, "hieromt run: harness.ablations is empty")
		return exitConfigInvalid
	}

	segments, err := dataset.Load(*corpusPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hieromt: %v\n", err)
		return exitConfigInvalid
	}
	if len(segments) == 0 {
		fmt.Fprintln(os.Stderr, "hieromt: corpus is empty")
		return exitConfigInvalid
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := telemetry.DefaultMetrics()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	comps, err := buildComponents(ctx, cfg, reg, metrics, log)
	if err != nil {
		log.Error("failed to build pipeline components", "err", err)
		return exitConfigInvalid
	}

	scorer := buildScorer(cfg, comps)

	totalSamples, successfulSamples := 0, 0
	sawUpstreamFailure := false

	for _, ablation := range cfg.Harness.Ablations {
		log.Info("run starting", "ablation", ablation.Name, "segments", len(segments))

		orch := buildOrchestrator(comps, ablation, metrics, log)
		runResult, intermediate, err := harness.Run(ctx, orch, segments, ablation, scorer, harness.Options{
			MaxInFlight:      cfg.Harness.MaxConcurrentSegments,
			SaveTrace:        cfg.Harness.SaveTrace,
			SaveIntermediate: cfg.Harness.SaveIntermediate,
			OutputDir:        cfg.Harness.OutputDir,
			Log:              log,
			Metrics:          metrics,
		})
		if err != nil {
			log.Error("run failed to persist artifact", "ablation", ablation.Name, "err", err)
			return exitConfigInvalid
		}

		totalSamples += len(runResult.Samples)
		for _, s := range runResult.Samples {
			if s.Success {
				successfulSamples++
			}
			if s.ErrorKind == "UpstreamUnavailable" {
				sawUpstreamFailure = true
			}
		}
		_ = intermediate

		log.Info("run complete", "ablation", ablation.Name, "run_id", runResult.RunID, "samples", len(runResult.Samples))
	}

	if totalSamples > 0 && successfulSamples == 0 {
		log.Error("all samples failed across every ablation config")
		return exitAllFailed
	}
	if sawUpstreamFailure {
		return exitUpstreamDown
	}
	return exitOK
}

// loadConfigAndLogger loads and validates the config at path and constructs
// the process-wide logger at its configured level.
func loadConfigAndLogger(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %q: %w", path, err)
	}
	log := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(log)
	return cfg, log, nil
}

// buildScorer assembles the [scoring.Set] named in cfg.Harness.Metrics.
// Metrics requiring configuration hieromt doesn't have (an HTTP sidecar URL,
// a glossary) are simply omitted rather than failing the run.
func buildScorer(cfg *config.Config, comps *components) *scoring.Set {
	var scorers []scoring.Scorer
	requested := make(map[string]bool, len(cfg.Harness.Metrics))
	for _, m := range cfg.Harness.Metrics {
		requested[m] = true
	}

	if requested["bleu"] {
		scorers = append(scorers, scoring.SentenceBLEUScorer{})
	}
	if requested["chrf"] {
		scorers = append(scorers, scoring.ChrFScorer{})
	}
	if requested["bertscore"] && cfg.Harness.Scoring.BERTScoreURL != "" {
		if s, err := scoring.NewBERTScoreScorer(cfg.Harness.Scoring.BERTScoreURL); err == nil {
			scorers = append(scorers, s)
		}
	}
	if requested["comet"] && cfg.Harness.Scoring.COMETURL != "" {
		if s, err := scoring.NewCOMETScorer(cfg.Harness.Scoring.COMETURL); err == nil {
			scorers = append(scorers, s)
		}
	}
	if requested["gemba-da"] {
		scorers = append(scorers, scoring.NewGEMBAScorer(comps.client, scoring.GEMBADA))
	}
	if requested["gemba-mqm"] {
		scorers = append(scorers, scoring.NewGEMBAScorer(comps.client, scoring.GEMBAMQM))
	}
	if requested["deontic"] {
		scorers = append(scorers, scoring.DeonticPreservationScorer{})
	}
	if requested["conditional"] {
		scorers = append(scorers, scoring.ConditionalLogicScorer{})
	}
	if requested["termbase_accuracy"] && len(cfg.Harness.Scoring.Glossary) > 0 {
		scorers = append(scorers, scoring.NewTerminologyAccuracyScorer(cfg.Harness.Scoring.Glossary))
	}

	return scoring.NewSet(scorers...)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
