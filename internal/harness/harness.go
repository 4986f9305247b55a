// Package harness implements the experiment harness (spec 4.12, C12): a
// bounded-concurrency driver that runs a dataset through the orchestrator
// under one [types.AblationConfig], attaches quality metrics to every
// sample, and persists the result as a timestamped artifact.
package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hieromt/hieromt/internal/orchestrator"
	"github.com/hieromt/hieromt/internal/pipelineerr"
	"github.com/hieromt/hieromt/internal/scoring"
	"github.com/hieromt/hieromt/internal/telemetry"
	"github.com/hieromt/hieromt/pkg/types"
)

// Options configures [Run].
type Options struct {
	// MaxInFlight bounds concurrently-executing segments. Default 10.
	MaxInFlight int

	// SaveTrace attaches each sample's full [types.PipelineTrace] to its
	// [types.SampleResult].
	SaveTrace bool

	// SaveIntermediate requests the "terminology-only" and
	// "terminology+syntax" synthesized result sets, only produced when cfg
	// enables both the terminology and syntax layers.
	SaveIntermediate bool

	// OutputDir, if non-empty, causes Run to persist a JSON artifact per
	// result set under this directory.
	OutputDir string

	Log     *slog.Logger
	Metrics *telemetry.Metrics
}

func (o Options) withDefaults() Options {
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = 10
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = telemetry.DefaultMetrics()
	}
	return o
}

// IntermediateSets holds the synthesized "terminology-only" and
// "terminology+syntax" result sets, read from each sample's trace without
// re-running the pipeline (spec 4.12).
type IntermediateSets struct {
	TerminologyOnly   types.RunResult
	TerminologySyntax types.RunResult
}

// Run schedules every segment through orch under cfg, bounded to
// opts.MaxInFlight concurrent segments. Completion order is not guaranteed;
// results are reassembled by input index so the returned RunResult preserves
// the input order regardless of completion order. If ctx is cancelled,
// in-flight segments are abandoned and recorded with ErrorKind "cancelled".
func Run(ctx context.Context, orch *orchestrator.Orchestrator, segments []types.Segment, cfg types.AblationConfig, scorer *scoring.Set, opts Options) (types.RunResult, *IntermediateSets, error) {
	opts = opts.withDefaults()

	results := make([]types.SampleResult, len(segments))
	traces := make([]*types.PipelineTrace, len(segments))

	var g errgroup.Group
	g.SetLimit(opts.MaxInFlight)

	for i, seg := range segments {
		i, seg := i, seg
		g.Go(func() error {
			opts.Metrics.ActiveSegments.Add(ctx, 1)
			defer opts.Metrics.ActiveSegments.Add(ctx, -1)

			sr := types.SampleResult{SampleID: seg.ID, Source: seg.Source, Reference: seg.Reference}

			if strings.TrimSpace(seg.Source) == "" {
				sr.ErrorKind = pipelineerr.Kind(pipelineerr.InputInvalid)
				results[i] = sr
				return nil
			}

			trace, err := orch.Run(ctx, seg, cfg)
			traces[i] = &trace

			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					sr.ErrorKind = "cancelled"
				} else {
					sr.ErrorKind = pipelineerr.Kind(err)
				}
				results[i] = sr
				return nil
			}

			sr.Success = true
			sr.Prediction = trace.FinalTranslation
			if opts.SaveTrace {
				traceCopy := trace
				sr.Trace = &traceCopy
			}
			if scorer != nil {
				sr.Metrics = scorer.Score(ctx, seg.Source, sr.Prediction, seg.Reference, seg.Pair)
			}
			results[i] = sr
			return nil
		})
	}
	_ = g.Wait() // per-segment failures are recorded in results, never propagated

	run := types.RunResult{
		RunID:        uuid.NewString(),
		Config:       cfg,
		Samples:      results,
		Aggregate:    aggregate(results),
		GeneratedUTC: time.Now().UTC().Format(time.RFC3339),
	}

	var intermediate *IntermediateSets
	if opts.SaveIntermediate {
		intermediate = synthesizeIntermediate(ctx, segments, traces, cfg, scorer, opts.Log)
	}

	if opts.OutputDir != "" {
		if err := persist(opts.OutputDir, run); err != nil {
			return run, intermediate, fmt.Errorf("harness: persist artifact: %w", err)
		}
		if intermediate != nil {
			if err := persist(opts.OutputDir, intermediate.TerminologyOnly); err != nil {
				return run, intermediate, fmt.Errorf("harness: persist intermediate artifact: %w", err)
			}
			if err := persist(opts.OutputDir, intermediate.TerminologySyntax); err != nil {
				return run, intermediate, fmt.Errorf("harness: persist intermediate artifact: %w", err)
			}
		}
	}

	return run, intermediate, nil
}

// synthesizeIntermediate reads r1 (terminology) and r2 (terminology+syntax)
// translations out of each segment's trace without re-running the
// pipeline. It returns nil if cfg does not enable both layers. If gating is
// enabled for either layer, the intermediate translations may duplicate the
// segment's upstream output, so synthesizeIntermediate logs a warning
// rather than silently producing misleading result sets.
func synthesizeIntermediate(ctx context.Context, segments []types.Segment, traces []*types.PipelineTrace, cfg types.AblationConfig, scorer *scoring.Set, log *slog.Logger) *IntermediateSets {
	if !cfg.HasLayer(types.LayerTerminology) || !cfg.HasLayer(types.LayerSyntax) {
		return nil
	}
	if cfg.GatingEnabled(types.LayerTerminology) || cfg.GatingEnabled(types.LayerSyntax) {
		log.WarnContext(ctx, "harness: save-intermediate requested with gating enabled on terminology or syntax; intermediate outputs may duplicate upstream translations", "config", cfg.Name)
	}

	termOnly := make([]types.SampleResult, len(segments))
	termSyntax := make([]types.SampleResult, len(segments))

	for i, seg := range segments {
		base := types.SampleResult{SampleID: seg.ID, Source: seg.Source, Reference: seg.Reference}
		termOnly[i], termSyntax[i] = base, base

		trace := traces[i]
		if trace == nil || len(trace.Layers) < 1 {
			termOnly[i].ErrorKind = "unavailable"
			termSyntax[i].ErrorKind = "unavailable"
			continue
		}

		termOnly[i].Success = true
		termOnly[i].Prediction = trace.Layers[0].Translation
		if scorer != nil {
			termOnly[i].Metrics = scorer.Score(ctx, seg.Source, termOnly[i].Prediction, seg.Reference, seg.Pair)
		}

		if len(trace.Layers) < 2 {
			termSyntax[i].ErrorKind = "unavailable"
			continue
		}
		termSyntax[i].Success = true
		termSyntax[i].Prediction = trace.Layers[1].Translation
		if scorer != nil {
			termSyntax[i].Metrics = scorer.Score(ctx, seg.Source, termSyntax[i].Prediction, seg.Reference, seg.Pair)
		}
	}

	generated := time.Now().UTC().Format(time.RFC3339)
	return &IntermediateSets{
		TerminologyOnly: types.RunResult{
			RunID: uuid.NewString(), Config: renamedConfig(cfg, "terminology_only"),
			Samples: termOnly, Aggregate: aggregate(termOnly), GeneratedUTC: generated,
		},
		TerminologySyntax: types.RunResult{
			RunID: uuid.NewString(), Config: renamedConfig(cfg, "terminology_syntax"),
			Samples: termSyntax, Aggregate: aggregate(termSyntax), GeneratedUTC: generated,
		},
	}
}

func renamedConfig(cfg types.AblationConfig, suffix string) types.AblationConfig {
	c := cfg
	c.Name = cfg.Name + "__" + suffix
	return c
}

// aggregate averages every metric key across samples, skipping NaN
// ("not computable") contributions and any key absent from a sample.
func aggregate(samples []types.SampleResult) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, s := range samples {
		for k, v := range s.Metrics {
			if math.IsNaN(v) {
				continue
			}
			sums[k] += v
			counts[k]++
		}
	}
	out := make(map[string]float64, len(sums))
	for k, sum := range sums {
		if counts[k] == 0 {
			continue
		}
		out[k] = sum / float64(counts[k])
	}
	return out
}

// persist writes run as indented JSON to
// <outputDir>/<run_id>-<ablation_name>.json.
func persist(outputDir string, run types.RunResult) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("harness: create output dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s.json", run.RunID, run.Config.Name)
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("harness: marshal run result: %w", err)
	}
	return os.WriteFile(filepath.Join(outputDir, name), data, 0o644)
}
