// Package orchestrator implements the pipeline's finite-state machine
// (spec 4.10, C10): a segment passes through the enabled refinement layers
// in the fixed order terminology, syntax, discourse, each layer strictly
// sequential on the previous layer's output, producing an immutable
// [types.PipelineTrace].
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hieromt/hieromt/internal/pipelineerr"
	"github.com/hieromt/hieromt/internal/telemetry"
	"github.com/hieromt/hieromt/pkg/types"
)

// State is one state of the orchestrator's fixed machine.
type State string

const (
	StateInit            State = "INIT"
	StateLayerTerm       State = "LAYER_TERM"
	StateLayerSyntax     State = "LAYER_SYNTAX"
	StateLayerDiscourse  State = "LAYER_DISCOURSE"
	StateDone            State = "DONE"
)

var layerState = map[types.LayerName]State{
	types.LayerTerminology: StateLayerTerm,
	types.LayerSyntax:      StateLayerSyntax,
	types.LayerDiscourse:   StateLayerDiscourse,
}

// LayerRunner executes one layer's kernel loop. Each layer package exposes
// its concrete [kernel.Loop][F].Run as a closure of this shape so the
// orchestrator can hold all three layers behind one uniform type despite
// each layer's feature type F differing.
type LayerRunner func(ctx context.Context, segment types.Segment, currentTranslation string) (types.LayerOutput, error)

// BaseTranslateFunc produces the direct-LLM translation the orchestrator
// seeds state INIT with. It is the pipeline's zero-layer output: the
// baseline ablation (no enabled layers) returns this translation unchanged,
// and every enabled layer refines it in turn.
type BaseTranslateFunc func(ctx context.Context, segment types.Segment) (string, error)

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithLogger overrides the orchestrator's logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithMetrics overrides the [telemetry.Metrics] instance. Defaults to
// [telemetry.DefaultMetrics].
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator runs one segment through its enabled layers.
type Orchestrator struct {
	baseTranslate BaseTranslateFunc
	runners       map[types.LayerName]LayerRunner
	log           *slog.Logger
	metrics       *telemetry.Metrics
}

// New builds an Orchestrator from the INIT-state base translator and the
// three layer runners. Any runner may be nil if that layer is never enabled
// by any ablation this orchestrator is used for.
func New(baseTranslate BaseTranslateFunc, runners map[types.LayerName]LayerRunner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		baseTranslate: baseTranslate,
		runners:       runners,
		log:           slog.Default(),
		metrics:       telemetry.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drives segment through every layer enabled by cfg, in fixed order.
// State INIT produces a direct-LLM translation of the source via
// baseTranslate — this is the current translation every enabled layer
// refines, and it is what a config with no enabled layers (the baseline
// ablation) returns unchanged. Each enabled layer transitions
// LAYER_i -> LAYER_{i+1}, skipping layers absent from cfg.EnabledLayers;
// state DONE emits the final translation and the ordered trace. A
// LayerFailure from any layer, including the INIT step, aborts the run
// immediately — the orchestrator carries no retries across layers.
func (o *Orchestrator) Run(ctx context.Context, segment types.Segment, cfg types.AblationConfig) (types.PipelineTrace, error) {
	start := time.Now()
	trace := types.PipelineTrace{SegmentID: segment.ID}

	state := StateInit
	o.log.DebugContext(ctx, "orchestrator: entering layer state", "state", state, "segment_id", segment.ID)
	current, err := o.baseTranslate(ctx, segment)
	if err != nil {
		o.metrics.RecordSegmentOutcome(ctx, "error", pipelineerr.Kind(err))
		o.metrics.SegmentDuration.Record(ctx, time.Since(start).Seconds())
		return trace, fmt.Errorf("orchestrator: segment %q: init: %w", segment.ID, err)
	}

	for _, layer := range types.OrderedLayers {
		if !cfg.HasLayer(layer) {
			continue
		}
		runner, ok := o.runners[layer]
		if !ok {
			o.log.WarnContext(ctx, "orchestrator: no runner configured for enabled layer, skipping", "layer", layer, "segment_id", segment.ID)
			continue
		}

		state = layerState[layer]
		o.log.DebugContext(ctx, "orchestrator: entering layer state", "state", state, "segment_id", segment.ID)

		layerStart := time.Now()
		out, err := runner(ctx, segment, current)
		o.metrics.LayerDuration.Record(ctx, time.Since(layerStart).Seconds(),
			metric.WithAttributes(attribute.String("layer", string(layer))))

		if err != nil {
			o.metrics.RecordSegmentOutcome(ctx, "error", pipelineerr.Kind(err))
			o.metrics.SegmentDuration.Record(ctx, time.Since(start).Seconds())
			return trace, fmt.Errorf("orchestrator: segment %q: layer %q: %w", segment.ID, layer, err)
		}

		if out.Gated {
			o.metrics.RecordLayerGated(ctx, string(layer))
		}

		trace.Layers = append(trace.Layers, out)
		current = out.Translation
	}

	state = StateDone
	trace.FinalTranslation = current
	o.metrics.RecordSegmentOutcome(ctx, "ok", "")
	o.metrics.SegmentDuration.Record(ctx, time.Since(start).Seconds())
	o.log.DebugContext(ctx, "orchestrator: segment complete", "state", state, "segment_id", segment.ID)
	return trace, nil
}
