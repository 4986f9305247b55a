// Package telemetry provides application-wide observability primitives for
// hieromt: OpenTelemetry metrics and distributed tracing.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all hieromt metrics.
const meterName = "github.com/hieromt/hieromt"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// LLMDuration tracks LLM completion call latency.
	LLMDuration metric.Float64Histogram

	// EmbedDuration tracks embedding call latency.
	EmbedDuration metric.Float64Histogram

	// LayerDuration tracks one refinement layer's total wall time for a
	// segment. Use with attribute.String("layer", ...).
	LayerDuration metric.Float64Histogram

	// SegmentDuration tracks one segment's total pipeline wall time.
	SegmentDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// TermbaseLookups counts termbase lookup calls by which pass produced the
	// winning hit. Use with attribute.String("source", "db-exact"|"db-fuzzy"|"db-vector"|"miss").
	TermbaseLookups metric.Int64Counter

	// TMSearches counts translation-memory searches. Use with
	// attribute.String("result", "hit"|"empty").
	TMSearches metric.Int64Counter

	// LayerGated counts how often a layer was gated (skipped). Use with
	// attribute.String("layer", ...).
	LayerGated metric.Int64Counter

	// CandidateSelections counts selector invocations. Use with
	// attribute.String("layer", ...), attribute.String("outcome", "selected"|"fallback").
	CandidateSelections metric.Int64Counter

	// SegmentOutcomes counts completed segments by outcome. Use with
	// attribute.String("status", "success"|"failed"|"skipped"|"cancelled"),
	// attribute.String("error_kind", ...).
	SegmentOutcomes metric.Int64Counter

	// --- Gauges ---

	// InFlightLLMCalls tracks the current number of in-flight LLM calls.
	InFlightLLMCalls metric.Int64UpDownCounter

	// ActiveSegments tracks the number of segments currently executing in the harness.
	ActiveSegments metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for LLM-call and layer-pipeline latencies.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.LLMDuration, err = m.Float64Histogram("hieromt.llm.duration",
		metric.WithDescription("Latency of LLM completion calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbedDuration, err = m.Float64Histogram("hieromt.embed.duration",
		metric.WithDescription("Latency of embedding calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LayerDuration, err = m.Float64Histogram("hieromt.layer.duration",
		metric.WithDescription("Latency of one refinement layer's pass over a segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SegmentDuration, err = m.Float64Histogram("hieromt.segment.duration",
		metric.WithDescription("End-to-end latency of one segment through the orchestrator."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("hieromt.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("hieromt.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.TermbaseLookups, err = m.Int64Counter("hieromt.termbase.lookups",
		metric.WithDescription("Total termbase lookups by winning pass."),
	); err != nil {
		return nil, err
	}
	if met.TMSearches, err = m.Int64Counter("hieromt.tm.searches",
		metric.WithDescription("Total translation-memory searches by result."),
	); err != nil {
		return nil, err
	}
	if met.LayerGated, err = m.Int64Counter("hieromt.layer.gated",
		metric.WithDescription("Total times a layer was gated (skipped) by layer name."),
	); err != nil {
		return nil, err
	}
	if met.CandidateSelections, err = m.Int64Counter("hieromt.selector.selections",
		metric.WithDescription("Total candidate-selector invocations by layer and outcome."),
	); err != nil {
		return nil, err
	}
	if met.SegmentOutcomes, err = m.Int64Counter("hieromt.segment.outcomes",
		metric.WithDescription("Total completed segments by status and error kind."),
	); err != nil {
		return nil, err
	}

	if met.InFlightLLMCalls, err = m.Int64UpDownCounter("hieromt.llm.in_flight",
		metric.WithDescription("Number of in-flight LLM calls."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSegments, err = m.Int64UpDownCounter("hieromt.segments.active",
		metric.WithDescription("Number of segments currently executing in the harness."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("telemetry: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTermbaseLookup records which pass (or "miss") produced the winning hit.
func (m *Metrics) RecordTermbaseLookup(ctx context.Context, source string) {
	m.TermbaseLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordTMSearch records whether a TM search returned any hits.
func (m *Metrics) RecordTMSearch(ctx context.Context, hit bool) {
	result := "empty"
	if hit {
		result = "hit"
	}
	m.TMSearches.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordLayerGated records that layer was gated for a segment.
func (m *Metrics) RecordLayerGated(ctx context.Context, layer string) {
	m.LayerGated.Add(ctx, 1, metric.WithAttributes(attribute.String("layer", layer)))
}

// RecordCandidateSelection records a selector invocation outcome.
func (m *Metrics) RecordCandidateSelection(ctx context.Context, layer, outcome string) {
	m.CandidateSelections.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("layer", layer),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordSegmentOutcome records a completed segment's terminal status.
func (m *Metrics) RecordSegmentOutcome(ctx context.Context, status, errorKind string) {
	m.SegmentOutcomes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", status),
			attribute.String("error_kind", errorKind),
		),
	)
}
