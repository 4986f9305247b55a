// Package pipelineerr defines the error taxonomy shared by every component of
// the hieromt translation pipeline. Every failure path in the pipeline wraps
// one of the sentinel values below with fmt.Errorf's %w verb, so callers can
// classify a failure with errors.Is regardless of which component raised it.
package pipelineerr

import "errors"

var (
	// UpstreamUnavailable indicates an LLM or embedding provider call failed
	// after exhausting retries (network error, rate limit, 5xx, or timeout).
	UpstreamUnavailable = errors.New("pipelineerr: upstream provider unavailable")

	// MalformedModelOutput indicates a model response could not be parsed as
	// the structured JSON a component expected, even after one repair retry.
	MalformedModelOutput = errors.New("pipelineerr: malformed model output")

	// LayerFailure indicates a refinement layer could not produce a usable
	// translation for a segment (e.g., the layer's translate agent call
	// failed).
	LayerFailure = errors.New("pipelineerr: layer failure")

	// InputInvalid indicates a caller-supplied segment or dataset entry failed
	// basic structural validation (empty source text).
	InputInvalid = errors.New("pipelineerr: invalid input")

	// ConfigInvalid indicates the loaded configuration failed validation.
	// Callers should treat this as fatal at startup.
	ConfigInvalid = errors.New("pipelineerr: invalid configuration")
)

// Kind returns the short string name of whichever sentinel wraps err, ""
// for a nil err, or "Unknown" if err does not wrap one of this package's
// sentinels. Used by the harness
// and telemetry to tag SampleResult.ErrorKind / metric attributes.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, UpstreamUnavailable):
		return "UpstreamUnavailable"
	case errors.Is(err, MalformedModelOutput):
		return "MalformedModelOutput"
	case errors.Is(err, LayerFailure):
		return "LayerFailure"
	case errors.Is(err, InputInvalid):
		return "InputInvalid"
	case errors.Is(err, ConfigInvalid):
		return "ConfigInvalid"
	default:
		return "Unknown"
	}
}
