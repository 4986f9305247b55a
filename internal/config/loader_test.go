package config_test

import (
	"strings"
	"testing"

	"github.com/hieromt/hieromt/internal/config"
)

func TestValidate_UnknownProviderNameWarnsButSucceeds(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: some-obscure-vendor
database:
  postgres_dsn: postgres://localhost/hieromt
`
	// An unrecognised provider name is only a soft warning, not a hard error —
	// third-party providers registered at runtime are still valid.
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_GatingThresholdOutsideUnitIntervalIsAccepted(t *testing.T) {
	// Gating thresholds are swept experimentally by the harness and are not
	// bounds-checked at config load time; out-of-range values are a caller error
	// surfaced by the layer itself at run time, not a ConfigInvalid.
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
database:
  postgres_dsn: postgres://localhost/hieromt
harness:
  ablations:
    - name: aggressive
      gating_thresholds:
        terminology: 1.5
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Harness.Ablations) != 1 {
		t.Fatalf("expected 1 ablation, got %d", len(cfg.Harness.Ablations))
	}
}

func TestValidate_MultipleErrorsJoined(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
harness:
  ablations:
    - name: a
      enabled_layers: [bogus]
    - name: a
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"log_level", "unknown layer", "duplicates", "providers.llm.name", "postgres_dsn"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("expected joined error to mention %q, got: %v", want, err)
		}
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	llmNames := config.ValidProviderNames["llm"]
	if len(llmNames) == 0 {
		t.Fatal("ValidProviderNames[\"llm\"] should not be empty")
	}
	found := false
	for _, n := range llmNames {
		if n == "openai" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"llm\"] should contain \"openai\"")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/path/to/config.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file, got nil")
	}
}
