package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hieromt/hieromt/pkg/types"
)

// AblationDiff summarises the differences between two [types.AblationConfig]
// values, used by the harness to log what an ablation actually changes
// relative to a baseline before a run starts.
type AblationDiff struct {
	Base    string
	Other   string
	Changes []string // human-readable change descriptions, e.g. "+layer:syntax"
}

// Changed reports whether any difference was found.
func (d AblationDiff) Changed() bool {
	return len(d.Changes) > 0
}

// String renders the diff as a single summary line, e.g.:
//
//	ablation "full" vs "baseline": +layer:discourse +layer:syntax use_tm:false->true
func (d AblationDiff) String() string {
	if !d.Changed() {
		return fmt.Sprintf("ablation %q vs %q: no differences", d.Other, d.Base)
	}
	return fmt.Sprintf("ablation %q vs %q: %s", d.Other, d.Base, strings.Join(d.Changes, " "))
}

// DiffAblations compares other against base and returns the set of changes.
// Layer lists are compared as sets (order-insensitive); scalar fields are
// compared directly.
func DiffAblations(base, other types.AblationConfig) AblationDiff {
	d := AblationDiff{Base: base.Name, Other: other.Name}

	d.Changes = append(d.Changes, diffLayerSet("layer", base.EnabledLayers, other.EnabledLayers)...)
	d.Changes = append(d.Changes, diffLayerSet("selection", base.SelectionLayers, other.SelectionLayers)...)
	d.Changes = append(d.Changes, diffLayerSet("gating", base.GatingEnabledLayers, other.GatingEnabledLayers)...)

	if base.UseTermbase != other.UseTermbase {
		d.Changes = append(d.Changes, fmt.Sprintf("use_termbase:%t->%t", base.UseTermbase, other.UseTermbase))
	}
	if base.UseTM != other.UseTM {
		d.Changes = append(d.Changes, fmt.Sprintf("use_tm:%t->%t", base.UseTM, other.UseTM))
	}
	if base.NumCandidates != other.NumCandidates {
		d.Changes = append(d.Changes, fmt.Sprintf("num_candidates:%d->%d", base.NumCandidates, other.NumCandidates))
	}

	for _, layer := range types.OrderedLayers {
		bv, bok := base.GatingThresholds[layer]
		ov, ook := other.GatingThresholds[layer]
		if bok != ook || bv != ov {
			d.Changes = append(d.Changes, fmt.Sprintf(
				"gating_threshold[%s]:%v->%v", layer,
				thresholdOrDefault(base, layer, bok, bv),
				thresholdOrDefault(other, layer, ook, ov),
			))
		}
	}

	return d
}

func thresholdOrDefault(cfg types.AblationConfig, layer types.LayerName, explicit bool, v float64) float64 {
	if explicit {
		return v
	}
	return cfg.GatingThreshold(layer)
}

// diffLayerSet compares two layer lists as sets and returns "+label:x" /
// "-label:x" entries for additions/removals, sorted for deterministic output.
func diffLayerSet(label string, base, other []types.LayerName) []string {
	added := []string{}
	removed := []string{}
	for _, l := range other {
		if !slices.Contains(base, l) {
			added = append(added, string(l))
		}
	}
	for _, l := range base {
		if !slices.Contains(other, l) {
			removed = append(removed, string(l))
		}
	}
	slices.Sort(added)
	slices.Sort(removed)

	out := make([]string, 0, len(added)+len(removed))
	for _, a := range added {
		out = append(out, fmt.Sprintf("+%s:%s", label, a))
	}
	for _, r := range removed {
		out = append(out, fmt.Sprintf("-%s:%s", label, r))
	}
	return out
}
