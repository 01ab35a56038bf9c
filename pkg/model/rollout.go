package model

import (
	"sort"
	"strings"
)

// RolloutType classifies a flag's rollout strategy. The console uses it to
// pick UI affordances and to decide how toggling behaves.
type RolloutType string

const (
	RolloutSimple          RolloutType = "simple"
	RolloutPercentage      RolloutType = "percentage"
	RolloutProgressive     RolloutType = "progressive"
	RolloutScheduled       RolloutType = "scheduled"
	RolloutExperimentation RolloutType = "experimentation"
)

var (
	onNames  = []string{"enabled", "on", "true", "yes", "active"}
	offNames = []string{"disabled", "off", "false", "no", "inactive"}
)

// RolloutType returns the flag's rollout classification.
func (f *FlagConfig) RolloutType() RolloutType {
	switch {
	case len(f.ScheduledRollout) > 0:
		return RolloutScheduled
	case f.Experimentation != nil:
		return RolloutExperimentation
	case f.DefaultRule != nil && f.DefaultRule.ProgressiveRollout != nil:
		return RolloutProgressive
	case f.DefaultRule != nil && len(f.DefaultRule.Percentages) > 0:
		return RolloutPercentage
	default:
		return RolloutSimple
	}
}

// OnOffVariations picks the variation names treated as "on" and "off" when
// toggling a simple flag. Names are matched case-insensitively against common
// conventions; when none match, the first two variation names in lexical
// order are used. Best effort, not authoritative: a caller that needs exact
// semantics should set defaultRule.variation explicitly.
func (f *FlagConfig) OnOffVariations() (on string, off string) {
	names := make([]string, 0, len(f.Variations))
	for name := range f.Variations {
		names = append(names, name)
	}
	sort.Strings(names)

	on = matchVariation(names, onNames)
	off = matchVariation(names, offNames)

	for _, name := range names {
		if on == "" && name != off {
			on = name
		} else if off == "" && name != on {
			off = name
		}
	}
	return on, off
}

func matchVariation(names []string, candidates []string) string {
	for _, name := range names {
		for _, candidate := range candidates {
			if strings.EqualFold(name, candidate) {
				return name
			}
		}
	}
	return ""
}

// Toggle flips the flag between its on and off state. Flags with a complex
// rollout (percentage, progressive, scheduled, experimentation) flip the
// disable bit so their strategy is preserved; simple flags flip
// defaultRule.variation between the heuristic on/off variations.
func (f *FlagConfig) Toggle() {
	if f.RolloutType() != RolloutSimple {
		disabled := !f.IsDisable()
		f.Disable = &disabled
		return
	}

	on, off := f.OnOffVariations()
	if on == "" || off == "" {
		return
	}
	if f.DefaultRule == nil {
		f.DefaultRule = &Rule{Variation: off}
		return
	}
	if f.DefaultRule.Variation == on {
		f.DefaultRule.Variation = off
	} else {
		f.DefaultRule.Variation = on
	}
}
