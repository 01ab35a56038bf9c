package model

import "time"

// FlagConfig is the full rollout definition of a single feature flag, as
// authored through the console and persisted into a project file. Evaluation
// of the configuration is the relay proxy's job; this side only authors and
// validates it.
type FlagConfig struct {
	// Variations maps a variation name to the value served when that
	// variation is selected. Values are arbitrary JSON-like documents
	// (bool, string, number or object).
	Variations map[string]any `json:"variations" yaml:"variations"`

	// DefaultRule applies when no targeting rule matches.
	DefaultRule *Rule `json:"defaultRule,omitempty" yaml:"defaultRule,omitempty"`

	// Targeting rules are evaluated in order before the default rule.
	Targeting []Rule `json:"targeting,omitempty" yaml:"targeting,omitempty"`

	// ScheduledRollout replaces the flag's rules wholesale at each step date.
	ScheduledRollout []ScheduledStep `json:"scheduledRollout,omitempty" yaml:"scheduledRollout,omitempty"`

	// Experimentation bounds the data-collection window of the flag.
	Experimentation *ExperimentationWindow `json:"experimentation,omitempty" yaml:"experimentation,omitempty"`

	TrackEvents  *bool          `json:"trackEvents,omitempty" yaml:"trackEvents,omitempty"`
	Disable      *bool          `json:"disable,omitempty" yaml:"disable,omitempty"`
	Version      string         `json:"version,omitempty" yaml:"version,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	BucketingKey string         `json:"bucketingKey,omitempty" yaml:"bucketingKey,omitempty"`
}

// Rule is a rollout outcome. Used standalone as a default rule, or inside
// Targeting with a Query predicate. Exactly one of Variation, Percentages or
// ProgressiveRollout must be set.
type Rule struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Query is an opaque targeting predicate. It is interpreted by the relay
	// proxy, never here.
	Query string `json:"query,omitempty" yaml:"query,omitempty"`

	Variation          string              `json:"variation,omitempty" yaml:"variation,omitempty"`
	Percentages        map[string]float64  `json:"percentage,omitempty" yaml:"percentage,omitempty"`
	ProgressiveRollout *ProgressiveRollout `json:"progressiveRollout,omitempty" yaml:"progressiveRollout,omitempty"`

	// Disable excludes a targeting rule from evaluation without deleting it.
	Disable bool `json:"disable,omitempty" yaml:"disable,omitempty"`
}

// ProgressiveRollout moves traffic linearly from Initial to End between the
// two step dates.
type ProgressiveRollout struct {
	Initial *ProgressiveStep `json:"initial,omitempty" yaml:"initial,omitempty"`
	End     *ProgressiveStep `json:"end,omitempty" yaml:"end,omitempty"`
}

type ProgressiveStep struct {
	Variation  string     `json:"variation,omitempty" yaml:"variation,omitempty"`
	Percentage float64    `json:"percentage" yaml:"percentage"`
	Date       *time.Time `json:"date,omitempty" yaml:"date,omitempty"`
}

// ScheduledStep applies its rules from Date onward.
type ScheduledStep struct {
	Date        *time.Time `json:"date,omitempty" yaml:"date,omitempty"`
	DefaultRule *Rule      `json:"defaultRule,omitempty" yaml:"defaultRule,omitempty"`
	Targeting   []Rule     `json:"targeting,omitempty" yaml:"targeting,omitempty"`
}

type ExperimentationWindow struct {
	Start *time.Time `json:"start,omitempty" yaml:"start,omitempty"`
	End   *time.Time `json:"end,omitempty" yaml:"end,omitempty"`
}

// IsTrackEvents reports whether evaluation events should be collected for
// this flag. Defaults to true when unset.
func (f *FlagConfig) IsTrackEvents() bool {
	if f.TrackEvents == nil {
		return true
	}
	return *f.TrackEvents
}

// IsDisable reports whether the flag is switched off entirely. Defaults to
// false when unset.
func (f *FlagConfig) IsDisable() bool {
	if f.Disable == nil {
		return false
	}
	return *f.Disable
}
