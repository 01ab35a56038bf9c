package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRolloutType(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		flag *FlagConfig
		want RolloutType
	}{
		{
			name: "no default rule",
			flag: &FlagConfig{Variations: boolVariations()},
			want: RolloutSimple,
		},
		{
			name: "single variation",
			flag: &FlagConfig{Variations: boolVariations(), DefaultRule: &Rule{Variation: "enabled"}},
			want: RolloutSimple,
		},
		{
			name: "percentage split",
			flag: &FlagConfig{Variations: boolVariations(), DefaultRule: &Rule{Percentages: map[string]float64{"enabled": 50, "disabled": 50}}},
			want: RolloutPercentage,
		},
		{
			name: "progressive rollout",
			flag: &FlagConfig{Variations: boolVariations(), DefaultRule: &Rule{ProgressiveRollout: &ProgressiveRollout{
				Initial: &ProgressiveStep{Variation: "enabled", Date: datePtr(now)},
				End:     &ProgressiveStep{Variation: "enabled", Percentage: 100, Date: datePtr(now.Add(time.Hour))},
			}}},
			want: RolloutProgressive,
		},
		{
			name: "scheduled rollout wins over default rule",
			flag: &FlagConfig{
				Variations:       boolVariations(),
				DefaultRule:      &Rule{Variation: "enabled"},
				ScheduledRollout: []ScheduledStep{{Date: datePtr(now), DefaultRule: &Rule{Variation: "disabled"}}},
			},
			want: RolloutScheduled,
		},
		{
			name: "experimentation window",
			flag: &FlagConfig{
				Variations:      boolVariations(),
				DefaultRule:     &Rule{Variation: "enabled"},
				Experimentation: &ExperimentationWindow{Start: datePtr(now), End: datePtr(now.Add(time.Hour))},
			},
			want: RolloutExperimentation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.flag.RolloutType())
		})
	}
}

func TestOnOffVariations(t *testing.T) {
	tests := []struct {
		name       string
		variations map[string]any
		wantOn     string
		wantOff    string
	}{
		{"conventional pair", map[string]any{"enabled": true, "disabled": false}, "enabled", "disabled"},
		{"case insensitive", map[string]any{"On": true, "Off": false}, "On", "Off"},
		{"yes no", map[string]any{"yes": 1, "no": 0}, "yes", "no"},
		{"no convention falls back to lexical order", map[string]any{"red": "a", "blue": "b"}, "blue", "red"},
		{"partial match keeps fallback for the other", map[string]any{"active": true, "sleeping": false}, "active", "sleeping"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := &FlagConfig{Variations: tt.variations}
			on, off := flag.OnOffVariations()
			assert.Equal(t, tt.wantOn, on)
			assert.Equal(t, tt.wantOff, off)
		})
	}
}

func TestToggleSimpleFlag(t *testing.T) {
	flag := &FlagConfig{
		Variations:  boolVariations(),
		DefaultRule: &Rule{Variation: "disabled"},
	}

	flag.Toggle()
	assert.Equal(t, "enabled", flag.DefaultRule.Variation)

	flag.Toggle()
	assert.Equal(t, "disabled", flag.DefaultRule.Variation)
}

func TestToggleComplexFlagFlipsDisable(t *testing.T) {
	flag := &FlagConfig{
		Variations:  boolVariations(),
		DefaultRule: &Rule{Percentages: map[string]float64{"enabled": 50, "disabled": 50}},
	}

	flag.Toggle()
	assert.True(t, flag.IsDisable())
	// the percentage strategy is untouched
	assert.Len(t, flag.DefaultRule.Percentages, 2)

	flag.Toggle()
	assert.False(t, flag.IsDisable())
}

func TestToggleWithoutDefaultRule(t *testing.T) {
	flag := &FlagConfig{Variations: boolVariations()}

	flag.Toggle()
	assert.NotNil(t, flag.DefaultRule)
	assert.Equal(t, "disabled", flag.DefaultRule.Variation)
}
