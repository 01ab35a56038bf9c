package model

import (
	"fmt"
	"math"
)

// Invariant names reported in violations.
const (
	InvariantVariations         = "variations"
	InvariantVariationReference = "variation-reference"
	InvariantPercentageSum      = "percentage-sum"
	InvariantProgressiveRollout = "progressive-rollout"
	InvariantScheduledRollout   = "scheduled-rollout"
	InvariantExperimentation    = "experimentation"
	InvariantTargetingRule      = "targeting-rule"
)

// percentageTolerance absorbs rounding from splits like 33.33/33.33/33.34.
const percentageTolerance = 0.01

// Violation describes a single well-formedness failure of a flag
// configuration.
type Violation struct {
	Invariant string `json:"invariant"`
	Field     string `json:"field"`
	Message   string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (%s)", v.Field, v.Message, v.Invariant)
}

func violation(invariant, field, format string, args ...any) Violation {
	return Violation{Invariant: invariant, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks every well-formedness invariant of the flag configuration.
// It never panics on malformed input; a nil receiver or empty struct simply
// produces violations.
func (f *FlagConfig) Validate() (bool, []Violation) {
	if f == nil {
		return false, []Violation{violation(InvariantVariations, "variations", "flag configuration is empty")}
	}

	var violations []Violation

	if len(f.Variations) == 0 {
		violations = append(violations, violation(InvariantVariations, "variations", "at least one variation is required"))
	}

	if f.DefaultRule != nil {
		violations = append(violations, f.validateRule("defaultRule", *f.DefaultRule, false)...)
	}
	for i, rule := range f.Targeting {
		violations = append(violations, f.validateRule(fmt.Sprintf("targeting[%d]", i), rule, true)...)
	}
	violations = append(violations, f.validateScheduledRollout()...)
	violations = append(violations, f.validateExperimentation()...)

	return len(violations) == 0, violations
}

func (f *FlagConfig) hasVariation(name string) bool {
	_, ok := f.Variations[name]
	return ok
}

// validateRule checks one rule. Targeting rules additionally need a query and
// are skipped entirely when disabled.
func (f *FlagConfig) validateRule(field string, r Rule, targeting bool) []Violation {
	if targeting && r.Disable {
		return nil
	}

	var violations []Violation

	if targeting && r.Query == "" {
		violations = append(violations, violation(InvariantTargetingRule, field+".query", "targeting rule requires a query"))
	}

	outcomes := 0
	if r.Variation != "" {
		outcomes++
	}
	if len(r.Percentages) > 0 {
		outcomes++
	}
	if r.ProgressiveRollout != nil {
		outcomes++
	}
	invariant := InvariantTargetingRule
	if !targeting {
		invariant = InvariantVariationReference
	}
	switch outcomes {
	case 0:
		violations = append(violations, violation(invariant, field, "rule needs a variation, a percentage split or a progressive rollout"))
	case 1:
		// exactly one outcome, fine
	default:
		violations = append(violations, violation(invariant, field, "rule must have exactly one outcome, got %d", outcomes))
	}

	if r.Variation != "" && !f.hasVariation(r.Variation) {
		violations = append(violations, violation(InvariantVariationReference, field+".variation",
			"variation %q does not exist", r.Variation))
	}
	if len(r.Percentages) > 0 {
		violations = append(violations, f.validatePercentages(field+".percentage", r.Percentages)...)
	}
	if r.ProgressiveRollout != nil {
		violations = append(violations, f.validateProgressiveRollout(field+".progressiveRollout", r.ProgressiveRollout)...)
	}

	return violations
}

func (f *FlagConfig) validatePercentages(field string, percentages map[string]float64) []Violation {
	var violations []Violation

	sum := 0.0
	for name, weight := range percentages {
		if weight < 0 {
			violations = append(violations, violation(InvariantPercentageSum,
				fmt.Sprintf("%s[%s]", field, name), "weight %g is negative", weight))
		}
		if !f.hasVariation(name) {
			violations = append(violations, violation(InvariantVariationReference,
				fmt.Sprintf("%s[%s]", field, name), "variation %q does not exist", name))
		}
		sum += weight
	}
	if math.Abs(sum-100) > percentageTolerance {
		violations = append(violations, violation(InvariantPercentageSum, field,
			"weights sum to %g, want 100", sum))
	}

	return violations
}

func (f *FlagConfig) validateProgressiveRollout(field string, pr *ProgressiveRollout) []Violation {
	var violations []Violation

	if pr.Initial == nil || pr.End == nil {
		violations = append(violations, violation(InvariantProgressiveRollout, field,
			"progressive rollout requires both an initial and an end step"))
		return violations
	}

	for name, step := range map[string]*ProgressiveStep{"initial": pr.Initial, "end": pr.End} {
		stepField := fmt.Sprintf("%s.%s", field, name)
		if step.Variation != "" && !f.hasVariation(step.Variation) {
			violations = append(violations, violation(InvariantVariationReference, stepField+".variation",
				"variation %q does not exist", step.Variation))
		}
		if step.Percentage < 0 || step.Percentage > 100 {
			violations = append(violations, violation(InvariantProgressiveRollout, stepField+".percentage",
				"percentage %g is outside [0,100]", step.Percentage))
		}
		if step.Date == nil {
			violations = append(violations, violation(InvariantProgressiveRollout, stepField+".date",
				"step date is required"))
		}
	}

	if pr.Initial.Date != nil && pr.End.Date != nil && !pr.End.Date.After(*pr.Initial.Date) {
		violations = append(violations, violation(InvariantProgressiveRollout, field+".end.date",
			"end date must be strictly after the initial date"))
	}

	return violations
}

func (f *FlagConfig) validateScheduledRollout() []Violation {
	var violations []Violation

	for i, step := range f.ScheduledRollout {
		field := fmt.Sprintf("scheduledRollout[%d]", i)
		if step.Date == nil {
			violations = append(violations, violation(InvariantScheduledRollout, field+".date", "step date is required"))
		}
		if step.DefaultRule == nil && len(step.Targeting) == 0 {
			violations = append(violations, violation(InvariantScheduledRollout, field,
				"step needs a default rule or at least one targeting rule"))
		}
		if i > 0 {
			prev := f.ScheduledRollout[i-1].Date
			if prev != nil && step.Date != nil && !step.Date.After(*prev) {
				violations = append(violations, violation(InvariantScheduledRollout, field+".date",
					"step dates must be strictly increasing"))
			}
		}

		if step.DefaultRule != nil {
			violations = append(violations, f.validateRule(field+".defaultRule", *step.DefaultRule, false)...)
		}
		for j, rule := range step.Targeting {
			violations = append(violations, f.validateRule(fmt.Sprintf("%s.targeting[%d]", field, j), rule, true)...)
		}
	}

	return violations
}

func (f *FlagConfig) validateExperimentation() []Violation {
	if f.Experimentation == nil {
		return nil
	}

	var violations []Violation
	if f.Experimentation.Start == nil || f.Experimentation.End == nil {
		violations = append(violations, violation(InvariantExperimentation, "experimentation",
			"both start and end dates are required"))
		return violations
	}
	if !f.Experimentation.End.After(*f.Experimentation.Start) {
		violations = append(violations, violation(InvariantExperimentation, "experimentation.end",
			"end must be strictly after start"))
	}
	return violations
}
