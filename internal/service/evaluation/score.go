// Package evaluation recomputes decision health from the current state of
// linked assumptions, conflicts, and constraint violations, and derives
// the lifecycle stage from health thresholds.
package evaluation

import (
	"fmt"
	"strings"

	"github.com/decivue/decivue/internal/model"
)

// Penalty weights applied on top of the proportional broken-assumption
// penalty.
const (
	shakyPenalty     = 5
	conflictPenalty  = 10
	violationPenalty = 8
)

// Inputs is everything the scorer looks at. Gathering is separated from
// scoring so the arithmetic stays a pure, table-testable function.
type Inputs struct {
	CurrentHealth    int
	CurrentLifecycle model.Lifecycle
	Assumptions      []model.Assumption
	OpenConflicts    int
	OpenViolations   int
}

// Result is the computed outcome of one evaluation.
type Result struct {
	Health            int
	Lifecycle         model.Lifecycle
	InvalidatedReason *string
	RuleFired         model.EvaluationRule
	Explanation       string
}

// Score computes a decision's health and lifecycle from its inputs.
//
// Rules, in priority order:
//   - Any linked UNIVERSAL assumption that is BROKEN forces health 0 and
//     lifecycle INVALIDATED, regardless of everything else.
//   - Zero linked assumptions leaves health and lifecycle unchanged; a
//     decision with no recorded basis cannot be scored.
//   - Otherwise health = 100 minus a proportional penalty for broken
//     decision-specific assumptions (60 scaled by broken/total), minus 5
//     per shaky assumption, 10 per open conflict, and 8 per open
//     constraint violation, clamped to [0, 100]. Lifecycle follows the
//     health thresholds.
func Score(in Inputs) Result {
	for _, a := range in.Assumptions {
		if a.Scope == model.ScopeUniversal && a.Status == model.AssumptionBroken {
			reason := fmt.Sprintf("universal assumption %s is broken: %s", a.ID, a.Description)
			return Result{
				Health:            0,
				Lifecycle:         model.LifecycleInvalidated,
				InvalidatedReason: &reason,
				RuleFired:         model.RuleUniversalBroken,
				Explanation:       reason,
			}
		}
	}

	if len(in.Assumptions) == 0 {
		return Result{
			Health:      in.CurrentHealth,
			Lifecycle:   in.CurrentLifecycle,
			RuleFired:   model.RuleNoBasis,
			Explanation: "no linked assumptions; health unchanged",
		}
	}

	var specific, broken, shaky int
	for _, a := range in.Assumptions {
		if a.Status == model.AssumptionShaky {
			shaky++
		}
		if a.Scope != model.ScopeDecisionSpecific {
			continue
		}
		specific++
		if a.Status == model.AssumptionBroken {
			broken++
		}
	}

	proportional := 0
	if specific > 0 {
		proportional = 60 * broken / specific
	}

	health := 100 - proportional - shakyPenalty*shaky - conflictPenalty*in.OpenConflicts - violationPenalty*in.OpenViolations
	if health < 0 {
		health = 0
	}
	if health > 100 {
		health = 100
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("%d/%d decision-specific assumptions broken (-%d)", broken, specific, proportional))
	if shaky > 0 {
		parts = append(parts, fmt.Sprintf("%d shaky (-%d)", shaky, shakyPenalty*shaky))
	}
	if in.OpenConflicts > 0 {
		parts = append(parts, fmt.Sprintf("%d open conflicts (-%d)", in.OpenConflicts, conflictPenalty*in.OpenConflicts))
	}
	if in.OpenViolations > 0 {
		parts = append(parts, fmt.Sprintf("%d open violations (-%d)", in.OpenViolations, violationPenalty*in.OpenViolations))
	}
	explanation := fmt.Sprintf("health %d: %s", health, strings.Join(parts, ", "))

	r := Result{
		Health:      health,
		Lifecycle:   lifecycleFor(health),
		RuleFired:   model.RuleProportional,
		Explanation: explanation,
	}
	if r.Lifecycle == model.LifecycleInvalidated {
		r.InvalidatedReason = &explanation
	}
	return r
}

func lifecycleFor(health int) model.Lifecycle {
	switch {
	case health >= 80:
		return model.LifecycleStable
	case health >= 50:
		return model.LifecycleUnderReview
	case health >= 20:
		return model.LifecycleAtRisk
	default:
		return model.LifecycleInvalidated
	}
}
