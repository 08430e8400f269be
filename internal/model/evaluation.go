package model

import (
	"time"

	"github.com/google/uuid"
)

// EvaluationRule names which scoring rule determined an evaluation outcome.
type EvaluationRule string

const (
	// RuleUniversalBroken fired: a linked UNIVERSAL assumption is BROKEN,
	// forcing health 0 and lifecycle INVALIDATED.
	RuleUniversalBroken EvaluationRule = "universal_broken"
	// RuleProportional fired: health derived from the proportional
	// broken-assumption penalty plus shaky/conflict/violation penalties.
	RuleProportional EvaluationRule = "proportional"
	// RuleNoBasis fired: zero linked assumptions, health left unchanged.
	RuleNoBasis EvaluationRule = "no_basis"
)

// EvaluationHistory is one append-only record of a health/lifecycle
// transition produced by an evaluation run. Write-once.
type EvaluationHistory struct {
	ID           uuid.UUID      `json:"id"`
	DecisionID   uuid.UUID      `json:"decision_id"`
	OldHealth    int            `json:"old_health"`
	NewHealth    int            `json:"new_health"`
	OldLifecycle Lifecycle      `json:"old_lifecycle"`
	NewLifecycle Lifecycle      `json:"new_lifecycle"`
	RuleFired    EvaluationRule `json:"rule_fired"`

	// Explanation is the human-readable trace of why the score moved.
	Explanation string `json:"explanation"`

	// LockedAtEvaluation snapshots the governance lock state at run time.
	LockedAtEvaluation bool `json:"locked_at_evaluation"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}
