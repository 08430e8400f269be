package model

import (
	"time"

	"github.com/google/uuid"
)

// Lifecycle is the decision state machine stage.
type Lifecycle string

const (
	LifecycleStable      Lifecycle = "STABLE"
	LifecycleUnderReview Lifecycle = "UNDER_REVIEW"
	LifecycleAtRisk      Lifecycle = "AT_RISK"
	LifecycleInvalidated Lifecycle = "INVALIDATED"
	LifecycleRetired     Lifecycle = "RETIRED" // Terminal; decisions are never hard-deleted through the API.
)

// ValidLifecycle reports whether s is a known lifecycle stage.
func ValidLifecycle(s string) bool {
	switch Lifecycle(s) {
	case LifecycleStable, LifecycleUnderReview, LifecycleAtRisk, LifecycleInvalidated, LifecycleRetired:
		return true
	}
	return false
}

// GovernanceTier classifies how much oversight a decision requires.
type GovernanceTier string

const (
	TierStandard  GovernanceTier = "STANDARD"
	TierSensitive GovernanceTier = "SENSITIVE"
	TierCritical  GovernanceTier = "CRITICAL"
)

// Decision is the central entity: a recorded business decision with a
// health signal (0-100) and a lifecycle derived from its linked
// assumptions, constraints, and unresolved conflicts.
type Decision struct {
	ID                uuid.UUID  `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Lifecycle         Lifecycle  `json:"lifecycle"`
	HealthSignal      int        `json:"health_signal"`
	InvalidatedReason *string    `json:"invalidated_reason,omitempty"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`

	// Governance fields. Locked is data, not a mutex: it gates API
	// mutations but never blocks evaluation runs.
	Locked                 bool           `json:"locked"`
	Tier                   GovernanceTier `json:"tier"`
	RequiresSecondReviewer bool           `json:"requires_second_reviewer"`

	// LastReviewedAt is touched only by an explicit human review action,
	// never by the evaluator.
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Joined data (populated by queries, not stored in the decisions table).
	Assumptions []Assumption `json:"assumptions,omitempty"`
	Constraints []Constraint `json:"constraints,omitempty"`
}

// Terminal reports whether the decision can no longer change lifecycle.
func (d Decision) Terminal() bool {
	return d.Lifecycle == LifecycleRetired
}
