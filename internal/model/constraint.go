package model

import (
	"time"

	"github.com/google/uuid"
)

// ConstraintType categorizes a constraint for filtering and reporting.
type ConstraintType string

const (
	ConstraintBudget     ConstraintType = "BUDGET"
	ConstraintPolicy     ConstraintType = "POLICY"
	ConstraintLegal      ConstraintType = "LEGAL"
	ConstraintCompliance ConstraintType = "COMPLIANCE"
	ConstraintTechnical  ConstraintType = "TECHNICAL"
)

// ValidConstraintType reports whether s is a known constraint type.
func ValidConstraintType(s string) bool {
	switch ConstraintType(s) {
	case ConstraintBudget, ConstraintPolicy, ConstraintLegal, ConstraintCompliance, ConstraintTechnical:
		return true
	}
	return false
}

// Constraint is a rule a decision must honor, linked to decisions via a
// join table. Immutable constraints reject updates after creation.
type Constraint struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Rule      string         `json:"rule"`
	Type      ConstraintType `json:"type"`
	Immutable bool           `json:"immutable"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ConstraintViolation records a breach of a constraint by a decision.
// Unresolved violations (ResolvedAt nil) penalize the decision's health.
type ConstraintViolation struct {
	ID           uuid.UUID  `json:"id"`
	ConstraintID uuid.UUID  `json:"constraint_id"`
	DecisionID   uuid.UUID  `json:"decision_id"`
	Detail       string     `json:"detail"`
	DetectedAt   time.Time  `json:"detected_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}
