package model

import (
	"time"

	"github.com/google/uuid"
)

// ConflictType classifies how two entities contradict each other.
type ConflictType string

const (
	ConflictContradictory       ConflictType = "CONTRADICTORY"
	ConflictMutuallyExclusive   ConflictType = "MUTUALLY_EXCLUSIVE"
	ConflictIncompatible        ConflictType = "INCOMPATIBLE"
	ConflictResourceCompetition ConflictType = "RESOURCE_COMPETITION"
	ConflictTimelineOverlap     ConflictType = "TIMELINE_OVERLAP"
)

// ConflictStatus is the resolution state of a conflict.
type ConflictStatus string

const (
	ConflictOpen     ConflictStatus = "open"
	ConflictResolved ConflictStatus = "resolved"
)

// AssumptionConflict records that two assumptions assert incompatible
// values on a shared dimension. Pairs are stored in canonical order
// (AssumptionAID < AssumptionBID) so re-detection updates in place.
type AssumptionConflict struct {
	ID            uuid.UUID    `json:"id"`
	AssumptionAID uuid.UUID    `json:"assumption_a_id"`
	AssumptionBID uuid.UUID    `json:"assumption_b_id"`
	ConflictType  ConflictType `json:"conflict_type"`

	// Confidence is a configured heuristic constant per detection rule,
	// not a statistically derived value.
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`

	Status           ConflictStatus `json:"status"`
	ResolvedBy       *string        `json:"resolved_by,omitempty"`
	WinnerID         *uuid.UUID     `json:"winner_id,omitempty"`
	ResolutionNotes  *string        `json:"resolution_notes,omitempty"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
	DetectedAt       time.Time      `json:"detected_at"`
}

// DecisionConflict records that two decisions are mutually incompatible.
// Created by manual entry; resolved by a human action recording which
// decision wins.
type DecisionConflict struct {
	ID           uuid.UUID    `json:"id"`
	DecisionAID  uuid.UUID    `json:"decision_a_id"`
	DecisionBID  uuid.UUID    `json:"decision_b_id"`
	ConflictType ConflictType `json:"conflict_type"`
	Confidence   float64      `json:"confidence"`
	Explanation  string       `json:"explanation"`

	Status          ConflictStatus `json:"status"`
	ResolvedBy      *string        `json:"resolved_by,omitempty"`
	WinnerID        *uuid.UUID     `json:"winner_id,omitempty"`
	ResolutionNotes *string        `json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	DetectedAt      time.Time      `json:"detected_at"`
}
