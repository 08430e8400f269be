package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// Per-entity wrappers around ErrNotFound so callers can match generically
// with errors.Is(err, ErrNotFound) or specifically per entity.
var (
	ErrDecisionNotFound   = fmt.Errorf("storage: decision: %w", ErrNotFound)
	ErrAssumptionNotFound = fmt.Errorf("storage: assumption: %w", ErrNotFound)
	ErrConstraintNotFound = fmt.Errorf("storage: constraint: %w", ErrNotFound)
	ErrConflictNotFound   = fmt.Errorf("storage: conflict: %w", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("storage: user: %w", ErrNotFound)
)

// ErrLocked is returned when a mutation targets a governance-locked decision.
var ErrLocked = errors.New("storage: decision is locked")

// ErrRetired is returned when a mutation targets a retired decision.
var ErrRetired = errors.New("storage: decision is retired")

// ErrImmutable is returned when an update targets an immutable constraint.
var ErrImmutable = errors.New("storage: constraint is immutable")
