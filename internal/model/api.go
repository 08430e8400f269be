package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Field length limits for caller-supplied text. These keep Postgres TEXT
// columns and evaluation explanations bounded against caller-controlled
// input.
const (
	MaxTitleLen       = 300
	MaxDescriptionLen = 32 * 1024 // 32 KB
	MaxRuleLen        = 16 * 1024 // 16 KB
)

// Role is the authorization level carried in JWT claims.
type Role string

const (
	RoleReader Role = "reader"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// roleRank orders roles for RoleAtLeast comparisons.
var roleRank = map[Role]int{
	RoleReader: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
}

// RoleAtLeast reports whether have meets or exceeds want.
func RoleAtLeast(have, want Role) bool {
	return roleRank[have] >= roleRank[want]
}

// User is an authenticated principal. API keys are stored as Argon2id
// hashes and exchanged for short-lived JWTs.
type User struct {
	ID         uuid.UUID `json:"id"`
	UserID     string    `json:"user_id"` // stable external identifier, e.g. "maria.ops"
	Name       string    `json:"name"`
	Role       Role      `json:"role"`
	APIKeyHash *string   `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// Error codes returned in the standard error envelope.
const (
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeUnauthorized  = "unauthorized"
	ErrCodeForbidden     = "forbidden"
	ErrCodeNotFound      = "not_found"
	ErrCodeLocked        = "locked"
	ErrCodeConflict      = "conflict"
	ErrCodeRateLimited   = "rate_limited"
	ErrCodeInternalError = "internal_error"
)

// ResponseMeta carries per-request metadata on every response.
type ResponseMeta struct {
	RequestID string `json:"request_id,omitempty"`
}

// APIResponse is the standard success response envelope.
type APIResponse struct {
	Data any          `json:"data"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ErrorDetail describes a single API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthTokenRequest exchanges an API key for a JWT.
type AuthTokenRequest struct {
	UserID string `json:"user_id"`
	APIKey string `json:"api_key"`
}

// CreateDecisionRequest is the payload for POST /v1/decisions.
type CreateDecisionRequest struct {
	Title                  string     `json:"title"`
	Description            string     `json:"description"`
	ExpiryDate             *time.Time `json:"expiry_date,omitempty"`
	Tier                   string     `json:"tier,omitempty"`
	RequiresSecondReviewer bool       `json:"requires_second_reviewer,omitempty"`
}

// Validate checks field lengths and enum values at the boundary.
func (r CreateDecisionRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(r.Title) > MaxTitleLen {
		return fmt.Errorf("title exceeds maximum length of %d characters", MaxTitleLen)
	}
	if len(r.Description) > MaxDescriptionLen {
		return fmt.Errorf("description exceeds maximum length of %d bytes", MaxDescriptionLen)
	}
	if r.Tier != "" {
		switch GovernanceTier(r.Tier) {
		case TierStandard, TierSensitive, TierCritical:
		default:
			return fmt.Errorf("tier must be STANDARD, SENSITIVE, or CRITICAL (got %q)", r.Tier)
		}
	}
	return nil
}

// UpdateDecisionRequest is the payload for PATCH /v1/decisions/{id}.
// Nil fields are left unchanged.
type UpdateDecisionRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Lifecycle   *string    `json:"lifecycle,omitempty"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
}

// Validate checks field lengths and enum values.
func (r UpdateDecisionRequest) Validate() error {
	if r.Title != nil {
		if strings.TrimSpace(*r.Title) == "" {
			return fmt.Errorf("title must not be empty")
		}
		if len(*r.Title) > MaxTitleLen {
			return fmt.Errorf("title exceeds maximum length of %d characters", MaxTitleLen)
		}
	}
	if r.Description != nil && len(*r.Description) > MaxDescriptionLen {
		return fmt.Errorf("description exceeds maximum length of %d bytes", MaxDescriptionLen)
	}
	if r.Lifecycle != nil && !ValidLifecycle(*r.Lifecycle) {
		return fmt.Errorf("unknown lifecycle %q", *r.Lifecycle)
	}
	return nil
}

// CreateAssumptionRequest is the payload for POST /v1/assumptions.
type CreateAssumptionRequest struct {
	Description string           `json:"description"`
	Status      string           `json:"status"`
	Scope       string           `json:"scope"`
	Category    string           `json:"category"`
	Params      AssumptionParams `json:"params"`
	DecisionIDs []uuid.UUID      `json:"decision_ids,omitempty"` // links created atomically with the assumption
}

// Validate checks enum values and the parameter union.
func (r CreateAssumptionRequest) Validate() error {
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("description is required")
	}
	if len(r.Description) > MaxDescriptionLen {
		return fmt.Errorf("description exceeds maximum length of %d bytes", MaxDescriptionLen)
	}
	if !ValidAssumptionStatus(r.Status) {
		return fmt.Errorf("status must be VALID, SHAKY, or BROKEN (got %q)", r.Status)
	}
	switch AssumptionScope(r.Scope) {
	case ScopeUniversal, ScopeDecisionSpecific:
	default:
		return fmt.Errorf("scope must be UNIVERSAL or DECISION_SPECIFIC (got %q)", r.Scope)
	}
	return r.Params.Validate(AssumptionCategory(r.Category))
}

// CreateConstraintRequest is the payload for POST /v1/constraints.
type CreateConstraintRequest struct {
	Name        string      `json:"name"`
	Rule        string      `json:"rule"`
	Type        string      `json:"type"`
	Immutable   bool        `json:"immutable,omitempty"`
	DecisionIDs []uuid.UUID `json:"decision_ids,omitempty"`
}

// Validate checks required fields and the type enum.
func (r CreateConstraintRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(r.Rule) > MaxRuleLen {
		return fmt.Errorf("rule exceeds maximum length of %d bytes", MaxRuleLen)
	}
	if !ValidConstraintType(r.Type) {
		return fmt.Errorf("type must be BUDGET, POLICY, LEGAL, COMPLIANCE, or TECHNICAL (got %q)", r.Type)
	}
	return nil
}

// ResolveConflictRequest records which side of a conflict wins.
type ResolveConflictRequest struct {
	WinnerID uuid.UUID `json:"winner_id"`
	Notes    *string   `json:"notes,omitempty"`
}

// DecisionFilters holds optional filters for decision list queries.
type DecisionFilters struct {
	Lifecycle   *Lifecycle      `json:"lifecycle,omitempty"`
	Tier        *GovernanceTier `json:"tier,omitempty"`
	HealthMax   *int            `json:"health_max,omitempty"`
	Locked      *bool           `json:"locked,omitempty"`
	ExpiringBy  *time.Time      `json:"expiring_by,omitempty"`
}
