package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AssumptionStatus is the validity state of an assumption.
type AssumptionStatus string

const (
	AssumptionValid  AssumptionStatus = "VALID"
	AssumptionShaky  AssumptionStatus = "SHAKY"
	AssumptionBroken AssumptionStatus = "BROKEN"
)

// ValidAssumptionStatus reports whether s is a known status.
func ValidAssumptionStatus(s string) bool {
	switch AssumptionStatus(s) {
	case AssumptionValid, AssumptionShaky, AssumptionBroken:
		return true
	}
	return false
}

// AssumptionScope controls how breaking an assumption affects linked decisions.
// A broken UNIVERSAL assumption invalidates every decision it is linked to;
// a broken DECISION_SPECIFIC assumption contributes a proportional penalty.
type AssumptionScope string

const (
	ScopeUniversal        AssumptionScope = "UNIVERSAL"
	ScopeDecisionSpecific AssumptionScope = "DECISION_SPECIFIC"
)

// AssumptionCategory selects which parameter shape the assumption carries
// and which conflict-detection rules apply to it.
type AssumptionCategory string

const (
	CategoryBudget   AssumptionCategory = "BUDGET"
	CategoryMarket   AssumptionCategory = "MARKET"
	CategoryTimeline AssumptionCategory = "TIMELINE"
	CategoryOther    AssumptionCategory = "OTHER"
)

// Direction is an asserted movement of a market metric.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
	DirectionFlat Direction = "FLAT"
)

// BudgetParams asserts an amount for a budget line within a timeframe.
type BudgetParams struct {
	AmountCents int64  `json:"amount_cents" yaml:"amount_cents"`
	Currency    string `json:"currency" yaml:"currency"`
	Timeframe   string `json:"timeframe" yaml:"timeframe"` // e.g. "2026-Q3", "FY2026"
	Line        string `json:"line" yaml:"line"`           // budget line item, e.g. "marketing"
}

// MarketParams asserts a direction for a named metric.
type MarketParams struct {
	Metric    string    `json:"metric" yaml:"metric"`
	Direction Direction `json:"direction" yaml:"direction"`
}

// TimelineParams asserts a deadline and a minimum duration to meet it.
type TimelineParams struct {
	Deadline        time.Time `json:"deadline" yaml:"deadline"`
	MinDurationDays int       `json:"min_duration_days" yaml:"min_duration_days"`
}

// AssumptionParams is a tagged union keyed by the assumption's category.
// Exactly the field matching the category is set; the rest are nil.
// Represented this way (rather than as an open map) so conflict rules
// operate on typed values validated at the boundary.
type AssumptionParams struct {
	Budget   *BudgetParams   `json:"budget,omitempty"`
	Market   *MarketParams   `json:"market,omitempty"`
	Timeline *TimelineParams `json:"timeline,omitempty"`
}

// Validate checks that the populated variant matches the category.
func (p AssumptionParams) Validate(category AssumptionCategory) error {
	switch category {
	case CategoryBudget:
		if p.Budget == nil {
			return fmt.Errorf("category BUDGET requires budget parameters")
		}
		if p.Market != nil || p.Timeline != nil {
			return fmt.Errorf("category BUDGET allows only budget parameters")
		}
		if p.Budget.AmountCents < 0 {
			return fmt.Errorf("budget amount_cents must be non-negative")
		}
		if strings.TrimSpace(p.Budget.Timeframe) == "" || strings.TrimSpace(p.Budget.Line) == "" {
			return fmt.Errorf("budget timeframe and line are required")
		}
	case CategoryMarket:
		if p.Market == nil {
			return fmt.Errorf("category MARKET requires market parameters")
		}
		if p.Budget != nil || p.Timeline != nil {
			return fmt.Errorf("category MARKET allows only market parameters")
		}
		if strings.TrimSpace(p.Market.Metric) == "" {
			return fmt.Errorf("market metric is required")
		}
		switch p.Market.Direction {
		case DirectionUp, DirectionDown, DirectionFlat:
		default:
			return fmt.Errorf("market direction must be UP, DOWN, or FLAT (got %q)", p.Market.Direction)
		}
	case CategoryTimeline:
		if p.Timeline == nil {
			return fmt.Errorf("category TIMELINE requires timeline parameters")
		}
		if p.Budget != nil || p.Market != nil {
			return fmt.Errorf("category TIMELINE allows only timeline parameters")
		}
		if p.Timeline.Deadline.IsZero() {
			return fmt.Errorf("timeline deadline is required")
		}
		if p.Timeline.MinDurationDays < 0 {
			return fmt.Errorf("timeline min_duration_days must be non-negative")
		}
	case CategoryOther:
		if p.Budget != nil || p.Market != nil || p.Timeline != nil {
			return fmt.Errorf("category OTHER carries no structured parameters")
		}
	default:
		return fmt.Errorf("unknown assumption category %q", category)
	}
	return nil
}

// Assumption is an independently-owned statement a decision rests on,
// linked many-to-many to decisions.
type Assumption struct {
	ID          uuid.UUID          `json:"id"`
	Description string             `json:"description"`
	Status      AssumptionStatus   `json:"status"`
	Scope       AssumptionScope    `json:"scope"`
	Category    AssumptionCategory `json:"category"`
	Params      AssumptionParams   `json:"params"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`

	// LinkedDecisions is populated by queries that join the link table.
	LinkedDecisions []uuid.UUID `json:"linked_decisions,omitempty"`
}
