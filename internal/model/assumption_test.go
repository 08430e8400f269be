package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssumptionParamsValidate(t *testing.T) {
	budget := &BudgetParams{AmountCents: 500_000, Currency: "USD", Timeframe: "2026-Q3", Line: "marketing"}
	market := &MarketParams{Metric: "churn_rate", Direction: DirectionDown}
	timeline := &TimelineParams{Deadline: time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), MinDurationDays: 90}

	tests := []struct {
		name     string
		category AssumptionCategory
		params   AssumptionParams
		wantErr  bool
	}{
		{"budget with budget params", CategoryBudget, AssumptionParams{Budget: budget}, false},
		{"budget missing params", CategoryBudget, AssumptionParams{}, true},
		{"budget with extra variant", CategoryBudget, AssumptionParams{Budget: budget, Market: market}, true},
		{"market with market params", CategoryMarket, AssumptionParams{Market: market}, false},
		{"market missing metric", CategoryMarket, AssumptionParams{Market: &MarketParams{Direction: DirectionUp}}, true},
		{"market bad direction", CategoryMarket, AssumptionParams{Market: &MarketParams{Metric: "x", Direction: "SIDEWAYS"}}, true},
		{"timeline with timeline params", CategoryTimeline, AssumptionParams{Timeline: timeline}, false},
		{"timeline missing deadline", CategoryTimeline, AssumptionParams{Timeline: &TimelineParams{MinDurationDays: 5}}, true},
		{"timeline negative duration", CategoryTimeline, AssumptionParams{Timeline: &TimelineParams{Deadline: timeline.Deadline, MinDurationDays: -1}}, true},
		{"other with no params", CategoryOther, AssumptionParams{}, false},
		{"other with params", CategoryOther, AssumptionParams{Budget: budget}, true},
		{"unknown category", AssumptionCategory("WEATHER"), AssumptionParams{}, true},
		{"budget negative amount", CategoryBudget, AssumptionParams{Budget: &BudgetParams{AmountCents: -1, Timeframe: "2026-Q3", Line: "ops"}}, true},
		{"budget blank line", CategoryBudget, AssumptionParams{Budget: &BudgetParams{AmountCents: 1, Timeframe: "2026-Q3", Line: "  "}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate(tt.category)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateAssumptionRequestValidate(t *testing.T) {
	valid := CreateAssumptionRequest{
		Description: "churn stays flat through Q4",
		Status:      "VALID",
		Scope:       "DECISION_SPECIFIC",
		Category:    "MARKET",
		Params:      AssumptionParams{Market: &MarketParams{Metric: "churn_rate", Direction: DirectionFlat}},
	}
	require.NoError(t, valid.Validate())

	blank := valid
	blank.Description = "   "
	assert.Error(t, blank.Validate())

	badStatus := valid
	badStatus.Status = "MAYBE"
	assert.Error(t, badStatus.Validate())

	badScope := valid
	badScope.Scope = "GLOBAL"
	assert.Error(t, badScope.Validate())

	mismatch := valid
	mismatch.Category = "BUDGET"
	assert.Error(t, mismatch.Validate())
}
