package evaluation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decivue/decivue/internal/model"
)

func assumption(scope model.AssumptionScope, status model.AssumptionStatus) model.Assumption {
	return model.Assumption{
		ID:          uuid.New(),
		Description: "test assumption",
		Scope:       scope,
		Status:      status,
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name          string
		in            Inputs
		wantHealth    int
		wantLifecycle model.Lifecycle
		wantRule      model.EvaluationRule
	}{
		{
			name: "all valid assumptions keep full health",
			in: Inputs{
				CurrentHealth:    100,
				CurrentLifecycle: model.LifecycleStable,
				Assumptions: []model.Assumption{
					assumption(model.ScopeDecisionSpecific, model.AssumptionValid),
					assumption(model.ScopeDecisionSpecific, model.AssumptionValid),
				},
			},
			wantHealth:    100,
			wantLifecycle: model.LifecycleStable,
			wantRule:      model.RuleProportional,
		},
		{
			name: "two of four broken lands in review",
			in: Inputs{
				CurrentHealth:    100,
				CurrentLifecycle: model.LifecycleStable,
				Assumptions: []model.Assumption{
					assumption(model.ScopeDecisionSpecific, model.AssumptionBroken),
					assumption(model.ScopeDecisionSpecific, model.AssumptionBroken),
					assumption(model.ScopeDecisionSpecific, model.AssumptionValid),
					assumption(model.ScopeDecisionSpecific, model.AssumptionValid),
				},
			},
			wantHealth:    70,
			wantLifecycle: model.LifecycleUnderReview,
			wantRule:      model.RuleProportional,
		},
		{
			name: "one of three broken floors the penalty",
			in: Inputs{
				CurrentHealth:    100,
				CurrentLifecycle: model.LifecycleStable,
				Assumptions: []model.Assumption{
					assumption(model.ScopeDecisionSpecific, model.AssumptionBroken),
					assumption(model.ScopeDecisionSpecific, model.AssumptionValid),
					assumption(model.ScopeDecisionSpecific, model.AssumptionValid),
				},
			},
			wantHealth:    80, // floor(60*1/3) = 20
			wantLifecycle: model.LifecycleStable,
			wantRule:      model.RuleProportional,
		},
		{
			name: "universal broken overrides everything",
			in: Inputs{
				CurrentHealth:    100,
				CurrentLifecycle: model.LifecycleStable,
				Assumptions: []model.Assumption{
					assumption(model.ScopeDecisionSpecific, model.AssumptionValid),
					assumption(model.ScopeUniversal, model.AssumptionBroken),
				},
			},
			wantHealth:    0,
			wantLifecycle: model.LifecycleInvalidated,
			wantRule:      model.RuleUniversalBroken,
		},
		{
			name: "no assumptions leaves health untouched",
			in: Inputs{
				CurrentHealth:    63,
				CurrentLifecycle: model.LifecycleUnderReview,
			},
			wantHealth:    63,
			wantLifecycle: model.LifecycleUnderReview,
			wantRule:      model.RuleNoBasis,
		},
		{
			name: "shaky assumptions subtract five each",
			in: Inputs{
				CurrentHealth:    100,
				CurrentLifecycle: model.LifecycleStable,
				Assumptions: []model.Assumption{
					assumption(model.ScopeDecisionSpecific, model.AssumptionShaky),
					assumption(model.ScopeDecisionSpecific, model.AssumptionShaky),
					assumption(model.ScopeDecisionSpecific, model.AssumptionValid),
				},
			},
			wantHealth:    90,
			wantLifecycle: model.LifecycleStable,
			wantRule:      model.RuleProportional,
		},
		{
			name: "conflicts and violations stack",
			in: Inputs{
				CurrentHealth:    100,
				CurrentLifecycle: model.LifecycleStable,
				Assumptions: []model.Assumption{
					assumption(model.ScopeDecisionSpecific, model.AssumptionValid),
				},
				OpenConflicts:  2,
				OpenViolations: 1,
			},
			wantHealth:    72, // 100 - 20 - 8
			wantLifecycle: model.LifecycleUnderReview,
			wantRule:      model.RuleProportional,
		},
		{
			name: "penalties clamp at zero",
			in: Inputs{
				CurrentHealth:    100,
				CurrentLifecycle: model.LifecycleStable,
				Assumptions: []model.Assumption{
					assumption(model.ScopeDecisionSpecific, model.AssumptionBroken),
				},
				OpenConflicts:  4,
				OpenViolations: 2,
			},
			wantHealth:    0, // 100 - 60 - 40 - 16 clamps
			wantLifecycle: model.LifecycleInvalidated,
			wantRule:      model.RuleProportional,
		},
		{
			name: "only universal valid assumptions score full",
			in: Inputs{
				CurrentHealth:    55,
				CurrentLifecycle: model.LifecycleUnderReview,
				Assumptions: []model.Assumption{
					assumption(model.ScopeUniversal, model.AssumptionValid),
				},
			},
			wantHealth:    100,
			wantLifecycle: model.LifecycleStable,
			wantRule:      model.RuleProportional,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.in)
			assert.Equal(t, tt.wantHealth, got.Health)
			assert.Equal(t, tt.wantLifecycle, got.Lifecycle)
			assert.Equal(t, tt.wantRule, got.RuleFired)
		})
	}
}

func TestScoreUniversalBrokenSetsReason(t *testing.T) {
	broken := assumption(model.ScopeUniversal, model.AssumptionBroken)
	broken.Description = "market research budget is approved"

	got := Score(Inputs{
		CurrentHealth:    100,
		CurrentLifecycle: model.LifecycleStable,
		Assumptions:      []model.Assumption{broken},
	})

	require.NotNil(t, got.InvalidatedReason)
	assert.Contains(t, *got.InvalidatedReason, broken.ID.String())
	assert.Contains(t, *got.InvalidatedReason, "market research budget is approved")
}

func TestScoreLowHealthSetsInvalidatedReason(t *testing.T) {
	got := Score(Inputs{
		CurrentHealth:    100,
		CurrentLifecycle: model.LifecycleStable,
		Assumptions: []model.Assumption{
			assumption(model.ScopeDecisionSpecific, model.AssumptionBroken),
			assumption(model.ScopeDecisionSpecific, model.AssumptionBroken),
			assumption(model.ScopeDecisionSpecific, model.AssumptionBroken),
		},
		OpenConflicts: 3,
	})

	assert.Equal(t, 10, got.Health) // 100 - 60 - 30
	assert.Equal(t, model.LifecycleInvalidated, got.Lifecycle)
	require.NotNil(t, got.InvalidatedReason)
	assert.Equal(t, got.Explanation, *got.InvalidatedReason)
}

func TestLifecycleThresholds(t *testing.T) {
	tests := []struct {
		health int
		want   model.Lifecycle
	}{
		{100, model.LifecycleStable},
		{80, model.LifecycleStable},
		{79, model.LifecycleUnderReview},
		{50, model.LifecycleUnderReview},
		{49, model.LifecycleAtRisk},
		{20, model.LifecycleAtRisk},
		{19, model.LifecycleInvalidated},
		{0, model.LifecycleInvalidated},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lifecycleFor(tt.health), "health %d", tt.health)
	}
}
