package evaluation_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decivue/decivue/internal/model"
	"github.com/decivue/decivue/internal/service/evaluation"
	"github.com/decivue/decivue/internal/storage"
	"github.com/decivue/decivue/internal/testutil"
)

var (
	testDB  *storage.DB
	testSvc *evaluation.Service
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(0)
	}

	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "evaluation_test: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}
	defer testDB.Close(context.Background())

	testSvc = evaluation.New(testDB, testutil.TestLogger())
	os.Exit(m.Run())
}

func createDecisionWithAssumptions(t *testing.T, title string, statuses ...model.AssumptionStatus) model.Decision {
	t.Helper()
	ctx := context.Background()

	d, err := testDB.CreateDecision(ctx, model.Decision{Title: title})
	require.NoError(t, err)

	for i, status := range statuses {
		_, err := testDB.CreateAssumption(ctx, model.Assumption{
			Description: fmt.Sprintf("assumption %d for %s", i, title),
			Status:      status,
			Scope:       model.ScopeDecisionSpecific,
			Category:    model.CategoryOther,
		}, []uuid.UUID{d.ID})
		require.NoError(t, err)
	}
	return d
}

func TestEvaluateProportional(t *testing.T) {
	ctx := context.Background()
	d := createDecisionWithAssumptions(t, "Half the assumptions broke",
		model.AssumptionValid, model.AssumptionValid, model.AssumptionBroken, model.AssumptionBroken)

	h, err := testSvc.Evaluate(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RuleProportional, h.RuleFired)
	assert.Equal(t, 70, h.NewHealth)
	assert.Equal(t, model.LifecycleUnderReview, h.NewLifecycle)

	got, err := testDB.GetDecision(ctx, d.ID, false, false)
	require.NoError(t, err)
	assert.Equal(t, 70, got.HealthSignal)
	assert.Equal(t, model.LifecycleUnderReview, got.Lifecycle)
}

func TestEvaluateUniversalBroken(t *testing.T) {
	ctx := context.Background()
	d, err := testDB.CreateDecision(ctx, model.Decision{Title: "Built on a broken premise"})
	require.NoError(t, err)

	_, err = testDB.CreateAssumption(ctx, model.Assumption{
		Description: "the regulation passes this year",
		Status:      model.AssumptionBroken,
		Scope:       model.ScopeUniversal,
		Category:    model.CategoryOther,
	}, []uuid.UUID{d.ID})
	require.NoError(t, err)

	h, err := testSvc.Evaluate(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RuleUniversalBroken, h.RuleFired)
	assert.Equal(t, 0, h.NewHealth)
	assert.Equal(t, model.LifecycleInvalidated, h.NewLifecycle)

	got, err := testDB.GetDecision(ctx, d.ID, false, false)
	require.NoError(t, err)
	require.NotNil(t, got.InvalidatedReason)
	assert.Contains(t, *got.InvalidatedReason, "the regulation passes this year")
}

func TestEvaluateNoBasisKeepsHealth(t *testing.T) {
	ctx := context.Background()
	d, err := testDB.CreateDecision(ctx, model.Decision{Title: "No assumptions at all"})
	require.NoError(t, err)

	h, err := testSvc.Evaluate(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RuleNoBasis, h.RuleFired)
	assert.Equal(t, 100, h.NewHealth)
	assert.Equal(t, model.LifecycleStable, h.NewLifecycle)
}

func TestEvaluateIdempotent(t *testing.T) {
	ctx := context.Background()
	d := createDecisionWithAssumptions(t, "Stable inputs, repeated runs",
		model.AssumptionValid, model.AssumptionShaky)

	first, err := testSvc.Evaluate(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 95, first.NewHealth)

	second, err := testSvc.Evaluate(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 95, second.NewHealth)
	assert.Equal(t, 95, second.OldHealth, "second run saw the settled value")

	// Two history rows, one decision-row change.
	_, total, err := testDB.GetEvaluationHistory(ctx, d.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	versions, err := testDB.GetDecisionVersions(ctx, d.ID, 10)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestEvaluateCountsConflictsAndViolations(t *testing.T) {
	ctx := context.Background()
	d := createDecisionWithAssumptions(t, "Conflicted decision", model.AssumptionValid)
	other, err := testDB.CreateDecision(ctx, model.Decision{Title: "The other side"})
	require.NoError(t, err)

	_, err = testDB.CreateDecisionConflict(ctx, model.DecisionConflict{
		DecisionAID:  d.ID,
		DecisionBID:  other.ID,
		ConflictType: model.ConflictMutuallyExclusive,
		Confidence:   1.0,
		Explanation:  "declared by hand",
	})
	require.NoError(t, err)

	c, err := testDB.CreateConstraint(ctx, model.Constraint{
		Name: "Spending cap", Rule: "stay under cap", Type: model.ConstraintBudget,
	}, []uuid.UUID{d.ID})
	require.NoError(t, err)
	_, err = testDB.RecordViolation(ctx, model.ConstraintViolation{
		ConstraintID: c.ID,
		DecisionID:   d.ID,
		Detail:       "cap exceeded by 12%",
	})
	require.NoError(t, err)

	// 100 - 10 (conflict) - 8 (violation) = 82.
	h, err := testSvc.Evaluate(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 82, h.NewHealth)
	assert.Equal(t, model.LifecycleStable, h.NewLifecycle)
}

func TestEvaluateNotFound(t *testing.T) {
	_, err := testSvc.Evaluate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrDecisionNotFound)
}

func TestEvaluateAllPagesThroughEveryDecision(t *testing.T) {
	ctx := context.Background()

	created := make([]model.Decision, 0, 5)
	for i := 0; i < 5; i++ {
		created = append(created, createDecisionWithAssumptions(t,
			fmt.Sprintf("Paged sweep subject %d", i), model.AssumptionValid))
	}

	// A page smaller than the row count forces multiple fetches.
	svc := evaluation.New(testDB, testutil.TestLogger())
	svc.SetPageSize(2)

	n, err := svc.EvaluateAll(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 5)

	for _, d := range created {
		_, total, err := testDB.GetEvaluationHistory(ctx, d.ID, 1, 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, total, 1, "decision %s missed by the sweep", d.ID)
	}
}

func TestEvaluateAllSkipsTerminal(t *testing.T) {
	ctx := context.Background()

	active := createDecisionWithAssumptions(t, "Active during sweep", model.AssumptionValid)
	retired, err := testDB.CreateDecision(ctx, model.Decision{Title: "Retired during sweep"})
	require.NoError(t, err)
	lc := model.LifecycleRetired
	_, err = testDB.UpdateDecision(ctx, retired.ID, storage.DecisionUpdate{Lifecycle: &lc})
	require.NoError(t, err)

	n, err := testSvc.EvaluateAll(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	// The active decision was evaluated, the retired one was not.
	_, activeTotal, err := testDB.GetEvaluationHistory(ctx, active.ID, 10, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, activeTotal, 1)

	_, retiredTotal, err := testDB.GetEvaluationHistory(ctx, retired.ID, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, retiredTotal)
}
