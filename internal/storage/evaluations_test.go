package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decivue/decivue/internal/model"
	"github.com/decivue/decivue/internal/storage"
)

func TestApplyEvaluationUpdatesDecision(t *testing.T) {
	ctx := context.Background()
	d := mustCreateDecision(t, "Keep on-call unpaid")

	h, err := testDB.ApplyEvaluation(ctx, storage.EvaluationOutcome{
		DecisionID:   d.ID,
		NewHealth:    70,
		NewLifecycle: model.LifecycleUnderReview,
		RuleFired:    model.RuleProportional,
		Explanation:  "health 70: 1/4 specific assumptions broken",
	})
	require.NoError(t, err)
	assert.Equal(t, 100, h.OldHealth)
	assert.Equal(t, 70, h.NewHealth)
	assert.Equal(t, model.LifecycleStable, h.OldLifecycle)
	assert.Equal(t, model.LifecycleUnderReview, h.NewLifecycle)

	got, err := testDB.GetDecision(ctx, d.ID, false, false)
	require.NoError(t, err)
	assert.Equal(t, 70, got.HealthSignal)
	assert.Equal(t, model.LifecycleUnderReview, got.Lifecycle)
	assert.Nil(t, got.LastReviewedAt)

	// The change was snapshotted to the version audit table.
	versions, err := testDB.GetDecisionVersions(ctx, d.ID, 10)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "evaluation", versions[0].Reason)
	assert.Equal(t, 1, versions[0].Version)
}

func TestApplyEvaluationUnchangedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d := mustCreateDecision(t, "Renew the office lease")

	outcome := storage.EvaluationOutcome{
		DecisionID:   d.ID,
		NewHealth:    100,
		NewLifecycle: model.LifecycleStable,
		RuleFired:    model.RuleProportional,
		Explanation:  "health 100: all assumptions hold",
	}

	_, err := testDB.ApplyEvaluation(ctx, outcome)
	require.NoError(t, err)
	_, err = testDB.ApplyEvaluation(ctx, outcome)
	require.NoError(t, err)

	// The decision row never changed, so no version snapshots were taken
	// and updated_at stayed at creation time.
	versions, err := testDB.GetDecisionVersions(ctx, d.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, versions)

	got, err := testDB.GetDecision(ctx, d.ID, false, false)
	require.NoError(t, err)
	assert.Equal(t, 100, got.HealthSignal)

	// History is appended on every run regardless.
	history, total, err := testDB.GetEvaluationHistory(ctx, d.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, history, 2)
}

func TestApplyEvaluationInvalidated(t *testing.T) {
	ctx := context.Background()
	d := mustCreateDecision(t, "Assume the partnership closes")

	reason := "universal assumption broken: partnership fell through"
	h, err := testDB.ApplyEvaluation(ctx, storage.EvaluationOutcome{
		DecisionID:        d.ID,
		NewHealth:         0,
		NewLifecycle:      model.LifecycleInvalidated,
		InvalidatedReason: &reason,
		RuleFired:         model.RuleUniversalBroken,
		Explanation:       reason,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RuleUniversalBroken, h.RuleFired)

	got, err := testDB.GetDecision(ctx, d.ID, false, false)
	require.NoError(t, err)
	assert.Equal(t, 0, got.HealthSignal)
	assert.Equal(t, model.LifecycleInvalidated, got.Lifecycle)
	require.NotNil(t, got.InvalidatedReason)
	assert.Equal(t, reason, *got.InvalidatedReason)
}

func TestApplyEvaluationSnapshotsLockState(t *testing.T) {
	ctx := context.Background()
	d := mustCreateDecision(t, "Locked but still evaluated")
	require.NoError(t, testDB.SetDecisionLock(ctx, d.ID, true))

	// Evaluation runs against locked decisions; the lock gates API
	// mutations, not the evaluator.
	h, err := testDB.ApplyEvaluation(ctx, storage.EvaluationOutcome{
		DecisionID:   d.ID,
		NewHealth:    90,
		NewLifecycle: model.LifecycleStable,
		RuleFired:    model.RuleProportional,
		Explanation:  "health 90: 2 shaky assumptions",
	})
	require.NoError(t, err)
	assert.True(t, h.LockedAtEvaluation)
}

func TestGetEvaluationHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	d := mustCreateDecision(t, "Decision with a history")

	for _, health := range []int{80, 60, 40} {
		_, err := testDB.ApplyEvaluation(ctx, storage.EvaluationOutcome{
			DecisionID:   d.ID,
			NewHealth:    health,
			NewLifecycle: model.LifecycleUnderReview,
			RuleFired:    model.RuleProportional,
			Explanation:  "stepwise decay",
		})
		require.NoError(t, err)
	}

	history, total, err := testDB.GetEvaluationHistory(ctx, d.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, history, 2)
	assert.Equal(t, 40, history[0].NewHealth)
	assert.Equal(t, 60, history[1].NewHealth)
}
