package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decivue/decivue/internal/model"
	"github.com/decivue/decivue/internal/storage"
)

func TestUpsertAssumptionConflictCanonicalPair(t *testing.T) {
	ctx := context.Background()
	a := mustCreateAssumption(t, "budget grows next year", model.AssumptionValid, model.ScopeDecisionSpecific)
	b := mustCreateAssumption(t, "budget shrinks next year", model.AssumptionValid, model.ScopeDecisionSpecific)

	first, err := testDB.UpsertAssumptionConflict(ctx, model.AssumptionConflict{
		AssumptionAID: a.ID,
		AssumptionBID: b.ID,
		ConflictType:  model.ConflictContradictory,
		Confidence:    0.9,
		Explanation:   "budget direction disagreement",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ConflictOpen, first.Status)

	// Re-detecting with the pair swapped hits the same row and refreshes it.
	second, err := testDB.UpsertAssumptionConflict(ctx, model.AssumptionConflict{
		AssumptionAID: b.ID,
		AssumptionBID: a.ID,
		ConflictType:  model.ConflictContradictory,
		Confidence:    0.95,
		Explanation:   "budget direction disagreement, re-checked",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.AssumptionAID, second.AssumptionAID)
	assert.Equal(t, first.AssumptionBID, second.AssumptionBID)
	assert.InDelta(t, 0.95, second.Confidence, 1e-9)
}

func TestResolveAssumptionConflict(t *testing.T) {
	ctx := context.Background()
	a := mustCreateAssumption(t, "team stays at current size", model.AssumptionValid, model.ScopeDecisionSpecific)
	b := mustCreateAssumption(t, "team doubles by summer", model.AssumptionValid, model.ScopeDecisionSpecific)

	c, err := testDB.UpsertAssumptionConflict(ctx, model.AssumptionConflict{
		AssumptionAID: a.ID,
		AssumptionBID: b.ID,
		ConflictType:  model.ConflictContradictory,
		Confidence:    0.8,
		Explanation:   "headcount assumptions disagree",
	})
	require.NoError(t, err)

	notes := "a is the board-approved plan"
	resolved, err := testDB.ResolveAssumptionConflict(ctx, c.ID, "maria.ops", &a.ID, &notes)
	require.NoError(t, err)
	assert.Equal(t, model.ConflictResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "maria.ops", *resolved.ResolvedBy)
	require.NotNil(t, resolved.WinnerID)
	assert.Equal(t, a.ID, *resolved.WinnerID)
	assert.NotNil(t, resolved.ResolvedAt)

	// Resolving again fails: the conflict is no longer open.
	_, err = testDB.ResolveAssumptionConflict(ctx, c.ID, "maria.ops", nil, nil)
	assert.ErrorIs(t, err, storage.ErrConflictNotFound)

	// Re-detection of a resolved pair does not reopen it; the stored
	// resolved row comes back instead.
	again, err := testDB.UpsertAssumptionConflict(ctx, model.AssumptionConflict{
		AssumptionAID: a.ID,
		AssumptionBID: b.ID,
		ConflictType:  model.ConflictContradictory,
		Confidence:    0.99,
		Explanation:   "detected again",
	})
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)
	assert.Equal(t, model.ConflictResolved, again.Status)
	assert.InDelta(t, 0.8, again.Confidence, 1e-9)
}

func TestListAssumptionConflictsByStatus(t *testing.T) {
	ctx := context.Background()
	a := mustCreateAssumption(t, "churn stays under 3%", model.AssumptionValid, model.ScopeDecisionSpecific)
	b := mustCreateAssumption(t, "churn climbs past 5%", model.AssumptionValid, model.ScopeDecisionSpecific)

	c, err := testDB.UpsertAssumptionConflict(ctx, model.AssumptionConflict{
		AssumptionAID: a.ID,
		AssumptionBID: b.ID,
		ConflictType:  model.ConflictContradictory,
		Confidence:    0.85,
		Explanation:   "churn expectations disagree",
	})
	require.NoError(t, err)

	open := model.ConflictOpen
	list, total, err := testDB.ListAssumptionConflicts(ctx, &open, 100, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 1)

	found := false
	for _, got := range list {
		assert.Equal(t, model.ConflictOpen, got.Status)
		if got.ID == c.ID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDecisionConflictLifecycle(t *testing.T) {
	ctx := context.Background()
	d1 := mustCreateDecision(t, "Expand into Japan")
	d2 := mustCreateDecision(t, "Freeze international expansion")

	c, err := testDB.CreateDecisionConflict(ctx, model.DecisionConflict{
		DecisionAID:  d1.ID,
		DecisionBID:  d2.ID,
		ConflictType: model.ConflictMutuallyExclusive,
		Confidence:   1.0,
		Explanation:  "cannot expand and freeze at the same time",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ConflictOpen, c.Status)

	got, err := testDB.GetDecisionConflict(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	count, err := testDB.CountUnresolvedConflictsForDecision(ctx, d1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	resolved, err := testDB.ResolveDecisionConflict(ctx, c.ID, "admin", &d1.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ConflictResolved, resolved.Status)

	count, err = testDB.CountUnresolvedConflictsForDecision(ctx, d1.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCountUnresolvedConflictsIncludesAssumptionConflicts(t *testing.T) {
	ctx := context.Background()
	d := mustCreateDecision(t, "Commit to the Q1 launch date")

	linked := mustCreateAssumption(t, "design is finalized by December",
		model.AssumptionValid, model.ScopeDecisionSpecific, d.ID)
	other := mustCreateAssumption(t, "design review adds six weeks",
		model.AssumptionValid, model.ScopeDecisionSpecific)

	_, err := testDB.UpsertAssumptionConflict(ctx, model.AssumptionConflict{
		AssumptionAID: linked.ID,
		AssumptionBID: other.ID,
		ConflictType:  model.ConflictIncompatible,
		Confidence:    0.8,
		Explanation:   "timelines cannot both hold",
	})
	require.NoError(t, err)

	// The conflict counts against the decision because one side is linked.
	count, err := testDB.CountUnresolvedConflictsForDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	unrelated := mustCreateDecision(t, "Unrelated decision")
	count, err = testDB.CountUnresolvedConflictsForDecision(ctx, unrelated.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
