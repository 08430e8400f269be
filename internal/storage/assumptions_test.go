package storage_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decivue/decivue/internal/model"
	"github.com/decivue/decivue/internal/storage"
)

func TestCreateAssumptionWithLinks(t *testing.T) {
	ctx := context.Background()
	d1 := mustCreateDecision(t, "Ship the mobile app")
	d2 := mustCreateDecision(t, "Hire two mobile engineers")

	a, err := testDB.CreateAssumption(ctx, model.Assumption{
		Description: "app store review takes under two weeks",
		Status:      model.AssumptionValid,
		Scope:       model.ScopeDecisionSpecific,
		Category:    model.CategoryTimeline,
		Params: model.AssumptionParams{
			Timeline: &model.TimelineParams{Deadline: daysAgo(-60), MinDurationDays: 14},
		},
	}, []uuid.UUID{d1.ID, d2.ID})
	require.NoError(t, err)

	got, err := testDB.GetAssumption(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryTimeline, got.Category)
	assert.ElementsMatch(t, []uuid.UUID{d1.ID, d2.ID}, got.LinkedDecisions)
	require.NotNil(t, got.Params.Timeline)
	assert.Equal(t, 14, got.Params.Timeline.MinDurationDays)
}

func TestUpdateAssumptionStatus(t *testing.T) {
	ctx := context.Background()
	a := mustCreateAssumption(t, "funding round closes on schedule",
		model.AssumptionValid, model.ScopeUniversal)

	require.NoError(t, testDB.UpdateAssumptionStatus(ctx, a.ID, model.AssumptionBroken))

	got, err := testDB.GetAssumption(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AssumptionBroken, got.Status)
}

func TestUpdateAssumptionStatusNotFound(t *testing.T) {
	err := testDB.UpdateAssumptionStatus(context.Background(), uuid.New(), model.AssumptionShaky)
	assert.ErrorIs(t, err, storage.ErrAssumptionNotFound)
}

func TestLinkUnlinkAssumption(t *testing.T) {
	ctx := context.Background()
	d := mustCreateDecision(t, "Standardize on Kubernetes")
	a := mustCreateAssumption(t, "platform team has capacity",
		model.AssumptionValid, model.ScopeDecisionSpecific)

	require.NoError(t, testDB.LinkAssumption(ctx, d.ID, a.ID))
	// Linking again is a no-op, not an error.
	require.NoError(t, testDB.LinkAssumption(ctx, d.ID, a.ID))

	linked, err := testDB.GetAssumptionsByDecision(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, a.ID, linked[0].ID)

	require.NoError(t, testDB.UnlinkAssumption(ctx, d.ID, a.ID))
	err = testDB.UnlinkAssumption(ctx, d.ID, a.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteAssumptionCascades(t *testing.T) {
	ctx := context.Background()
	d := mustCreateDecision(t, "Pick a CRM vendor")
	a := mustCreateAssumption(t, "vendor pricing holds through renewal",
		model.AssumptionValid, model.ScopeDecisionSpecific, d.ID)
	b := mustCreateAssumption(t, "vendor pricing doubles at renewal",
		model.AssumptionValid, model.ScopeDecisionSpecific, d.ID)

	_, err := testDB.UpsertAssumptionConflict(ctx, model.AssumptionConflict{
		AssumptionAID: a.ID,
		AssumptionBID: b.ID,
		ConflictType:  model.ConflictContradictory,
		Confidence:    0.9,
		Explanation:   "pricing assumptions disagree",
	})
	require.NoError(t, err)

	require.NoError(t, testDB.DeleteAssumption(ctx, a.ID))

	_, err = testDB.GetAssumption(ctx, a.ID)
	assert.ErrorIs(t, err, storage.ErrAssumptionNotFound)

	// The link and the conflict referencing it are gone too.
	linked, err := testDB.GetAssumptionsByDecision(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, b.ID, linked[0].ID)

	count, err := testDB.CountUnresolvedConflictsForDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestListAssumptionsFilters(t *testing.T) {
	ctx := context.Background()

	a, err := testDB.CreateAssumption(ctx, model.Assumption{
		Description: "series B market window stays open",
		Status:      model.AssumptionShaky,
		Scope:       model.ScopeUniversal,
		Category:    model.CategoryMarket,
		Params: model.AssumptionParams{
			Market: &model.MarketParams{Metric: "venture_funding", Direction: model.DirectionFlat},
		},
	}, nil)
	require.NoError(t, err)

	status := model.AssumptionShaky
	scope := model.ScopeUniversal
	list, total, err := testDB.ListAssumptions(ctx, storage.AssumptionFilters{
		Status: &status,
		Scope:  &scope,
	}, 100, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 1)

	found := false
	for _, got := range list {
		assert.Equal(t, model.AssumptionShaky, got.Status)
		assert.Equal(t, model.ScopeUniversal, got.Scope)
		if got.ID == a.ID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestListAssumptionsByCategoryExcludesSelf(t *testing.T) {
	ctx := context.Background()

	mk := func(metric string) model.Assumption {
		a, err := testDB.CreateAssumption(ctx, model.Assumption{
			Description: "market assumption on " + metric,
			Status:      model.AssumptionValid,
			Scope:       model.ScopeDecisionSpecific,
			Category:    model.CategoryMarket,
			Params: model.AssumptionParams{
				Market: &model.MarketParams{Metric: metric, Direction: model.DirectionUp},
			},
		}, nil)
		require.NoError(t, err)
		return a
	}
	self := mk("nrr")
	peer := mk("arr")

	peers, err := testDB.ListAssumptionsByCategory(ctx, model.CategoryMarket, self.ID)
	require.NoError(t, err)

	ids := make(map[uuid.UUID]bool, len(peers))
	for _, p := range peers {
		assert.Equal(t, model.CategoryMarket, p.Category)
		ids[p.ID] = true
	}
	assert.False(t, ids[self.ID])
	assert.True(t, ids[peer.ID])
}
