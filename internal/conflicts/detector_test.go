package conflicts

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decivue/decivue/internal/model"
)

func budgetAssumption(timeframe, line string, amountCents int64) model.Assumption {
	return model.Assumption{
		ID:       uuid.New(),
		Category: model.CategoryBudget,
		Params: model.AssumptionParams{
			Budget: &model.BudgetParams{
				AmountCents: amountCents,
				Currency:    "USD",
				Timeframe:   timeframe,
				Line:        line,
			},
		},
	}
}

func marketAssumption(metric string, direction model.Direction) model.Assumption {
	return model.Assumption{
		ID:       uuid.New(),
		Category: model.CategoryMarket,
		Params: model.AssumptionParams{
			Market: &model.MarketParams{Metric: metric, Direction: direction},
		},
	}
}

func timelineAssumption(deadline time.Time, minDays int) model.Assumption {
	return model.Assumption{
		ID:       uuid.New(),
		Category: model.CategoryTimeline,
		Params: model.AssumptionParams{
			Timeline: &model.TimelineParams{Deadline: deadline, MinDurationDays: minDays},
		},
	}
}

func newTestDetector() *Detector {
	return NewDetector(nil, DefaultRules(), discardLogger())
}

func TestCompareBudget(t *testing.T) {
	d := newTestDetector()

	t.Run("same line and timeframe with different amounts contradict", func(t *testing.T) {
		f := d.compare(
			budgetAssumption("2026-Q3", "marketing", 500_000),
			budgetAssumption("2026-Q3", "marketing", 750_000),
		)
		require.NotNil(t, f)
		assert.Equal(t, model.ConflictContradictory, f.conflictType)
		assert.Equal(t, DefaultRules().BudgetConfidence, f.confidence)
		assert.Contains(t, f.explanation, "marketing")
	})

	t.Run("same amounts agree", func(t *testing.T) {
		f := d.compare(
			budgetAssumption("2026-Q3", "marketing", 500_000),
			budgetAssumption("2026-Q3", "marketing", 500_000),
		)
		assert.Nil(t, f)
	})

	t.Run("different timeframes are not comparable", func(t *testing.T) {
		f := d.compare(
			budgetAssumption("2026-Q3", "marketing", 500_000),
			budgetAssumption("2026-Q4", "marketing", 750_000),
		)
		assert.Nil(t, f)
	})

	t.Run("different lines are not comparable", func(t *testing.T) {
		f := d.compare(
			budgetAssumption("2026-Q3", "marketing", 500_000),
			budgetAssumption("2026-Q3", "engineering", 750_000),
		)
		assert.Nil(t, f)
	})
}

func TestCompareMarket(t *testing.T) {
	d := newTestDetector()

	t.Run("opposite directions on the same metric contradict", func(t *testing.T) {
		f := d.compare(
			marketAssumption("churn_rate", model.DirectionUp),
			marketAssumption("churn_rate", model.DirectionDown),
		)
		require.NotNil(t, f)
		assert.Equal(t, model.ConflictContradictory, f.conflictType)
		assert.Equal(t, DefaultRules().MarketConfidence, f.confidence)
	})

	t.Run("flat against a movement contradicts", func(t *testing.T) {
		f := d.compare(
			marketAssumption("churn_rate", model.DirectionFlat),
			marketAssumption("churn_rate", model.DirectionUp),
		)
		require.NotNil(t, f)
	})

	t.Run("same direction agrees", func(t *testing.T) {
		f := d.compare(
			marketAssumption("churn_rate", model.DirectionUp),
			marketAssumption("churn_rate", model.DirectionUp),
		)
		assert.Nil(t, f)
	})

	t.Run("different metrics are not comparable", func(t *testing.T) {
		f := d.compare(
			marketAssumption("churn_rate", model.DirectionUp),
			marketAssumption("signup_rate", model.DirectionDown),
		)
		assert.Nil(t, f)
	})
}

func TestCompareTimeline(t *testing.T) {
	d := newTestDetector()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }

	t.Run("minimum duration past the other deadline is incompatible", func(t *testing.T) {
		f := d.compare(
			timelineAssumption(base.AddDate(0, 6, 0), 30),
			timelineAssumption(base.AddDate(0, 0, 45), 90),
		)
		require.NotNil(t, f)
		assert.Equal(t, model.ConflictIncompatible, f.conflictType)
		assert.Equal(t, DefaultRules().TimelineConfidence, f.confidence)
	})

	t.Run("both durations fit before both deadlines", func(t *testing.T) {
		f := d.compare(
			timelineAssumption(base.AddDate(1, 0, 0), 30),
			timelineAssumption(base.AddDate(1, 0, 0), 60),
		)
		assert.Nil(t, f)
	})

	t.Run("a pair that fit when recorded stops fitting as time passes", func(t *testing.T) {
		a := timelineAssumption(base.AddDate(0, 2, 0), 30)
		b := timelineAssumption(base.AddDate(0, 2, 0), 30)

		d.now = func() time.Time { return base }
		assert.Nil(t, d.compare(a, b))

		// 45 days later only ~16 remain before the deadlines; 30-day
		// minimum durations no longer fit.
		d.now = func() time.Time { return base.AddDate(0, 0, 45) }
		f := d.compare(a, b)
		require.NotNil(t, f)
		assert.Equal(t, model.ConflictIncompatible, f.conflictType)
	})
}

func TestCompareSkipsMissingParams(t *testing.T) {
	d := newTestDetector()

	a := model.Assumption{ID: uuid.New(), Category: model.CategoryBudget}
	b := budgetAssumption("2026-Q3", "marketing", 100)
	assert.Nil(t, d.compare(a, b))

	other := model.Assumption{ID: uuid.New(), Category: model.CategoryOther}
	assert.Nil(t, d.compare(other, other))
}
