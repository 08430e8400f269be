package conflicts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/decivue/decivue/internal/model"
	"github.com/decivue/decivue/internal/storage"
)

// Detector compares assumptions against their category peers and records
// detected conflicts.
type Detector struct {
	db     *storage.DB
	rules  Rules
	logger *slog.Logger
	now    func() time.Time // stubbed in tests
}

// NewDetector creates a detector with the given rule constants.
func NewDetector(db *storage.DB, rules Rules, logger *slog.Logger) *Detector {
	return &Detector{db: db, rules: rules, logger: logger, now: time.Now}
}

// DetectAssumptionConflicts compares one assumption against every other
// assumption in the same category and upserts a conflict row for each
// contradiction found. OTHER-category assumptions carry no structured
// parameters and are never compared. Returns the conflicts recorded in
// this run.
func (d *Detector) DetectAssumptionConflicts(ctx context.Context, assumptionID uuid.UUID) ([]model.AssumptionConflict, error) {
	subject, err := d.db.GetAssumption(ctx, assumptionID)
	if err != nil {
		return nil, err
	}
	if subject.Category == model.CategoryOther {
		return nil, nil
	}

	peers, err := d.db.ListAssumptionsByCategory(ctx, subject.Category, subject.ID)
	if err != nil {
		return nil, err
	}

	var recorded []model.AssumptionConflict
	for _, peer := range peers {
		finding := d.compare(subject, peer)
		if finding == nil {
			continue
		}

		conflict, err := d.db.UpsertAssumptionConflict(ctx, model.AssumptionConflict{
			AssumptionAID: subject.ID,
			AssumptionBID: peer.ID,
			ConflictType:  finding.conflictType,
			Confidence:    finding.confidence,
			Explanation:   finding.explanation,
		})
		if err != nil {
			return nil, err
		}
		recorded = append(recorded, conflict)

		d.logger.Info("assumption conflict detected",
			"assumption_a", conflict.AssumptionAID,
			"assumption_b", conflict.AssumptionBID,
			"type", conflict.ConflictType,
			"confidence", conflict.Confidence,
		)
	}

	if len(recorded) > 0 {
		if err := d.db.Notify(ctx, storage.ChannelConflicts, subject.ID.String()); err != nil {
			d.logger.Warn("conflict notify failed", "assumption_id", subject.ID, "error", err)
		}
	}
	return recorded, nil
}

type finding struct {
	conflictType model.ConflictType
	confidence   float64
	explanation  string
}

// compare applies the category rule to a pair of assumptions. Returns nil
// when the pair is compatible or not comparable.
func (d *Detector) compare(a, b model.Assumption) *finding {
	switch a.Category {
	case model.CategoryBudget:
		return d.compareBudget(a, b)
	case model.CategoryMarket:
		return d.compareMarket(a, b)
	case model.CategoryTimeline:
		return d.compareTimeline(a, b)
	}
	return nil
}

// compareBudget: two assertions about the same budget line in the same
// timeframe with different amounts contradict each other.
func (d *Detector) compareBudget(a, b model.Assumption) *finding {
	pa, pb := a.Params.Budget, b.Params.Budget
	if pa == nil || pb == nil {
		return nil
	}
	if pa.Timeframe != pb.Timeframe || pa.Line != pb.Line {
		return nil
	}
	if pa.AmountCents == pb.AmountCents {
		return nil
	}
	return &finding{
		conflictType: model.ConflictContradictory,
		confidence:   d.rules.BudgetConfidence,
		explanation: fmt.Sprintf(
			"budget line %q in %s asserted at both %d and %d cents",
			pa.Line, pa.Timeframe, pa.AmountCents, pb.AmountCents),
	}
}

// compareMarket: the same metric asserted to move in opposite directions
// contradicts. FLAT against UP or DOWN also contradicts; the metric cannot
// both hold and move.
func (d *Detector) compareMarket(a, b model.Assumption) *finding {
	pa, pb := a.Params.Market, b.Params.Market
	if pa == nil || pb == nil {
		return nil
	}
	if pa.Metric != pb.Metric || pa.Direction == pb.Direction {
		return nil
	}
	return &finding{
		conflictType: model.ConflictContradictory,
		confidence:   d.rules.MarketConfidence,
		explanation: fmt.Sprintf(
			"metric %q asserted both %s and %s",
			pa.Metric, pa.Direction, pb.Direction),
	}
}

// compareTimeline: a minimum duration that runs past the other assumption's
// deadline makes the pair incompatible, in either direction. Durations are
// anchored at the detector clock, so a pair that fit when recorded can
// surface as a conflict on a later detection run once the remaining time
// no longer covers the work.
func (d *Detector) compareTimeline(a, b model.Assumption) *finding {
	pa, pb := a.Params.Timeline, b.Params.Timeline
	if pa == nil || pb == nil {
		return nil
	}

	now := d.now()
	aEnd := now.AddDate(0, 0, pa.MinDurationDays)
	bEnd := now.AddDate(0, 0, pb.MinDurationDays)
	if aEnd.After(pb.Deadline) || bEnd.After(pa.Deadline) {
		return &finding{
			conflictType: model.ConflictIncompatible,
			confidence:   d.rules.TimelineConfidence,
			explanation: fmt.Sprintf(
				"minimum durations (%dd, %dd) cannot both fit before deadlines %s and %s",
				pa.MinDurationDays, pb.MinDurationDays,
				pa.Deadline.Format("2006-01-02"), pb.Deadline.Format("2006-01-02")),
		}
	}
	return nil
}
