package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/decivue/decivue/internal/model"
	"github.com/decivue/decivue/internal/storage"
	"github.com/decivue/decivue/internal/telemetry"
)

// defaultPageSize bounds how many decisions EvaluateAll loads per query.
const defaultPageSize = 500

// Service runs health evaluations against stored decisions.
type Service struct {
	db       *storage.DB
	logger   *slog.Logger
	pageSize int

	evalDuration metric.Float64Histogram
	evalRuns     metric.Int64Counter
}

// New creates an evaluation service.
func New(db *storage.DB, logger *slog.Logger) *Service {
	s := &Service{db: db, logger: logger, pageSize: defaultPageSize}

	meter := telemetry.Meter("decivue/evaluation")
	s.evalDuration, _ = meter.Float64Histogram("decivue.evaluation.duration_seconds",
		metric.WithDescription("Time spent evaluating a decision's health"))
	s.evalRuns, _ = meter.Int64Counter("decivue.evaluation.runs",
		metric.WithDescription("Total evaluation runs"))

	return s
}

// Evaluate recomputes one decision's health signal and lifecycle from its
// linked assumptions, open conflicts, and unresolved constraint violations,
// and records the outcome in the evaluation history. Repeated runs with
// unchanged inputs append history rows but never drift the decision row,
// and evaluation never stamps last_reviewed_at.
func (s *Service) Evaluate(ctx context.Context, decisionID uuid.UUID) (model.EvaluationHistory, error) {
	start := time.Now()

	decision, err := s.db.GetDecision(ctx, decisionID, false, false)
	if err != nil {
		return model.EvaluationHistory{}, err
	}

	assumptions, err := s.db.GetAssumptionsByDecision(ctx, decisionID)
	if err != nil {
		return model.EvaluationHistory{}, fmt.Errorf("evaluation: load assumptions: %w", err)
	}
	conflicts, err := s.db.CountUnresolvedConflictsForDecision(ctx, decisionID)
	if err != nil {
		return model.EvaluationHistory{}, fmt.Errorf("evaluation: count conflicts: %w", err)
	}
	violations, err := s.db.CountUnresolvedViolations(ctx, decisionID)
	if err != nil {
		return model.EvaluationHistory{}, fmt.Errorf("evaluation: count violations: %w", err)
	}

	result := Score(Inputs{
		CurrentHealth:    decision.HealthSignal,
		CurrentLifecycle: decision.Lifecycle,
		Assumptions:      assumptions,
		OpenConflicts:    conflicts,
		OpenViolations:   violations,
	})

	history, err := s.db.ApplyEvaluation(ctx, storage.EvaluationOutcome{
		DecisionID:        decisionID,
		NewHealth:         result.Health,
		NewLifecycle:      result.Lifecycle,
		InvalidatedReason: result.InvalidatedReason,
		RuleFired:         result.RuleFired,
		Explanation:       result.Explanation,
	})
	if err != nil {
		return model.EvaluationHistory{}, err
	}

	// Notify listeners that the decision was evaluated. Best effort; an
	// evaluation that committed is not undone by a failed notify.
	if err := s.db.Notify(ctx, storage.ChannelDecisions, decisionID.String()); err != nil {
		s.logger.Warn("evaluation notify failed", "decision_id", decisionID, "error", err)
	}

	if s.evalDuration != nil {
		s.evalDuration.Record(ctx, time.Since(start).Seconds())
	}
	if s.evalRuns != nil {
		s.evalRuns.Add(ctx, 1)
	}

	s.logger.Info("decision evaluated",
		"decision_id", decisionID,
		"rule", history.RuleFired,
		"old_health", history.OldHealth,
		"new_health", history.NewHealth,
		"old_lifecycle", history.OldLifecycle,
		"new_lifecycle", history.NewLifecycle,
	)
	return history, nil
}

// EvaluateAll runs Evaluate over every non-terminal decision, paging
// through the table so deployments larger than one page still get every
// decision refreshed. Used by the background refresh loop; individual
// failures are logged and skipped.
func (s *Service) EvaluateAll(ctx context.Context) (int, error) {
	evaluated := 0
	for offset := 0; ; {
		page, total, err := s.db.ListDecisions(ctx, model.DecisionFilters{}, "created_at", "asc", s.pageSize, offset)
		if err != nil {
			return evaluated, err
		}
		if len(page) == 0 {
			break
		}

		for _, d := range page {
			if d.Terminal() {
				continue
			}
			if _, err := s.Evaluate(ctx, d.ID); err != nil {
				s.logger.Warn("background evaluation failed", "decision_id", d.ID, "error", err)
				continue
			}
			evaluated++
		}

		offset += len(page)
		if offset >= total {
			break
		}
	}
	return evaluated, nil
}
