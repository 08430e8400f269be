package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/decivue/decivue/internal/model"
)

// EvaluationOutcome is the computed result an evaluation wants to persist.
type EvaluationOutcome struct {
	DecisionID        uuid.UUID
	NewHealth         int
	NewLifecycle      model.Lifecycle
	InvalidatedReason *string
	RuleFired         model.EvaluationRule
	Explanation       string
}

// ApplyEvaluation persists an evaluation outcome atomically: it appends an
// evaluation_history row, and updates the decision row only when the health
// or lifecycle actually changed, so repeated evaluations with unchanged
// inputs leave the decision untouched. last_reviewed_at is never modified
// here. Returns the recorded history row.
func (db *DB) ApplyEvaluation(ctx context.Context, out EvaluationOutcome) (model.EvaluationHistory, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.EvaluationHistory{}, fmt.Errorf("storage: begin evaluation tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		oldHealth    int
		oldLifecycle model.Lifecycle
		locked       bool
	)
	err = tx.QueryRow(ctx,
		`SELECT health_signal, lifecycle, locked FROM decisions WHERE id = $1 FOR UPDATE`,
		out.DecisionID,
	).Scan(&oldHealth, &oldLifecycle, &locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.EvaluationHistory{}, fmt.Errorf("%w: %s", ErrDecisionNotFound, out.DecisionID)
		}
		return model.EvaluationHistory{}, fmt.Errorf("storage: load decision for evaluation: %w", err)
	}

	changed := oldHealth != out.NewHealth || oldLifecycle != out.NewLifecycle
	if changed {
		if _, err := tx.Exec(ctx,
			`UPDATE decisions SET
				health_signal = $2,
				lifecycle = $3,
				invalidated_reason = $4,
				updated_at = now()
			 WHERE id = $1`,
			out.DecisionID, out.NewHealth, out.NewLifecycle, out.InvalidatedReason,
		); err != nil {
			return model.EvaluationHistory{}, fmt.Errorf("storage: apply evaluation update: %w", err)
		}
		if _, err := tx.Exec(ctx, `SELECT record_decision_version($1, $2)`,
			out.DecisionID, "evaluation"); err != nil {
			return model.EvaluationHistory{}, fmt.Errorf("storage: record decision version: %w", err)
		}
	}

	h := model.EvaluationHistory{
		ID:                 uuid.New(),
		DecisionID:         out.DecisionID,
		OldHealth:          oldHealth,
		NewHealth:          out.NewHealth,
		OldLifecycle:       oldLifecycle,
		NewLifecycle:       out.NewLifecycle,
		RuleFired:          out.RuleFired,
		Explanation:        out.Explanation,
		LockedAtEvaluation: locked,
		EvaluatedAt:        time.Now().UTC(),
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO evaluation_history
			(id, decision_id, old_health, new_health, old_lifecycle, new_lifecycle,
			 rule_fired, explanation, locked_at_evaluation, evaluated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		h.ID, h.DecisionID, h.OldHealth, h.NewHealth, h.OldLifecycle, h.NewLifecycle,
		h.RuleFired, h.Explanation, h.LockedAtEvaluation, h.EvaluatedAt,
	); err != nil {
		return model.EvaluationHistory{}, fmt.Errorf("storage: insert evaluation history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.EvaluationHistory{}, fmt.Errorf("storage: commit evaluation: %w", err)
	}
	return h, nil
}

// GetEvaluationHistory returns a decision's evaluation records, newest first.
func (db *DB) GetEvaluationHistory(ctx context.Context, decisionID uuid.UUID, limit, offset int) ([]model.EvaluationHistory, int, error) {
	var total int
	if err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM evaluation_history WHERE decision_id = $1`, decisionID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count evaluation history: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, decision_id, old_health, new_health, old_lifecycle, new_lifecycle,
			rule_fired, explanation, locked_at_evaluation, evaluated_at
		 FROM evaluation_history WHERE decision_id = $1
		 ORDER BY evaluated_at DESC LIMIT %d OFFSET %d`, limit, offset), decisionID)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: get evaluation history: %w", err)
	}
	defer rows.Close()

	var history []model.EvaluationHistory
	for rows.Next() {
		var h model.EvaluationHistory
		if err := rows.Scan(
			&h.ID, &h.DecisionID, &h.OldHealth, &h.NewHealth, &h.OldLifecycle, &h.NewLifecycle,
			&h.RuleFired, &h.Explanation, &h.LockedAtEvaluation, &h.EvaluatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("storage: scan evaluation history: %w", err)
		}
		history = append(history, h)
	}
	return history, total, rows.Err()
}
