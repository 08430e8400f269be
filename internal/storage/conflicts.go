package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/decivue/decivue/internal/model"
)

const assumptionConflictColumns = `id, assumption_a_id, assumption_b_id, conflict_type, confidence,
	explanation, status, resolved_by, winner_id, resolution_notes, resolved_at, detected_at`

const decisionConflictColumns = `id, decision_a_id, decision_b_id, conflict_type, confidence,
	explanation, status, resolved_by, winner_id, resolution_notes, resolved_at, detected_at`

// canonicalPair orders two ids so the same pair always maps to the same
// (a, b) columns regardless of detection order.
func canonicalPair(x, y uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(x[:], y[:]) > 0 {
		return y, x
	}
	return x, y
}

// UpsertAssumptionConflict records a detected conflict between two
// assumptions. Re-detection of an existing open pair refreshes the type,
// confidence, and explanation in place; resolved conflicts are left alone.
func (db *DB) UpsertAssumptionConflict(ctx context.Context, c model.AssumptionConflict) (model.AssumptionConflict, error) {
	c.AssumptionAID, c.AssumptionBID = canonicalPair(c.AssumptionAID, c.AssumptionBID)
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = model.ConflictOpen
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = time.Now().UTC()
	}

	err := db.pool.QueryRow(ctx,
		`INSERT INTO assumption_conflicts
			(id, assumption_a_id, assumption_b_id, conflict_type, confidence, explanation, status, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (assumption_a_id, assumption_b_id) DO UPDATE SET
			conflict_type = EXCLUDED.conflict_type,
			confidence = EXCLUDED.confidence,
			explanation = EXCLUDED.explanation,
			detected_at = EXCLUDED.detected_at
		 WHERE assumption_conflicts.status = 'open'
		 RETURNING `+assumptionConflictColumns,
		c.ID, c.AssumptionAID, c.AssumptionBID, c.ConflictType, c.Confidence, c.Explanation, c.Status, c.DetectedAt,
	).Scan(
		&c.ID, &c.AssumptionAID, &c.AssumptionBID, &c.ConflictType, &c.Confidence,
		&c.Explanation, &c.Status, &c.ResolvedBy, &c.WinnerID, &c.ResolutionNotes, &c.ResolvedAt, &c.DetectedAt,
	)
	if err != nil {
		// The conditional upsert returns no row when the pair exists but is
		// already resolved. Return the stored record instead.
		if errors.Is(err, pgx.ErrNoRows) {
			return db.getAssumptionConflictByPair(ctx, c.AssumptionAID, c.AssumptionBID)
		}
		return model.AssumptionConflict{}, fmt.Errorf("storage: upsert assumption conflict: %w", err)
	}
	return c, nil
}

func (db *DB) getAssumptionConflictByPair(ctx context.Context, a, b uuid.UUID) (model.AssumptionConflict, error) {
	var c model.AssumptionConflict
	err := db.pool.QueryRow(ctx,
		`SELECT `+assumptionConflictColumns+` FROM assumption_conflicts
		 WHERE assumption_a_id = $1 AND assumption_b_id = $2`, a, b,
	).Scan(
		&c.ID, &c.AssumptionAID, &c.AssumptionBID, &c.ConflictType, &c.Confidence,
		&c.Explanation, &c.Status, &c.ResolvedBy, &c.WinnerID, &c.ResolutionNotes, &c.ResolvedAt, &c.DetectedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AssumptionConflict{}, fmt.Errorf("%w: assumption conflict %s/%s", ErrConflictNotFound, a, b)
		}
		return model.AssumptionConflict{}, fmt.Errorf("storage: get assumption conflict by pair: %w", err)
	}
	return c, nil
}

// GetAssumptionConflict retrieves an assumption conflict by ID.
func (db *DB) GetAssumptionConflict(ctx context.Context, id uuid.UUID) (model.AssumptionConflict, error) {
	var c model.AssumptionConflict
	err := db.pool.QueryRow(ctx,
		`SELECT `+assumptionConflictColumns+` FROM assumption_conflicts WHERE id = $1`, id,
	).Scan(
		&c.ID, &c.AssumptionAID, &c.AssumptionBID, &c.ConflictType, &c.Confidence,
		&c.Explanation, &c.Status, &c.ResolvedBy, &c.WinnerID, &c.ResolutionNotes, &c.ResolvedAt, &c.DetectedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AssumptionConflict{}, fmt.Errorf("%w: %s", ErrConflictNotFound, id)
		}
		return model.AssumptionConflict{}, fmt.Errorf("storage: get assumption conflict: %w", err)
	}
	return c, nil
}

// ListAssumptionConflicts returns assumption conflicts, optionally filtered
// by status, newest first.
func (db *DB) ListAssumptionConflicts(ctx context.Context, status *model.ConflictStatus, limit, offset int) ([]model.AssumptionConflict, int, error) {
	where := ""
	var args []any
	if status != nil {
		where = " WHERE status = $1"
		args = append(args, *status)
	}

	var total int
	if err := db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM assumption_conflicts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count assumption conflicts: %w", err)
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

	query := fmt.Sprintf(
		`SELECT `+assumptionConflictColumns+` FROM assumption_conflicts%s
		 ORDER BY detected_at DESC LIMIT %d OFFSET %d`, where, limit, offset)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list assumption conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []model.AssumptionConflict
	for rows.Next() {
		var c model.AssumptionConflict
		if err := rows.Scan(
			&c.ID, &c.AssumptionAID, &c.AssumptionBID, &c.ConflictType, &c.Confidence,
			&c.Explanation, &c.Status, &c.ResolvedBy, &c.WinnerID, &c.ResolutionNotes, &c.ResolvedAt, &c.DetectedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("storage: scan assumption conflict: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, total, rows.Err()
}

// ResolveAssumptionConflict marks an open assumption conflict resolved,
// recording who resolved it, the optional winner, and notes.
func (db *DB) ResolveAssumptionConflict(ctx context.Context, id uuid.UUID, resolvedBy string, winnerID *uuid.UUID, notes *string) (model.AssumptionConflict, error) {
	var c model.AssumptionConflict
	err := db.pool.QueryRow(ctx,
		`UPDATE assumption_conflicts SET
			status = 'resolved',
			resolved_by = $2,
			winner_id = $3,
			resolution_notes = $4,
			resolved_at = now()
		 WHERE id = $1 AND status = 'open'
		 RETURNING `+assumptionConflictColumns,
		id, resolvedBy, winnerID, notes,
	).Scan(
		&c.ID, &c.AssumptionAID, &c.AssumptionBID, &c.ConflictType, &c.Confidence,
		&c.Explanation, &c.Status, &c.ResolvedBy, &c.WinnerID, &c.ResolutionNotes, &c.ResolvedAt, &c.DetectedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AssumptionConflict{}, fmt.Errorf("%w: open assumption conflict %s", ErrConflictNotFound, id)
		}
		return model.AssumptionConflict{}, fmt.Errorf("storage: resolve assumption conflict: %w", err)
	}
	return c, nil
}

// CreateDecisionConflict records a manually declared conflict between two
// decisions. Pairs are canonically ordered like assumption conflicts.
func (db *DB) CreateDecisionConflict(ctx context.Context, c model.DecisionConflict) (model.DecisionConflict, error) {
	c.DecisionAID, c.DecisionBID = canonicalPair(c.DecisionAID, c.DecisionBID)
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = model.ConflictOpen
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = time.Now().UTC()
	}

	err := db.pool.QueryRow(ctx,
		`INSERT INTO decision_conflicts
			(id, decision_a_id, decision_b_id, conflict_type, confidence, explanation, status, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (decision_a_id, decision_b_id) DO UPDATE SET
			conflict_type = EXCLUDED.conflict_type,
			confidence = EXCLUDED.confidence,
			explanation = EXCLUDED.explanation,
			detected_at = EXCLUDED.detected_at
		 WHERE decision_conflicts.status = 'open'
		 RETURNING `+decisionConflictColumns,
		c.ID, c.DecisionAID, c.DecisionBID, c.ConflictType, c.Confidence, c.Explanation, c.Status, c.DetectedAt,
	).Scan(
		&c.ID, &c.DecisionAID, &c.DecisionBID, &c.ConflictType, &c.Confidence,
		&c.Explanation, &c.Status, &c.ResolvedBy, &c.WinnerID, &c.ResolutionNotes, &c.ResolvedAt, &c.DetectedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DecisionConflict{}, fmt.Errorf("%w: decision conflict %s/%s already resolved", ErrConflictNotFound, c.DecisionAID, c.DecisionBID)
		}
		return model.DecisionConflict{}, fmt.Errorf("storage: create decision conflict: %w", err)
	}
	return c, nil
}

// GetDecisionConflict retrieves a decision conflict by ID.
func (db *DB) GetDecisionConflict(ctx context.Context, id uuid.UUID) (model.DecisionConflict, error) {
	var c model.DecisionConflict
	err := db.pool.QueryRow(ctx,
		`SELECT `+decisionConflictColumns+` FROM decision_conflicts WHERE id = $1`, id,
	).Scan(
		&c.ID, &c.DecisionAID, &c.DecisionBID, &c.ConflictType, &c.Confidence,
		&c.Explanation, &c.Status, &c.ResolvedBy, &c.WinnerID, &c.ResolutionNotes, &c.ResolvedAt, &c.DetectedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DecisionConflict{}, fmt.Errorf("%w: %s", ErrConflictNotFound, id)
		}
		return model.DecisionConflict{}, fmt.Errorf("storage: get decision conflict: %w", err)
	}
	return c, nil
}

// ListDecisionConflicts returns decision conflicts, optionally filtered by
// status, newest first.
func (db *DB) ListDecisionConflicts(ctx context.Context, status *model.ConflictStatus, limit, offset int) ([]model.DecisionConflict, int, error) {
	where := ""
	var args []any
	if status != nil {
		where = " WHERE status = $1"
		args = append(args, *status)
	}

	var total int
	if err := db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM decision_conflicts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count decision conflicts: %w", err)
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

	query := fmt.Sprintf(
		`SELECT `+decisionConflictColumns+` FROM decision_conflicts%s
		 ORDER BY detected_at DESC LIMIT %d OFFSET %d`, where, limit, offset)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list decision conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []model.DecisionConflict
	for rows.Next() {
		var c model.DecisionConflict
		if err := rows.Scan(
			&c.ID, &c.DecisionAID, &c.DecisionBID, &c.ConflictType, &c.Confidence,
			&c.Explanation, &c.Status, &c.ResolvedBy, &c.WinnerID, &c.ResolutionNotes, &c.ResolvedAt, &c.DetectedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("storage: scan decision conflict: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, total, rows.Err()
}

// ResolveDecisionConflict marks an open decision conflict resolved.
func (db *DB) ResolveDecisionConflict(ctx context.Context, id uuid.UUID, resolvedBy string, winnerID *uuid.UUID, notes *string) (model.DecisionConflict, error) {
	var c model.DecisionConflict
	err := db.pool.QueryRow(ctx,
		`UPDATE decision_conflicts SET
			status = 'resolved',
			resolved_by = $2,
			winner_id = $3,
			resolution_notes = $4,
			resolved_at = now()
		 WHERE id = $1 AND status = 'open'
		 RETURNING `+decisionConflictColumns,
		id, resolvedBy, winnerID, notes,
	).Scan(
		&c.ID, &c.DecisionAID, &c.DecisionBID, &c.ConflictType, &c.Confidence,
		&c.Explanation, &c.Status, &c.ResolvedBy, &c.WinnerID, &c.ResolutionNotes, &c.ResolvedAt, &c.DetectedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DecisionConflict{}, fmt.Errorf("%w: open decision conflict %s", ErrConflictNotFound, id)
		}
		return model.DecisionConflict{}, fmt.Errorf("storage: resolve decision conflict: %w", err)
	}
	return c, nil
}

// CountUnresolvedConflictsForDecision counts open conflicts that touch a
// decision: decision conflicts naming it directly plus assumption conflicts
// where either side is linked to it.
func (db *DB) CountUnresolvedConflictsForDecision(ctx context.Context, decisionID uuid.UUID) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM decision_conflicts
			 WHERE status = 'open' AND (decision_a_id = $1 OR decision_b_id = $1))
			+
			(SELECT COUNT(*) FROM assumption_conflicts ac
			 WHERE ac.status = 'open' AND EXISTS (
				SELECT 1 FROM decision_assumptions da
				WHERE da.decision_id = $1
				  AND da.assumption_id IN (ac.assumption_a_id, ac.assumption_b_id)
			 ))
	`, decisionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("storage: count unresolved conflicts: %w", err)
	}
	return count, nil
}
