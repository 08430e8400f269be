package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/decivue/decivue/internal/model"
)

const assumptionColumns = `id, description, status, scope, category, params, created_at, updated_at`

// CreateAssumption inserts an assumption and, when decisionIDs is non-empty,
// its decision links in the same transaction.
func (db *DB) CreateAssumption(ctx context.Context, a model.Assumption, decisionIDs []uuid.UUID) (model.Assumption, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Assumption{}, fmt.Errorf("storage: begin create assumption tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO assumptions (id, description, status, scope, category, params, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Description, a.Status, a.Scope, a.Category, a.Params, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return model.Assumption{}, fmt.Errorf("storage: create assumption: %w", err)
	}

	for _, did := range decisionIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO decision_assumptions (decision_id, assumption_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, did, a.ID); err != nil {
			return model.Assumption{}, fmt.Errorf("storage: link assumption to decision %s: %w", did, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Assumption{}, fmt.Errorf("storage: commit create assumption: %w", err)
	}
	a.LinkedDecisions = decisionIDs
	return a, nil
}

// GetAssumption retrieves an assumption by ID with its linked decision ids.
func (db *DB) GetAssumption(ctx context.Context, id uuid.UUID) (model.Assumption, error) {
	var a model.Assumption
	err := db.pool.QueryRow(ctx,
		`SELECT `+assumptionColumns+` FROM assumptions WHERE id = $1`, id,
	).Scan(&a.ID, &a.Description, &a.Status, &a.Scope, &a.Category, &a.Params, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Assumption{}, fmt.Errorf("%w: %s", ErrAssumptionNotFound, id)
		}
		return model.Assumption{}, fmt.Errorf("storage: get assumption: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT decision_id FROM decision_assumptions WHERE assumption_id = $1`, id)
	if err != nil {
		return model.Assumption{}, fmt.Errorf("storage: get assumption links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var did uuid.UUID
		if err := rows.Scan(&did); err != nil {
			return model.Assumption{}, fmt.Errorf("storage: scan assumption link: %w", err)
		}
		a.LinkedDecisions = append(a.LinkedDecisions, did)
	}
	return a, rows.Err()
}

// AssumptionFilters holds optional filters for assumption list queries.
type AssumptionFilters struct {
	Status   *model.AssumptionStatus
	Scope    *model.AssumptionScope
	Category *model.AssumptionCategory
}

// ListAssumptions returns assumptions matching the filters with pagination.
func (db *DB) ListAssumptions(ctx context.Context, filters AssumptionFilters, limit, offset int) ([]model.Assumption, int, error) {
	var conditions []string
	var args []any
	idx := 1
	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", idx))
		args = append(args, *filters.Status)
		idx++
	}
	if filters.Scope != nil {
		conditions = append(conditions, fmt.Sprintf("scope = $%d", idx))
		args = append(args, *filters.Scope)
		idx++
	}
	if filters.Category != nil {
		conditions = append(conditions, fmt.Sprintf("category = $%d", idx))
		args = append(args, *filters.Category)
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM assumptions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count assumptions: %w", err)
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
		`SELECT `+assumptionColumns+` FROM assumptions%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		where, limit, offset,
	)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list assumptions: %w", err)
	}
	defer rows.Close()

	assumptions, err := scanAssumptions(rows)
	if err != nil {
		return nil, 0, err
	}
	return assumptions, total, nil
}

// ListAssumptionsByCategory returns all assumptions in a category except
// the one being compared. Used by the conflict detector.
func (db *DB) ListAssumptionsByCategory(ctx context.Context, category model.AssumptionCategory, exclude uuid.UUID) ([]model.Assumption, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+assumptionColumns+` FROM assumptions WHERE category = $1 AND id <> $2`,
		category, exclude)
	if err != nil {
		return nil, fmt.Errorf("storage: list assumptions by category: %w", err)
	}
	defer rows.Close()
	return scanAssumptions(rows)
}

// UpdateAssumptionStatus transitions an assumption's validity state.
func (db *DB) UpdateAssumptionStatus(ctx context.Context, id uuid.UUID, status model.AssumptionStatus) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE assumptions SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("storage: update assumption status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAssumptionNotFound, id)
	}
	return nil
}

// DeleteAssumption removes an assumption, its links, and conflicts that
// reference it.
func (db *DB) DeleteAssumption(ctx context.Context, id uuid.UUID) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin delete assumption tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO deletion_audit_log (table_name, record_id, record_data)
		 SELECT 'assumptions', a.id::text, to_jsonb(a) FROM assumptions a WHERE a.id = $1`, id); err != nil {
		return fmt.Errorf("storage: archive assumption: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM decision_assumptions WHERE assumption_id = $1`, id); err != nil {
		return fmt.Errorf("storage: delete assumption links: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM assumption_conflicts WHERE assumption_a_id = $1 OR assumption_b_id = $1`, id); err != nil {
		return fmt.Errorf("storage: delete assumption conflicts: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM assumptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete assumption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAssumptionNotFound, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit delete assumption: %w", err)
	}
	return nil
}

// LinkAssumption links an assumption to a decision. Idempotent.
func (db *DB) LinkAssumption(ctx context.Context, decisionID, assumptionID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO decision_assumptions (decision_id, assumption_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, decisionID, assumptionID)
	if err != nil {
		return fmt.Errorf("storage: link assumption: %w", err)
	}
	return nil
}

// UnlinkAssumption removes the link between a decision and an assumption.
func (db *DB) UnlinkAssumption(ctx context.Context, decisionID, assumptionID uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM decision_assumptions WHERE decision_id = $1 AND assumption_id = $2`,
		decisionID, assumptionID)
	if err != nil {
		return fmt.Errorf("storage: unlink assumption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: link %s -> %s", ErrNotFound, decisionID, assumptionID)
	}
	return nil
}

// GetAssumptionsByDecision returns all assumptions linked to a decision.
func (db *DB) GetAssumptionsByDecision(ctx context.Context, decisionID uuid.UUID) ([]model.Assumption, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT a.id, a.description, a.status, a.scope, a.category, a.params, a.created_at, a.updated_at
		 FROM assumptions a
		 JOIN decision_assumptions da ON da.assumption_id = a.id
		 WHERE da.decision_id = $1
		 ORDER BY a.created_at`, decisionID)
	if err != nil {
		return nil, fmt.Errorf("storage: get assumptions by decision: %w", err)
	}
	defer rows.Close()
	return scanAssumptions(rows)
}

func scanAssumptions(rows pgx.Rows) ([]model.Assumption, error) {
	var assumptions []model.Assumption
	for rows.Next() {
		var a model.Assumption
		if err := rows.Scan(
			&a.ID, &a.Description, &a.Status, &a.Scope, &a.Category, &a.Params, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan assumption: %w", err)
		}
		assumptions = append(assumptions, a)
	}
	return assumptions, rows.Err()
}
