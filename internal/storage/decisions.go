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

// CreateDecision inserts a decision and returns it. New decisions start
// STABLE with a full health signal.
func (db *DB) CreateDecision(ctx context.Context, d model.Decision) (model.Decision, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = d.CreatedAt
	if d.Lifecycle == "" {
		d.Lifecycle = model.LifecycleStable
	}
	if d.HealthSignal == 0 && d.Lifecycle == model.LifecycleStable {
		d.HealthSignal = 100
	}
	if d.Tier == "" {
		d.Tier = model.TierStandard
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO decisions (id, title, description, lifecycle, health_signal,
		 invalidated_reason, expiry_date, locked, tier, requires_second_reviewer,
		 last_reviewed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		d.ID, d.Title, d.Description, d.Lifecycle, d.HealthSignal,
		d.InvalidatedReason, d.ExpiryDate, d.Locked, d.Tier, d.RequiresSecondReviewer,
		d.LastReviewedAt, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return model.Decision{}, fmt.Errorf("storage: create decision: %w", err)
	}
	return d, nil
}

const decisionColumns = `id, title, description, lifecycle, health_signal,
	 invalidated_reason, expiry_date, locked, tier, requires_second_reviewer,
	 last_reviewed_at, created_at, updated_at`

// GetDecision retrieves a decision by ID, optionally with linked assumptions
// and constraints.
func (db *DB) GetDecision(ctx context.Context, id uuid.UUID, includeAssumptions, includeConstraints bool) (model.Decision, error) {
	var d model.Decision
	err := db.pool.QueryRow(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE id = $1`, id,
	).Scan(
		&d.ID, &d.Title, &d.Description, &d.Lifecycle, &d.HealthSignal,
		&d.InvalidatedReason, &d.ExpiryDate, &d.Locked, &d.Tier, &d.RequiresSecondReviewer,
		&d.LastReviewedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Decision{}, fmt.Errorf("%w: %s", ErrDecisionNotFound, id)
		}
		return model.Decision{}, fmt.Errorf("storage: get decision: %w", err)
	}

	if includeAssumptions {
		assumptions, err := db.GetAssumptionsByDecision(ctx, id)
		if err != nil {
			return model.Decision{}, err
		}
		d.Assumptions = assumptions
	}

	if includeConstraints {
		constraints, err := db.GetConstraintsByDecision(ctx, id)
		if err != nil {
			return model.Decision{}, err
		}
		d.Constraints = constraints
	}

	return d, nil
}

// ListDecisions returns decisions matching the filters with pagination.
func (db *DB) ListDecisions(ctx context.Context, filters model.DecisionFilters, orderBy, orderDir string, limit, offset int) ([]model.Decision, int, error) {
	where, args := buildDecisionWhereClause(filters, 1)

	countQuery := "SELECT COUNT(*) FROM decisions" + where
	var total int
	if err := db.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count decisions: %w", err)
	}

	// Whitelisted order column; anything else falls back to created_at.
	switch orderBy {
	case "created_at", "updated_at", "health_signal", "title", "lifecycle", "expiry_date":
	default:
		orderBy = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(orderDir, "asc") {
		dir = "ASC"
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
		`SELECT `+decisionColumns+` FROM decisions%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		where, orderBy, dir, limit, offset,
	)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list decisions: %w", err)
	}
	defer rows.Close()

	decisions, err := scanDecisions(rows)
	if err != nil {
		return nil, 0, err
	}
	return decisions, total, nil
}

// DecisionUpdate holds the mutable fields for UpdateDecision.
// Nil fields are left unchanged.
type DecisionUpdate struct {
	Title       *string
	Description *string
	Lifecycle   *model.Lifecycle
	ExpiryDate  *time.Time
}

// UpdateDecision applies a partial update. Locked decisions reject edits
// (ErrLocked); retired decisions are terminal (ErrRetired).
func (db *DB) UpdateDecision(ctx context.Context, id uuid.UUID, upd DecisionUpdate) (model.Decision, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Decision{}, fmt.Errorf("storage: begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked bool
	var lifecycle model.Lifecycle
	err = tx.QueryRow(ctx,
		`SELECT locked, lifecycle FROM decisions WHERE id = $1 FOR UPDATE`, id,
	).Scan(&locked, &lifecycle)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Decision{}, fmt.Errorf("%w: %s", ErrDecisionNotFound, id)
		}
		return model.Decision{}, fmt.Errorf("storage: lock decision row: %w", err)
	}
	if locked {
		return model.Decision{}, fmt.Errorf("%w: %s", ErrLocked, id)
	}
	if lifecycle == model.LifecycleRetired {
		return model.Decision{}, fmt.Errorf("%w: %s", ErrRetired, id)
	}

	var sets []string
	var args []any
	idx := 1
	if upd.Title != nil {
		sets = append(sets, fmt.Sprintf("title = $%d", idx))
		args = append(args, *upd.Title)
		idx++
	}
	if upd.Description != nil {
		sets = append(sets, fmt.Sprintf("description = $%d", idx))
		args = append(args, *upd.Description)
		idx++
	}
	if upd.Lifecycle != nil {
		sets = append(sets, fmt.Sprintf("lifecycle = $%d", idx))
		args = append(args, *upd.Lifecycle)
		idx++
	}
	if upd.ExpiryDate != nil {
		sets = append(sets, fmt.Sprintf("expiry_date = $%d", idx))
		args = append(args, *upd.ExpiryDate)
		idx++
	}

	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`UPDATE decisions SET %s WHERE id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return model.Decision{}, fmt.Errorf("storage: update decision: %w", err)
		}
	}

	var d model.Decision
	err = tx.QueryRow(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE id = $1`, id,
	).Scan(
		&d.ID, &d.Title, &d.Description, &d.Lifecycle, &d.HealthSignal,
		&d.InvalidatedReason, &d.ExpiryDate, &d.Locked, &d.Tier, &d.RequiresSecondReviewer,
		&d.LastReviewedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return model.Decision{}, fmt.Errorf("storage: reload decision: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Decision{}, fmt.Errorf("storage: commit update: %w", err)
	}
	return d, nil
}

// SetDecisionLock sets or clears the governance lock flag. Lock changes are
// allowed regardless of current lock state (admins flip the flag).
func (db *DB) SetDecisionLock(ctx context.Context, id uuid.UUID, locked bool) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE decisions SET locked = $1, updated_at = now() WHERE id = $2`, locked, id)
	if err != nil {
		return fmt.Errorf("storage: set decision lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrDecisionNotFound, id)
	}
	return nil
}

// MarkReviewed stamps last_reviewed_at. This is the explicit human review
// action; the evaluator never touches this column. Locked decisions reject
// review (the reviewer must unlock first).
func (db *DB) MarkReviewed(ctx context.Context, id uuid.UUID, reviewedAt time.Time) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin review tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Row lock so a concurrent SetDecisionLock cannot land between the
	// check and the stamp.
	var locked bool
	err = tx.QueryRow(ctx, `SELECT locked FROM decisions WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrDecisionNotFound, id)
		}
		return fmt.Errorf("storage: lock decision row: %w", err)
	}
	if locked {
		return fmt.Errorf("%w: %s", ErrLocked, id)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE decisions SET last_reviewed_at = $1, updated_at = now() WHERE id = $2`,
		reviewedAt.UTC(), id); err != nil {
		return fmt.Errorf("storage: mark reviewed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit review: %w", err)
	}
	return nil
}

// DeleteDecisionResult contains the count of rows deleted per table.
type DeleteDecisionResult struct {
	Links               int64 `json:"links"`
	OrphanedAssumptions int64 `json:"orphaned_assumptions"`
	Violations          int64 `json:"violations"`
	Conflicts           int64 `json:"conflicts"`
	History             int64 `json:"history"`
	Decisions           int64 `json:"decisions"`
}

// DeleteDecision removes a decision and its dependent rows in one transaction.
// Assumptions exclusively linked to this decision (link count reaches zero)
// are swept; assumptions shared with other decisions are preserved. Deleted
// rows are archived to deletion_audit_log first.
func (db *DB) DeleteDecision(ctx context.Context, id uuid.UUID) (DeleteDecisionResult, error) {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return DeleteDecisionResult{}, fmt.Errorf("storage: begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var result DeleteDecisionResult

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM decisions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return DeleteDecisionResult{}, fmt.Errorf("storage: check decision exists: %w", err)
	}
	if !exists {
		return DeleteDecisionResult{}, fmt.Errorf("%w: %s", ErrDecisionNotFound, id)
	}

	// 1. Collect assumptions whose only link is this decision. They get
	// swept after the links go away.
	rows, err := tx.Query(ctx,
		`SELECT da.assumption_id FROM decision_assumptions da
		 WHERE da.decision_id = $1
		   AND NOT EXISTS (
		       SELECT 1 FROM decision_assumptions other
		       WHERE other.assumption_id = da.assumption_id AND other.decision_id <> $1
		   )`, id)
	if err != nil {
		return DeleteDecisionResult{}, fmt.Errorf("storage: find exclusive assumptions: %w", err)
	}
	var orphans []uuid.UUID
	for rows.Next() {
		var aid uuid.UUID
		if err := rows.Scan(&aid); err != nil {
			rows.Close()
			return DeleteDecisionResult{}, fmt.Errorf("storage: scan exclusive assumption: %w", err)
		}
		orphans = append(orphans, aid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return DeleteDecisionResult{}, fmt.Errorf("storage: iterate exclusive assumptions: %w", err)
	}

	// 2. Delete assumption and constraint links.
	tag, err := tx.Exec(ctx, `DELETE FROM decision_assumptions WHERE decision_id = $1`, id)
	if err != nil {
		return DeleteDecisionResult{}, fmt.Errorf("storage: delete assumption links: %w", err)
	}
	result.Links = tag.RowsAffected()

	if _, err := tx.Exec(ctx, `DELETE FROM decision_constraints WHERE decision_id = $1`, id); err != nil {
		return DeleteDecisionResult{}, fmt.Errorf("storage: delete constraint links: %w", err)
	}

	// 3. Sweep exclusively-linked assumptions, archiving first. Conflicts
	// referencing them go too.
	if len(orphans) > 0 {
		if _, err := tx.Exec(ctx,
			`INSERT INTO deletion_audit_log (table_name, record_id, record_data)
			 SELECT 'assumptions', a.id::text, to_jsonb(a)
			 FROM assumptions a WHERE a.id = ANY($1)`, orphans); err != nil {
			return DeleteDecisionResult{}, fmt.Errorf("storage: archive orphaned assumptions: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM assumption_conflicts WHERE assumption_a_id = ANY($1) OR assumption_b_id = ANY($1)`,
			orphans); err != nil {
			return DeleteDecisionResult{}, fmt.Errorf("storage: delete orphan assumption conflicts: %w", err)
		}
		tag, err = tx.Exec(ctx, `DELETE FROM assumptions WHERE id = ANY($1)`, orphans)
		if err != nil {
			return DeleteDecisionResult{}, fmt.Errorf("storage: delete orphaned assumptions: %w", err)
		}
		result.OrphanedAssumptions = tag.RowsAffected()
	}

	// 4. Delete violations, decision conflicts, and evaluation history.
	tag, err = tx.Exec(ctx, `DELETE FROM constraint_violations WHERE decision_id = $1`, id)
	if err != nil {
		return DeleteDecisionResult{}, fmt.Errorf("storage: delete violations: %w", err)
	}
	result.Violations = tag.RowsAffected()

	tag, err = tx.Exec(ctx,
		`DELETE FROM decision_conflicts WHERE decision_a_id = $1 OR decision_b_id = $1`, id)
	if err != nil {
		return DeleteDecisionResult{}, fmt.Errorf("storage: delete decision conflicts: %w", err)
	}
	result.Conflicts = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM evaluation_history WHERE decision_id = $1`, id)
	if err != nil {
		return DeleteDecisionResult{}, fmt.Errorf("storage: delete evaluation history: %w", err)
	}
	result.History = tag.RowsAffected()

	if _, err := tx.Exec(ctx, `DELETE FROM decision_versions WHERE decision_id = $1`, id); err != nil {
		return DeleteDecisionResult{}, fmt.Errorf("storage: delete decision versions: %w", err)
	}

	// 5. Archive and delete the decision itself.
	if _, err := tx.Exec(ctx,
		`INSERT INTO deletion_audit_log (table_name, record_id, record_data)
		 SELECT 'decisions', d.id::text, to_jsonb(d)
		 FROM decisions d WHERE d.id = $1`, id); err != nil {
		return DeleteDecisionResult{}, fmt.Errorf("storage: archive decision: %w", err)
	}

	tag, err = tx.Exec(ctx, `DELETE FROM decisions WHERE id = $1`, id)
	if err != nil {
		return DeleteDecisionResult{}, fmt.Errorf("storage: delete decision: %w", err)
	}
	result.Decisions = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return DeleteDecisionResult{}, fmt.Errorf("storage: commit delete tx: %w", err)
	}
	return result, nil
}

func buildDecisionWhereClause(f model.DecisionFilters, startArgIdx int) (string, []any) {
	var conditions []string
	var args []any
	idx := startArgIdx

	if f.Lifecycle != nil {
		conditions = append(conditions, fmt.Sprintf("lifecycle = $%d", idx))
		args = append(args, *f.Lifecycle)
		idx++
	}
	if f.Tier != nil {
		conditions = append(conditions, fmt.Sprintf("tier = $%d", idx))
		args = append(args, *f.Tier)
		idx++
	}
	if f.HealthMax != nil {
		conditions = append(conditions, fmt.Sprintf("health_signal <= $%d", idx))
		args = append(args, *f.HealthMax)
		idx++
	}
	if f.Locked != nil {
		conditions = append(conditions, fmt.Sprintf("locked = $%d", idx))
		args = append(args, *f.Locked)
		idx++
	}
	if f.ExpiringBy != nil {
		conditions = append(conditions, fmt.Sprintf("expiry_date IS NOT NULL AND expiry_date <= $%d", idx))
		args = append(args, *f.ExpiringBy)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanDecisions(rows pgx.Rows) ([]model.Decision, error) {
	var decisions []model.Decision
	for rows.Next() {
		var d model.Decision
		if err := rows.Scan(
			&d.ID, &d.Title, &d.Description, &d.Lifecycle, &d.HealthSignal,
			&d.InvalidatedReason, &d.ExpiryDate, &d.Locked, &d.Tier, &d.RequiresSecondReviewer,
			&d.LastReviewedAt, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
