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

const constraintColumns = `id, name, rule, type, immutable, created_at, updated_at`

// CreateConstraint inserts a constraint and, when decisionIDs is non-empty,
// its decision links in the same transaction.
func (db *DB) CreateConstraint(ctx context.Context, c model.Constraint, decisionIDs []uuid.UUID) (model.Constraint, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Constraint{}, fmt.Errorf("storage: begin create constraint tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO constraints (id, name, rule, type, immutable, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Name, c.Rule, c.Type, c.Immutable, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return model.Constraint{}, fmt.Errorf("storage: create constraint: %w", err)
	}

	for _, did := range decisionIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO decision_constraints (decision_id, constraint_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, did, c.ID); err != nil {
			return model.Constraint{}, fmt.Errorf("storage: link constraint to decision %s: %w", did, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Constraint{}, fmt.Errorf("storage: commit create constraint: %w", err)
	}
	return c, nil
}

// GetConstraint retrieves a constraint by ID.
func (db *DB) GetConstraint(ctx context.Context, id uuid.UUID) (model.Constraint, error) {
	var c model.Constraint
	err := db.pool.QueryRow(ctx,
		`SELECT `+constraintColumns+` FROM constraints WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Rule, &c.Type, &c.Immutable, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Constraint{}, fmt.Errorf("%w: %s", ErrConstraintNotFound, id)
		}
		return model.Constraint{}, fmt.Errorf("storage: get constraint: %w", err)
	}
	return c, nil
}

// ListConstraints returns constraints, optionally filtered by type.
func (db *DB) ListConstraints(ctx context.Context, typ *model.ConstraintType, limit, offset int) ([]model.Constraint, int, error) {
	where := ""
	var args []any
	if typ != nil {
		where = " WHERE type = $1"
		args = append(args, *typ)
	}

	var total int
	if err := db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM constraints"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count constraints: %w", err)
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
		`SELECT `+constraintColumns+` FROM constraints%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		where, limit, offset,
	)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list constraints: %w", err)
	}
	defer rows.Close()

	var constraints []model.Constraint
	for rows.Next() {
		var c model.Constraint
		if err := rows.Scan(&c.ID, &c.Name, &c.Rule, &c.Type, &c.Immutable, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("storage: scan constraint: %w", err)
		}
		constraints = append(constraints, c)
	}
	return constraints, total, rows.Err()
}

// UpdateConstraintRule changes a constraint's rule text. Immutable
// constraints reject updates (ErrImmutable).
func (db *DB) UpdateConstraintRule(ctx context.Context, id uuid.UUID, rule string) error {
	var immutable bool
	err := db.pool.QueryRow(ctx, `SELECT immutable FROM constraints WHERE id = $1`, id).Scan(&immutable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrConstraintNotFound, id)
		}
		return fmt.Errorf("storage: check constraint immutability: %w", err)
	}
	if immutable {
		return fmt.Errorf("%w: %s", ErrImmutable, id)
	}

	_, err = db.pool.Exec(ctx,
		`UPDATE constraints SET rule = $1, updated_at = now() WHERE id = $2`, rule, id)
	if err != nil {
		return fmt.Errorf("storage: update constraint rule: %w", err)
	}
	return nil
}

// LinkConstraint links a constraint to a decision. Idempotent.
func (db *DB) LinkConstraint(ctx context.Context, decisionID, constraintID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO decision_constraints (decision_id, constraint_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, decisionID, constraintID)
	if err != nil {
		return fmt.Errorf("storage: link constraint: %w", err)
	}
	return nil
}

// GetConstraintsByDecision returns all constraints linked to a decision.
func (db *DB) GetConstraintsByDecision(ctx context.Context, decisionID uuid.UUID) ([]model.Constraint, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT c.id, c.name, c.rule, c.type, c.immutable, c.created_at, c.updated_at
		 FROM constraints c
		 JOIN decision_constraints dc ON dc.constraint_id = c.id
		 WHERE dc.decision_id = $1
		 ORDER BY c.created_at`, decisionID)
	if err != nil {
		return nil, fmt.Errorf("storage: get constraints by decision: %w", err)
	}
	defer rows.Close()

	var constraints []model.Constraint
	for rows.Next() {
		var c model.Constraint
		if err := rows.Scan(&c.ID, &c.Name, &c.Rule, &c.Type, &c.Immutable, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan constraint: %w", err)
		}
		constraints = append(constraints, c)
	}
	return constraints, rows.Err()
}

// RecordViolation inserts a constraint violation for a decision.
func (db *DB) RecordViolation(ctx context.Context, v model.ConstraintViolation) (model.ConstraintViolation, error) {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.DetectedAt.IsZero() {
		v.DetectedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO constraint_violations (id, constraint_id, decision_id, detail, detected_at, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		v.ID, v.ConstraintID, v.DecisionID, v.Detail, v.DetectedAt, v.ResolvedAt,
	)
	if err != nil {
		return model.ConstraintViolation{}, fmt.Errorf("storage: record violation: %w", err)
	}
	return v, nil
}

// ResolveViolation stamps a violation as resolved.
func (db *DB) ResolveViolation(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE constraint_violations SET resolved_at = now() WHERE id = $1 AND resolved_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("storage: resolve violation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: violation %s (or already resolved)", ErrNotFound, id)
	}
	return nil
}

// GetViolationsByDecision returns violations for a decision, newest first.
func (db *DB) GetViolationsByDecision(ctx context.Context, decisionID uuid.UUID) ([]model.ConstraintViolation, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, constraint_id, decision_id, detail, detected_at, resolved_at
		 FROM constraint_violations WHERE decision_id = $1 ORDER BY detected_at DESC`, decisionID)
	if err != nil {
		return nil, fmt.Errorf("storage: get violations by decision: %w", err)
	}
	defer rows.Close()

	var violations []model.ConstraintViolation
	for rows.Next() {
		var v model.ConstraintViolation
		if err := rows.Scan(&v.ID, &v.ConstraintID, &v.DecisionID, &v.Detail, &v.DetectedAt, &v.ResolvedAt); err != nil {
			return nil, fmt.Errorf("storage: scan violation: %w", err)
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// CountUnresolvedViolations returns the number of open violations for a decision.
func (db *DB) CountUnresolvedViolations(ctx context.Context, decisionID uuid.UUID) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM constraint_violations WHERE decision_id = $1 AND resolved_at IS NULL`,
		decisionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("storage: count unresolved violations: %w", err)
	}
	return count, nil
}
