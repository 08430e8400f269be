package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/decivue/decivue/internal/model"
)

// ReviewCandidate pairs a decision with its computed review urgency.
type ReviewCandidate struct {
	Decision model.Decision `json:"decision"`
	Urgency  float64        `json:"urgency"`
}

// ComputeReviewUrgency delegates urgency scoring to the database function
// so the SQL stays the single source of truth for the staleness formula.
func (db *DB) ComputeReviewUrgency(ctx context.Context, decisionID uuid.UUID) (float64, error) {
	var urgency float64
	err := db.pool.QueryRow(ctx, `SELECT compute_review_urgency($1)`, decisionID).Scan(&urgency)
	if err != nil {
		return 0, fmt.Errorf("storage: compute review urgency: %w", err)
	}
	return urgency, nil
}

// ListDecisionsDueForReview returns non-terminal decisions ordered by
// review urgency, most urgent first. Retired and invalidated decisions are
// excluded; they no longer need review.
func (db *DB) ListDecisionsDueForReview(ctx context.Context, limit int) ([]ReviewCandidate, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := db.pool.Query(ctx, fmt.Sprintf(`
		SELECT `+decisionColumns+`, compute_review_urgency(id) AS urgency
		FROM decisions
		WHERE lifecycle NOT IN ('RETIRED', 'INVALIDATED')
		ORDER BY urgency DESC, created_at
		LIMIT %d`, limit))
	if err != nil {
		return nil, fmt.Errorf("storage: list decisions due for review: %w", err)
	}
	defer rows.Close()

	var candidates []ReviewCandidate
	for rows.Next() {
		var c ReviewCandidate
		d := &c.Decision
		if err := rows.Scan(
			&d.ID, &d.Title, &d.Description, &d.Lifecycle, &d.HealthSignal, &d.InvalidatedReason,
			&d.ExpiryDate, &d.Locked, &d.Tier, &d.RequiresSecondReviewer, &d.LastReviewedAt,
			&d.CreatedAt, &d.UpdatedAt, &c.Urgency,
		); err != nil {
			return nil, fmt.Errorf("storage: scan review candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
