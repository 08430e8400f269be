package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DecisionVersion is one snapshot row from the decision_versions audit
// table, written by the record_decision_version SQL function.
type DecisionVersion struct {
	ID         uuid.UUID       `json:"id"`
	DecisionID uuid.UUID       `json:"decision_id"`
	Version    int             `json:"version"`
	Reason     string          `json:"reason"`
	Snapshot   json.RawMessage `json:"snapshot"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// RecordDecisionVersion snapshots the current decision row into
// decision_versions with the given reason ("update", "evaluation", "lock").
func (db *DB) RecordDecisionVersion(ctx context.Context, decisionID uuid.UUID, reason string) error {
	if _, err := db.pool.Exec(ctx, `SELECT record_decision_version($1, $2)`, decisionID, reason); err != nil {
		return fmt.Errorf("storage: record decision version: %w", err)
	}
	return nil
}

// GetDecisionVersions returns a decision's version snapshots, newest first.
func (db *DB) GetDecisionVersions(ctx context.Context, decisionID uuid.UUID, limit int) ([]DecisionVersion, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := db.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, decision_id, version, reason, snapshot, recorded_at
		 FROM decision_versions WHERE decision_id = $1
		 ORDER BY version DESC LIMIT %d`, limit), decisionID)
	if err != nil {
		return nil, fmt.Errorf("storage: get decision versions: %w", err)
	}
	defer rows.Close()

	var versions []DecisionVersion
	for rows.Next() {
		var v DecisionVersion
		if err := rows.Scan(&v.ID, &v.DecisionID, &v.Version, &v.Reason, &v.Snapshot, &v.RecordedAt); err != nil {
			return nil, fmt.Errorf("storage: scan decision version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// DeletionRecord is one archived row from deletion_audit_log.
type DeletionRecord struct {
	ID         int64           `json:"id"`
	TableName  string          `json:"table_name"`
	RecordID   string          `json:"record_id"`
	RecordData json.RawMessage `json:"record_data"`
	DeletedAt  time.Time       `json:"deleted_at"`
}

// GetDeletionAuditLog returns archived deletions, newest first.
func (db *DB) GetDeletionAuditLog(ctx context.Context, limit int) ([]DeletionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := db.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, table_name, record_id, record_data, deleted_at
		 FROM deletion_audit_log ORDER BY deleted_at DESC LIMIT %d`, limit))
	if err != nil {
		return nil, fmt.Errorf("storage: get deletion audit log: %w", err)
	}
	defer rows.Close()

	var records []DeletionRecord
	for rows.Next() {
		var r DeletionRecord
		if err := rows.Scan(&r.ID, &r.TableName, &r.RecordID, &r.RecordData, &r.DeletedAt); err != nil {
			return nil, fmt.Errorf("storage: scan deletion record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
