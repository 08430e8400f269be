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

// CreateUser inserts a user. The user_id is the stable external identifier
// callers authenticate as; it must be unique.
func (db *DB) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (id, user_id, name, role, api_key_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.UserID, u.Name, u.Role, u.APIKeyHash, u.CreatedAt,
	)
	if err != nil {
		return model.User{}, fmt.Errorf("storage: create user: %w", err)
	}
	return u, nil
}

// GetUserByUserID looks a user up by external identifier.
func (db *DB) GetUserByUserID(ctx context.Context, userID string) (model.User, error) {
	var u model.User
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, name, role, api_key_hash, created_at FROM users WHERE user_id = $1`,
		userID,
	).Scan(&u.ID, &u.UserID, &u.Name, &u.Role, &u.APIKeyHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return model.User{}, fmt.Errorf("storage: get user: %w", err)
	}
	return u, nil
}

// UpsertAdmin creates or refreshes the bootstrap admin user with the given
// API key hash. Used at startup when DECIVUE_ADMIN_API_KEY is set.
func (db *DB) UpsertAdmin(ctx context.Context, userID, name, keyHash string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (id, user_id, name, role, api_key_hash, created_at)
		 VALUES ($1, $2, $3, 'admin', $4, now())
		 ON CONFLICT (user_id) DO UPDATE SET api_key_hash = EXCLUDED.api_key_hash, role = 'admin'`,
		uuid.New(), userID, name, keyHash,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert admin: %w", err)
	}
	return nil
}
