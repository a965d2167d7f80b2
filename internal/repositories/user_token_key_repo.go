package repositories

import (
	"context"
	"fmt"

	"github.com/CallumWaite/gatehouse/internal/database"
	"github.com/CallumWaite/gatehouse/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserTokenKeyRepository persists the rotating per-user token keys.
type UserTokenKeyRepository struct {
	pool *pgxpool.Pool
}

func NewUserTokenKeyRepository(db *database.DB) *UserTokenKeyRepository {
	return &UserTokenKeyRepository{pool: db.Pool}
}

// Get returns the active key row for a user.
func (r *UserTokenKeyRepository) Get(ctx context.Context, userID int64) (*models.UserTokenKey, error) {
	query := `
		SELECT user_id, key, created_at
		FROM user_token_keys
		WHERE user_id = $1
	`

	var key models.UserTokenKey
	err := r.pool.QueryRow(ctx, query, userID).Scan(&key.UserID, &key.Key, &key.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &key, nil
}

// Rotate replaces the user's key in a single upsert, resetting created_at,
// and returns the stored row. A user holds at most one active key.
func (r *UserTokenKeyRepository) Rotate(ctx context.Context, userID int64, key string) (*models.UserTokenKey, error) {
	query := `
		INSERT INTO user_token_keys (user_id, key, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET key = EXCLUDED.key, created_at = now()
		RETURNING user_id, key, created_at
	`

	var stored models.UserTokenKey
	err := r.pool.QueryRow(ctx, query, userID, key).Scan(&stored.UserID, &stored.Key, &stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to rotate user token key: %w", database.MapPostgresError(err))
	}
	return &stored, nil
}
