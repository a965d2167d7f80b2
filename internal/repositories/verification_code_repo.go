package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/CallumWaite/gatehouse/internal/database"
	"github.com/CallumWaite/gatehouse/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VerificationCodeRepository persists the single active verification code
// per (channel, identifier, security level) tuple.
type VerificationCodeRepository struct {
	pool *pgxpool.Pool
}

func NewVerificationCodeRepository(db *database.DB) *VerificationCodeRepository {
	return &VerificationCodeRepository{pool: db.Pool}
}

// Upsert stores the code for the tuple, overwriting any previous code and
// restarting its creation timestamp.
func (r *VerificationCodeRepository) Upsert(ctx context.Context, ref models.ContactRef, code string, now time.Time) error {
	query := `
		INSERT INTO verification_codes (channel, identifier, security_level, code, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (channel, identifier, security_level)
		DO UPDATE SET code = EXCLUDED.code, created_at = EXCLUDED.created_at
	`

	_, err := r.pool.Exec(ctx, query, string(ref.Channel), ref.Identifier(), string(ref.Level), code, now)
	if err != nil {
		return fmt.Errorf("failed to upsert verification code: %w", database.MapPostgresError(err))
	}
	return nil
}

// Get returns the current code record for the tuple, expired or not;
// expiry is the service's concern.
func (r *VerificationCodeRepository) Get(ctx context.Context, ref models.ContactRef) (*models.VerificationCode, error) {
	query := `
		SELECT channel, identifier, security_level, code, created_at
		FROM verification_codes
		WHERE channel = $1 AND identifier = $2 AND security_level = $3
	`

	var code models.VerificationCode
	err := r.pool.QueryRow(ctx, query, string(ref.Channel), ref.Identifier(), string(ref.Level)).
		Scan(&code.Channel, &code.Identifier, &code.Level, &code.Code, &code.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &code, nil
}

// DeleteCreatedBefore purges codes that expired long ago.
func (r *VerificationCodeRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM verification_codes WHERE created_at < $1`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired verification codes: %w", err)
	}
	return tag.RowsAffected(), nil
}
