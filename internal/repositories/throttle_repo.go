package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CallumWaite/gatehouse/internal/database"
	"github.com/CallumWaite/gatehouse/internal/models"
	"github.com/jackc/pgx/v5"
)

// ThrottleRepository persists the sliding-window request counters and the
// per-address last-request timestamps. Each counter advance runs inside a
// transaction holding the row lock for its key, so two concurrent requests
// for the same key cannot both observe a stale count. Distinct keys do not
// contend.
type ThrottleRepository struct {
	db *database.DB
}

func NewThrottleRepository(db *database.DB) *ThrottleRepository {
	return &ThrottleRepository{db: db}
}

// IncrementAddressCounter advances the counter for (address, channel) and
// returns the resulting state and outcome.
func (r *ThrottleRepository) IncrementAddressCounter(ctx context.Context, address string, channel models.ChannelType, now time.Time, window time.Duration, max int) (*models.RequestCounter, models.CounterOutcome, error) {
	return r.advance(ctx, now, window, max,
		`INSERT INTO address_request_counters (ip_address, channel, request_count, window_started_at)
		 VALUES ($1, $2, 0, $3)
		 ON CONFLICT (ip_address, channel) DO NOTHING`,
		`SELECT request_count, window_started_at
		 FROM address_request_counters
		 WHERE ip_address = $1 AND channel = $2
		 FOR UPDATE`,
		`UPDATE address_request_counters
		 SET request_count = $3, window_started_at = $4
		 WHERE ip_address = $1 AND channel = $2`,
		address, string(channel),
	)
}

// IncrementContactCounter advances the counter for a contact entity and
// security level.
func (r *ThrottleRepository) IncrementContactCounter(ctx context.Context, ref models.ContactRef, now time.Time, window time.Duration, max int) (*models.RequestCounter, models.CounterOutcome, error) {
	return r.advance(ctx, now, window, max,
		`INSERT INTO contact_request_counters (channel, identifier, security_level, request_count, window_started_at)
		 VALUES ($1, $2, $3, 0, $4)
		 ON CONFLICT (channel, identifier, security_level) DO NOTHING`,
		`SELECT request_count, window_started_at
		 FROM contact_request_counters
		 WHERE channel = $1 AND identifier = $2 AND security_level = $3
		 FOR UPDATE`,
		`UPDATE contact_request_counters
		 SET request_count = $4, window_started_at = $5
		 WHERE channel = $1 AND identifier = $2 AND security_level = $3`,
		string(ref.Channel), ref.Identifier(), string(ref.Level),
	)
}

// advance inserts the counter row if absent, locks it, applies the window
// state machine, and persists any change. keyArgs are the key columns in
// statement order; the insert takes keyArgs + start, the update takes
// keyArgs + count + start.
func (r *ThrottleRepository) advance(ctx context.Context, now time.Time, window time.Duration, max int, insertSQL, lockSQL, updateSQL string, keyArgs ...any) (*models.RequestCounter, models.CounterOutcome, error) {
	var counter models.RequestCounter
	var outcome models.CounterOutcome

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		insertArgs := append(append([]any{}, keyArgs...), now)
		if _, err := tx.Exec(ctx, insertSQL, insertArgs...); err != nil {
			return fmt.Errorf("failed to seed counter row: %w", err)
		}

		err := tx.QueryRow(ctx, lockSQL, keyArgs...).Scan(&counter.Count, &counter.WindowStartedAt)
		if err != nil {
			return fmt.Errorf("failed to lock counter row: %w", err)
		}

		outcome = counter.Advance(now, window, max)
		if outcome == models.CounterDenied {
			// Denied requests leave the row untouched.
			return nil
		}

		updateArgs := append(append([]any{}, keyArgs...), counter.Count, counter.WindowStartedAt)
		if _, err := tx.Exec(ctx, updateSQL, updateArgs...); err != nil {
			return fmt.Errorf("failed to update counter row: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, errors.Join(models.ErrStoreUnavailable, err)
	}
	return &counter, outcome, nil
}

// LastRequestAt returns when the address last requested a code on the
// channel, or ErrNotFound.
func (r *ThrottleRepository) LastRequestAt(ctx context.Context, address string, channel models.ChannelType) (time.Time, error) {
	query := `
		SELECT last_requested_at
		FROM address_request_stamps
		WHERE ip_address = $1 AND channel = $2
	`

	var at time.Time
	err := r.db.Pool.QueryRow(ctx, query, address, string(channel)).Scan(&at)
	if err != nil {
		return time.Time{}, database.MapPostgresError(err)
	}
	return at, nil
}

// RecordRequestAt stamps the minimum-interval timestamp for the address
// and channel.
func (r *ThrottleRepository) RecordRequestAt(ctx context.Context, address string, channel models.ChannelType, now time.Time) error {
	query := `
		INSERT INTO address_request_stamps (ip_address, channel, last_requested_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (ip_address, channel) DO UPDATE SET last_requested_at = EXCLUDED.last_requested_at
	`

	if _, err := r.db.Pool.Exec(ctx, query, address, string(channel), now); err != nil {
		return fmt.Errorf("failed to record request timestamp: %w", err)
	}
	return nil
}

// DeleteIdleCounters removes counter rows and stamps whose window closed
// before cutoff. Expiry is otherwise evaluated lazily, so this only bounds
// table growth.
func (r *ThrottleRepository) DeleteIdleCounters(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64

	for _, query := range []string{
		`DELETE FROM address_request_counters WHERE window_started_at < $1`,
		`DELETE FROM contact_request_counters WHERE window_started_at < $1`,
		`DELETE FROM address_request_stamps WHERE last_requested_at < $1`,
	} {
		tag, err := r.db.Pool.Exec(ctx, query, cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to delete idle throttle rows: %w", err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}
