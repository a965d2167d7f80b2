package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CallumWaite/gatehouse/internal/models"
	"github.com/CallumWaite/gatehouse/internal/repositories"
)

const (
	testWindow = 3 * time.Hour
	testMax    = 6
)

func resetThrottleTables(t *testing.T) {
	t.Helper()
	require.NoError(t, testDB.Truncate(context.Background(),
		"address_request_counters", "contact_request_counters", "address_request_stamps"))
}

func TestThrottleRepository_AddressWindowLifecycle(t *testing.T) {
	resetThrottleTables(t)
	repo := repositories.NewThrottleRepository(testDB.DB)
	ctx := context.Background()
	start := time.Now().UTC().Truncate(time.Microsecond)

	// Fill the window.
	for i := 0; i < testMax; i++ {
		counter, outcome, err := repo.IncrementAddressCounter(ctx, "192.0.2.1", models.ChannelPhone, start, testWindow, testMax)
		require.NoError(t, err)
		assert.Equal(t, models.CounterAdmitted, outcome)
		assert.Equal(t, i+1, counter.Count)
	}

	// Denied mid-window; the stored row must not grow.
	later := start.Add(time.Hour)
	counter, outcome, err := repo.IncrementAddressCounter(ctx, "192.0.2.1", models.ChannelPhone, later, testWindow, testMax)
	require.NoError(t, err)
	assert.Equal(t, models.CounterDenied, outcome)
	assert.Equal(t, testMax, counter.Count)
	assert.Equal(t, 2*time.Hour, counter.RemainingWait(later, testWindow))

	var stored int
	require.NoError(t, testDB.Pool.QueryRow(ctx,
		`SELECT request_count FROM address_request_counters WHERE ip_address = $1 AND channel = $2`,
		"192.0.2.1", "phone").Scan(&stored))
	assert.Equal(t, testMax, stored)

	// Window elapsed: reset to 1 and admit.
	afterWindow := start.Add(testWindow)
	counter, outcome, err = repo.IncrementAddressCounter(ctx, "192.0.2.1", models.ChannelPhone, afterWindow, testWindow, testMax)
	require.NoError(t, err)
	assert.Equal(t, models.CounterAdmitted, outcome)
	assert.Equal(t, 1, counter.Count)
}

func TestThrottleRepository_ConcurrentAdvancesNeverExceedMax(t *testing.T) {
	resetThrottleTables(t)
	repo := repositories.NewThrottleRepository(testDB.DB)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	const workers = 20
	var wg sync.WaitGroup
	outcomes := make([]models.CounterOutcome, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, outcomes[i], errs[i] = repo.IncrementAddressCounter(ctx, "198.51.100.7", models.ChannelPhone, now, testWindow, testMax)
		}(i)
	}
	wg.Wait()

	admitted := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		if outcomes[i] == models.CounterAdmitted {
			admitted++
		}
	}
	assert.Equal(t, testMax, admitted, "row lock must serialize concurrent advances")

	var stored int
	require.NoError(t, testDB.Pool.QueryRow(ctx,
		`SELECT request_count FROM address_request_counters WHERE ip_address = $1 AND channel = $2`,
		"198.51.100.7", "phone").Scan(&stored))
	assert.Equal(t, testMax, stored)
}

func TestThrottleRepository_ContactCounterKeyedByLevel(t *testing.T) {
	resetThrottleTables(t)
	repo := repositories.NewThrottleRepository(testDB.DB)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	low := models.PhoneContact(49, "15551234", models.SecurityLow)
	high := models.PhoneContact(49, "15551234", models.SecurityHigh)

	for i := 0; i < testMax; i++ {
		_, outcome, err := repo.IncrementContactCounter(ctx, low, now, testWindow, testMax)
		require.NoError(t, err)
		require.Equal(t, models.CounterAdmitted, outcome)
	}

	_, outcome, err := repo.IncrementContactCounter(ctx, low, now, testWindow, testMax)
	require.NoError(t, err)
	assert.Equal(t, models.CounterDenied, outcome)

	_, outcome, err = repo.IncrementContactCounter(ctx, high, now, testWindow, testMax)
	require.NoError(t, err)
	assert.Equal(t, models.CounterAdmitted, outcome, "levels partition the contact window")
}

func TestThrottleRepository_RequestStamps(t *testing.T) {
	resetThrottleTables(t)
	repo := repositories.NewThrottleRepository(testDB.DB)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, err := repo.LastRequestAt(ctx, "192.0.2.9", models.ChannelEmail)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, repo.RecordRequestAt(ctx, "192.0.2.9", models.ChannelEmail, now))

	at, err := repo.LastRequestAt(ctx, "192.0.2.9", models.ChannelEmail)
	require.NoError(t, err)
	assert.True(t, at.Equal(now))

	// Re-stamping overwrites.
	later := now.Add(45 * time.Second)
	require.NoError(t, repo.RecordRequestAt(ctx, "192.0.2.9", models.ChannelEmail, later))

	at, err = repo.LastRequestAt(ctx, "192.0.2.9", models.ChannelEmail)
	require.NoError(t, err)
	assert.True(t, at.Equal(later))
}

func TestThrottleRepository_DeleteIdleCounters(t *testing.T) {
	resetThrottleTables(t)
	repo := repositories.NewThrottleRepository(testDB.DB)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	old := now.Add(-48 * time.Hour)
	_, _, err := repo.IncrementAddressCounter(ctx, "192.0.2.1", models.ChannelPhone, old, testWindow, testMax)
	require.NoError(t, err)
	_, _, err = repo.IncrementAddressCounter(ctx, "192.0.2.2", models.ChannelPhone, now, testWindow, testMax)
	require.NoError(t, err)

	deleted, err := repo.DeleteIdleCounters(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// The fresh row survives.
	_, outcome, err := repo.IncrementAddressCounter(ctx, "192.0.2.2", models.ChannelPhone, now, testWindow, testMax)
	require.NoError(t, err)
	assert.Equal(t, models.CounterAdmitted, outcome)
}
