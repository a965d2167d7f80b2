package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CallumWaite/gatehouse/internal/models"
	pkglogger "github.com/CallumWaite/gatehouse/pkg/logger"
)

// mockThrottleRepository applies the counter state machine against
// in-memory maps, mirroring what the SQL repository does under its row
// locks.
type mockThrottleRepository struct {
	addressCounters map[string]*models.RequestCounter
	contactCounters map[string]*models.RequestCounter
	stamps          map[string]time.Time
	failWith        error
}

func newMockThrottleRepository() *mockThrottleRepository {
	return &mockThrottleRepository{
		addressCounters: make(map[string]*models.RequestCounter),
		contactCounters: make(map[string]*models.RequestCounter),
		stamps:          make(map[string]time.Time),
	}
}

func (m *mockThrottleRepository) IncrementAddressCounter(ctx context.Context, address string, channel models.ChannelType, now time.Time, window time.Duration, max int) (*models.RequestCounter, models.CounterOutcome, error) {
	if m.failWith != nil {
		return nil, 0, m.failWith
	}
	key := address + "/" + string(channel)
	counter, ok := m.addressCounters[key]
	if !ok {
		counter = &models.RequestCounter{}
		m.addressCounters[key] = counter
	}
	return counter, counter.Advance(now, window, max), nil
}

func (m *mockThrottleRepository) IncrementContactCounter(ctx context.Context, ref models.ContactRef, now time.Time, window time.Duration, max int) (*models.RequestCounter, models.CounterOutcome, error) {
	if m.failWith != nil {
		return nil, 0, m.failWith
	}
	key := fmt.Sprintf("%s/%s/%s", ref.Channel, ref.Identifier(), ref.Level)
	counter, ok := m.contactCounters[key]
	if !ok {
		counter = &models.RequestCounter{}
		m.contactCounters[key] = counter
	}
	return counter, counter.Advance(now, window, max), nil
}

func (m *mockThrottleRepository) LastRequestAt(ctx context.Context, address string, channel models.ChannelType) (time.Time, error) {
	stamp, ok := m.stamps[address+"/"+string(channel)]
	if !ok {
		return time.Time{}, models.ErrNotFound
	}
	return stamp, nil
}

func (m *mockThrottleRepository) RecordRequestAt(ctx context.Context, address string, channel models.ChannelType, now time.Time) error {
	m.stamps[address+"/"+string(channel)] = now
	return nil
}

func newThrottleFixture(t *testing.T) (*ThrottleService, *mockThrottleRepository, *time.Time) {
	t.Helper()
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	repo := newMockThrottleRepository()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	svc := NewThrottleService(repo, ThrottleConfig{
		Window:      3 * time.Hour,
		MaxRequests: 6,
		MinInterval: 30 * time.Second,
	}, pkglogger.NewAuditLogger(logger), logger)
	svc.now = func() time.Time { return current }

	return svc, repo, &current
}

func TestThrottleAddressWindow_AdmitsUpToMaxThenDenies(t *testing.T) {
	svc, _, current := newThrottleFixture(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		decision, err := svc.CheckAddressWindow(ctx, "192.0.2.1", models.ChannelPhone)
		require.NoError(t, err)
		assert.True(t, decision.Admitted, "request %d", i+1)
	}

	*current = current.Add(time.Hour)

	decision, err := svc.CheckAddressWindow(ctx, "192.0.2.1", models.ChannelPhone)
	require.NoError(t, err)
	assert.False(t, decision.Admitted)
	assert.Equal(t, 2*time.Hour, decision.Wait)
}

func TestThrottleAddressWindow_DenialLeavesCounterUntouched(t *testing.T) {
	svc, repo, _ := newThrottleFixture(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := svc.CheckAddressWindow(ctx, "192.0.2.1", models.ChannelPhone)
		require.NoError(t, err)
	}

	counter := repo.addressCounters["192.0.2.1/phone"]
	assert.Equal(t, 6, counter.Count)
}

func TestThrottleAddressWindow_ResetsAfterWindowElapses(t *testing.T) {
	svc, _, current := newThrottleFixture(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := svc.CheckAddressWindow(ctx, "192.0.2.1", models.ChannelPhone)
		require.NoError(t, err)
	}

	*current = current.Add(3 * time.Hour)

	decision, err := svc.CheckAddressWindow(ctx, "192.0.2.1", models.ChannelPhone)
	require.NoError(t, err)
	assert.True(t, decision.Admitted)

	// The reset window starts fresh with this request counted.
	for i := 0; i < 5; i++ {
		decision, err := svc.CheckAddressWindow(ctx, "192.0.2.1", models.ChannelPhone)
		require.NoError(t, err)
		assert.True(t, decision.Admitted)
	}
	decision, err = svc.CheckAddressWindow(ctx, "192.0.2.1", models.ChannelPhone)
	require.NoError(t, err)
	assert.False(t, decision.Admitted)
}

func TestThrottleAddressWindow_ChannelsAreIndependent(t *testing.T) {
	svc, _, _ := newThrottleFixture(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := svc.CheckAddressWindow(ctx, "192.0.2.1", models.ChannelPhone)
		require.NoError(t, err)
	}

	decision, err := svc.CheckAddressWindow(ctx, "192.0.2.1", models.ChannelEmail)
	require.NoError(t, err)
	assert.True(t, decision.Admitted, "email window must not share phone capacity")

	decision, err = svc.CheckAddressWindow(ctx, "198.51.100.7", models.ChannelPhone)
	require.NoError(t, err)
	assert.True(t, decision.Admitted, "other addresses must not share capacity")
}

func TestThrottleContactWindow_SecurityLevelsAreIndependent(t *testing.T) {
	svc, _, _ := newThrottleFixture(t)
	ctx := context.Background()

	low := models.PhoneContact(49, "15551234", models.SecurityLow)
	high := models.PhoneContact(49, "15551234", models.SecurityHigh)

	for i := 0; i < 6; i++ {
		decision, err := svc.CheckContactWindow(ctx, "192.0.2.1", low)
		require.NoError(t, err)
		assert.True(t, decision.Admitted)
	}

	decision, err := svc.CheckContactWindow(ctx, "192.0.2.1", low)
	require.NoError(t, err)
	assert.False(t, decision.Admitted)

	decision, err = svc.CheckContactWindow(ctx, "192.0.2.1", high)
	require.NoError(t, err)
	assert.True(t, decision.Admitted, "levels partition the contact window")
}

func TestThrottleMinimumInterval(t *testing.T) {
	svc, _, current := newThrottleFixture(t)
	ctx := context.Background()

	t.Run("no previous request admits", func(t *testing.T) {
		decision, err := svc.CheckMinimumInterval(ctx, "192.0.2.1", models.ChannelPhone)
		require.NoError(t, err)
		assert.True(t, decision.Admitted)
	})

	require.NoError(t, svc.RecordRequest(ctx, "192.0.2.1", models.ChannelPhone))

	t.Run("too soon denies with remaining wait", func(t *testing.T) {
		*current = current.Add(10 * time.Second)
		decision, err := svc.CheckMinimumInterval(ctx, "192.0.2.1", models.ChannelPhone)
		require.NoError(t, err)
		assert.False(t, decision.Admitted)
		assert.Equal(t, 20*time.Second, decision.Wait)
	})

	t.Run("other channel unaffected", func(t *testing.T) {
		decision, err := svc.CheckMinimumInterval(ctx, "192.0.2.1", models.ChannelEmail)
		require.NoError(t, err)
		assert.True(t, decision.Admitted)
	})

	t.Run("interval elapsed admits", func(t *testing.T) {
		*current = current.Add(21 * time.Second)
		decision, err := svc.CheckMinimumInterval(ctx, "192.0.2.1", models.ChannelPhone)
		require.NoError(t, err)
		assert.True(t, decision.Admitted)
	})
}

func TestThrottle_StoreFailurePropagates(t *testing.T) {
	svc, repo, _ := newThrottleFixture(t)
	repo.failWith = models.ErrStoreUnavailable

	_, err := svc.CheckAddressWindow(context.Background(), "192.0.2.1", models.ChannelPhone)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}
