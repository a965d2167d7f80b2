package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CallumWaite/gatehouse/internal/models"
	pkglogger "github.com/CallumWaite/gatehouse/pkg/logger"
)

// ThrottleRepository is the persistent counter store behind ThrottleService.
// Counter increments must be atomic per key (see repositories).
type ThrottleRepository interface {
	IncrementAddressCounter(ctx context.Context, address string, channel models.ChannelType, now time.Time, window time.Duration, max int) (*models.RequestCounter, models.CounterOutcome, error)
	IncrementContactCounter(ctx context.Context, ref models.ContactRef, now time.Time, window time.Duration, max int) (*models.RequestCounter, models.CounterOutcome, error)
	LastRequestAt(ctx context.Context, address string, channel models.ChannelType) (time.Time, error)
	RecordRequestAt(ctx context.Context, address string, channel models.ChannelType, now time.Time) error
}

// ThrottleConfig holds the window parameters. The same window and maximum
// apply to the per-address and per-contact counters.
type ThrottleConfig struct {
	Window      time.Duration
	MaxRequests int
	MinInterval time.Duration
}

// Decision is a throttle gate outcome. Denial carries the wait until the
// gate would admit; it is a designed result, never an error.
type Decision struct {
	Admitted bool
	Wait     time.Duration
}

func admit() Decision                  { return Decision{Admitted: true} }
func deny(wait time.Duration) Decision { return Decision{Wait: wait} }

// ThrottleService gates verification-code issuance with two independent
// sliding-window counters (per requesting address, per contact entity) and
// a minimum-interval check per address and channel.
type ThrottleService struct {
	repo   ThrottleRepository
	config ThrottleConfig
	audit  *pkglogger.AuditLogger
	logger *slog.Logger
	now    func() time.Time
}

func NewThrottleService(repo ThrottleRepository, config ThrottleConfig, audit *pkglogger.AuditLogger, logger *slog.Logger) *ThrottleService {
	return &ThrottleService{
		repo:   repo,
		config: config,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// CheckMinimumInterval denies a request arriving less than the minimum
// interval after the previous request from the same address on the same
// channel. It consumes no window capacity and runs before the counters.
func (s *ThrottleService) CheckMinimumInterval(ctx context.Context, address string, channel models.ChannelType) (Decision, error) {
	last, err := s.repo.LastRequestAt(ctx, address, channel)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return admit(), nil
		}
		return Decision{}, fmt.Errorf("failed to read last request time: %w", err)
	}

	elapsed := s.now().Sub(last)
	if elapsed < s.config.MinInterval {
		wait := s.config.MinInterval - elapsed
		s.audit.LogThrottleDenial(pkglogger.ThrottleEvent{
			Gate: "minimum_interval", Address: address, Channel: string(channel), Wait: wait,
		})
		return deny(wait), nil
	}
	return admit(), nil
}

// CheckAddressWindow advances the per-address counter for the channel and
// converts the outcome into a decision.
func (s *ThrottleService) CheckAddressWindow(ctx context.Context, address string, channel models.ChannelType) (Decision, error) {
	counter, outcome, err := s.repo.IncrementAddressCounter(ctx, address, channel, s.now(), s.config.Window, s.config.MaxRequests)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to advance address counter: %w", err)
	}

	if outcome == models.CounterDenied {
		wait := counter.RemainingWait(s.now(), s.config.Window)
		s.audit.LogThrottleDenial(pkglogger.ThrottleEvent{
			Gate: "address_window", Address: address, Channel: string(channel), Wait: wait,
		})
		return deny(wait), nil
	}
	return admit(), nil
}

// CheckContactWindow advances the counter for the contact entity at its
// security level.
func (s *ThrottleService) CheckContactWindow(ctx context.Context, address string, ref models.ContactRef) (Decision, error) {
	counter, outcome, err := s.repo.IncrementContactCounter(ctx, ref, s.now(), s.config.Window, s.config.MaxRequests)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to advance contact counter: %w", err)
	}

	if outcome == models.CounterDenied {
		wait := counter.RemainingWait(s.now(), s.config.Window)
		s.audit.LogThrottleDenial(pkglogger.ThrottleEvent{
			Gate:       "contact_window",
			Address:    address,
			Channel:    string(ref.Channel),
			Identifier: ref.Identifier(),
			Wait:       wait,
		})
		return deny(wait), nil
	}
	return admit(), nil
}

// RecordRequest stamps the minimum-interval timestamp after an admitted
// request.
func (s *ThrottleService) RecordRequest(ctx context.Context, address string, channel models.ChannelType) error {
	return s.repo.RecordRequestAt(ctx, address, channel, s.now())
}
