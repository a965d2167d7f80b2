package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CallumWaite/gatehouse/internal/auth"
	"github.com/CallumWaite/gatehouse/internal/models"
)

// VerificationCodeStore persists and serves the active code per tuple.
type VerificationCodeStore interface {
	Upsert(ctx context.Context, ref models.ContactRef, code string, now time.Time) error
	Get(ctx context.Context, ref models.ContactRef) (*models.VerificationCode, error)
}

// MessageSender is the outbound messaging collaborator. Delivery is
// fire-and-forget: a failure is logged by the caller and never reverses an
// already-issued code.
type MessageSender interface {
	SendCode(ctx context.Context, ref models.ContactRef, code string) error
}

// RequestStatus is the overall outcome of a code request.
type RequestStatus int

const (
	RequestIssued RequestStatus = iota
	RequestDeniedInterval
	RequestDeniedAddressLimit
	RequestDeniedContactLimit
)

// RequestResult reports how a code request ended. Wait is set for denials.
type RequestResult struct {
	Status RequestStatus
	Wait   time.Duration
}

// QueryStatus is the outcome of a code lookup.
type QueryStatus int

const (
	CodeFound QueryStatus = iota
	CodeExpired
	CodeNotFound
)

// QueryResult carries the current code when Status is CodeFound.
type QueryResult struct {
	Status QueryStatus
	Code   string
}

// VerificationService orchestrates a verification-code request end to end:
// throttle gates in order, code generation, persistence, and dispatch.
type VerificationService struct {
	throttle *ThrottleService
	codes    VerificationCodeStore
	sender   MessageSender
	crypto   auth.Crypto
	codeTTL  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewVerificationService(throttle *ThrottleService, codes VerificationCodeStore, sender MessageSender, crypto auth.Crypto, codeTTL time.Duration, logger *slog.Logger) *VerificationService {
	return &VerificationService{
		throttle: throttle,
		codes:    codes,
		sender:   sender,
		crypto:   crypto,
		codeTTL:  codeTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// RequestCode runs the issuance pipeline for a contact entity on behalf of
// a requesting address. The gates run in a fixed order and the first
// denial short-circuits:
//
//  1. minimum interval for (address, channel)
//  2. per-address sliding window
//  3. per-contact-entity sliding window
//
// The address window is consumed before the contact window is evaluated,
// so a request denied at gate 3 still spends one unit of the address
// window. A mid-sequence store failure leaves earlier committed state in
// place; callers retrying re-evaluate from current state.
func (s *VerificationService) RequestCode(ctx context.Context, address string, ref models.ContactRef) (RequestResult, error) {
	gates := []struct {
		status RequestStatus
		check  func(context.Context) (Decision, error)
	}{
		{RequestDeniedInterval, func(ctx context.Context) (Decision, error) {
			return s.throttle.CheckMinimumInterval(ctx, address, ref.Channel)
		}},
		{RequestDeniedAddressLimit, func(ctx context.Context) (Decision, error) {
			return s.throttle.CheckAddressWindow(ctx, address, ref.Channel)
		}},
		{RequestDeniedContactLimit, func(ctx context.Context) (Decision, error) {
			return s.throttle.CheckContactWindow(ctx, address, ref)
		}},
	}

	for _, gate := range gates {
		decision, err := gate.check(ctx)
		if err != nil {
			return RequestResult{}, err
		}
		if !decision.Admitted {
			return RequestResult{Status: gate.status, Wait: decision.Wait}, nil
		}
	}

	code, err := s.generateCode(ref.Level)
	if err != nil {
		return RequestResult{}, err
	}

	if err := s.codes.Upsert(ctx, ref, code, s.now()); err != nil {
		return RequestResult{}, fmt.Errorf("failed to store verification code: %w", err)
	}

	if err := s.throttle.RecordRequest(ctx, address, ref.Channel); err != nil {
		return RequestResult{}, fmt.Errorf("failed to stamp request time: %w", err)
	}

	// Dispatch after commit. A delivery failure never reverses the code.
	if err := s.sender.SendCode(ctx, ref, code); err != nil {
		s.logger.Error("failed to dispatch verification code",
			slog.String("channel", string(ref.Channel)),
			slog.Any("error", err))
	}

	return RequestResult{Status: RequestIssued}, nil
}

// Query returns the current code for the tuple, or reports it expired or
// absent. Expiry is evaluated lazily here; nothing is deleted.
func (s *VerificationService) Query(ctx context.Context, ref models.ContactRef) (QueryResult, error) {
	record, err := s.codes.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return QueryResult{Status: CodeNotFound}, nil
		}
		return QueryResult{}, fmt.Errorf("failed to load verification code: %w", err)
	}

	if record.ExpiredAt(s.now(), s.codeTTL) {
		return QueryResult{Status: CodeExpired}, nil
	}
	return QueryResult{Status: CodeFound, Code: record.Code}, nil
}

// Verify reports whether submitted matches the current unexpired code for
// the tuple. A syntactically invalid submission is a client fault.
func (s *VerificationService) Verify(ctx context.Context, ref models.ContactRef, submitted string) (bool, error) {
	if !models.CodePattern.MatchString(submitted) {
		return false, models.ErrBadRequest
	}

	result, err := s.Query(ctx, ref)
	if err != nil {
		return false, err
	}
	return result.Status == CodeFound && result.Code == submitted, nil
}

func (s *VerificationService) generateCode(level models.SecurityLevel) (string, error) {
	var code string
	var err error
	if level == models.SecurityHigh {
		code, err = s.crypto.RandomUppercaseLetters(models.HighSecurityCodeLength)
	} else {
		code, err = s.crypto.RandomDigits(models.LowSecurityCodeLength)
	}
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return code, nil
}
