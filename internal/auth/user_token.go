package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/CallumWaite/gatehouse/internal/models"
	pkglogger "github.com/CallumWaite/gatehouse/pkg/logger"
)

// UserKeyStore persists the rotating per-user key.
type UserKeyStore interface {
	Get(ctx context.Context, userID int64) (*models.UserTokenKey, error)
	// Rotate atomically replaces the user's key (inserting the row if
	// absent) with a fresh created_at and returns the stored row.
	Rotate(ctx context.Context, userID int64, key string) (*models.UserTokenKey, error)
}

// UserTokenConfig holds the key lifetimes.
type UserTokenConfig struct {
	// RotationLifetime is how long an issued key is reused before Issue
	// generates a replacement.
	RotationLifetime time.Duration
	// MaxTokenLifetime is how long a token stays valid, measured from its
	// key's created_at regardless of rotation.
	MaxTokenLifetime time.Duration
}

// userTokenClaims is the clear (second) part of a user token.
type userTokenClaims struct {
	CreatedAt int64 `json:"createdAt"`
}

// UserTokenService issues and validates tokens bound to an authenticated
// user, backed by a persisted rotating key.
type UserTokenService struct {
	crypto Crypto
	store  UserKeyStore
	config UserTokenConfig
	audit  *pkglogger.AuditLogger
	logger *slog.Logger
	now    func() time.Time
}

func NewUserTokenService(crypto Crypto, store UserKeyStore, config UserTokenConfig, audit *pkglogger.AuditLogger, logger *slog.Logger) *UserTokenService {
	return &UserTokenService{
		crypto: crypto,
		store:  store,
		config: config,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// Issue returns the user's token, rotating the persisted key first when no
// key exists or the current one is older than the rotation lifetime. The
// token is "<storedKey>.<base64 createdAt record>".
func (s *UserTokenService) Issue(ctx context.Context, userID int64) (string, error) {
	key, err := s.store.Get(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return "", fmt.Errorf("failed to load user token key: %w", err)
	}

	if key == nil || key.OlderThan(s.now(), s.config.RotationLifetime) {
		fresh, err := s.crypto.GenerateKey(UserKeyBits)
		if err != nil {
			return "", fmt.Errorf("failed to generate user token key: %w", err)
		}
		key, err = s.store.Rotate(ctx, userID, s.crypto.EncodeBase64(fresh))
		if err != nil {
			return "", fmt.Errorf("failed to rotate user token key: %w", err)
		}
	}

	claims, err := s.marshalClaims(key.CreatedAt)
	if err != nil {
		return "", err
	}
	return key.Key + "." + claims, nil
}

// Validate checks a presented token against the persisted key for userID.
// Three independent checks each reject on their own: the key part must
// equal the stored key encoding, the claims part must match the stored
// created_at, and the key must be younger than the maximum token lifetime.
// An expired key rejects even before rotation has replaced it. Persistence
// failures are server faults and surface as errors, not as invalid.
func (s *UserTokenService) Validate(ctx context.Context, token string, userID int64) (bool, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return false, nil
	}

	key, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load user token key: %w", err)
	}

	if parts[0] != key.Key {
		s.logTamper(token, userID, "key mismatch")
		return false, nil
	}

	claims, err := s.marshalClaims(key.CreatedAt)
	if err != nil {
		return false, err
	}
	if parts[1] != claims {
		s.logTamper(token, userID, "createdAt mismatch")
		return false, nil
	}

	if key.OlderThan(s.now(), s.config.MaxTokenLifetime) {
		return false, nil
	}
	return true, nil
}

func (s *UserTokenService) marshalClaims(createdAt time.Time) (string, error) {
	raw, err := json.Marshal(userTokenClaims{CreatedAt: createdAt.UnixMilli()})
	if err != nil {
		return "", fmt.Errorf("failed to serialize token claims: %w", err)
	}
	return s.crypto.EncodeBase64(raw), nil
}

func (s *UserTokenService) logTamper(token string, userID int64, reason string) {
	s.audit.LogTamperAttempt(pkglogger.TamperEvent{
		TokenKind: "user",
		Token:     token,
		Address:   fmt.Sprintf("user:%d", userID),
		Reason:    reason,
	})
}
