package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	pkglogger "github.com/CallumWaite/gatehouse/pkg/logger"
)

const (
	// validatorSliceOffset / validatorSliceLength select the segment of the
	// inner hash that is MAC'd a second time to produce the wire hash.
	validatorSliceOffset = 6
	validatorSliceLength = 16
)

// sessionPayload is the clear (first) part of a session token.
type sessionPayload struct {
	Key    string `json:"key"`
	Cookie string `json:"cookie"`
}

// sessionHashRecord is the record the inner hash is computed over. Its only
// field is the base64 encoding of the cookie value arithmetically
// right-shifted by four bits.
type sessionHashRecord struct {
	HashCookie string `json:"hashCookie"`
}

// SessionTokenService issues and validates anonymous per-installation
// tokens. Tokens are self-verifying: no server-side state is recorded at
// issue time and validation recomputes the hash from the embedded key and
// cookie alone. A token expires only by client discard.
type SessionTokenService struct {
	crypto Crypto
	audit  *pkglogger.AuditLogger
	logger *slog.Logger
}

func NewSessionTokenService(crypto Crypto, audit *pkglogger.AuditLogger, logger *slog.Logger) *SessionTokenService {
	return &SessionTokenService{crypto: crypto, audit: audit, logger: logger}
}

// Issue creates a fresh session token: a 128-bit key and a 64-bit cookie,
// serialized with the validator hash as "base64(payload).base64(hash)".
//
// Issue computes the same two-stage hash (inner record MAC, then a MAC
// over its 16-byte slice at offset 6) that Validate recomputes, so a
// freshly issued token always validates.
func (s *SessionTokenService) Issue() (string, error) {
	key, err := s.crypto.GenerateKey(SessionKeyBits)
	if err != nil {
		return "", fmt.Errorf("failed to generate session key: %w", err)
	}
	cookie, err := s.crypto.GenerateKey(CookieBits)
	if err != nil {
		return "", fmt.Errorf("failed to generate session cookie: %w", err)
	}

	hash, err := s.validatorHash(key, cookie)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(sessionPayload{
		Key:    s.crypto.EncodeBase64(key),
		Cookie: s.crypto.EncodeBase64(cookie),
	})
	if err != nil {
		return "", fmt.Errorf("failed to serialize session payload: %w", err)
	}

	return s.crypto.EncodeBase64(payload) + "." + s.crypto.EncodeBase64(hash), nil
}

// Validate checks a presented token. Rejections are silent to the caller
// beyond the boolean; structurally valid tokens that fail cryptographic
// checks are additionally recorded as tampering attempts with the raw
// token and the caller's network address, for downstream blocking policy.
func (s *SessionTokenService) Validate(token, callerAddress string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return false
	}

	payloadBytes, err := s.crypto.DecodeBase64(parts[0])
	if err != nil {
		s.audit.LogTamperAttempt(pkglogger.TamperEvent{
			TokenKind: "session", Token: token, Address: callerAddress, Reason: err.Error(),
		})
		return false
	}

	// Decoded payload must hold exactly the two expected fields.
	var fields map[string]string
	if err := json.Unmarshal(payloadBytes, &fields); err != nil || len(fields) != 2 {
		s.audit.LogTamperAttempt(pkglogger.TamperEvent{
			TokenKind: "session", Token: token, Address: callerAddress,
			Reason: "payload is not a two-field record",
		})
		return false
	}

	key, keyErr := s.crypto.DecodeBase64(fields["key"])
	cookie, cookieErr := s.crypto.DecodeBase64(fields["cookie"])
	if keyErr != nil || cookieErr != nil || len(key) != SessionKeyBits/8 || len(cookie) != CookieBits/8 {
		s.audit.LogTamperAttempt(pkglogger.TamperEvent{
			TokenKind: "session", Token: token, Address: callerAddress,
			Reason: fmt.Sprintf("key or cookie incorrect length: %d and %d", len(key), len(cookie)),
		})
		return false
	}

	expected, err := s.validatorHash(key, cookie)
	if err != nil {
		s.logger.Error("failed to validate session token", slog.Any("error", err))
		return false
	}

	if s.crypto.EncodeBase64(expected) != parts[1] {
		s.audit.LogTamperAttempt(pkglogger.TamperEvent{
			TokenKind: "session", Token: token, Address: callerAddress, Reason: "hash mismatch",
		})
		return false
	}
	return true
}

// ExtractKey returns the embedded key of a session token, or nil if the
// token cannot be parsed. Callers must have validated the token first.
func (s *SessionTokenService) ExtractKey(token string) []byte {
	payloadBytes, err := s.crypto.DecodeBase64(strings.Split(token, ".")[0])
	if err != nil {
		return nil
	}
	var payload sessionPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil
	}
	key, err := s.crypto.DecodeBase64(payload.Key)
	if err != nil {
		return nil
	}
	return key
}

// validatorHash derives the wire hash from key and cookie: the cookie is
// read as a signed big-endian integer and shifted right four bits, the
// shifted value is serialized into the inner record and MAC'd under the
// key, and a 16-byte slice of that MAC starting at offset 6 is MAC'd
// again under the same key.
func (s *SessionTokenService) validatorHash(key, cookie []byte) ([]byte, error) {
	cookieValue, err := s.crypto.Int64FromBytes(cookie)
	if err != nil {
		return nil, fmt.Errorf("failed to derive hash cookie: %w", err)
	}

	record, err := json.Marshal(sessionHashRecord{
		HashCookie: s.crypto.EncodeBase64(s.crypto.Int64ToBytes(cookieValue >> 4)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize hash record: %w", err)
	}

	inner := s.crypto.HMAC(key, record)
	return s.crypto.HMAC(key, s.crypto.Slice(inner, validatorSliceOffset, validatorSliceLength)), nil
}
