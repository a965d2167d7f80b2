package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Key sizes used by the token protocol.
const (
	SessionKeyBits = 128
	CookieBits     = 64
	UserKeyBits    = 128
)

// Crypto bundles the symmetric primitives behind the token protocol. It is
// an immutable value constructed once at startup and injected into the
// token services, so there is no process-wide mutable MAC or generator
// state and key sizes stay swappable for testing.
type Crypto struct{}

// NewCrypto returns the primitive set. Construction cannot fail: the MAC
// algorithm is fixed to HMAC-SHA256, which the runtime always provides.
func NewCrypto() Crypto {
	return Crypto{}
}

// GenerateKey returns bits/8 bytes from the cryptographically secure
// random source. An invalid bit size is a configuration error and is
// expected to be caught at process startup.
func (Crypto) GenerateKey(bits int) ([]byte, error) {
	if bits <= 0 || bits%8 != 0 {
		return nil, fmt.Errorf("invalid key size: %d bits", bits)
	}
	key := make([]byte, bits/8)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate %d-bit key: %w", bits, err)
	}
	return key, nil
}

// HMAC computes the HMAC-SHA256 tag of message under key.
func (Crypto) HMAC(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

// Slice returns a copy of length bytes of buf starting at offset.
func (Crypto) Slice(buf []byte, offset, length int) []byte {
	out := make([]byte, length)
	copy(out, buf[offset:offset+length])
	return out
}

// Concat joins buffers into a single new slice.
func (Crypto) Concat(bufs ...[]byte) []byte {
	var n int
	for _, b := range bufs {
		n += len(b)
	}
	out := make([]byte, 0, n)
	for _, b := range bufs {
		out = append(out, b...)
	}
	return out
}

// EncodeBase64 and DecodeBase64 use standard (padded) base64, the encoding
// the mobile clients use on the wire.
func (Crypto) EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func (Crypto) DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// Int64FromBytes interprets exactly 8 bytes as a big-endian signed 64-bit
// integer. The sign matters: the cookie derivation shifts this value
// arithmetically.
func (Crypto) Int64FromBytes(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("expected 8 bytes, got %d", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// Int64ToBytes is the inverse of Int64FromBytes.
func (Crypto) Int64ToBytes(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// RandomDigits returns n secure random decimal digits.
func (c Crypto) RandomDigits(n int) (string, error) {
	return c.randomFromAlphabet("0123456789", n)
}

// RandomUppercaseLetters returns n secure random uppercase letters.
func (c Crypto) RandomUppercaseLetters(n int) (string, error) {
	return c.randomFromAlphabet("ABCDEFGHIJKLMNOPQRSTUVWXYZ", n)
}

func (Crypto) randomFromAlphabet(alphabet string, n int) (string, error) {
	out := make([]byte, n)
	// Rejection sampling keeps the distribution uniform.
	limit := byte(256 - 256%len(alphabet))
	buf := make([]byte, 1)
	for i := 0; i < n; {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		if buf[0] >= limit {
			continue
		}
		out[i] = alphabet[int(buf[0])%len(alphabet)]
		i++
	}
	return string(out), nil
}
