package models

import (
	"fmt"
	"regexp"
	"time"
)

// ChannelType identifies the contact channel a verification code is
// delivered over. It is part of every counter and code key, replacing the
// stringly-typed table-name branching of earlier revisions.
type ChannelType string

const (
	ChannelPhone ChannelType = "phone"
	ChannelEmail ChannelType = "email"
)

// Valid reports whether c is a known channel.
func (c ChannelType) Valid() bool {
	return c == ChannelPhone || c == ChannelEmail
}

// SecurityLevel selects the verification-code format and partitions the
// per-contact throttle window.
type SecurityLevel string

const (
	SecurityLow  SecurityLevel = "low"
	SecurityHigh SecurityLevel = "high"
)

func (l SecurityLevel) Valid() bool {
	return l == SecurityLow || l == SecurityHigh
}

const (
	// LowSecurityCodeLength is the digit count of a low-level code.
	LowSecurityCodeLength = 6
	// HighSecurityCodeLength is the letter count of a high-level code.
	HighSecurityCodeLength = 8
)

// CodePattern matches any syntactically valid submitted code.
var CodePattern = regexp.MustCompile(`^[A-Z0-9]{6,8}$`)

// ContactRef identifies a contact entity at a given security level: a
// phone number with its country code, or an email address.
type ContactRef struct {
	Channel      ChannelType
	CountryCode  int    // phone only
	PhoneNumber  string // phone only
	EmailAddress string // email only
	Level        SecurityLevel
}

// PhoneContact builds a ContactRef for a phone number.
func PhoneContact(countryCode int, number string, level SecurityLevel) ContactRef {
	return ContactRef{Channel: ChannelPhone, CountryCode: countryCode, PhoneNumber: number, Level: level}
}

// EmailContact builds a ContactRef for an email address.
func EmailContact(address string, level SecurityLevel) ContactRef {
	return ContactRef{Channel: ChannelEmail, EmailAddress: address, Level: level}
}

// Identifier returns the store key component for the contact entity:
// "<countryCode><number>" for phones, the address for email.
func (r ContactRef) Identifier() string {
	if r.Channel == ChannelPhone {
		return fmt.Sprintf("%d%s", r.CountryCode, r.PhoneNumber)
	}
	return r.EmailAddress
}

// VerificationCode is the single active code for a
// (channel, identifier, security level) tuple. A new request overwrites
// the previous code; expiry is evaluated lazily at query time, never by
// deletion.
type VerificationCode struct {
	Channel    ChannelType
	Identifier string
	Level      SecurityLevel
	Code       string
	CreatedAt  time.Time
}

// ExpiredAt reports whether the code has outlived ttl as of now.
func (v *VerificationCode) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(v.CreatedAt) > ttl
}
