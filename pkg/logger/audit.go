package logger

import (
	"context"
	"log/slog"
	"time"
)

// TamperEvent records a structurally valid credential that failed a
// cryptographic check. The raw token and source address are kept intact so
// a downstream blocking policy can consume them.
type TamperEvent struct {
	TokenKind string // "session" or "user"
	Token     string
	Address   string
	Reason    string
}

// ThrottleEvent records a denied verification-code request.
type ThrottleEvent struct {
	Gate       string // "minimum_interval", "address_window", "contact_window"
	Address    string
	Channel    string
	Identifier string
	Wait       time.Duration
}

// AuditLogger emits security events as structured log records.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogTamperAttempt logs a tampering attempt at Warn.
func (al *AuditLogger) LogTamperAttempt(event TamperEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "tampering"),
		slog.String("token_kind", event.TokenKind),
		slog.String("token", event.Token),
		slog.String("address", event.Address),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
}

// LogThrottleDenial logs a rate-limit denial at Info. Denials are designed
// outcomes, not faults.
func (al *AuditLogger) LogThrottleDenial(event ThrottleEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "throttle"),
		slog.String("gate", event.Gate),
		slog.String("address", event.Address),
		slog.Duration("wait", event.Wait),
	}
	if event.Channel != "" {
		attrs = append(attrs, slog.String("channel", event.Channel))
	}
	if event.Identifier != "" {
		attrs = append(attrs, slog.String("identifier", event.Identifier))
	}
	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}
