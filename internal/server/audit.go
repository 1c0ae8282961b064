// Package server reports every connection and routing decision to an audit
// sink so rejected traffic can be reconstructed after the fact. Records
// carry identifiers and reasons only: raw credentials and message bodies are
// never logged.
package server

import (
	"log/slog"
	"time"
)

// Audit record kinds.
const (
	AuditConnectionAccepted = "connection.accepted"
	AuditConnectionRejected = "connection.rejected"
	AuditConnectionClosed   = "connection.closed"
	AuditEventRateLimited   = "event.rate_limited"
	AuditRouteRejected      = "route.rejected"
	AuditRouteDelivered     = "route.delivered"
)

// AuditEvent is one observable decision made by the relay.
type AuditEvent struct {
	Kind        string
	ConnID      string
	Tenant      string
	UserID      int64
	Reason      string
	Destination string
	MessageLen  int
	Delivered   int
	Duration    time.Duration
}

// AuditSink consumes audit events. Implementations must be safe for
// concurrent use; every connection goroutine reports through the same sink.
type AuditSink interface {
	Consume(AuditEvent)
}

// LogSink writes audit events through a structured logger.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink creates an audit sink backed by the given logger. A nil logger
// falls back to slog.Default.
func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Consume(e AuditEvent) {
	attrs := make([]any, 0, 8)
	attrs = append(attrs, "conn_id", e.ConnID)
	if e.Tenant != "" {
		attrs = append(attrs, "tenant", e.Tenant)
	}
	if e.UserID > 0 {
		attrs = append(attrs, "user_id", e.UserID)
	}
	if e.Reason != "" {
		attrs = append(attrs, "reason", e.Reason)
	}
	if e.Destination != "" {
		attrs = append(attrs, "destination", e.Destination)
	}
	if e.MessageLen > 0 {
		attrs = append(attrs, "message_len", e.MessageLen)
	}
	if e.Kind == AuditRouteDelivered {
		attrs = append(attrs, "delivered", e.Delivered)
	}
	if e.Duration > 0 {
		attrs = append(attrs, "duration", e.Duration)
	}

	switch e.Kind {
	case AuditConnectionRejected, AuditRouteRejected, AuditEventRateLimited:
		s.log.Warn(e.Kind, attrs...)
	default:
		s.log.Info(e.Kind, attrs...)
	}
}
