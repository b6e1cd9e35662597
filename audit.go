package authcore

import (
	"context"
	"io"
	"log/slog"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/ids"
)

// AuditEvent is one security-relevant operation record.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = audit.Sink

// AuditAction and AuditSeverity classify events.
type (
	AuditAction   = audit.Action
	AuditSeverity = audit.Severity
)

const (
	AuditLogin             = audit.ActionLogin
	AuditLogout            = audit.ActionLogout
	AuditRefreshToken      = audit.ActionRefreshToken
	AuditRevokeAllSessions = audit.ActionRevokeAllSessions
	AuditTokenReused       = audit.ActionTokenReused
	AuditMFAVerified       = audit.ActionMFAVerified

	SeverityInfo = audit.SeverityInfo
	SeverityHigh = audit.SeverityHigh
)

// NoOpSink discards events.
type NoOpSink = audit.NoOpSink

// ChannelSink exposes events on a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// SlogSink writes one structured log record per event.
type SlogSink = audit.SlogSink

func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

func NewSlogSink(l *slog.Logger) *SlogSink { return audit.NewSlogSink(l) }

// emitAudit fills identity, timestamp and client IP, and hands the event to
// the dispatcher. It never blocks an info event when the buffer is full and
// DropIfFull is set.
func (e *Engine) emitAudit(ctx context.Context, ev AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	ev.ID = ids.New()
	ev.Timestamp = e.now()
	if ev.Severity == "" {
		ev.Severity = SeverityInfo
	}
	if ev.IP == "" {
		ev.IP = ClientIPFromContext(ctx)
	}
	if !ev.Success && ev.Code == "" {
		ev.Code = string(CodeInternal)
	}
	e.audit.Emit(ctx, ev)
}
