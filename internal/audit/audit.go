package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Action names a security-relevant operation.
type Action string

const (
	ActionLogin             Action = "LOGIN"
	ActionLogout            Action = "LOGOUT"
	ActionRefreshToken      Action = "REFRESH_TOKEN"
	ActionRevokeAllSessions Action = "REVOKE_ALL_SESSIONS"
	ActionTokenReused       Action = "TOKEN_REUSED"
	ActionMFAVerified       Action = "MFA_VERIFIED"
)

// Severity grades an event for alerting.
type Severity string

const (
	SeverityInfo Severity = "info"
	SeverityHigh Severity = "high"
)

// Event is the canonical audit record.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Action    Action            `json:"action"`
	Severity  Severity          `json:"severity"`
	Success   bool              `json:"success"`
	Code      string            `json:"code,omitempty"`
	ActorID   string            `json:"actor_id,omitempty"`
	TenantID  string            `json:"tenant_id,omitempty"`
	Role      string            `json:"role,omitempty"`
	DeviceID  string            `json:"device_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Before    map[string]string `json:"before,omitempty"`
	After     map[string]string `json:"after,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(data)
}

// SlogSink logs each event as one structured record. High-severity events are
// logged at warn level.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(l *slog.Logger) *SlogSink {
	if l == nil {
		l = slog.Default()
	}
	return &SlogSink{logger: l}
}

func (s *SlogSink) Emit(ctx context.Context, event Event) {
	level := slog.LevelInfo
	if event.Severity == SeverityHigh {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("audit_id", event.ID),
		slog.String("action", string(event.Action)),
		slog.String("severity", string(event.Severity)),
		slog.Bool("success", event.Success),
		slog.String("actor_id", event.ActorID),
		slog.String("tenant_id", event.TenantID),
		slog.String("role", event.Role),
		slog.String("device_id", event.DeviceID),
	}
	if event.Code != "" {
		attrs = append(attrs, slog.String("code", event.Code))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if len(event.Before) > 0 {
		attrs = append(attrs, slog.Any("before", event.Before))
	}
	if len(event.After) > 0 {
		attrs = append(attrs, slog.Any("after", event.After))
	}
	s.logger.LogAttrs(ctx, level, "audit", attrs...)
}
