package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

func (s *blockingSink) events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.got...)
}

func TestDispatcherDropsInfoButKeepsHighSeverity(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// The first event is picked up by the worker and parks in the sink, the
	// second fills the buffer, the third has nowhere to go.
	d.Emit(context.Background(), Event{Action: ActionLogin, Severity: SeverityInfo})
	time.Sleep(20 * time.Millisecond)
	d.Emit(context.Background(), Event{Action: ActionLogin, Severity: SeverityInfo})
	d.Emit(context.Background(), Event{Action: ActionLogin, Severity: SeverityInfo})
	if d.Dropped() != 1 {
		t.Fatalf("expected one dropped info event, got %d", d.Dropped())
	}

	delivered := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{Action: ActionTokenReused, Severity: SeverityHigh})
		close(delivered)
	}()
	close(sink.release)
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("high severity emit never completed")
	}
	d.Close()

	var sawReuse bool
	for _, e := range sink.events() {
		if e.Action == ActionTokenReused {
			sawReuse = true
		}
	}
	if !sawReuse {
		t.Fatal("high severity event must be delivered")
	}
	if d.Dropped() != 1 {
		t.Fatalf("high severity event must not be dropped, dropped=%d", d.Dropped())
	}
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reports zero drops")
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	s.Emit(context.Background(), Event{ID: "01H", Action: ActionRevokeAllSessions, Reason: "password changed", Success: true})
	s.Emit(context.Background(), Event{ID: "01J", Action: ActionLogout})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var first Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Action != ActionRevokeAllSessions || first.Reason != "password changed" {
		t.Fatalf("unexpected event %+v", first)
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	s := NewSlogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	s.Emit(context.Background(), Event{Action: ActionTokenReused, Severity: SeverityHigh, ActorID: "u1"})

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["level"] != "WARN" || rec["action"] != "TOKEN_REUSED" || rec["actor_id"] != "u1" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestDispatcherOnDropSeesCancelledHighSeverity(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	var (
		mu      sync.Mutex
		dropped []Action
		last    uint64
	)
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		OnDrop: func(ev Event, total uint64) {
			mu.Lock()
			defer mu.Unlock()
			dropped = append(dropped, ev.Action)
			last = total
		},
	}, sink)

	d.Emit(context.Background(), Event{Action: ActionLogin, Severity: SeverityInfo})
	time.Sleep(20 * time.Millisecond)
	d.Emit(context.Background(), Event{Action: ActionLogin, Severity: SeverityInfo})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Emit(ctx, Event{Action: ActionTokenReused, Severity: SeverityHigh})

	close(sink.release)
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(dropped) != 1 || dropped[0] != ActionTokenReused || last != 1 {
		t.Fatalf("dropped=%v last=%d", dropped, last)
	}
}
