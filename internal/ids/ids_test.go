package ids

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestNewAtIsMonotonicWithinMillisecond(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	prev := NewAt(at)
	for i := 0; i < 100; i++ {
		next := NewAt(at)
		if next <= prev {
			t.Fatalf("expected %s > %s", next, prev)
		}
		prev = next
	}
}

func TestNewParses(t *testing.T) {
	id := New()
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		t.Fatalf("parse ulid: %v", err)
	}
	if d := time.Since(ulid.Time(parsed.Time())); d < 0 || d > time.Minute {
		t.Fatalf("unexpected ulid timestamp drift: %v", d)
	}
}
