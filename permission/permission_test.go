package permission

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/store"
)

type countingStore struct {
	mu    sync.Mutex
	rows  map[string][]store.RolePermission
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (s *countingStore) RoleCapabilities(_ context.Context, role string) ([]store.RolePermission, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.rows[role], nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCapabilityMatches(t *testing.T) {
	tests := []struct {
		cap      string
		resource string
		action   string
		scope    Scope
		want     bool
	}{
		{"invoices.read:tenant", "invoices", "read", ScopeTenant, true},
		{"invoices.read:tenant", "invoices", "read", ScopeOwn, true},
		{"invoices.read:tenant", "invoices", "read", ScopeAll, false},
		{"invoices.read:own", "invoices", "read", ScopeTenant, false},
		{"invoices.*:own", "invoices", "delete", ScopeOwn, true},
		{"*.read:all", "payroll", "read", ScopeAll, true},
		{"*.read:all", "payroll", "write", ScopeOwn, false},
		{"*.*:all", "anything", "whatever", ScopeTenant, true},
		{"users.read:tenant", "invoices", "read", ScopeTenant, false},
	}
	for _, tt := range tests {
		c, err := ParseCapability(tt.cap)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.cap, err)
		}
		if got := c.Matches(tt.resource, tt.action, tt.scope); got != tt.want {
			t.Errorf("%s matches (%s,%s,%s) = %v, want %v", tt.cap, tt.resource, tt.action, tt.scope, got, tt.want)
		}
	}
}

func TestWildcardResourceIsMonotonic(t *testing.T) {
	wild := Capability{Resource: Wildcard, Action: "read", Scope: ScopeTenant}
	for _, resource := range []string{"invoices", "users", "x", "reports"} {
		if !wild.Matches(resource, "read", ScopeTenant) {
			t.Fatalf("wildcard must grant %s", resource)
		}
	}
}

func TestParseCapability(t *testing.T) {
	c, err := ParseCapability("reports.export")
	if err != nil || c.Scope != ScopeTenant {
		t.Fatalf("default scope: %+v %v", c, err)
	}
	if c.String() != "reports.export:tenant" {
		t.Fatalf("unexpected string %q", c.String())
	}
	for _, bad := range []string{"", "nodot", ".read", "x.", "x.y:galaxy"} {
		if _, err := ParseCapability(bad); !errors.Is(err, ErrInvalidCapability) {
			t.Errorf("%q: expected ErrInvalidCapability, got %v", bad, err)
		}
	}
}

func TestTableFreeze(t *testing.T) {
	tbl := NewTable()
	if err := tbl.RegisterStrings("R", []string{"a.b:own"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := tbl.RegisterStrings("R", []string{"a.b:own"}); err == nil {
		t.Fatal("duplicate role must fail")
	}
	tbl.Freeze()
	if err := tbl.RegisterStrings("S", nil); err == nil {
		t.Fatal("register after freeze must fail")
	}
	caps, ok := tbl.Lookup("R")
	if !ok || len(caps) != 1 {
		t.Fatalf("lookup: %v %v", caps, ok)
	}
	caps[0].Resource = "mutated"
	again, _ := tbl.Lookup("R")
	if again[0].Resource != "a" {
		t.Fatal("Lookup must return a copy")
	}
}

func TestResolverPrefersStore(t *testing.T) {
	st := &countingStore{rows: map[string][]store.RolePermission{
		RoleStaffMember: {{Role: RoleStaffMember, Resource: "tickets", Action: "close", Scope: "own"}},
	}}
	r := NewResolver(st, nil, WithLogger(quietLogger()))
	ctx := context.Background()

	if !r.HasPermission(ctx, RoleStaffMember, "tickets", "close", ScopeOwn) {
		t.Fatal("store capability must grant")
	}
	if r.HasPermission(ctx, RoleStaffMember, "invoices", "read", ScopeTenant) {
		t.Fatal("static entry must not leak in when the store answered")
	}
	if got := r.UserPermissions(ctx, RoleStaffMember); !reflect.DeepEqual(got, []string{"tickets.close"}) {
		t.Fatalf("unexpected permission names %v", got)
	}
	if st.calls.Load() != 1 {
		t.Fatalf("second lookup must hit the cache, store calls = %d", st.calls.Load())
	}
	if r.Fallbacks() != 0 {
		t.Fatal("no fallback expected")
	}
}

func TestResolverFallsBackToStaticOnStoreError(t *testing.T) {
	st := &countingStore{err: errors.New("connection refused")}
	var hooked atomic.Int32
	r := NewResolver(st, nil,
		WithLogger(quietLogger()),
		WithFallbackHook(func(role string, err error) { hooked.Add(1) }),
	)
	ctx := context.Background()

	if !r.HasPermission(ctx, RoleOwner, "invoices", "delete", ScopeTenant) {
		t.Fatal("static table must answer during store failure")
	}
	names := r.UserPermissions(ctx, RoleViewer)
	if !reflect.DeepEqual(names, []string{"*.read"}) {
		t.Fatalf("unexpected fallback names %v", names)
	}
	if r.Fallbacks() != 2 || hooked.Load() != 2 {
		t.Fatalf("fallbacks=%d hooks=%d, want 2", r.Fallbacks(), hooked.Load())
	}
}

func TestResolverEmptyStoreUsesStaticEntry(t *testing.T) {
	st := &countingStore{rows: map[string][]store.RolePermission{}}
	r := NewResolver(st, nil, WithLogger(quietLogger()))
	if !r.HasPermission(context.Background(), RoleAdmin, "users", "invite", ScopeTenant) {
		t.Fatal("static entry must answer for roles the store does not know")
	}
	if r.Fallbacks() != 0 {
		t.Fatal("an empty answer is not a store failure")
	}
}

func TestResolverCollapsesConcurrentLookups(t *testing.T) {
	st := &countingStore{
		rows: map[string][]store.RolePermission{"R": {{Resource: "a", Action: "b", Scope: "all"}}},
		gate: make(chan struct{}),
	}
	r := NewResolver(st, NewTable(), WithLogger(quietLogger()), WithCacheTTL(0))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !r.HasPermission(context.Background(), "R", "a", "b", ScopeOwn) {
				t.Error("expected grant")
			}
		}()
	}
	// Let the goroutines pile up on the in-flight lookup, then release it.
	time.Sleep(50 * time.Millisecond)
	close(st.gate)
	wg.Wait()

	if n := st.calls.Load(); n < 1 || n > 8 {
		t.Fatalf("unexpected store call count %d", n)
	}
}

func TestResolverCacheExpiry(t *testing.T) {
	now := time.Now()
	st := &countingStore{rows: map[string][]store.RolePermission{"R": {{Resource: "a", Action: "b", Scope: "own"}}}}
	r := NewResolver(st, NewTable(),
		WithLogger(quietLogger()),
		WithCacheTTL(time.Second),
		WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()
	r.Capabilities(ctx, "R")
	r.Capabilities(ctx, "R")
	if st.calls.Load() != 1 {
		t.Fatalf("expected cached second lookup, calls=%d", st.calls.Load())
	}
	now = now.Add(2 * time.Second)
	r.Capabilities(ctx, "R")
	if st.calls.Load() != 2 {
		t.Fatalf("expected refetch after expiry, calls=%d", st.calls.Load())
	}
	r.Invalidate()
	r.Capabilities(ctx, "R")
	if st.calls.Load() != 3 {
		t.Fatalf("expected refetch after invalidate, calls=%d", st.calls.Load())
	}
}

func TestCheckUnknownRole(t *testing.T) {
	r := NewResolver(nil, nil)
	if _, err := r.Check(context.Background(), "NOPE", "a", "b", ScopeOwn); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	ok, err := r.Check(context.Background(), RoleSuperAdmin, "billing", "refund", ScopeAll)
	if err != nil || !ok {
		t.Fatalf("super admin must be granted: %v %v", ok, err)
	}
}
