package refresh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/device"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/memstore"
)

type harness struct {
	engine  *Engine
	store   *memstore.Store
	manager *jwt.Manager
	tracker *device.Tracker
	reuses  chan ReuseEvent
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	mgr, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "authcore",
		Audience:      "platform-api",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	st := memstore.New()
	tr := device.NewTracker(st, st, nil)
	h := &harness{store: st, manager: mgr, tracker: tr, reuses: make(chan ReuseEvent, 64)}
	h.engine = New(st, mgr, tr, Options{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnReuse: func(_ context.Context, ev ReuseEvent) { h.reuses <- ev },
	})
	return h
}

func (h *harness) login(t *testing.T, userID string, dc device.Context) Issued {
	t.Helper()
	ctx := context.Background()
	d, err := h.tracker.UpsertDevice(ctx, userID, dc)
	if err != nil {
		t.Fatalf("upsert device: %v", err)
	}
	issued, err := h.engine.Issue(ctx, jwt.Subject{UserID: userID, TenantID: "tA", Role: "OWNER", DeviceID: d.Device.ID}, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return issued
}

func keep(_ context.Context, prev *jwt.Claims) (jwt.Subject, error) {
	return jwt.Subject{UserID: prev.UID, TenantID: prev.TenantID, Role: prev.Role}, nil
}

func usable(t *testing.T, h *harness, userID, deviceID string) int {
	t.Helper()
	n, err := h.store.CountActiveDeviceTokens(context.Background(), userID, deviceID, time.Now())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestRotateIssuesSuccessorAndRetiresPredecessor(t *testing.T) {
	h := newHarness(t)
	first := h.login(t, "u1", device.Context{UserAgent: "ua"})

	rotated, err := h.engine.Rotate(context.Background(), first.Pair.RefreshToken, keep)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.Record.FamilyID != first.Record.FamilyID {
		t.Fatal("rotation must stay in the same family")
	}
	if rotated.Record.DeviceID != first.Record.DeviceID {
		t.Fatal("rotation must stay bound to the device")
	}
	if n := usable(t, h, "u1", first.Record.DeviceID); n != 1 {
		t.Fatalf("expected exactly one usable token after rotation, got %d", n)
	}
	old, _ := h.store.FindRefreshToken(context.Background(), first.Record.Hash)
	if !old.Used {
		t.Fatal("predecessor must be marked used")
	}
}

func TestReusedTokenRevokesDeviceLineageOnly(t *testing.T) {
	h := newHarness(t)
	laptop := h.login(t, "u1", device.Context{UserAgent: "laptop"})
	phone := h.login(t, "u1", device.Context{UserAgent: "phone"})

	rotated, err := h.engine.Rotate(context.Background(), laptop.Pair.RefreshToken, keep)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}

	replayed, err := h.engine.Rotate(context.Background(), laptop.Pair.RefreshToken, keep)
	if !errors.Is(err, ErrRefreshReused) {
		t.Fatalf("expected ErrRefreshReused, got %v", err)
	}
	if replayed.Previous == nil || replayed.Previous.UID != "u1" || replayed.Previous.TenantID != "tA" {
		t.Fatalf("failed rotation must expose the verified claims, got %+v", replayed.Previous)
	}
	if n := usable(t, h, "u1", laptop.Record.DeviceID); n != 0 {
		t.Fatalf("reuse must leave zero usable tokens for the device, got %d", n)
	}
	if n := usable(t, h, "u1", phone.Record.DeviceID); n != 1 {
		t.Fatalf("other devices must be untouched, got %d", n)
	}
	if _, err := h.engine.Rotate(context.Background(), rotated.Pair.RefreshToken, keep); !errors.Is(err, ErrRefreshExpired) {
		t.Fatalf("successor revoked by the cascade must be expired, got %v", err)
	}

	select {
	case ev := <-h.reuses:
		if ev.UserID != "u1" || ev.DeviceID != laptop.Record.DeviceID || ev.Revoked != 1 || ev.Role != "OWNER" {
			t.Fatalf("unexpected reuse event %+v", ev)
		}
	default:
		t.Fatal("reuse hook not called")
	}

	devices, _ := h.store.ListUserDevices(context.Background(), "u1")
	for _, d := range devices {
		if d.ID == laptop.Record.DeviceID && d.Active {
			t.Fatal("device with no usable tokens must be deactivated")
		}
		if d.ID == phone.Record.DeviceID && !d.Active {
			t.Fatal("phone must stay active")
		}
	}
}

func TestAccessTokenRejectedBeforeStoreLookup(t *testing.T) {
	h := newHarness(t)
	issued := h.login(t, "u1", device.Context{UserAgent: "ua"})

	called := false
	_, err := h.engine.Rotate(context.Background(), issued.Pair.AccessToken, func(context.Context, *jwt.Claims) (jwt.Subject, error) {
		called = true
		return jwt.Subject{}, nil
	})
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
	if called {
		t.Fatal("rebuild must not run for an access token")
	}
	if n := usable(t, h, "u1", issued.Record.DeviceID); n != 1 {
		t.Fatal("rejected access token must not touch stored refresh tokens")
	}
}

func TestUnknownTokenIsExpired(t *testing.T) {
	h := newHarness(t)
	pair, err := h.manager.IssuePair(jwt.Subject{UserID: "u1", DeviceID: "d"}, "f")
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if _, err := h.engine.Rotate(context.Background(), pair.RefreshToken, keep); !errors.Is(err, ErrRefreshExpired) {
		t.Fatalf("expected ErrRefreshExpired, got %v", err)
	}
}

func TestRebuildErrorLeavesTokenUsable(t *testing.T) {
	h := newHarness(t)
	issued := h.login(t, "u1", device.Context{UserAgent: "ua"})
	inactive := errors.New("account inactive")

	_, err := h.engine.Rotate(context.Background(), issued.Pair.RefreshToken, func(context.Context, *jwt.Claims) (jwt.Subject, error) {
		return jwt.Subject{}, inactive
	})
	if !errors.Is(err, inactive) {
		t.Fatalf("expected rebuild error, got %v", err)
	}
	rec, _ := h.store.FindRefreshToken(context.Background(), issued.Record.Hash)
	if rec.Used {
		t.Fatal("aborted rotation must not consume the token")
	}
}

type failingInsertStore struct {
	*memstore.Store
}

func (f failingInsertStore) RotateRefreshToken(context.Context, string, *store.RefreshToken, time.Time) error {
	return store.ErrUnavailable
}

func TestRotationPersistenceFailureKeepsPredecessor(t *testing.T) {
	h := newHarness(t)
	issued := h.login(t, "u1", device.Context{UserAgent: "ua"})
	broken := New(failingInsertStore{h.store}, h.manager, h.tracker, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	_, err := broken.Rotate(context.Background(), issued.Pair.RefreshToken, keep)
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected store failure, got %v", err)
	}
	if errors.Is(err, ErrRefreshReused) || errors.Is(err, ErrRefreshExpired) {
		t.Fatal("persistence failure must not masquerade as a token state")
	}
	rec, _ := h.store.FindRefreshToken(context.Background(), issued.Record.Hash)
	if rec.Used {
		t.Fatal("predecessor must remain usable when the successor was not persisted")
	}
}

func TestConcurrentRotationSingleWinner(t *testing.T) {
	h := newHarness(t)
	issued := h.login(t, "u1", device.Context{UserAgent: "ua"})

	var wins, reused atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.engine.Rotate(context.Background(), issued.Pair.RefreshToken, keep)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrRefreshReused):
				reused.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
	if reused.Load() != 15 {
		t.Fatalf("expected 15 reuse detections, got %d", reused.Load())
	}
	if n := usable(t, h, "u1", issued.Record.DeviceID); n > 1 {
		t.Fatalf("at most one usable token may remain, got %d", n)
	}
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	issued := h.login(t, "u1", device.Context{UserAgent: "ua"})
	ctx := context.Background()

	if _, err := h.engine.Logout(ctx, issued.Pair.RefreshToken, "someone-else"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("foreign user: expected ErrInvalidRefreshToken, got %v", err)
	}
	if _, err := h.engine.Logout(ctx, issued.Pair.AccessToken, "u1"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("access token: expected ErrInvalidRefreshToken, got %v", err)
	}

	res, err := h.engine.Logout(ctx, issued.Pair.RefreshToken, "u1")
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if !res.Revoked || res.DeviceActive || res.TenantID != "tA" || res.Role != "OWNER" {
		t.Fatalf("unexpected logout result %+v", res)
	}

	again, err := h.engine.Logout(ctx, issued.Pair.RefreshToken, "u1")
	if err != nil || again.Revoked {
		t.Fatalf("second logout must be an idempotent success: %+v %v", again, err)
	}
}

func TestRevokeAll(t *testing.T) {
	h := newHarness(t)
	a := h.login(t, "u1", device.Context{UserAgent: "a"})
	b := h.login(t, "u1", device.Context{UserAgent: "b"})
	other := h.login(t, "u2", device.Context{UserAgent: "a"})

	rotatedA, err := h.engine.Rotate(context.Background(), a.Pair.RefreshToken, keep)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}

	res, err := h.engine.RevokeAll(context.Background(), "u1")
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if res.Tokens != 2 || res.Devices != 2 {
		t.Fatalf("unexpected counts %+v", res)
	}

	if _, err := h.engine.Rotate(context.Background(), b.Pair.RefreshToken, keep); !errors.Is(err, ErrRefreshExpired) {
		t.Fatalf("revoked token: expected ErrRefreshExpired, got %v", err)
	}
	if _, err := h.engine.Rotate(context.Background(), rotatedA.Pair.RefreshToken, keep); !errors.Is(err, ErrRefreshExpired) {
		t.Fatalf("revoked successor: expected ErrRefreshExpired, got %v", err)
	}
	if _, err := h.engine.Rotate(context.Background(), a.Pair.RefreshToken, keep); !errors.Is(err, ErrRefreshReused) {
		t.Fatalf("previously rotated token: expected ErrRefreshReused, got %v", err)
	}

	devices, _ := h.store.ListUserDevices(context.Background(), "u1")
	for _, d := range devices {
		if d.Active {
			t.Fatalf("device %s must be inactive", d.ID)
		}
	}
	if n := usable(t, h, "u2", other.Record.DeviceID); n != 1 {
		t.Fatal("other users must be untouched")
	}
}
