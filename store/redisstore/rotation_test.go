package redisstore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/device"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/refresh"
)

func TestRefreshEngineOverRedis(t *testing.T) {
	s, _ := newStore(t)
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
	tracker := device.NewTracker(s, s, nil)
	engine := refresh.New(s, mgr, tracker, refresh.Options{})
	ctx := context.Background()

	dev, err := tracker.UpsertDevice(ctx, "u1", device.Context{UserAgent: "ua"})
	if err != nil {
		t.Fatalf("upsert device: %v", err)
	}
	issued, err := engine.Issue(ctx, jwt.Subject{UserID: "u1", TenantID: "tA", Role: "OWNER", DeviceID: dev.Device.ID}, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rebuild := func(_ context.Context, prev *jwt.Claims) (jwt.Subject, error) {
		return jwt.Subject{UserID: prev.UID, TenantID: prev.TenantID, Role: prev.Role}, nil
	}

	var wins, reused atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := engine.Rotate(ctx, issued.Pair.RefreshToken, rebuild)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, refresh.ErrRefreshReused):
				reused.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 || reused.Load() != 15 {
		t.Fatalf("wins=%d reused=%d", wins.Load(), reused.Load())
	}
	if n, _ := s.CountActiveDeviceTokens(ctx, "u1", dev.Device.ID, time.Now()); n > 1 {
		t.Fatalf("at most one usable token may remain, got %d", n)
	}
}

func TestTrackerReportsNewDeviceOverRedis(t *testing.T) {
	s, _ := newStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	tracker := device.NewTracker(s, s, func() time.Time { return now })
	ctx := context.Background()

	first, err := tracker.UpsertDevice(ctx, "u1", device.Context{UserAgent: "ua"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !first.IsNew {
		t.Fatalf("first sight must be new, created=%v", first.Device.CreatedAt)
	}
	if !first.Device.CreatedAt.Equal(now.Truncate(time.Millisecond)) {
		t.Fatalf("created = %v", first.Device.CreatedAt)
	}

	again, err := tracker.UpsertDevice(ctx, "u1", device.Context{UserAgent: "ua"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if again.IsNew {
		t.Fatal("second sight must not be new")
	}
}
