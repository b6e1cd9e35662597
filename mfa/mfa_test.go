package mfa

import (
	"context"
	"encoding/base32"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/store"
)

func newMarkers(t *testing.T) (*RedisMarkerStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisMarkerStore(client, ""), mr
}

func TestGateDecisions(t *testing.T) {
	markers, _ := newMarkers(t)
	now := time.Unix(1_700_000_000, 0)
	gate := NewGate("SUPER_ADMIN", markers, time.Minute, func() time.Time { return now })
	ctx := context.Background()

	res, err := gate.Evaluate(ctx, &store.Identity{ID: "u1", GlobalRole: "USER", MFAEnabled: true})
	if err != nil || res.Decision != DecisionIssue {
		t.Fatalf("non-elevated: %v %v", res.Decision, err)
	}

	res, err = gate.Evaluate(ctx, &store.Identity{ID: "u2", GlobalRole: "SUPER_ADMIN"})
	if err != nil || res.Decision != DecisionIssueSetupRequired {
		t.Fatalf("elevated without mfa: %v %v", res.Decision, err)
	}

	admin := &store.Identity{ID: "u3", GlobalRole: "SUPER_ADMIN", MFAEnabled: true}
	res, err = gate.Evaluate(ctx, admin)
	if err != nil || res.Decision != DecisionChallenge {
		t.Fatalf("elevated unverified: %v %v", res.Decision, err)
	}
	if res.Challenge == nil || res.Challenge.UserID != "u3" || !res.Challenge.MFARequired ||
		res.Challenge.Type != ChallengeTypeTOTP || !res.Challenge.ExpiresAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected challenge %+v", res.Challenge)
	}

	if err := markers.SetVerified(ctx, "u3", time.Minute); err != nil {
		t.Fatalf("set verified: %v", err)
	}
	res, err = gate.Evaluate(ctx, admin)
	if err != nil || res.Decision != DecisionIssue || !res.MarkerPending {
		t.Fatalf("elevated verified: %v pending=%v %v", res.Decision, res.MarkerPending, err)
	}
	// Evaluate only peeks; the marker survives until Consume.
	res, err = gate.Evaluate(ctx, admin)
	if err != nil || res.Decision != DecisionIssue {
		t.Fatalf("evaluate must not spend the marker, got %v %v", res.Decision, err)
	}

	res, err = gate.Consume(ctx, admin.ID)
	if err != nil || res.Decision != DecisionIssue {
		t.Fatalf("consume: %v %v", res.Decision, err)
	}
	res, err = gate.Consume(ctx, admin.ID)
	if err != nil || res.Decision != DecisionChallenge || res.Challenge == nil {
		t.Fatalf("marker must be single-use, got %v %v", res.Decision, err)
	}
	res, err = gate.Evaluate(ctx, admin)
	if err != nil || res.Decision != DecisionChallenge {
		t.Fatalf("after consume: %v %v", res.Decision, err)
	}
}

func TestGateFailsClosed(t *testing.T) {
	markers, mr := newMarkers(t)
	gate := NewGate("SUPER_ADMIN", markers, 0, nil)
	mr.Close()

	_, err := gate.Evaluate(context.Background(), &store.Identity{ID: "u1", GlobalRole: "SUPER_ADMIN", MFAEnabled: true})
	if !errors.Is(err, ErrMarkerUnavailable) {
		t.Fatalf("expected ErrMarkerUnavailable, got %v", err)
	}

	nilStore := NewGate("SUPER_ADMIN", nil, 0, nil)
	if _, err := nilStore.Evaluate(context.Background(), &store.Identity{ID: "u1", GlobalRole: "SUPER_ADMIN", MFAEnabled: true}); !errors.Is(err, ErrMarkerUnavailable) {
		t.Fatalf("missing store: expected ErrMarkerUnavailable, got %v", err)
	}
}

func TestMarkerExpiresAndClears(t *testing.T) {
	markers, mr := newMarkers(t)
	ctx := context.Background()

	if err := markers.SetVerified(ctx, "u1", time.Minute); err != nil {
		t.Fatalf("set verified: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if ok, err := markers.ConsumeVerified(ctx, "u1"); err != nil || ok {
		t.Fatalf("expired marker consumed: %v %v", ok, err)
	}

	if err := markers.SetVerified(ctx, "u1", time.Minute); err != nil {
		t.Fatalf("set verified: %v", err)
	}
	if err := markers.Clear(ctx, "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if mr.Exists("mfav:u1") {
		t.Fatal("marker must be removed by Clear")
	}
	if err := markers.SetVerified(ctx, "u1", 0); err == nil {
		t.Fatal("zero ttl must be rejected")
	}
}

func TestTOTPRFCVectors(t *testing.T) {
	tests := []struct {
		algorithm string
		secret    string
		vectors   map[int64]string
	}{
		{
			algorithm: "SHA1",
			secret:    "12345678901234567890",
			vectors:   map[int64]string{59: "94287082", 1111111109: "07081804", 1234567890: "89005924", 20000000000: "65353130"},
		},
		{
			algorithm: "SHA256",
			secret:    "12345678901234567890123456789012",
			vectors:   map[int64]string{59: "46119246", 1111111109: "68084774", 1234567890: "91819424", 20000000000: "77737706"},
		},
		{
			algorithm: "SHA512",
			secret:    "1234567890123456789012345678901234567890123456789012345678901234",
			vectors:   map[int64]string{59: "90693936", 1111111109: "25091201", 1234567890: "93441116", 20000000000: "47863826"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			totp, err := NewTOTP(TOTPConfig{Issuer: "authcore", Digits: 8, Algorithm: tt.algorithm})
			if err != nil {
				t.Fatalf("new totp: %v", err)
			}
			for ts, code := range tt.vectors {
				ok, _, err := totp.Verify([]byte(tt.secret), code, time.Unix(ts, 0))
				if err != nil || !ok {
					t.Fatalf("vector t=%d failed: ok=%v err=%v", ts, ok, err)
				}
			}
		})
	}
}

func TestTOTPVerifyBase32(t *testing.T) {
	totp, err := NewTOTP(TOTPConfig{Issuer: "authcore", Skew: 1})
	if err != nil {
		t.Fatalf("new totp: %v", err)
	}
	raw, encoded, err := totp.GenerateSecret()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw); got != encoded {
		t.Fatal("encoded secret must match raw bytes")
	}

	now := time.Unix(1_700_000_000, 0)
	code, err := totp.Code(raw, now.Add(-30*time.Second))
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if ok, err := totp.VerifyBase32(encoded, code, now); err != nil || !ok {
		t.Fatalf("previous step within skew must verify: %v %v", ok, err)
	}
	if ok, _ := totp.VerifyBase32(encoded, code, now.Add(2*time.Minute)); ok {
		t.Fatal("code outside skew must not verify")
	}
	if ok, _ := totp.VerifyBase32(encoded, "12ab56", now); ok {
		t.Fatal("non-numeric code must not verify")
	}
	if _, err := totp.VerifyBase32("", code, now); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}

func TestNewTOTPValidation(t *testing.T) {
	if _, err := NewTOTP(TOTPConfig{Digits: 7}); err == nil {
		t.Fatal("7 digits must be rejected")
	}
	if _, err := NewTOTP(TOTPConfig{Algorithm: "MD5"}); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}
