package device

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/store"
)

// TokenCounter reports how many usable refresh tokens a device holds.
type TokenCounter interface {
	CountActiveDeviceTokens(ctx context.Context, userID, deviceID string, now time.Time) (int, error)
}

// UpsertResult is the device row after an upsert.
type UpsertResult struct {
	Device store.Device
	IsNew  bool
}

// Tracker maintains device rows.
type Tracker struct {
	devices store.DeviceStore
	tokens  TokenCounter
	now     func() time.Time
}

// NewTracker returns a Tracker. now defaults to time.Now.
func NewTracker(devices store.DeviceStore, tokens TokenCounter, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{devices: devices, tokens: tokens, now: now}
}

// UpsertDevice creates the device row on first sight and refreshes last-used and
// client metadata on every later call. Repeated and concurrent calls converge on
// the same row; the last writer's metadata wins.
func (t *Tracker) UpsertDevice(ctx context.Context, userID string, c Context) (UpsertResult, error) {
	if strings.TrimSpace(userID) == "" {
		return UpsertResult{}, errors.New("device upsert requires a user id")
	}
	now := t.now()
	d := store.Device{
		ID:             Fingerprint(c),
		UserID:         userID,
		UserAgent:      c.UserAgent,
		IP:             c.IP,
		Platform:       c.Platform,
		AcceptLanguage: c.AcceptLanguage,
		LastUsedAt:     now,
		CreatedAt:      now,
		Active:         true,
	}
	created, err := t.devices.UpsertDevice(ctx, &d)
	if err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{Device: d, IsNew: created}, nil
}

// ReevaluateDeactivation sets the device active exactly when it still holds at
// least one unused, unexpired refresh token, and reports the resulting state.
func (t *Tracker) ReevaluateDeactivation(ctx context.Context, userID, deviceID string) (bool, error) {
	n, err := t.tokens.CountActiveDeviceTokens(ctx, userID, deviceID, t.now())
	if err != nil {
		return false, err
	}
	active := n > 0
	if err := t.devices.SetDeviceActive(ctx, userID, deviceID, active); err != nil && !errors.Is(err, store.ErrNotFound) {
		return active, err
	}
	return active, nil
}

// DeactivateAll marks every device of userID inactive.
func (t *Tracker) DeactivateAll(ctx context.Context, userID string) (int, error) {
	return t.devices.DeactivateUserDevices(ctx, userID)
}
