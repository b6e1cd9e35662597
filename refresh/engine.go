package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/internal/ids"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/store"
)

// Signer issues and verifies token pairs.
type Signer interface {
	IssuePair(sub jwt.Subject, familyID string) (jwt.Pair, error)
	ParseRefresh(token string) (*jwt.Claims, error)
}

// DeviceTracker re-evaluates device activity after tokens are revoked.
type DeviceTracker interface {
	ReevaluateDeactivation(ctx context.Context, userID, deviceID string) (bool, error)
	DeactivateAll(ctx context.Context, userID string) (int, error)
}

// ReuseEvent describes one reuse detection.
type ReuseEvent struct {
	UserID   string
	DeviceID string
	TenantID string
	// Role is the tenant role carried by the presented token.
	Role     string
	FamilyID string
	Revoked  int
	// Err is set when the cascade itself failed.
	Err error
}

// Options configures an Engine.
type Options struct {
	Now     func() time.Time
	Logger  *slog.Logger
	OnReuse func(ctx context.Context, ev ReuseEvent)
}

// Engine drives issuance, rotation and revocation of refresh tokens.
type Engine struct {
	tokens  store.RefreshTokenStore
	signer  Signer
	devices DeviceTracker
	now     func() time.Time
	logger  *slog.Logger
	onReuse func(ctx context.Context, ev ReuseEvent)
}

// New returns an Engine. devices may be nil when device rows are not tracked.
func New(tokens store.RefreshTokenStore, signer Signer, devices DeviceTracker, opts Options) *Engine {
	e := &Engine{
		tokens:  tokens,
		signer:  signer,
		devices: devices,
		now:     opts.Now,
		logger:  opts.Logger,
		onReuse: opts.OnReuse,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Issued is a freshly signed pair and its persisted refresh row.
type Issued struct {
	Pair   jwt.Pair
	Record store.RefreshToken
}

// Issue signs a pair for sub and persists the refresh token hash. An empty
// familyID starts a new lineage. Nothing is returned when persistence fails.
func (e *Engine) Issue(ctx context.Context, sub jwt.Subject, familyID string) (Issued, error) {
	if familyID == "" {
		familyID = uuid.NewString()
	}
	pair, err := e.signer.IssuePair(sub, familyID)
	if err != nil {
		return Issued{}, fmt.Errorf("sign token pair: %w", err)
	}
	rec := e.record(sub, familyID, pair)
	if err := e.tokens.InsertRefreshToken(ctx, &rec); err != nil {
		return Issued{}, fmt.Errorf("persist refresh token: %w", err)
	}
	return Issued{Pair: pair, Record: rec}, nil
}

func (e *Engine) record(sub jwt.Subject, familyID string, pair jwt.Pair) store.RefreshToken {
	return store.RefreshToken{
		ID:        ids.New(),
		Hash:      jwt.HashToken(pair.RefreshToken),
		UserID:    sub.UserID,
		DeviceID:  sub.DeviceID,
		TenantID:  sub.TenantID,
		FamilyID:  familyID,
		ExpiresAt: pair.RefreshExpiresAt,
		CreatedAt: e.now(),
	}
}

// RebuildFunc produces the successor subject from the verified predecessor
// claims. Returning an error aborts rotation without touching the store.
type RebuildFunc func(ctx context.Context, prev *jwt.Claims) (jwt.Subject, error)

// Rotated is the outcome of a successful rotation.
type Rotated struct {
	Issued
	Previous *jwt.Claims
}

// Rotate verifies raw, detects reuse and exchanges it for a new pair.
//
// Errors are ErrInvalidRefreshToken, ErrRefreshExpired, ErrRefreshReused, any
// error returned by rebuild, or a wrapped store/signing failure. Previous is
// set on every error returned after raw verified.
func (e *Engine) Rotate(ctx context.Context, raw string, rebuild RebuildFunc) (Rotated, error) {
	prev, err := e.verify(raw)
	if err != nil {
		return Rotated{}, err
	}
	failed := Rotated{Previous: prev}

	hash := jwt.HashToken(raw)
	rec, err := e.tokens.FindRefreshToken(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return failed, ErrRefreshExpired
		}
		return failed, fmt.Errorf("lookup refresh token: %w", err)
	}
	if rec.UserID != prev.UID || rec.DeviceID != prev.DeviceID {
		return failed, ErrInvalidRefreshToken
	}
	now := e.now()
	if !now.Before(rec.ExpiresAt) {
		return failed, ErrRefreshExpired
	}
	if rec.Used {
		return failed, e.reuse(ctx, rec, prev)
	}

	sub, err := rebuild(ctx, prev)
	if err != nil {
		return failed, err
	}
	// The lineage stays bound to the predecessor's (user, device).
	sub.UserID = rec.UserID
	sub.DeviceID = rec.DeviceID

	pair, err := e.signer.IssuePair(sub, rec.FamilyID)
	if err != nil {
		return failed, fmt.Errorf("sign token pair: %w", err)
	}
	next := e.record(sub, rec.FamilyID, pair)

	if err := e.tokens.RotateRefreshToken(ctx, hash, &next, now); err != nil {
		switch {
		case errors.Is(err, store.ErrTokenAlreadyUsed):
			return failed, e.reuse(ctx, rec, prev)
		case errors.Is(err, store.ErrNotFound):
			return failed, ErrRefreshExpired
		default:
			return failed, fmt.Errorf("rotate refresh token: %w", err)
		}
	}
	return Rotated{Issued: Issued{Pair: pair, Record: next}, Previous: prev}, nil
}

func (e *Engine) verify(raw string) (*jwt.Claims, error) {
	claims, err := e.signer.ParseRefresh(raw)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrRefreshExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidRefreshToken, err)
	}
	return claims, nil
}

func (e *Engine) reuse(ctx context.Context, rec *store.RefreshToken, prev *jwt.Claims) error {
	n, err := e.tokens.RevokeDeviceTokens(ctx, rec.UserID, rec.DeviceID, e.now())
	if err == nil && e.devices != nil {
		if _, derr := e.devices.ReevaluateDeactivation(ctx, rec.UserID, rec.DeviceID); derr != nil {
			e.logger.WarnContext(ctx, "authcore: device re-evaluation after reuse failed",
				slog.String("user_id", rec.UserID),
				slog.String("device_id", shortID(rec.DeviceID)),
				slog.String("error", derr.Error()),
			)
		}
	}
	e.logger.WarnContext(ctx, "authcore: refresh token reuse detected",
		slog.String("user_id", rec.UserID),
		slog.String("device_id", shortID(rec.DeviceID)),
		slog.String("family_id", rec.FamilyID),
		slog.Int("revoked", n),
	)
	if e.onReuse != nil {
		e.onReuse(ctx, ReuseEvent{
			UserID:   rec.UserID,
			DeviceID: rec.DeviceID,
			TenantID: rec.TenantID,
			Role:     prev.Role,
			FamilyID: rec.FamilyID,
			Revoked:  n,
			Err:      err,
		})
	}
	if err != nil {
		return errors.Join(ErrRefreshReused, fmt.Errorf("revoke device lineage: %w", err))
	}
	return ErrRefreshReused
}

// LogoutResult reports what Logout changed.
type LogoutResult struct {
	Revoked      bool
	UserID       string
	DeviceID     string
	TenantID     string
	Role         string
	DeviceActive bool
}

// Logout retires the caller's refresh token and re-evaluates its device. A token
// that is unknown or already used is treated as already logged out.
func (e *Engine) Logout(ctx context.Context, raw, userID string) (LogoutResult, error) {
	claims, err := e.signer.ParseRefresh(raw)
	if err != nil {
		return LogoutResult{}, fmt.Errorf("%w: %v", ErrInvalidRefreshToken, err)
	}
	if userID == "" || claims.UID != userID {
		return LogoutResult{}, ErrInvalidRefreshToken
	}

	res := LogoutResult{UserID: userID, DeviceID: claims.DeviceID, TenantID: claims.TenantID, Role: claims.Role}
	hash := jwt.HashToken(raw)
	rec, err := e.tokens.FindRefreshToken(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return res, nil
		}
		return res, fmt.Errorf("lookup refresh token: %w", err)
	}
	if rec.UserID != userID {
		return LogoutResult{}, ErrInvalidRefreshToken
	}
	res.DeviceID = rec.DeviceID

	revoked, err := e.tokens.RevokeRefreshToken(ctx, hash, e.now())
	if err != nil {
		return res, fmt.Errorf("revoke refresh token: %w", err)
	}
	res.Revoked = revoked

	if e.devices != nil {
		active, err := e.devices.ReevaluateDeactivation(ctx, userID, rec.DeviceID)
		if err != nil {
			return res, fmt.Errorf("re-evaluate device: %w", err)
		}
		res.DeviceActive = active
	}
	return res, nil
}

// RevokeAllResult reports how many rows RevokeAll changed.
type RevokeAllResult struct {
	Tokens  int
	Devices int
}

// RevokeAll revokes every unused token of userID across all devices and
// deactivates every device row.
func (e *Engine) RevokeAll(ctx context.Context, userID string) (RevokeAllResult, error) {
	if userID == "" {
		return RevokeAllResult{}, errors.New("revoke all requires a user id")
	}
	n, err := e.tokens.RevokeUserTokens(ctx, userID, e.now())
	if err != nil {
		return RevokeAllResult{}, fmt.Errorf("revoke user tokens: %w", err)
	}
	res := RevokeAllResult{Tokens: n}
	if e.devices != nil {
		d, err := e.devices.DeactivateAll(ctx, userID)
		if err != nil {
			return res, fmt.Errorf("deactivate devices: %w", err)
		}
		res.Devices = d
	}
	return res, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
