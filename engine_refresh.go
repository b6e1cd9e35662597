package authcore

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/device"
	"github.com/MrEthical07/authcore/internal/flows"
)

// Refresh exchanges a refresh token for a new pair.
//
// Presenting a token that was already exchanged revokes every token of its
// (user, device) and returns ErrRefreshReused. A persistence failure returns
// ErrInternal and leaves the presented token usable.
func (e *Engine) Refresh(ctx context.Context, refreshToken string, c device.Context) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	c = deviceContext(ctx, c)

	res := flows.RunRefresh(ctx, refreshToken, c, e.flows.Refresh)
	e.metrics.Observe(MetricRefreshLatency, time.Since(start))

	if res.Failure != flows.RefreshFailureNone {
		err := refreshError(res)
		switch res.Failure {
		case flows.RefreshFailureReuse:
			// Counted and audited by onReuse.
			return nil, err
		case flows.RefreshFailureExpired:
			e.metricInc(MetricRefreshExpired)
		case flows.RefreshFailureInvalid:
			e.metricInc(MetricRefreshInvalid)
		default:
			e.metricInc(MetricRefreshFailure)
		}
		if CodeOf(err) == CodeInternal {
			e.logInternal(ctx, "refresh", res.Err)
		}
		ev := AuditEvent{
			Action:  AuditRefreshToken,
			Success: false,
			Code:    string(CodeOf(err)),
			IP:      c.IP,
		}
		if prev := res.Rotated.Previous; prev != nil {
			ev.ActorID = prev.UID
			ev.TenantID = prev.TenantID
			ev.Role = prev.Role
			ev.DeviceID = prev.DeviceID
		}
		e.emitAudit(ctx, ev)
		return nil, err
	}

	rec := res.Rotated.Record
	out := &AuthResult{
		AccessToken:      res.Rotated.Pair.AccessToken,
		RefreshToken:     res.Rotated.Pair.RefreshToken,
		AccessExpiresAt:  res.Rotated.Pair.AccessExpiresAt,
		RefreshExpiresAt: res.Rotated.Pair.RefreshExpiresAt,
		UserID:           rec.UserID,
		TenantID:         rec.TenantID,
		Role:             res.Tenant.Role,
		Memberships:      memberships(res.Tenant),
		Permissions:      res.Permissions,
		DeviceID:         rec.DeviceID,
	}

	e.metricInc(MetricRefreshSuccess)
	ev := AuditEvent{
		Action:   AuditRefreshToken,
		Success:  true,
		ActorID:  rec.UserID,
		TenantID: rec.TenantID,
		Role:     out.Role,
		DeviceID: rec.DeviceID,
		IP:       c.IP,
		After:    map[string]string{"family_id": rec.FamilyID},
	}
	if prev := res.Rotated.Previous; prev != nil && prev.TenantID != rec.TenantID {
		ev.Before = map[string]string{"tenant_id": prev.TenantID}
		e.logger.InfoContext(ctx, "authcore: active tenant changed on refresh",
			slog.String("user_id", rec.UserID),
			slog.String("from", prev.TenantID),
			slog.String("to", rec.TenantID),
		)
	}
	e.emitAudit(ctx, ev)
	return out, nil
}

func refreshError(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureInvalid:
		return newError(CodeInvalidRefresh, res.Err)
	case flows.RefreshFailureExpired:
		return newError(CodeRefreshExpired, res.Err)
	case flows.RefreshFailureReuse:
		return newError(CodeRefreshReused, res.Err)
	case flows.RefreshFailureAccountInactive:
		return newError(CodeAccountInactive, res.Err)
	case flows.RefreshFailureTenantInactive:
		return newError(CodeTenantInactive, res.Err)
	default:
		return newError(CodeInternal, res.Err)
	}
}
