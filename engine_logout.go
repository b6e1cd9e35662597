package authcore

import (
	"context"
	"strconv"

	"github.com/MrEthical07/authcore/device"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/refresh"
)

// Logout retires refreshToken, which must belong to userID, and deactivates
// its device when no usable token remains there. Logging out twice succeeds.
func (e *Engine) Logout(ctx context.Context, refreshToken, userID string, c device.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	c = deviceContext(ctx, c)

	out := flows.RunLogout(ctx, refreshToken, userID, e.flows.Logout)
	ev := AuditEvent{
		Action:   AuditLogout,
		Success:  out.Failure == flows.LogoutFailureNone,
		ActorID:  userID,
		TenantID: out.Result.TenantID,
		Role:     out.Result.Role,
		DeviceID: out.Result.DeviceID,
		IP:       c.IP,
	}

	switch out.Failure {
	case flows.LogoutFailureNone:
		e.metricInc(MetricLogout)
		ev.After = map[string]string{
			"revoked":       boolString(out.Result.Revoked),
			"device_active": boolString(out.Result.DeviceActive),
		}
		e.emitAudit(ctx, ev)
		return nil
	case flows.LogoutFailureInvalid:
		err := newError(CodeInvalidRefresh, out.Err)
		ev.Code = string(CodeInvalidRefresh)
		e.emitAudit(ctx, ev)
		return err
	default:
		e.logInternal(ctx, "logout", out.Err)
		ev.Code = string(CodeInternal)
		e.emitAudit(ctx, ev)
		return newError(CodeInternal, out.Err)
	}
}

// RevokeAllResult reports how many tokens and devices RevokeAllSessions changed.
type RevokeAllResult = refresh.RevokeAllResult

// RevokeAllSessions revokes every refresh token of userID on every device and
// marks all of its devices inactive. reason is recorded on the audit event.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID, reason string) (RevokeAllResult, error) {
	if e == nil {
		return RevokeAllResult{}, ErrEngineNotReady
	}

	out := flows.RunRevokeAll(ctx, userID, e.flows.RevokeAll)
	ev := AuditEvent{
		Action:   AuditRevokeAllSessions,
		Severity: SeverityHigh,
		Success:  out.Failure == flows.LogoutFailureNone,
		ActorID:  userID,
		Reason:   reason,
		After: map[string]string{
			"tokens":  strconv.Itoa(out.Result.Tokens),
			"devices": strconv.Itoa(out.Result.Devices),
		},
	}
	if out.Failure != flows.LogoutFailureNone {
		e.logInternal(ctx, "revoke_all", out.Err)
		ev.Code = string(CodeInternal)
		e.emitAudit(ctx, ev)
		return out.Result, newError(CodeInternal, out.Err)
	}

	e.metricInc(MetricRevokeAll)
	e.emitAudit(ctx, ev)
	return out.Result, nil
}
