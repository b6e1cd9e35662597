package authcore

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/device"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/tenant"
)

// Engine is the authentication core. Build one with New().…Build().
//
// Engine is immutable after Build and safe for concurrent use. All durable
// state lives in the configured stores.
type Engine struct {
	config      Config
	identities  store.IdentityStore
	memberships store.MembershipStore
	tenants     store.TenantStore
	jwtManager  *jwt.Manager
	passwords   PasswordVerifier
	totp        *mfa.TOTP
	markers     mfa.MarkerStore
	attempts    *rate.Limiter
	gate        *mfa.Gate
	permissions *permission.Resolver
	devices     *device.Tracker
	refresh     *refresh.Engine
	audit       *audit.Dispatcher
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
	flows       flows.Deps
}

// Close drains pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports info events dropped under dispatcher backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// HasPermission reports whether role grants action on resource at scope.
func (e *Engine) HasPermission(ctx context.Context, role, resource, action string, scope permission.Scope) bool {
	if e == nil {
		return false
	}
	return e.permissions.HasPermission(ctx, role, resource, action, scope)
}

// GetUserPermissions returns role's flattened "resource.action" names in the
// order they are embedded into tokens.
func (e *Engine) GetUserPermissions(ctx context.Context, role string) []string {
	if e == nil {
		return nil
	}
	return e.permissions.UserPermissions(ctx, role)
}

// Capabilities returns role's full capability list.
func (e *Engine) Capabilities(ctx context.Context, role string) []permission.Capability {
	if e == nil {
		return nil
	}
	return e.permissions.Capabilities(ctx, role)
}

// PermissionFallbacks reports how often the static table answered because the
// role permission store failed.
func (e *Engine) PermissionFallbacks() uint64 {
	if e == nil {
		return 0
	}
	return e.permissions.Fallbacks()
}

// VerifyAccess verifies an access token. Errors are jwt.ErrTokenExpired,
// jwt.ErrWrongTokenType or jwt.ErrInvalidToken.
func (e *Engine) VerifyAccess(_ context.Context, token string) (*jwt.Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return e.jwtManager.ParseAccess(token)
}

// InspectToken decodes token without verifying it. The result must never be
// used for an authorization decision.
func (e *Engine) InspectToken(token string) (*jwt.Claims, error) {
	return jwt.DecodeUnverified(token)
}

func (e *Engine) tenantPolicy() tenant.Policy {
	return tenant.Policy{
		ElevatedRole:    e.config.Tenant.ElevatedRole,
		AdminTenantID:   e.config.Tenant.AdminTenantID,
		AdminTenantSlug: e.config.Tenant.AdminTenantSlug,
		OwnerRole:       e.config.Tenant.OwnerRole,
	}
}

func (e *Engine) buildFlowDeps() flows.Deps {
	tenantDeps := flows.TenantDeps{
		Memberships: e.memberships,
		Tenants:     e.tenants,
		Policy:      e.tenantPolicy(),
	}
	d := flows.Deps{
		Login: flows.LoginDeps{
			Identities:     e.identities,
			Tenant:         tenantDeps,
			VerifyPassword: e.passwords.Verify,
			VerifyDummy:    func(pw string) { _ = e.passwords.VerifyDummy(pw) },
			EvaluateMFA:    e.gate.Evaluate,
			ConsumeMFA:     e.gate.Consume,
			Permissions:    e.permissions.UserPermissions,
			UpsertDevice:   e.devices.UpsertDevice,
			Issue:          e.refresh.Issue,
		},
		Refresh: flows.RefreshDeps{
			Identities:   e.identities,
			Tenant:       tenantDeps,
			Permissions:  e.permissions.UserPermissions,
			UpsertDevice: e.devices.UpsertDevice,
			Rotate:       e.refresh.Rotate,
		},
		Logout: flows.LogoutDeps{
			Logout: e.refresh.Logout,
		},
		RevokeAll: flows.RevokeAllDeps{
			RevokeAll: e.refresh.RevokeAll,
		},
		MFA: flows.MFADeps{
			Identities: e.identities,
			VerifyCode: e.totp.VerifyBase32,
			SetVerified: func(ctx context.Context, userID string) error {
				if e.markers == nil {
					return mfa.ErrMarkerUnavailable
				}
				return e.markers.SetVerified(ctx, userID, e.config.MFA.VerifiedTTL)
			},
			Now: e.now,
		},
	}
	if e.attempts != nil {
		d.MFA.CheckAttempts = func(ctx context.Context, userID string) error {
			return attemptErr(e.attempts.Check(ctx, userID))
		}
		d.MFA.RecordFailure = func(ctx context.Context, userID string) error {
			return attemptErr(e.attempts.RecordFailure(ctx, userID))
		}
		d.MFA.ResetAttempts = e.attempts.Reset
	}
	return d
}

func attemptErr(err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return flows.ErrAttemptsExhausted
	}
	return err
}

// onReuse is invoked by the rotation engine after it revoked a device lineage.
func (e *Engine) onReuse(ctx context.Context, ev refresh.ReuseEvent) {
	e.metricInc(MetricRefreshReuseDetected)
	event := AuditEvent{
		Action:   AuditTokenReused,
		Severity: SeverityHigh,
		Success:  false,
		Code:     string(CodeRefreshReused),
		ActorID:  ev.UserID,
		TenantID: ev.TenantID,
		Role:     ev.Role,
		DeviceID: ev.DeviceID,
		After: map[string]string{
			"family_id": ev.FamilyID,
			"revoked":   strconv.Itoa(ev.Revoked),
		},
	}
	if ev.Err != nil {
		event.Reason = "lineage revocation failed"
		e.logger.ErrorContext(ctx, "authcore: reuse cascade failed",
			slog.String("user_id", ev.UserID),
			slog.String("device_id", shortHash(ev.DeviceID)),
			slog.String("error", ev.Err.Error()),
		)
	}
	e.emitAudit(ctx, event)
}

func (e *Engine) logInternal(ctx context.Context, op string, err error, attrs ...slog.Attr) {
	if err == nil {
		return
	}
	args := make([]any, 0, len(attrs)+2)
	args = append(args, slog.String("op", op), slog.String("error", err.Error()))
	for _, a := range attrs {
		args = append(args, a)
	}
	e.logger.ErrorContext(ctx, "authcore: internal error", args...)
}

func deviceContext(ctx context.Context, c device.Context) device.Context {
	if c.IP == "" {
		c.IP = ClientIPFromContext(ctx)
	}
	return c
}
