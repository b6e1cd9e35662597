package authcore

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/mfa"
)

// Login authenticates req and issues a new token family.
//
// When the identity holds the elevated role and has MFA enabled but no fresh
// verification, Login returns an AuthResult with MFARequired and a Challenge,
// and a nil error. No tokens are issued in that case.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	c := deviceContext(ctx, req.Device)

	res := flows.RunLogin(ctx, flows.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		TenantID: req.TenantID,
		Device:   c,
	}, e.flows.Login)
	e.metrics.Observe(MetricLoginLatency, time.Since(start))

	actorID := ""
	if res.Identity != nil {
		actorID = res.Identity.ID
	}

	if res.Failure != flows.LoginFailureNone {
		err := loginError(res)
		e.metricInc(MetricLoginFailure)
		if CodeOf(err) == CodeInternal {
			e.logInternal(ctx, "login", res.Err, slog.String("user_id", actorID))
		}
		e.emitAudit(ctx, AuditEvent{
			Action:   AuditLogin,
			Success:  false,
			Code:     string(CodeOf(err)),
			ActorID:  actorID,
			TenantID: req.TenantID,
			IP:       c.IP,
		})
		return nil, err
	}

	if res.Challenge != nil {
		e.metricInc(MetricLoginMFARequired)
		e.emitAudit(ctx, AuditEvent{
			Action:  AuditLogin,
			Success: false,
			Code:    string(CodeMFARequired),
			ActorID: actorID,
			IP:      c.IP,
			Reason:  "mfa challenge issued",
		})
		return &AuthResult{
			UserID:      actorID,
			MFARequired: true,
			Challenge:   res.Challenge,
		}, nil
	}

	out := &AuthResult{
		AccessToken:      res.Issued.Pair.AccessToken,
		RefreshToken:     res.Issued.Pair.RefreshToken,
		AccessExpiresAt:  res.Issued.Pair.AccessExpiresAt,
		RefreshExpiresAt: res.Issued.Pair.RefreshExpiresAt,
		UserID:           actorID,
		TenantID:         res.Tenant.Context.ActiveTenantID,
		Role:             res.Tenant.Role,
		Memberships:      memberships(res.Tenant),
		Permissions:      res.Permissions,
		DeviceID:         res.Device.Device.ID,
		NewDevice:        res.Device.IsNew,
		MFASetupRequired: res.Decision == mfa.DecisionIssueSetupRequired,
	}

	e.metricInc(MetricLoginSuccess)
	if out.NewDevice {
		e.metricInc(MetricDeviceNew)
	}
	if out.MFASetupRequired {
		e.metricInc(MetricLoginMFASetupRequired)
	}
	e.emitAudit(ctx, AuditEvent{
		Action:   AuditLogin,
		Success:  true,
		ActorID:  actorID,
		TenantID: out.TenantID,
		Role:     out.Role,
		DeviceID: out.DeviceID,
		IP:       c.IP,
		After: map[string]string{
			"rule":       string(res.Tenant.Context.Rule),
			"family_id":  res.Issued.Record.FamilyID,
			"new_device": boolString(out.NewDevice),
		},
	})
	return out, nil
}

func loginError(res flows.LoginResult) error {
	switch res.Failure {
	case flows.LoginFailureCredentials:
		return newError(CodeInvalidCredentials, res.Err)
	case flows.LoginFailureInactive:
		return newError(CodeAccountInactive, res.Err)
	case flows.LoginFailureTenantMismatch:
		return newError(CodeTenantMismatch, res.Err)
	case flows.LoginFailureTenantInactive:
		return newError(CodeTenantInactive, res.Err)
	default:
		return newError(CodeInternal, res.Err)
	}
}

func memberships(tc flows.TenantOutcome) []Membership {
	if len(tc.Context.Memberships) == 0 {
		return nil
	}
	out := make([]Membership, 0, len(tc.Context.Memberships))
	for _, m := range tc.Context.Memberships {
		out = append(out, Membership{TenantID: m.TenantID, Role: m.Role})
	}
	return out
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
