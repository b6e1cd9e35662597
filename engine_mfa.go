package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/flows"
)

// VerifyMFA checks a TOTP code for userID. On success the next Login of that
// identity passes the MFA gate once, within Config.MFA.VerifiedTTL.
//
// A wrong code, or an identity without MFA enrolled, returns ErrMFARequired.
// With Redis configured and Config.MFA.MaxAttempts set, an identity that
// failed MaxAttempts times keeps getting ErrMFARequired until the attempt
// window closes, whatever the code.
func (e *Engine) VerifyMFA(ctx context.Context, userID, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	out := flows.RunVerifyMFA(ctx, userID, code, e.flows.MFA)
	ev := AuditEvent{
		Action:  AuditMFAVerified,
		Success: out.Failure == flows.MFAFailureNone,
		ActorID: userID,
	}

	var err error
	switch out.Failure {
	case flows.MFAFailureNone:
		e.metricInc(MetricMFAVerifySuccess)
		e.emitAudit(ctx, ev)
		return nil
	case flows.MFAFailureInvalidCode, flows.MFAFailureNotEnrolled:
		err = newError(CodeMFARequired, out.Err)
	case flows.MFAFailureRateLimited:
		err = newError(CodeMFARequired, nil)
		ev.Reason = "attempt limit reached"
	case flows.MFAFailureInactive:
		err = newError(CodeAccountInactive, out.Err)
	default:
		e.logInternal(ctx, "verify_mfa", out.Err)
		err = newError(CodeInternal, out.Err)
	}
	e.metricInc(MetricMFAVerifyFailure)
	ev.Code = string(CodeOf(err))
	e.emitAudit(ctx, ev)
	return err
}

// EnrollmentSecret generates a fresh TOTP secret for account and returns its
// base32 form and otpauth:// provisioning URI. Persisting the secret and
// enabling MFA on the identity is left to the caller's identity store.
func (e *Engine) EnrollmentSecret(account string) (secret, uri string, err error) {
	if e == nil {
		return "", "", ErrEngineNotReady
	}
	_, secret, err = e.totp.GenerateSecret()
	if err != nil {
		return "", "", newError(CodeInternal, err)
	}
	return secret, e.totp.ProvisionURI(secret, account), nil
}
