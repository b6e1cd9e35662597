package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authcore/device"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/store"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureCredentials
	LoginFailureInactive
	LoginFailureMFA
	LoginFailureTenantMismatch
	LoginFailureTenantInactive
	LoginFailureLookup
	LoginFailureDevice
	LoginFailureIssue
)

// LoginInput is one login attempt.
type LoginInput struct {
	Email    string
	Password string
	TenantID string
	Device   device.Context
}

// LoginResult carries either the issued pair, an MFA challenge, or failure metadata.
type LoginResult struct {
	Failure     LoginFailureKind
	Err         error
	Identity    *store.Identity
	Decision    mfa.Decision
	Challenge   *mfa.Challenge
	Tenant      TenantOutcome
	Permissions []string
	Device      device.UpsertResult
	Issued      refresh.Issued
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	Identities     store.IdentityStore
	Tenant         TenantDeps
	VerifyPassword func(password, encoded string) (bool, error)
	VerifyDummy    func(password string)
	EvaluateMFA    func(context.Context, *store.Identity) (mfa.Result, error)
	ConsumeMFA     func(ctx context.Context, userID string) (mfa.Result, error)
	Permissions    func(ctx context.Context, role string) []string
	UpsertDevice   func(ctx context.Context, userID string, c device.Context) (device.UpsertResult, error)
	Issue          func(ctx context.Context, sub jwt.Subject, familyID string) (refresh.Issued, error)
}

// RunLogin authenticates in and issues a fresh token family.
//
// An unknown email and a wrong password produce the same failure kind, and
// the unknown-email path still runs a full password hash.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) LoginResult {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		if deps.VerifyDummy != nil {
			deps.VerifyDummy(in.Password)
		}
		return LoginResult{Failure: LoginFailureCredentials}
	}

	id, err := deps.Identities.FindIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if deps.VerifyDummy != nil {
				deps.VerifyDummy(in.Password)
			}
			return LoginResult{Failure: LoginFailureCredentials}
		}
		return LoginResult{Failure: LoginFailureLookup, Err: fmt.Errorf("find identity: %w", err)}
	}

	ok, err := deps.VerifyPassword(in.Password, id.PasswordHash)
	if err != nil || !ok {
		return LoginResult{Failure: LoginFailureCredentials, Err: err, Identity: id}
	}
	if !id.IsActive() {
		return LoginResult{Failure: LoginFailureInactive, Identity: id}
	}

	res := LoginResult{Identity: id}
	markerPending := false
	if deps.EvaluateMFA != nil {
		decision, err := deps.EvaluateMFA(ctx, id)
		if err != nil {
			res.Failure = LoginFailureMFA
			res.Err = err
			return res
		}
		res.Decision = decision.Decision
		if decision.Decision == mfa.DecisionChallenge {
			res.Challenge = decision.Challenge
			return res
		}
		markerPending = decision.MarkerPending
	}

	tc := resolveTenant(ctx, deps.Tenant, id, strings.TrimSpace(in.TenantID), false)
	res.Tenant = tc
	switch tc.Failure {
	case TenantFailureNone:
	case TenantFailureMismatch:
		res.Failure = LoginFailureTenantMismatch
		return res
	case TenantFailureInactive:
		res.Failure = LoginFailureTenantInactive
		return res
	default:
		res.Failure = LoginFailureLookup
		res.Err = tc.Err
		return res
	}

	if tc.Role != "" && deps.Permissions != nil {
		res.Permissions = deps.Permissions(ctx, tc.Role)
	}

	dev, err := deps.UpsertDevice(ctx, id.ID, in.Device)
	if err != nil {
		res.Failure = LoginFailureDevice
		res.Err = fmt.Errorf("upsert device: %w", err)
		return res
	}
	res.Device = dev

	// The verified marker is spent only after every check that can reject the login.
	mfaVerified := false
	if markerPending && deps.ConsumeMFA != nil {
		decision, err := deps.ConsumeMFA(ctx, id.ID)
		if err != nil {
			res.Failure = LoginFailureMFA
			res.Err = err
			return res
		}
		res.Decision = decision.Decision
		if decision.Decision == mfa.DecisionChallenge {
			res.Challenge = decision.Challenge
			return res
		}
		mfaVerified = true
	}
	sub := buildSubject(id, tc, res.Permissions, dev.Device.ID, mfaVerified)
	issued, err := deps.Issue(ctx, sub, "")
	if err != nil {
		res.Failure = LoginFailureIssue
		res.Err = err
		return res
	}
	res.Issued = issued
	return res
}
