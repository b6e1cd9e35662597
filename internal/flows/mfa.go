package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/store"
)

// MFAFailureKind classifies second-factor verification failures.
type MFAFailureKind int

const (
	MFAFailureNone MFAFailureKind = iota
	MFAFailureInvalidCode
	MFAFailureNotEnrolled
	MFAFailureInactive
	MFAFailureLookup
	MFAFailureMarker
	MFAFailureRateLimited
)

// MFADeps captures second-factor verification dependencies.
type MFADeps struct {
	Identities  store.IdentityStore
	VerifyCode  func(secretBase32, code string, now time.Time) (bool, error)
	SetVerified func(ctx context.Context, userID string) error
	Now         func() time.Time

	// Attempt limiting is optional; all three are set together or not at all.
	CheckAttempts func(ctx context.Context, userID string) error
	RecordFailure func(ctx context.Context, userID string) error
	ResetAttempts func(ctx context.Context, userID string) error
}

// ErrAttemptsExhausted is returned by CheckAttempts implementations when the
// identity has used its verification budget.
var ErrAttemptsExhausted = errors.New("mfa attempts exhausted")

// MFAOutput is the verification outcome.
type MFAOutput struct {
	Failure  MFAFailureKind
	Err      error
	Identity *store.Identity
}

// RunVerifyMFA checks code against the identity's enrolled secret and, on
// success, records a single-use verified marker for the next login.
func RunVerifyMFA(ctx context.Context, userID, code string, deps MFADeps) MFAOutput {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(code) == "" {
		return MFAOutput{Failure: MFAFailureInvalidCode}
	}

	id, err := deps.Identities.FindIdentityByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return MFAOutput{Failure: MFAFailureInvalidCode}
		}
		return MFAOutput{Failure: MFAFailureLookup, Err: fmt.Errorf("find identity: %w", err)}
	}
	if !id.IsActive() {
		return MFAOutput{Failure: MFAFailureInactive, Identity: id}
	}
	if !id.MFAEnabled || id.MFASecret == "" {
		return MFAOutput{Failure: MFAFailureNotEnrolled, Identity: id}
	}

	if deps.CheckAttempts != nil {
		if err := deps.CheckAttempts(ctx, id.ID); err != nil {
			if errors.Is(err, ErrAttemptsExhausted) {
				return MFAOutput{Failure: MFAFailureRateLimited, Identity: id}
			}
			return MFAOutput{Failure: MFAFailureLookup, Err: fmt.Errorf("check attempts: %w", err), Identity: id}
		}
	}

	ok, err := deps.VerifyCode(id.MFASecret, strings.TrimSpace(code), deps.Now())
	if err != nil || !ok {
		if deps.RecordFailure != nil {
			if rerr := deps.RecordFailure(ctx, id.ID); rerr != nil && !errors.Is(rerr, ErrAttemptsExhausted) {
				return MFAOutput{Failure: MFAFailureLookup, Err: fmt.Errorf("record attempt: %w", rerr), Identity: id}
			}
		}
		return MFAOutput{Failure: MFAFailureInvalidCode, Err: err, Identity: id}
	}
	if err := deps.SetVerified(ctx, id.ID); err != nil {
		return MFAOutput{Failure: MFAFailureMarker, Err: err, Identity: id}
	}
	if deps.ResetAttempts != nil {
		// Best effort: the marker is already set.
		_ = deps.ResetAttempts(ctx, id.ID)
	}
	return MFAOutput{Identity: id}
}
