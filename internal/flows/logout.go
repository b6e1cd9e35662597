package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authcore/refresh"
)

// LogoutFailureKind classifies logout and revoke-all failures.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureInvalid
	LogoutFailureStore
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Logout func(ctx context.Context, raw, userID string) (refresh.LogoutResult, error)
}

// LogoutOutput is the logout outcome.
type LogoutOutput struct {
	Failure LogoutFailureKind
	Err     error
	Result  refresh.LogoutResult
}

// RunLogout retires one refresh token of userID. Presenting a token that was
// already retired succeeds.
func RunLogout(ctx context.Context, raw, userID string, deps LogoutDeps) LogoutOutput {
	if strings.TrimSpace(raw) == "" || strings.TrimSpace(userID) == "" {
		return LogoutOutput{Failure: LogoutFailureInvalid, Err: refresh.ErrInvalidRefreshToken}
	}
	res, err := deps.Logout(ctx, raw, userID)
	if err != nil {
		if errors.Is(err, refresh.ErrInvalidRefreshToken) {
			return LogoutOutput{Failure: LogoutFailureInvalid, Err: err, Result: res}
		}
		return LogoutOutput{Failure: LogoutFailureStore, Err: err, Result: res}
	}
	return LogoutOutput{Result: res}
}

// RevokeAllDeps captures revoke-all flow dependencies.
type RevokeAllDeps struct {
	RevokeAll func(ctx context.Context, userID string) (refresh.RevokeAllResult, error)
}

// RevokeAllOutput is the revoke-all outcome.
type RevokeAllOutput struct {
	Failure LogoutFailureKind
	Err     error
	Result  refresh.RevokeAllResult
}

// RunRevokeAll revokes every session of userID across devices.
func RunRevokeAll(ctx context.Context, userID string, deps RevokeAllDeps) RevokeAllOutput {
	if strings.TrimSpace(userID) == "" {
		return RevokeAllOutput{Failure: LogoutFailureInvalid, Err: errors.New("revoke all requires a user id")}
	}
	res, err := deps.RevokeAll(ctx, userID)
	if err != nil {
		return RevokeAllOutput{Failure: LogoutFailureStore, Err: err, Result: res}
	}
	return RevokeAllOutput{Result: res}
}
