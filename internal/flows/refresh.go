package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/device"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/store"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureInvalid
	RefreshFailureExpired
	RefreshFailureReuse
	RefreshFailureAccountInactive
	RefreshFailureTenantInactive
	RefreshFailureLookup
	RefreshFailureRotate
)

// RefreshResult carries either the rotated pair or failure metadata. On
// failure Rotated.Previous holds the presented token's claims when it verified.
type RefreshResult struct {
	Failure     RefreshFailureKind
	Err         error
	Tenant      TenantOutcome
	Permissions []string
	Rotated     refresh.Rotated
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Identities   store.IdentityStore
	Tenant       TenantDeps
	Permissions  func(ctx context.Context, role string) []string
	UpsertDevice func(ctx context.Context, userID string, c device.Context) (device.UpsertResult, error)
	Rotate       func(ctx context.Context, raw string, rebuild refresh.RebuildFunc) (refresh.Rotated, error)
}

type rebuildError struct {
	kind RefreshFailureKind
	err  error
}

func (e *rebuildError) Error() string {
	if e.err == nil {
		return "refresh rebuild rejected"
	}
	return e.err.Error()
}

func (e *rebuildError) Unwrap() error { return e.err }

// RunRefresh exchanges raw for a new pair. The successor's identity, tenant
// context and permissions are recomputed from the stores, so a deactivated
// account or a revoked membership takes effect on the next rotation.
func RunRefresh(ctx context.Context, raw string, c device.Context, deps RefreshDeps) RefreshResult {
	var res RefreshResult

	rebuild := func(ctx context.Context, prev *jwt.Claims) (jwt.Subject, error) {
		id, err := deps.Identities.FindIdentityByID(ctx, prev.UID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return jwt.Subject{}, &rebuildError{kind: RefreshFailureAccountInactive}
		case err != nil:
			return jwt.Subject{}, &rebuildError{kind: RefreshFailureLookup, err: fmt.Errorf("find identity: %w", err)}
		case !id.IsActive():
			return jwt.Subject{}, &rebuildError{kind: RefreshFailureAccountInactive}
		}

		tc := resolveTenant(ctx, deps.Tenant, id, prev.TenantID, true)
		res.Tenant = tc
		switch tc.Failure {
		case TenantFailureNone:
		case TenantFailureInactive:
			return jwt.Subject{}, &rebuildError{kind: RefreshFailureTenantInactive}
		default:
			return jwt.Subject{}, &rebuildError{kind: RefreshFailureLookup, err: tc.Err}
		}

		if tc.Role != "" && deps.Permissions != nil {
			res.Permissions = deps.Permissions(ctx, tc.Role)
		}

		// Only touch the row the lineage is bound to; a changed client
		// fingerprint must not create a second device mid-family.
		if deps.UpsertDevice != nil && device.Fingerprint(c) == prev.DeviceID {
			if _, err := deps.UpsertDevice(ctx, id.ID, c); err != nil {
				return jwt.Subject{}, &rebuildError{kind: RefreshFailureLookup, err: fmt.Errorf("touch device: %w", err)}
			}
		}

		mfaVerified := false
		if staff, ok := prev.Identity().(jwt.StaffContext); ok {
			mfaVerified = staff.MFAVerified
		}
		return buildSubject(id, tc, res.Permissions, prev.DeviceID, mfaVerified), nil
	}

	rotated, err := deps.Rotate(ctx, raw, rebuild)
	res.Rotated = rotated
	if err != nil {
		res.Failure, res.Err = classifyRefreshError(err)
	}
	return res
}

func classifyRefreshError(err error) (RefreshFailureKind, error) {
	var rb *rebuildError
	switch {
	case errors.As(err, &rb):
		return rb.kind, rb.err
	case errors.Is(err, refresh.ErrRefreshReused):
		return RefreshFailureReuse, err
	case errors.Is(err, refresh.ErrRefreshExpired):
		return RefreshFailureExpired, err
	case errors.Is(err, refresh.ErrInvalidRefreshToken):
		return RefreshFailureInvalid, err
	default:
		return RefreshFailureRotate, err
	}
}
