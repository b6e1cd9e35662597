package store

import (
	"context"
	"time"
)

// IdentityStore looks up identities by id or email.
type IdentityStore interface {
	FindIdentityByID(ctx context.Context, id string) (*Identity, error)
	FindIdentityByEmail(ctx context.Context, email string) (*Identity, error)
}

// MembershipStore lists active memberships in grant order, oldest first.
type MembershipStore interface {
	ListActiveMemberships(ctx context.Context, userID string) ([]TenantMembership, error)
}

// TenantStore looks up tenants by id or slug.
type TenantStore interface {
	FindTenantByID(ctx context.Context, id string) (*Tenant, error)
	FindTenantBySlug(ctx context.Context, slug string) (*Tenant, error)
}

// DeviceStore persists device rows.
//
// UpsertDevice must be idempotent for the same (UserID, ID) key. Concurrent
// callers converge and the last write wins on metadata. CreatedAt is preserved
// when the row already exists, and the stored CreatedAt is written back into d.
// created reports whether this call inserted the row.
type DeviceStore interface {
	UpsertDevice(ctx context.Context, d *Device) (created bool, err error)
	SetDeviceActive(ctx context.Context, userID, deviceID string, active bool) error
	DeactivateUserDevices(ctx context.Context, userID string) (int, error)
	ListUserDevices(ctx context.Context, userID string) ([]Device, error)
}

// RefreshTokenStore persists refresh token rows keyed by hash.
//
// RotateRefreshToken must be atomic: the predecessor is marked used only if it
// is currently unused, and next is inserted in the same unit of work. When the
// predecessor was already used it returns ErrTokenAlreadyUsed and inserts
// nothing. When the insert fails the predecessor must remain unused.
//
// RevokeRefreshToken marks one token used with ExpiresAt set to now and reports
// whether it changed anything. RevokeDeviceTokens and RevokeUserTokens do the
// same for every unused token in scope and return how many rows changed.
type RefreshTokenStore interface {
	InsertRefreshToken(ctx context.Context, t *RefreshToken) error
	FindRefreshToken(ctx context.Context, hash string) (*RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldHash string, next *RefreshToken, now time.Time) error
	RevokeRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error)
	RevokeDeviceTokens(ctx context.Context, userID, deviceID string, now time.Time) (int, error)
	RevokeUserTokens(ctx context.Context, userID string, now time.Time) (int, error)
	CountActiveDeviceTokens(ctx context.Context, userID, deviceID string, now time.Time) (int, error)
}

// RolePermissionStore returns the capability rows configured for a role, in
// their stored order.
type RolePermissionStore interface {
	RoleCapabilities(ctx context.Context, role string) ([]RolePermission, error)
}
