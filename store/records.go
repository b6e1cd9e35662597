package store

import "time"

// Identity status values. Anything other than StatusActive blocks authentication.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
	StatusLocked   = "locked"
	StatusDeleted  = "deleted"
)

// Identity is a registered principal. Identities are never hard-deleted; status
// transitions replace deletion.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	GlobalRole   string
	Active       bool
	Status       string
	HomeTenantID string
	MFASecret    string
	MFAEnabled   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsActive reports whether the identity may authenticate.
func (i *Identity) IsActive() bool {
	if i == nil || !i.Active {
		return false
	}
	return i.Status == "" || i.Status == StatusActive
}

// TenantMembership grants Role within TenantID to UserID.
type TenantMembership struct {
	UserID    string
	TenantID  string
	Role      string
	Active    bool
	GrantedAt time.Time
	GrantedBy string
	RevokedAt time.Time
	RevokedBy string
}

// Tenant is an isolated customer organization. The core treats it as read-only.
type Tenant struct {
	ID     string
	Slug   string
	Name   string
	Active bool
	Status string
}

// IsActive reports whether the tenant accepts sessions.
func (t *Tenant) IsActive() bool {
	if t == nil || !t.Active {
		return false
	}
	return t.Status == "" || t.Status == StatusActive
}

// Device is a client context keyed by (UserID, ID), where ID is the fingerprint hash.
type Device struct {
	ID             string
	UserID         string
	UserAgent      string
	IP             string
	Platform       string
	AcceptLanguage string
	LastUsedAt     time.Time
	CreatedAt      time.Time
	Active         bool
}

// RefreshToken is the persisted half of a refresh credential. Hash is the
// SHA-256 hex of the token value and is unique across all rows.
type RefreshToken struct {
	ID        string
	Hash      string
	UserID    string
	DeviceID  string
	TenantID  string
	FamilyID  string
	Used      bool
	UsedAt    time.Time
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Usable reports whether the token is unused and not yet expired at now.
func (r *RefreshToken) Usable(now time.Time) bool {
	return r != nil && !r.Used && now.Before(r.ExpiresAt)
}

// RolePermission is one stored capability row for a role.
type RolePermission struct {
	Role     string
	Resource string
	Action   string
	Scope    string
}
