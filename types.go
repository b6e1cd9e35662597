package authcore

import (
	"time"

	"github.com/MrEthical07/authcore/device"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/mfa"
)

// LoginRequest is one login attempt. TenantID optionally requests a tenant
// the identity is a member of.
type LoginRequest struct {
	Email    string
	Password string
	TenantID string
	Device   device.Context
}

// AuthResult is returned by Login and Refresh.
//
// When MFARequired is set no tokens are present and Challenge describes the
// pending second factor.
type AuthResult struct {
	AccessToken      string         `json:"accessToken,omitempty"`
	RefreshToken     string         `json:"refreshToken,omitempty"`
	AccessExpiresAt  time.Time      `json:"accessExpiresAt,omitzero"`
	RefreshExpiresAt time.Time      `json:"refreshExpiresAt,omitzero"`
	UserID           string         `json:"userId"`
	TenantID         string         `json:"tenantId,omitempty"`
	Role             string         `json:"role,omitempty"`
	Memberships      []Membership   `json:"memberships,omitempty"`
	Permissions      []string       `json:"permissions,omitempty"`
	DeviceID         string         `json:"deviceId,omitempty"`
	NewDevice        bool           `json:"newDevice,omitempty"`
	MFARequired      bool           `json:"mfaRequired,omitempty"`
	Challenge        *mfa.Challenge `json:"challenge,omitempty"`
	MFASetupRequired bool           `json:"mfaSetupRequired,omitempty"`
}

// Membership is one (tenant, role) grant of the authenticated identity.
type Membership = jwt.Membership
