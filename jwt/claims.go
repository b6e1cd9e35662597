package jwt

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType is the `typ` discriminator carried by every issued token.
type TokenType string

const (
	// TypeAccess marks short-lived access tokens.
	TypeAccess TokenType = "access"
	// TypeRefresh marks single-use refresh tokens.
	TypeRefresh TokenType = "refresh"
)

// Membership is one (tenant, role) grant denormalised into the token payload.
type Membership struct {
	TenantID string `json:"tid"`
	Role     string `json:"role"`
}

// Claims is the shared claim core of access and refresh tokens.
//
// Claims instances are produced by the Manager and must be treated as read-only.
type Claims struct {
	UID         string        `json:"uid"`
	TenantID    string        `json:"tid,omitempty"`
	Role        string        `json:"role,omitempty"`
	GlobalRole  string        `json:"grole,omitempty"`
	Memberships []Membership  `json:"mem,omitempty"`
	Permissions []string      `json:"perms,omitempty"`
	DeviceID    string        `json:"did,omitempty"`
	Type        TokenType     `json:"typ"`
	FamilyID    string        `json:"fam,omitempty"`
	Context     *ContextClaim `json:"ctx,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the identity context variant, or nil when none was issued.
func (c *Claims) Identity() IdentityContext {
	if c == nil || c.Context == nil {
		return nil
	}
	return c.Context.IdentityContext
}

// ContextKind discriminates identity context variants on the wire.
type ContextKind string

const (
	// KindStaff identifies an interactive platform user.
	KindStaff ContextKind = "staff"
	// KindClient identifies an OAuth-only client identity.
	KindClient ContextKind = "client"
)

// IdentityContext is the closed set of caller-dependent payload variants.
// Implementations are StaffContext and ClientContext.
type IdentityContext interface {
	Kind() ContextKind
	isIdentityContext()
}

// StaffContext is carried by tokens issued to interactive users.
type StaffContext struct {
	Email       string `json:"email,omitempty"`
	MFAVerified bool   `json:"mfa,omitempty"`
}

func (StaffContext) Kind() ContextKind { return KindStaff }
func (StaffContext) isIdentityContext() {}

// ClientContext is carried by tokens issued to OAuth-only clients.
type ClientContext struct {
	ClientID string   `json:"client_id"`
	Scopes   []string `json:"scopes,omitempty"`
}

func (ClientContext) Kind() ContextKind { return KindClient }
func (ClientContext) isIdentityContext() {}

// ErrUnknownContextKind is returned when a token carries an unrecognised context variant.
var ErrUnknownContextKind = errors.New("unknown identity context kind")

// ContextClaim encodes an IdentityContext as {"kind": ..., "data": {...}}.
type ContextClaim struct {
	IdentityContext
}

type contextEnvelope struct {
	Kind ContextKind     `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON writes the kind discriminator alongside the variant payload.
func (c ContextClaim) MarshalJSON() ([]byte, error) {
	if c.IdentityContext == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(c.IdentityContext)
	if err != nil {
		return nil, err
	}
	return json.Marshal(contextEnvelope{Kind: c.Kind(), Data: data})
}

// UnmarshalJSON restores the variant named by kind. Unknown kinds are rejected.
func (c *ContextClaim) UnmarshalJSON(data []byte) error {
	var env contextEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.Kind {
	case KindStaff:
		var v StaffContext
		if err := unmarshalData(env.Data, &v); err != nil {
			return err
		}
		c.IdentityContext = v
	case KindClient:
		var v ClientContext
		if err := unmarshalData(env.Data, &v); err != nil {
			return err
		}
		c.IdentityContext = v
	default:
		return fmt.Errorf("%w: %q", ErrUnknownContextKind, env.Kind)
	}
	return nil
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// Subject is the issuance input for a token pair.
type Subject struct {
	UserID      string
	TenantID    string
	Role        string
	GlobalRole  string
	DeviceID    string
	Memberships []Membership
	Permissions []string
	Context     IdentityContext
}
