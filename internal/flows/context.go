package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/tenant"
)

// TenantDeps loads what the tenant resolver needs.
type TenantDeps struct {
	Memberships store.MembershipStore
	Tenants     store.TenantStore
	Policy      tenant.Policy
}

// TenantFailureKind classifies tenant context failures.
type TenantFailureKind int

const (
	TenantFailureNone TenantFailureKind = iota
	TenantFailureMismatch
	TenantFailureInactive
	TenantFailureLookup
)

// TenantOutcome is the resolved tenant context of one identity.
type TenantOutcome struct {
	Context tenant.Result
	// Role is the role permissions are computed for. It falls back to the
	// global role for an elevated identity without an active membership.
	Role    string
	Failure TenantFailureKind
	Err     error
}

// resolveTenant loads memberships, prefetches the admin tenant for elevated
// identities and runs the resolver.
//
// A requested tenant must be one of the resolved memberships. With sticky set,
// a requested tenant the user no longer belongs to falls back to the resolver
// choice instead of failing.
func resolveTenant(ctx context.Context, deps TenantDeps, id *store.Identity, requested string, sticky bool) TenantOutcome {
	ms, err := deps.Memberships.ListActiveMemberships(ctx, id.ID)
	if err != nil {
		return TenantOutcome{Failure: TenantFailureLookup, Err: fmt.Errorf("list memberships: %w", err)}
	}

	in := tenant.Input{
		UserID:       id.ID,
		GlobalRole:   id.GlobalRole,
		HomeTenantID: id.HomeTenantID,
		Memberships:  ms,
		Policy:       deps.Policy,
	}
	elevated := deps.Policy.ElevatedRole != "" && id.GlobalRole == deps.Policy.ElevatedRole
	if elevated {
		admin, err := findAdminTenant(ctx, deps)
		if err != nil {
			return TenantOutcome{Failure: TenantFailureLookup, Err: err}
		}
		in.AdminTenant = admin
		if deps.Policy.AdminTenantSlug != "" {
			slugs, err := membershipSlugs(ctx, deps.Tenants, ms)
			if err != nil {
				return TenantOutcome{Failure: TenantFailureLookup, Err: err}
			}
			in.TenantSlugs = slugs
		}
	}

	res := tenant.Resolve(in)
	if requested != "" && requested != res.ActiveTenantID {
		picked, ok := tenant.Select(res, requested)
		switch {
		case ok:
			res = picked
		case !sticky:
			return TenantOutcome{Context: res, Failure: TenantFailureMismatch}
		}
	}

	out := TenantOutcome{Context: res, Role: res.ActiveRole}
	if out.Role == "" && elevated {
		out.Role = id.GlobalRole
	}
	if res.ActiveTenantID == "" {
		return out
	}
	// A synthesized admin tenant with no row behind it is operable by
	// definition; there is no status to check.
	if in.AdminTenant == nil && res.ActiveTenantID == synthesizedTenantID(res) {
		return out
	}

	t, err := deps.Tenants.FindTenantByID(ctx, res.ActiveTenantID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		out.Failure = TenantFailureInactive
		return out
	case err != nil:
		out.Failure = TenantFailureLookup
		out.Err = fmt.Errorf("load active tenant: %w", err)
		return out
	case !t.IsActive():
		out.Failure = TenantFailureInactive
	}
	return out
}

func synthesizedTenantID(r tenant.Result) string {
	if r.Rule != tenant.RuleAdminTenantSynthesized || len(r.Memberships) == 0 {
		return ""
	}
	return r.Memberships[0].TenantID
}

func findAdminTenant(ctx context.Context, deps TenantDeps) (*store.Tenant, error) {
	var (
		t   *store.Tenant
		err error
	)
	switch {
	case deps.Policy.AdminTenantID != "":
		t, err = deps.Tenants.FindTenantByID(ctx, deps.Policy.AdminTenantID)
	case deps.Policy.AdminTenantSlug != "":
		t, err = deps.Tenants.FindTenantBySlug(ctx, deps.Policy.AdminTenantSlug)
	default:
		return nil, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("locate admin tenant: %w", err)
	}
	return t, nil
}

func membershipSlugs(ctx context.Context, tenants store.TenantStore, ms []store.TenantMembership) (map[string]string, error) {
	slugs := make(map[string]string, len(ms))
	for _, m := range ms {
		if _, seen := slugs[m.TenantID]; seen {
			continue
		}
		t, err := tenants.FindTenantByID(ctx, m.TenantID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load membership tenant: %w", err)
		}
		slugs[m.TenantID] = t.Slug
	}
	return slugs, nil
}

func buildSubject(id *store.Identity, tc TenantOutcome, perms []string, deviceID string, mfaVerified bool) jwt.Subject {
	mem := make([]jwt.Membership, 0, len(tc.Context.Memberships))
	for _, m := range tc.Context.Memberships {
		mem = append(mem, jwt.Membership{TenantID: m.TenantID, Role: m.Role})
	}
	return jwt.Subject{
		UserID:      id.ID,
		TenantID:    tc.Context.ActiveTenantID,
		Role:        tc.Role,
		GlobalRole:  id.GlobalRole,
		DeviceID:    deviceID,
		Memberships: mem,
		Permissions: perms,
		Context:     jwt.StaffContext{Email: id.Email, MFAVerified: mfaVerified},
	}
}
