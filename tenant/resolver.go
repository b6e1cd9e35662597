package tenant

import (
	"github.com/MrEthical07/authcore/store"
)

// Policy configures the elevated-role rules.
type Policy struct {
	ElevatedRole    string
	AdminTenantID   string
	AdminTenantSlug string
	OwnerRole       string
}

// Input is everything Resolve looks at.
type Input struct {
	UserID       string
	GlobalRole   string
	HomeTenantID string
	// Memberships are the active memberships in list order.
	Memberships []store.TenantMembership
	// TenantSlugs maps tenant id to slug for the memberships above.
	TenantSlugs map[string]string
	// AdminTenant is the designated admin tenant, when one could be located.
	AdminTenant *store.Tenant
	Policy      Policy
}

// RuleName identifies which rule produced a Result.
type RuleName string

const (
	RuleNone                   RuleName = ""
	RuleHomeTenant             RuleName = "home-tenant"
	RuleAdminTenantMatch       RuleName = "admin-tenant-match"
	RuleAdminTenantSynthesized RuleName = "admin-tenant-synthesized"
	RuleFirstMembership        RuleName = "first-membership"
)

// Result is the resolved tenant context.
type Result struct {
	Memberships    []store.TenantMembership
	ActiveTenantID string
	ActiveRole     string
	Rule           RuleName
}

// Rule inspects in and reports a Result when it applies.
type Rule struct {
	Name  RuleName
	Apply func(in Input) (Result, bool)
}

// Rules is the resolution order.
var Rules = []Rule{
	{Name: RuleHomeTenant, Apply: homeTenant},
	{Name: RuleAdminTenantMatch, Apply: adminTenantMatch},
	{Name: RuleAdminTenantSynthesized, Apply: adminTenantSynthesized},
	{Name: RuleFirstMembership, Apply: firstMembership},
}

// Resolve evaluates Rules in order and returns the first match. With no match
// the result carries the memberships and no active tenant.
func Resolve(in Input) Result {
	return ResolveWith(Rules, in)
}

// ResolveWith is Resolve over a custom rule list.
func ResolveWith(rules []Rule, in Input) Result {
	for _, r := range rules {
		if res, ok := r.Apply(in); ok {
			res.Rule = r.Name
			return res
		}
	}
	return Result{Memberships: cloneMemberships(in.Memberships)}
}

func (in Input) elevated() bool {
	return in.Policy.ElevatedRole != "" && in.GlobalRole == in.Policy.ElevatedRole
}

func homeTenant(in Input) (Result, bool) {
	if in.HomeTenantID == "" {
		return Result{}, false
	}
	return pick(in.Memberships, func(m store.TenantMembership) bool {
		return m.TenantID == in.HomeTenantID
	})
}

func adminTenantMatch(in Input) (Result, bool) {
	if !in.elevated() {
		return Result{}, false
	}
	id, slug := in.Policy.AdminTenantID, in.Policy.AdminTenantSlug
	if id == "" && slug == "" {
		return Result{}, false
	}
	return pick(in.Memberships, func(m store.TenantMembership) bool {
		if id != "" && m.TenantID == id {
			return true
		}
		return slug != "" && in.TenantSlugs[m.TenantID] == slug
	})
}

func adminTenantSynthesized(in Input) (Result, bool) {
	if !in.elevated() {
		return Result{}, false
	}
	tenantID := in.Policy.AdminTenantID
	if in.AdminTenant != nil && in.AdminTenant.ID != "" {
		tenantID = in.AdminTenant.ID
	}
	if tenantID == "" {
		return Result{}, false
	}
	synth := store.TenantMembership{
		UserID:   in.UserID,
		TenantID: tenantID,
		Role:     in.Policy.OwnerRole,
		Active:   true,
	}
	list := make([]store.TenantMembership, 0, len(in.Memberships)+1)
	list = append(list, synth)
	list = append(list, in.Memberships...)
	return Result{Memberships: list, ActiveTenantID: synth.TenantID, ActiveRole: synth.Role}, true
}

func firstMembership(in Input) (Result, bool) {
	if len(in.Memberships) == 0 {
		return Result{}, false
	}
	first := in.Memberships[0]
	return Result{
		Memberships:    cloneMemberships(in.Memberships),
		ActiveTenantID: first.TenantID,
		ActiveRole:     first.Role,
	}, true
}

func pick(ms []store.TenantMembership, match func(store.TenantMembership) bool) (Result, bool) {
	for _, m := range ms {
		if match(m) {
			return Result{
				Memberships:    cloneMemberships(ms),
				ActiveTenantID: m.TenantID,
				ActiveRole:     m.Role,
			}, true
		}
	}
	return Result{}, false
}

func cloneMemberships(ms []store.TenantMembership) []store.TenantMembership {
	if len(ms) == 0 {
		return nil
	}
	return append([]store.TenantMembership(nil), ms...)
}

// Select returns r re-pointed at tenantID when the user holds a membership there.
// It reports false and leaves r untouched otherwise.
func Select(r Result, tenantID string) (Result, bool) {
	for _, m := range r.Memberships {
		if m.TenantID == tenantID {
			r.ActiveTenantID = m.TenantID
			r.ActiveRole = m.Role
			return r, true
		}
	}
	return r, false
}
