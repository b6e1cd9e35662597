package tenant

import (
	"reflect"
	"testing"

	"github.com/MrEthical07/authcore/store"
)

var policy = Policy{
	ElevatedRole:    "SUPER_ADMIN",
	AdminTenantID:   "t-admin",
	AdminTenantSlug: "platform",
	OwnerRole:       "OWNER",
}

func memberships(pairs ...string) []store.TenantMembership {
	out := make([]store.TenantMembership, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, store.TenantMembership{UserID: "u1", TenantID: pairs[i], Role: pairs[i+1], Active: true})
	}
	return out
}

func TestResolveRules(t *testing.T) {
	tests := []struct {
		name       string
		in         Input
		wantTenant string
		wantRole   string
		wantRule   RuleName
		wantLen    int
	}{
		{
			name:       "first membership without home tenant",
			in:         Input{UserID: "u1", GlobalRole: "USER", Memberships: memberships("tA", "OWNER", "tB", "STAFF_MEMBER"), Policy: policy},
			wantTenant: "tA", wantRole: "OWNER", wantRule: RuleFirstMembership, wantLen: 2,
		},
		{
			name:       "home tenant wins over list order",
			in:         Input{UserID: "u1", GlobalRole: "USER", HomeTenantID: "tB", Memberships: memberships("tA", "OWNER", "tB", "STAFF_MEMBER"), Policy: policy},
			wantTenant: "tB", wantRole: "STAFF_MEMBER", wantRule: RuleHomeTenant, wantLen: 2,
		},
		{
			name:       "home tenant without membership is ignored",
			in:         Input{UserID: "u1", GlobalRole: "USER", HomeTenantID: "tZ", Memberships: memberships("tA", "OWNER"), Policy: policy},
			wantTenant: "tA", wantRole: "OWNER", wantRule: RuleFirstMembership, wantLen: 1,
		},
		{
			name:       "elevated role matches admin tenant id",
			in:         Input{UserID: "u1", GlobalRole: "SUPER_ADMIN", Memberships: memberships("tA", "VIEWER", "t-admin", "ADMIN"), Policy: policy},
			wantTenant: "t-admin", wantRole: "ADMIN", wantRule: RuleAdminTenantMatch, wantLen: 2,
		},
		{
			name: "elevated role matches admin tenant slug",
			in: Input{
				UserID: "u1", GlobalRole: "SUPER_ADMIN",
				Memberships: memberships("tA", "VIEWER", "t-9", "ADMIN"),
				TenantSlugs: map[string]string{"t-9": "platform"},
				Policy:      Policy{ElevatedRole: "SUPER_ADMIN", AdminTenantSlug: "platform", OwnerRole: "OWNER"},
			},
			wantTenant: "t-9", wantRole: "ADMIN", wantRule: RuleAdminTenantMatch, wantLen: 2,
		},
		{
			name: "elevated role synthesizes located admin tenant",
			in: Input{
				UserID: "u1", GlobalRole: "SUPER_ADMIN",
				Memberships: memberships("tA", "VIEWER"),
				AdminTenant: &store.Tenant{ID: "t-located", Slug: "platform", Active: true},
				Policy:      Policy{ElevatedRole: "SUPER_ADMIN", AdminTenantSlug: "platform", OwnerRole: "OWNER"},
			},
			wantTenant: "t-located", wantRole: "OWNER", wantRule: RuleAdminTenantSynthesized, wantLen: 2,
		},
		{
			name:       "elevated role with no memberships gets configured admin tenant",
			in:         Input{UserID: "u1", GlobalRole: "SUPER_ADMIN", Policy: policy},
			wantTenant: "t-admin", wantRole: "OWNER", wantRule: RuleAdminTenantSynthesized, wantLen: 1,
		},
		{
			name:       "home tenant still wins for elevated role",
			in:         Input{UserID: "u1", GlobalRole: "SUPER_ADMIN", HomeTenantID: "tA", Memberships: memberships("tA", "VIEWER", "t-admin", "ADMIN"), Policy: policy},
			wantTenant: "tA", wantRole: "VIEWER", wantRule: RuleHomeTenant, wantLen: 2,
		},
		{
			name:     "no memberships and not elevated",
			in:       Input{UserID: "u1", GlobalRole: "USER", Policy: policy},
			wantRule: RuleNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.in)
			if got.ActiveTenantID != tt.wantTenant || got.ActiveRole != tt.wantRole || got.Rule != tt.wantRule {
				t.Fatalf("got (%s,%s,%s), want (%s,%s,%s)",
					got.ActiveTenantID, got.ActiveRole, got.Rule, tt.wantTenant, tt.wantRole, tt.wantRule)
			}
			if len(got.Memberships) != tt.wantLen {
				t.Fatalf("got %d memberships, want %d", len(got.Memberships), tt.wantLen)
			}
		})
	}
}

func TestResolveIsPureAndIdempotent(t *testing.T) {
	ms := memberships("tA", "VIEWER")
	snapshot := append([]store.TenantMembership(nil), ms...)
	in := Input{UserID: "u1", GlobalRole: "SUPER_ADMIN", Memberships: ms, Policy: policy}

	first := Resolve(in)
	for i := 0; i < 10; i++ {
		if again := Resolve(in); !reflect.DeepEqual(first, again) {
			t.Fatalf("call %d diverged: %+v vs %+v", i, first, again)
		}
	}
	if !reflect.DeepEqual(ms, snapshot) {
		t.Fatal("input memberships were mutated")
	}
	if first.Memberships[0].TenantID != "t-admin" {
		t.Fatal("synthesized admin membership must be prepended")
	}

	first.Memberships[1].Role = "MUTATED"
	if ms[0].Role != "VIEWER" {
		t.Fatal("result must not alias the input slice")
	}
}

func TestSelect(t *testing.T) {
	res := Resolve(Input{UserID: "u1", Memberships: memberships("tA", "OWNER", "tB", "STAFF_MEMBER"), Policy: policy})
	picked, ok := Select(res, "tB")
	if !ok || picked.ActiveTenantID != "tB" || picked.ActiveRole != "STAFF_MEMBER" {
		t.Fatalf("select tB: %+v %v", picked, ok)
	}
	if _, ok := Select(res, "tC"); ok {
		t.Fatal("select of a foreign tenant must fail")
	}
}
