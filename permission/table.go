package permission

import (
	"errors"
	"fmt"
	"sync"
)

// Platform role names used by DefaultTable.
const (
	RoleSuperAdmin  = "SUPER_ADMIN"
	RoleOwner       = "OWNER"
	RoleAdmin       = "ADMIN"
	RoleStaffMember = "STAFF_MEMBER"
	RoleViewer      = "VIEWER"
)

// Table is the static role -> capabilities fallback.
//
// Roles are registered during initialization; Freeze makes the table read-only.
type Table struct {
	mu     sync.RWMutex
	roles  map[string][]Capability
	frozen bool
}

// NewTable returns an empty, unfrozen Table.
func NewTable() *Table {
	return &Table{roles: make(map[string][]Capability)}
}

// Register adds role with caps in order. It fails after Freeze, for an empty
// role name, for a duplicate role, or for an invalid scope.
func (t *Table) Register(role string, caps ...Capability) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return errors.New("permission table frozen")
	}
	if role == "" {
		return errors.New("role name empty")
	}
	if _, exists := t.roles[role]; exists {
		return fmt.Errorf("role %q already registered", role)
	}
	for _, c := range caps {
		if c.Resource == "" || c.Action == "" || !c.Scope.Valid() {
			return fmt.Errorf("%w: role %q: %+v", ErrInvalidCapability, role, c)
		}
	}
	t.roles[role] = append([]Capability(nil), caps...)
	return nil
}

// RegisterStrings parses and registers "resource.action:scope" entries.
func (t *Table) RegisterStrings(role string, specs []string) error {
	caps := make([]Capability, 0, len(specs))
	for _, s := range specs {
		c, err := ParseCapability(s)
		if err != nil {
			return fmt.Errorf("role %q: %w", role, err)
		}
		caps = append(caps, c)
	}
	return t.Register(role, caps...)
}

// Freeze prevents further registration.
func (t *Table) Freeze() {
	t.mu.Lock()
	t.frozen = true
	t.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (t *Table) Frozen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.frozen
}

// Lookup returns a copy of role's capabilities.
func (t *Table) Lookup(role string) ([]Capability, bool) {
	if t == nil {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	caps, ok := t.roles[role]
	if !ok {
		return nil, false
	}
	return append([]Capability(nil), caps...), true
}

// Roles returns the registered role names in unspecified order.
func (t *Table) Roles() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.roles))
	for r := range t.roles {
		out = append(out, r)
	}
	return out
}

// DefaultTable returns the frozen built-in table for the platform roles.
func DefaultTable() *Table {
	t := NewTable()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(t.RegisterStrings(RoleSuperAdmin, []string{"*.*:all"}))
	must(t.RegisterStrings(RoleOwner, []string{"*.*:tenant"}))
	must(t.RegisterStrings(RoleAdmin, []string{
		"users.*:tenant",
		"settings.*:tenant",
		"invoices.*:tenant",
		"reports.read:tenant",
	}))
	must(t.RegisterStrings(RoleStaffMember, []string{
		"invoices.read:tenant",
		"invoices.write:own",
		"customers.read:tenant",
		"profile.*:own",
	}))
	must(t.RegisterStrings(RoleViewer, []string{"*.read:tenant"}))
	t.Freeze()
	return t
}
