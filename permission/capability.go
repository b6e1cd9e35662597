package permission

import (
	"errors"
	"fmt"
	"strings"
)

// Wildcard matches any resource or action.
const Wildcard = "*"

// Scope bounds the reach of a capability.
type Scope string

const (
	ScopeOwn    Scope = "own"
	ScopeTenant Scope = "tenant"
	ScopeAll    Scope = "all"
)

func (s Scope) rank() int {
	switch s {
	case ScopeOwn:
		return 1
	case ScopeTenant:
		return 2
	case ScopeAll:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool { return s.rank() > 0 }

// Contains reports whether a capability granted at s covers a request at other.
func (s Scope) Contains(other Scope) bool {
	return s.Valid() && other.Valid() && s.rank() >= other.rank()
}

// ErrInvalidCapability is returned for malformed capability strings.
var ErrInvalidCapability = errors.New("invalid capability")

// Capability grants Action on Resource within Scope.
type Capability struct {
	Resource string
	Action   string
	Scope    Scope
}

// ParseCapability parses "resource.action:scope". The scope suffix is optional
// and defaults to tenant.
func ParseCapability(s string) (Capability, error) {
	s = strings.TrimSpace(s)
	body, scope, hasScope := strings.Cut(s, ":")
	if !hasScope {
		scope = string(ScopeTenant)
	}
	resource, action, ok := strings.Cut(body, ".")
	c := Capability{Resource: resource, Action: action, Scope: Scope(scope)}
	if !ok || resource == "" || action == "" || !c.Scope.Valid() {
		return Capability{}, fmt.Errorf("%w: %q", ErrInvalidCapability, s)
	}
	return c, nil
}

// String renders the capability as "resource.action:scope".
func (c Capability) String() string {
	return c.Resource + "." + c.Action + ":" + string(c.Scope)
}

// Name renders the capability as "resource.action", the form embedded in tokens.
func (c Capability) Name() string {
	return c.Resource + "." + c.Action
}

// Matches reports whether c grants action on resource at scope.
func (c Capability) Matches(resource, action string, scope Scope) bool {
	if c.Resource != Wildcard && c.Resource != resource {
		return false
	}
	if c.Action != Wildcard && c.Action != action {
		return false
	}
	return c.Scope.Contains(scope)
}

// Any reports whether any capability in caps matches.
func Any(caps []Capability, resource, action string, scope Scope) bool {
	for _, c := range caps {
		if c.Matches(resource, action, scope) {
			return true
		}
	}
	return false
}

// Names flattens caps into de-duplicated "resource.action" strings in first-seen order.
func Names(caps []Capability) []string {
	out := make([]string, 0, len(caps))
	seen := make(map[string]struct{}, len(caps))
	for _, c := range caps {
		name := c.Name()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
