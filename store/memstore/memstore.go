// Package memstore is an in-process implementation of every store interface.
//
// It serialises all operations behind one mutex, which gives RotateRefreshToken
// the same conditional-update guarantee the Redis and PostgreSQL backends provide.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/internal/ids"
	"github.com/MrEthical07/authcore/store"
)

var (
	_ store.IdentityStore       = (*Store)(nil)
	_ store.MembershipStore     = (*Store)(nil)
	_ store.TenantStore         = (*Store)(nil)
	_ store.DeviceStore         = (*Store)(nil)
	_ store.RefreshTokenStore   = (*Store)(nil)
	_ store.RolePermissionStore = (*Store)(nil)
)

type deviceKey struct {
	userID   string
	deviceID string
}

// Store holds every record in maps guarded by a single mutex.
type Store struct {
	mu          sync.Mutex
	identities  map[string]store.Identity
	emails      map[string]string
	memberships []store.TenantMembership
	tenants     map[string]store.Tenant
	devices     map[deviceKey]store.Device
	tokens      map[string]store.RefreshToken
	roles       map[string][]store.RolePermission

	// RoleErr, when set, is returned by RoleCapabilities. Tests use it to
	// simulate a degraded permission backend.
	RoleErr error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		identities: make(map[string]store.Identity),
		emails:     make(map[string]string),
		tenants:    make(map[string]store.Tenant),
		devices:    make(map[deviceKey]store.Device),
		tokens:     make(map[string]store.RefreshToken),
		roles:      make(map[string][]store.RolePermission),
	}
}

// PutIdentity inserts or replaces an identity.
func (s *Store) PutIdentity(i store.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[i.ID] = i
	s.emails[strings.ToLower(i.Email)] = i.ID
}

// PutTenant inserts or replaces a tenant.
func (s *Store) PutTenant(t store.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

// GrantMembership appends an active membership unless an identical active grant exists.
func (s *Store) GrantMembership(m store.TenantMembership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.memberships {
		if existing.Active && existing.UserID == m.UserID && existing.TenantID == m.TenantID && existing.Role == m.Role {
			return
		}
	}
	if m.GrantedAt.IsZero() {
		m.GrantedAt = time.Now()
	}
	m.Active = true
	s.memberships = append(s.memberships, m)
}

// PutRolePermissions replaces the capability rows of role.
func (s *Store) PutRolePermissions(role string, perms []store.RolePermission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[role] = append([]store.RolePermission(nil), perms...)
}

func (s *Store) FindIdentityByID(_ context.Context, id string) (*store.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.identities[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &i, nil
}

func (s *Store) FindIdentityByEmail(_ context.Context, email string) (*store.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	i := s.identities[id]
	return &i, nil
}

func (s *Store) ListActiveMemberships(_ context.Context, userID string) ([]store.TenantMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.TenantMembership
	for _, m := range s.memberships {
		if m.UserID == userID && m.Active {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) FindTenantByID(_ context.Context, id string) (*store.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *Store) FindTenantBySlug(_ context.Context, slug string) (*store.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.Slug == slug {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpsertDevice(_ context.Context, d *store.Device) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := deviceKey{userID: d.UserID, deviceID: d.ID}
	existing, ok := s.devices[key]
	if ok && !existing.CreatedAt.IsZero() {
		d.CreatedAt = existing.CreatedAt
	}
	s.devices[key] = *d
	return !ok, nil
}

func (s *Store) SetDeviceActive(_ context.Context, userID, deviceID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := deviceKey{userID: userID, deviceID: deviceID}
	d, ok := s.devices[key]
	if !ok {
		return store.ErrNotFound
	}
	d.Active = active
	s.devices[key] = d
	return nil
}

func (s *Store) DeactivateUserDevices(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, d := range s.devices {
		if key.userID != userID || !d.Active {
			continue
		}
		d.Active = false
		s.devices[key] = d
		n++
	}
	return n, nil
}

func (s *Store) ListUserDevices(_ context.Context, userID string) ([]store.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Device
	for key, d := range s.devices {
		if key.userID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) InsertRefreshToken(_ context.Context, t *store.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(t)
}

func (s *Store) insertLocked(t *store.RefreshToken) error {
	if _, exists := s.tokens[t.Hash]; exists {
		return store.ErrDuplicate
	}
	if t.ID == "" {
		t.ID = ids.New()
	}
	s.tokens[t.Hash] = *t
	return nil
}

func (s *Store) FindRefreshToken(_ context.Context, hash string) (*store.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *Store) RotateRefreshToken(_ context.Context, oldHash string, next *store.RefreshToken, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.tokens[oldHash]
	if !ok {
		return store.ErrNotFound
	}
	if old.Used {
		return store.ErrTokenAlreadyUsed
	}
	if err := s.insertLocked(next); err != nil {
		return err
	}
	old.Used = true
	old.UsedAt = now
	s.tokens[oldHash] = old
	return nil
}

func (s *Store) RevokeRefreshToken(_ context.Context, hash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[hash]
	if !ok || t.Used {
		return false, nil
	}
	t.Used = true
	t.UsedAt = now
	t.ExpiresAt = now
	s.tokens[hash] = t
	return true, nil
}

func (s *Store) RevokeDeviceTokens(_ context.Context, userID, deviceID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeLocked(func(t store.RefreshToken) bool {
		return t.UserID == userID && t.DeviceID == deviceID
	}, now), nil
}

func (s *Store) RevokeUserTokens(_ context.Context, userID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeLocked(func(t store.RefreshToken) bool {
		return t.UserID == userID
	}, now), nil
}

func (s *Store) revokeLocked(match func(store.RefreshToken) bool, now time.Time) int {
	n := 0
	for hash, t := range s.tokens {
		if t.Used || !match(t) {
			continue
		}
		t.Used = true
		t.UsedAt = now
		t.ExpiresAt = now
		s.tokens[hash] = t
		n++
	}
	return n
}

func (s *Store) CountActiveDeviceTokens(_ context.Context, userID, deviceID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID && t.DeviceID == deviceID && t.Usable(now) {
			n++
		}
	}
	return n, nil
}

func (s *Store) RoleCapabilities(_ context.Context, role string) ([]store.RolePermission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RoleErr != nil {
		return nil, s.RoleErr
	}
	return append([]store.RolePermission(nil), s.roles[role]...), nil
}
