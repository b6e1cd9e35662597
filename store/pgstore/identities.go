package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/MrEthical07/authcore/store"
)

const identityColumns = `id, email, password_hash, global_role, active, status,
	home_tenant_id, mfa_secret, mfa_enabled, created_at, updated_at`

func (s *Store) FindIdentityByID(ctx context.Context, id string) (*store.Identity, error) {
	row := s.db.QueryRowContext(ctx, `select `+identityColumns+` from identities where id = $1`, id)
	return scanIdentity(row)
}

func (s *Store) FindIdentityByEmail(ctx context.Context, email string) (*store.Identity, error) {
	row := s.db.QueryRowContext(ctx, `select `+identityColumns+` from identities where lower(email) = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanIdentity(row)
}

func scanIdentity(row *sql.Row) (*store.Identity, error) {
	var (
		id         store.Identity
		homeTenant sql.NullString
		mfaSecret  sql.NullString
	)
	err := row.Scan(&id.ID, &id.Email, &id.PasswordHash, &id.GlobalRole, &id.Active, &id.Status,
		&homeTenant, &mfaSecret, &id.MFAEnabled, &id.CreatedAt, &id.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	id.HomeTenantID = homeTenant.String
	id.MFASecret = mfaSecret.String
	return &id, nil
}

func (s *Store) ListActiveMemberships(ctx context.Context, userID string) ([]store.TenantMembership, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, tenant_id, role, granted_at, granted_by
		from tenant_memberships
		where user_id = $1 and active
		order by granted_at
	`, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []store.TenantMembership
	for rows.Next() {
		var (
			m         store.TenantMembership
			grantedBy sql.NullString
		)
		if err := rows.Scan(&m.UserID, &m.TenantID, &m.Role, &m.GrantedAt, &grantedBy); err != nil {
			return nil, unavailable(err)
		}
		m.Active = true
		m.GrantedBy = grantedBy.String
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *Store) FindTenantByID(ctx context.Context, id string) (*store.Tenant, error) {
	return scanTenant(s.db.QueryRowContext(ctx,
		`select id, slug, name, active, status from tenants where id = $1`, id))
}

func (s *Store) FindTenantBySlug(ctx context.Context, slug string) (*store.Tenant, error) {
	return scanTenant(s.db.QueryRowContext(ctx,
		`select id, slug, name, active, status from tenants where slug = $1`, slug))
}

func scanTenant(row *sql.Row) (*store.Tenant, error) {
	var t store.Tenant
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Active, &t.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &t, nil
}

// CreateIdentity inserts a new identity. A duplicate email returns store.ErrDuplicate.
func (s *Store) CreateIdentity(ctx context.Context, id *store.Identity) error {
	if id.Status == "" {
		id.Status = store.StatusActive
	}
	_, err := s.db.ExecContext(ctx, `
		insert into identities (id, email, password_hash, global_role, active, status, home_tenant_id, mfa_secret, mfa_enabled)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, id.ID, strings.ToLower(strings.TrimSpace(id.Email)), id.PasswordHash, id.GlobalRole, id.Active, id.Status,
		nullIfEmpty(id.HomeTenantID), nullIfEmpty(id.MFASecret), id.MFAEnabled)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return unavailable(err)
	}
	return nil
}
