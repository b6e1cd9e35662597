package pgstore

import (
	"context"

	"github.com/MrEthical07/authcore/store"
)

func (s *Store) RoleCapabilities(ctx context.Context, role string) ([]store.RolePermission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select role, resource, action, scope
		from role_permissions
		where role = $1
		order by position, resource, action
	`, role)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []store.RolePermission
	for rows.Next() {
		var p store.RolePermission
		if err := rows.Scan(&p.Role, &p.Resource, &p.Action, &p.Scope); err != nil {
			return nil, unavailable(err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// PutRolePermissions replaces the rows of role, keeping perms order.
func (s *Store) PutRolePermissions(ctx context.Context, role string, perms []store.RolePermission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role = $1`, role); err != nil {
		return unavailable(err)
	}
	for i, p := range perms {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role, resource, action, scope, position)
			values ($1, $2, $3, $4, $5)
			on conflict do nothing
		`, role, p.Resource, p.Action, p.Scope, i); err != nil {
			return unavailable(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}
