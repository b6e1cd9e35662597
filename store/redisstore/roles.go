package redisstore

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/store"
)

const rowSep = "|"

// PutRolePermissions replaces the capability rows of role.
func (s *Store) PutRolePermissions(ctx context.Context, role string, perms []store.RolePermission) error {
	key := s.roleKey(role)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(perms) == 0 {
			return nil
		}
		rows := make([]interface{}, 0, len(perms))
		for _, p := range perms {
			rows = append(rows, p.Resource+rowSep+p.Action+rowSep+p.Scope)
		}
		pipe.RPush(ctx, key, rows...)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// RoleCapabilities returns the rows of role in insertion order. Malformed rows
// are returned with empty fields so the caller can skip and report them.
func (s *Store) RoleCapabilities(ctx context.Context, role string) ([]store.RolePermission, error) {
	rows, err := s.redis.LRange(ctx, s.roleKey(role), 0, -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]store.RolePermission, 0, len(rows))
	for _, row := range rows {
		parts := strings.SplitN(row, rowSep, 3)
		p := store.RolePermission{Role: role}
		if len(parts) == 3 {
			p.Resource, p.Action, p.Scope = parts[0], parts[1], parts[2]
		}
		out = append(out, p)
	}
	return out, nil
}
