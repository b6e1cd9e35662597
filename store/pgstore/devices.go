package pgstore

import (
	"context"

	"github.com/MrEthical07/authcore/store"
)

// UpsertDevice reports creation via xmax = 0, which holds only for a row the
// statement inserted rather than updated.
func (s *Store) UpsertDevice(ctx context.Context, d *store.Device) (bool, error) {
	var created bool
	err := s.db.QueryRowContext(ctx, `
		insert into devices (user_id, id, user_agent, ip, platform, accept_language, last_used_at, created_at, active)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		on conflict (user_id, id) do update
		set user_agent = excluded.user_agent,
		    ip = excluded.ip,
		    platform = excluded.platform,
		    accept_language = excluded.accept_language,
		    last_used_at = excluded.last_used_at,
		    active = excluded.active
		returning created_at, (xmax = 0)
	`, d.UserID, d.ID, d.UserAgent, d.IP, d.Platform, d.AcceptLanguage, d.LastUsedAt, d.CreatedAt, d.Active).Scan(&d.CreatedAt, &created)
	if err != nil {
		return false, unavailable(err)
	}
	return created, nil
}

func (s *Store) SetDeviceActive(ctx context.Context, userID, deviceID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `update devices set active = $3 where user_id = $1 and id = $2`,
		userID, deviceID, active)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeactivateUserDevices(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `update devices set active = false where user_id = $1 and active`, userID)
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

func (s *Store) ListUserDevices(ctx context.Context, userID string) ([]store.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, user_agent, ip, platform, accept_language, last_used_at, created_at, active
		from devices
		where user_id = $1
		order by created_at
	`, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []store.Device
	for rows.Next() {
		var d store.Device
		if err := rows.Scan(&d.ID, &d.UserID, &d.UserAgent, &d.IP, &d.Platform, &d.AcceptLanguage,
			&d.LastUsedAt, &d.CreatedAt, &d.Active); err != nil {
			return nil, unavailable(err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}
