package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/ids"
	"github.com/MrEthical07/authcore/store"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertToken(ctx context.Context, db execer, t *store.RefreshToken) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	_, err := db.ExecContext(ctx, `
		insert into refresh_tokens (id, token_hash, user_id, device_id, tenant_id, family_id, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.Hash, t.UserID, t.DeviceID, t.TenantID, t.FamilyID, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return unavailable(err)
	}
	return nil
}

func (s *Store) InsertRefreshToken(ctx context.Context, t *store.RefreshToken) error {
	return insertToken(ctx, s.db, t)
}

func (s *Store) FindRefreshToken(ctx context.Context, hash string) (*store.RefreshToken, error) {
	var (
		t      store.RefreshToken
		usedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select id, token_hash, user_id, device_id, tenant_id, family_id, used, used_at, expires_at, created_at
		from refresh_tokens
		where token_hash = $1
	`, hash).Scan(&t.ID, &t.Hash, &t.UserID, &t.DeviceID, &t.TenantID, &t.FamilyID, &t.Used, &usedAt, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	t.UsedAt = usedAt.Time
	return &t, nil
}

func (s *Store) RotateRefreshToken(ctx context.Context, oldHash string, next *store.RefreshToken, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`update refresh_tokens set used = true, used_at = $2 where token_hash = $1 and used = false`,
		oldHash, now)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		var used bool
		err := tx.QueryRowContext(ctx, `select used from refresh_tokens where token_hash = $1`, oldHash).Scan(&used)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return unavailable(err)
		}
		return store.ErrTokenAlreadyUsed
	}

	if err := insertToken(ctx, tx, next); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens set used = true, used_at = $2, expires_at = $2
		where token_hash = $1 and used = false
	`, hash, now)
	if err != nil {
		return false, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

func (s *Store) RevokeDeviceTokens(ctx context.Context, userID, deviceID string, now time.Time) (int, error) {
	return s.revoke(ctx, `
		update refresh_tokens set used = true, used_at = $3, expires_at = $3
		where user_id = $1 and device_id = $2 and used = false
	`, userID, deviceID, now)
}

func (s *Store) RevokeUserTokens(ctx context.Context, userID string, now time.Time) (int, error) {
	return s.revoke(ctx, `
		update refresh_tokens set used = true, used_at = $2, expires_at = $2
		where user_id = $1 and used = false
	`, userID, now)
}

func (s *Store) revoke(ctx context.Context, query string, args ...any) (int, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

func (s *Store) CountActiveDeviceTokens(ctx context.Context, userID, deviceID string, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from refresh_tokens
		where user_id = $1 and device_id = $2 and used = false and expires_at > $3
	`, userID, deviceID, now).Scan(&n)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}
