package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/internal/ids"
	"github.com/MrEthical07/authcore/store"
)

const (
	statusNotFound  int64 = 0
	statusUsed      int64 = 1
	statusDuplicate int64 = 2
	statusOK        int64 = 3
)

// KEYS: token, device set, user device set.
// ARGV: hash, id, user, device, tenant, family, exp ms, created ms.
const insertTokenScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 2
end
redis.call("HSET", KEYS[1],
  "id", ARGV[2], "user", ARGV[3], "device", ARGV[4], "tenant", ARGV[5],
  "family", ARGV[6], "used", "0", "used_at", "0", "exp", ARGV[7], "created", ARGV[8])
redis.call("PEXPIREAT", KEYS[1], ARGV[7])
redis.call("SADD", KEYS[2], ARGV[1])
redis.call("SADD", KEYS[3], ARGV[4])
return 3
`

var insertTokenLua = redis.NewScript(insertTokenScript)

// KEYS: old token, new token, device set, user device set.
// ARGV: now ms, then the insert arguments.
const rotateTokenScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "used") == "1" then
  return 1
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 2
end
redis.call("HSET", KEYS[1], "used", "1", "used_at", ARGV[1])
redis.call("HSET", KEYS[2],
  "id", ARGV[3], "user", ARGV[4], "device", ARGV[5], "tenant", ARGV[6],
  "family", ARGV[7], "used", "0", "used_at", "0", "exp", ARGV[8], "created", ARGV[9])
redis.call("PEXPIREAT", KEYS[2], ARGV[8])
redis.call("SADD", KEYS[3], ARGV[2])
redis.call("SADD", KEYS[4], ARGV[5])
return 3
`

var rotateTokenLua = redis.NewScript(rotateTokenScript)

// KEYS: token. ARGV: now ms.
const revokeTokenScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "used") == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "used", "1", "used_at", ARGV[1], "exp", ARGV[1])
return 1
`

var revokeTokenLua = redis.NewScript(revokeTokenScript)

// KEYS: device set. ARGV: now ms, token key prefix.
const revokeDeviceScript = `
local n = 0
for _, h in ipairs(redis.call("SMEMBERS", KEYS[1])) do
  local k = ARGV[2] .. h
  if redis.call("EXISTS", k) == 0 then
    redis.call("SREM", KEYS[1], h)
  elseif redis.call("HGET", k, "used") ~= "1" then
    redis.call("HSET", k, "used", "1", "used_at", ARGV[1], "exp", ARGV[1])
    n = n + 1
  end
end
return n
`

var revokeDeviceLua = redis.NewScript(revokeDeviceScript)

// KEYS: user device set. ARGV: now ms, token key prefix, device set prefix.
const revokeUserScript = `
local n = 0
for _, d in ipairs(redis.call("SMEMBERS", KEYS[1])) do
  local set = ARGV[3] .. d
  for _, h in ipairs(redis.call("SMEMBERS", set)) do
    local k = ARGV[2] .. h
    if redis.call("EXISTS", k) == 0 then
      redis.call("SREM", set, h)
    elseif redis.call("HGET", k, "used") ~= "1" then
      redis.call("HSET", k, "used", "1", "used_at", ARGV[1], "exp", ARGV[1])
      n = n + 1
    end
  end
end
return n
`

var revokeUserLua = redis.NewScript(revokeUserScript)

func (s *Store) tokenArgs(t *store.RefreshToken) []interface{} {
	return []interface{}{
		t.Hash, t.ID, t.UserID, t.DeviceID, t.TenantID, t.FamilyID,
		millis(t.ExpiresAt), millis(t.CreatedAt),
	}
}

func (s *Store) InsertRefreshToken(ctx context.Context, t *store.RefreshToken) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	keys := []string{
		s.tokenKey(t.Hash),
		s.deviceTokensKey(t.UserID, t.DeviceID),
		s.userDevicesWithTokensKey(t.UserID),
	}
	status, err := insertTokenLua.Run(ctx, s.redis, keys, s.tokenArgs(t)...).Int64()
	if err != nil {
		return unavailable(err)
	}
	if status == statusDuplicate {
		return store.ErrDuplicate
	}
	return nil
}

func (s *Store) FindRefreshToken(ctx context.Context, hash string) (*store.RefreshToken, error) {
	fields, err := s.redis.HGetAll(ctx, s.tokenKey(hash)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, store.ErrNotFound
	}
	return decodeToken(hash, fields), nil
}

func decodeToken(hash string, f map[string]string) *store.RefreshToken {
	return &store.RefreshToken{
		ID:        f["id"],
		Hash:      hash,
		UserID:    f["user"],
		DeviceID:  f["device"],
		TenantID:  f["tenant"],
		FamilyID:  f["family"],
		Used:      f["used"] == "1",
		UsedAt:    parseMillis(f["used_at"]),
		ExpiresAt: parseMillis(f["exp"]),
		CreatedAt: parseMillis(f["created"]),
	}
}

func (s *Store) RotateRefreshToken(ctx context.Context, oldHash string, next *store.RefreshToken, now time.Time) error {
	if next.ID == "" {
		next.ID = ids.New()
	}
	keys := []string{
		s.tokenKey(oldHash),
		s.tokenKey(next.Hash),
		s.deviceTokensKey(next.UserID, next.DeviceID),
		s.userDevicesWithTokensKey(next.UserID),
	}
	args := append([]interface{}{millis(now)}, s.tokenArgs(next)...)
	status, err := rotateTokenLua.Run(ctx, s.redis, keys, args...).Int64()
	if err != nil {
		return unavailable(err)
	}
	switch status {
	case statusOK:
		return nil
	case statusNotFound:
		return store.ErrNotFound
	case statusUsed:
		return store.ErrTokenAlreadyUsed
	case statusDuplicate:
		return store.ErrDuplicate
	default:
		return unavailable(errors.New("unexpected rotate status"))
	}
}

func (s *Store) RevokeRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error) {
	n, err := revokeTokenLua.Run(ctx, s.redis, []string{s.tokenKey(hash)}, millis(now)).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

func (s *Store) RevokeDeviceTokens(ctx context.Context, userID, deviceID string, now time.Time) (int, error) {
	res, err := revokeDeviceLua.Run(ctx, s.redis,
		[]string{s.deviceTokensKey(userID, deviceID)},
		millis(now), s.tokenPrefix(),
	).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return scriptInt(res)
}

func (s *Store) RevokeUserTokens(ctx context.Context, userID string, now time.Time) (int, error) {
	res, err := revokeUserLua.Run(ctx, s.redis,
		[]string{s.userDevicesWithTokensKey(userID)},
		millis(now), s.tokenPrefix(), s.deviceTokensPrefix(userID),
	).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return scriptInt(res)
}

func (s *Store) CountActiveDeviceTokens(ctx context.Context, userID, deviceID string, now time.Time) (int, error) {
	hashes, err := s.redis.SMembers(ctx, s.deviceTokensKey(userID, deviceID)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	cmds := make([]*redis.SliceCmd, len(hashes))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, h := range hashes {
			cmds[i] = pipe.HMGet(ctx, s.tokenKey(h), "used", "exp")
		}
		return nil
	})
	if err != nil {
		return 0, unavailable(err)
	}

	n := 0
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
			continue
		}
		used, _ := vals[0].(string)
		exp, _ := vals[1].(string)
		if used != "1" && now.Before(parseMillis(exp)) {
			n++
		}
	}
	return n, nil
}
