package redisstore

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/store"
)

// KEYS: device. ARGV: active flag.
const setDeviceActiveScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "active", ARGV[1])
return 1
`

var setDeviceActiveLua = redis.NewScript(setDeviceActiveScript)

// KEYS: device id set. ARGV: device key prefix.
const deactivateDevicesScript = `
local n = 0
for _, d in ipairs(redis.call("SMEMBERS", KEYS[1])) do
  local k = ARGV[1] .. d
  if redis.call("HGET", k, "active") == "1" then
    redis.call("HSET", k, "active", "0")
    n = n + 1
  end
end
return n
`

var deactivateDevicesLua = redis.NewScript(deactivateDevicesScript)

// UpsertDevice reports creation from the HSETNX on "created", so the answer
// does not depend on timestamp precision.
func (s *Store) UpsertDevice(ctx context.Context, d *store.Device) (bool, error) {
	key := s.deviceKey(d.UserID, d.ID)
	var (
		first   *redis.BoolCmd
		created *redis.StringCmd
	)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		first = pipe.HSetNX(ctx, key, "created", millis(d.CreatedAt))
		pipe.HSet(ctx, key,
			"user_agent", d.UserAgent,
			"ip", d.IP,
			"platform", d.Platform,
			"accept_language", d.AcceptLanguage,
			"last_used", millis(d.LastUsedAt),
			"active", flag(d.Active),
		)
		pipe.SAdd(ctx, s.devicesKey(d.UserID), d.ID)
		created = pipe.HGet(ctx, key, "created")
		return nil
	})
	if err != nil {
		return false, unavailable(err)
	}
	if ts := parseMillis(created.Val()); !ts.IsZero() {
		d.CreatedAt = ts
	}
	return first.Val(), nil
}

func (s *Store) SetDeviceActive(ctx context.Context, userID, deviceID string, active bool) error {
	n, err := setDeviceActiveLua.Run(ctx, s.redis, []string{s.deviceKey(userID, deviceID)}, flag(active)).Int64()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeactivateUserDevices(ctx context.Context, userID string) (int, error) {
	res, err := deactivateDevicesLua.Run(ctx, s.redis, []string{s.devicesKey(userID)}, s.devicePrefix(userID)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return scriptInt(res)
}

func (s *Store) ListUserDevices(ctx context.Context, userID string) ([]store.Device, error) {
	deviceIDs, err := s.redis.SMembers(ctx, s.devicesKey(userID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(deviceIDs) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(deviceIDs))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range deviceIDs {
			cmds[i] = pipe.HGetAll(ctx, s.deviceKey(userID, id))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}

	out := make([]store.Device, 0, len(deviceIDs))
	for i, cmd := range cmds {
		f := cmd.Val()
		if len(f) == 0 {
			continue
		}
		out = append(out, store.Device{
			ID:             deviceIDs[i],
			UserID:         userID,
			UserAgent:      f["user_agent"],
			IP:             f["ip"],
			Platform:       f["platform"],
			AcceptLanguage: f["accept_language"],
			LastUsedAt:     parseMillis(f["last_used"]),
			CreatedAt:      parseMillis(f["created"]),
			Active:         f["active"] == "1",
		})
	}
	return out, nil
}
