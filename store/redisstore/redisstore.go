package redisstore

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/store"
)

var (
	_ store.DeviceStore         = (*Store)(nil)
	_ store.RefreshTokenStore   = (*Store)(nil)
	_ store.RolePermissionStore = (*Store)(nil)
)

// Store is a Redis-backed device, refresh token and role permission store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New returns a Store. prefix defaults to "ac".
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ac"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) tokenPrefix() string { return s.prefix + ":rt:" }

func (s *Store) tokenKey(hash string) string { return s.tokenPrefix() + hash }

func (s *Store) deviceTokensPrefix(userID string) string {
	return s.prefix + ":rtd:" + userID + ":"
}

func (s *Store) deviceTokensKey(userID, deviceID string) string {
	return s.deviceTokensPrefix(userID) + deviceID
}

func (s *Store) userDevicesWithTokensKey(userID string) string {
	return s.prefix + ":rtu:" + userID
}

func (s *Store) deviceKey(userID, deviceID string) string {
	return s.prefix + ":dev:" + userID + ":" + deviceID
}

func (s *Store) devicePrefix(userID string) string {
	return s.prefix + ":dev:" + userID + ":"
}

func (s *Store) devicesKey(userID string) string {
	return s.prefix + ":devs:" + userID
}

func (s *Store) roleKey(role string) string {
	return s.prefix + ":rp:" + role
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

func millis(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func scriptInt(v interface{}) (int, error) {
	n, ok := v.(int64)
	if !ok {
		return 0, errors.New("unexpected script result")
	}
	return int(n), nil
}
