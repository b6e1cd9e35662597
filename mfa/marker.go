package mfa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMarkerStore keeps verified markers as plain keys with a TTL.
type RedisMarkerStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisMarkerStore returns a RedisMarkerStore. prefix defaults to "mfav".
func NewRedisMarkerStore(client redis.UniversalClient, prefix string) *RedisMarkerStore {
	if prefix == "" {
		prefix = "mfav"
	}
	return &RedisMarkerStore{redis: client, prefix: prefix}
}

func (s *RedisMarkerStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// SetVerified records that userID passed the second factor, valid for ttl.
func (s *RedisMarkerStore) SetVerified(ctx context.Context, userID string, ttl time.Duration) error {
	if userID == "" {
		return errors.New("mfa marker requires a user id")
	}
	if ttl <= 0 {
		return errors.New("mfa marker ttl must be positive")
	}
	stamp := time.Now().UTC().Format(time.RFC3339)
	if err := s.redis.Set(ctx, s.key(userID), stamp, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMarkerUnavailable, err)
	}
	return nil
}

// HasVerified reports whether a marker exists without touching it.
func (s *RedisMarkerStore) HasVerified(ctx context.Context, userID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMarkerUnavailable, err)
	}
	return n > 0, nil
}

// ConsumeVerified atomically removes the marker and reports whether it existed.
func (s *RedisMarkerStore) ConsumeVerified(ctx context.Context, userID string) (bool, error) {
	err := s.redis.GetDel(ctx, s.key(userID)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrMarkerUnavailable, err)
	}
	return true, nil
}

// Clear removes any marker for userID.
func (s *RedisMarkerStore) Clear(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMarkerUnavailable, err)
	}
	return nil
}
