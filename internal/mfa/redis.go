package mfa

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeKeyPrefix = "mfa:challenge:"

// RedisStore keeps pending challenges in Redis so any API instance can
// complete a login another instance started. TTL handling is delegated to
// the key expiry.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, token string, ch Challenge, ttl time.Duration) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return s.client.Set(ctx, challengeKeyPrefix+token, payload, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, token string) (Challenge, error) {
	data, err := s.client.Get(ctx, challengeKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Challenge{}, ErrNotFound
		}
		return Challenge{}, err
	}
	var ch Challenge
	if err := json.Unmarshal(data, &ch); err != nil {
		return Challenge{}, err
	}
	return ch, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, challengeKeyPrefix+token).Err()
}
