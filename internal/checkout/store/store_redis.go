package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "checkout:snapshot:"

// RedisStore persists snapshots in Redis with a native TTL. Recommended
// when more than one instance serves the checkout.
type RedisStore struct {
	client *redis.Client
	codec  codec
	ttl    time.Duration
	clock  Clock
}

type RedisOption func(*RedisStore)

func WithRedisClock(clock Clock) RedisOption {
	return func(s *RedisStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewRedisStore(client *redis.Client, cipher *Cipher, ttl time.Duration, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	s := &RedisStore{
		client: client,
		codec:  codec{cipher: cipher},
		ttl:    ttl,
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, snap *Snapshot) error {
	payload, err := s.codec.encode(snap)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, key string) (*Snapshot, error) {
	payload, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	snap, err := s.codec.decode(payload)
	if err != nil {
		return nil, err
	}
	// Redis expires the key on its own; the timestamp check covers clock
	// skew between writers.
	if s.clock().Sub(snap.SavedAt) > s.ttl {
		_ = s.client.Del(ctx, redisKeyPrefix+key).Err()
		return nil, nil
	}
	return snap, nil
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
