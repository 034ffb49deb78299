// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package coordination

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
)

// scanBatchSize bounds how many keys a single SCAN round-trip asks
// for, so enumerating lease records never blocks the store.
const scanBatchSize = 256

// RedisStore implements Store on Redis. It deliberately holds two
// clients: blocking carries only BLPOP traffic, mutating carries
// everything else. A single multiplexed connection pool can have all
// of its capacity consumed by stalled blocking pops, which would
// starve releases and deadlock the protocol under load.
type RedisStore struct {
	blocking *redis.Client
	mutating *redis.Client
}

// NewRedisStore returns a Store backed by the two supplied clients.
// The clients should address the same server but must not share a
// connection pool.
func NewRedisStore(blocking, mutating *redis.Client) *RedisStore {
	return &RedisStore{
		blocking: blocking,
		mutating: mutating,
	}
}

// AtomicDequeue is part of the Store interface. BLPOP provides both
// the bounded wait and the cross-replica atomicity of the remove.
func (s *RedisStore) AtomicDequeue(ctx context.Context, queueKey string, timeout time.Duration) (string, error) {
	res, err := s.blocking.BLPop(ctx, timeout, queueKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", errors.Annotatef(err, "dequeuing from %q", queueKey)
	}
	// BLPOP replies [key, value].
	if len(res) != 2 {
		return "", errors.Errorf("unexpected BLPOP reply of length %d", len(res))
	}
	return res[1], nil
}

// Enqueue is part of the Store interface.
func (s *RedisStore) Enqueue(ctx context.Context, queueKey, id string) error {
	if err := s.mutating.RPush(ctx, queueKey, id).Err(); err != nil {
		return errors.Annotatef(err, "enqueuing %q on %q", id, queueKey)
	}
	return nil
}

// HashGet is part of the Store interface.
func (s *RedisStore) HashGet(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.mutating.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, errors.Annotatef(err, "reading hash %q", key)
	}
	return fields, nil
}

// HashSet is part of the Store interface.
func (s *RedisStore) HashSet(ctx context.Context, key string, fields map[string]string) error {
	if err := s.mutating.HSet(ctx, key, fields).Err(); err != nil {
		return errors.Annotatef(err, "writing hash %q", key)
	}
	return nil
}

// KeyExists is part of the Store interface.
func (s *RedisStore) KeyExists(ctx context.Context, key string) (bool, error) {
	n, err := s.mutating.Exists(ctx, key).Result()
	if err != nil {
		return false, errors.Annotatef(err, "checking key %q", key)
	}
	return n > 0, nil
}

// KeyExpire is part of the Store interface.
func (s *RedisStore) KeyExpire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.mutating.Expire(ctx, key, ttl).Err(); err != nil {
		return errors.Annotatef(err, "expiring key %q", key)
	}
	return nil
}

// ScanKeys is part of the Store interface. It walks the SCAN cursor
// in bounded batches rather than using KEYS, which would block the
// store on large key counts.
func (s *RedisStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.mutating.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return nil, errors.Annotatef(err, "scanning keys %q", pattern)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// StringGet is part of the Store interface.
func (s *RedisStore) StringGet(ctx context.Context, key string) (string, error) {
	val, err := s.mutating.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", errors.Annotatef(err, "reading key %q", key)
	}
	return val, nil
}

// StringSet is part of the Store interface.
func (s *RedisStore) StringSet(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.mutating.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Annotatef(err, "writing key %q", key)
	}
	return nil
}
