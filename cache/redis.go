package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "dashboard:session:"
	redisMaxRetries    = 4
)

// RedisStore keeps entries as JSON strings in Redis, so several hosts
// running the CLI against one backend can share a session.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore wraps rdb. An empty prefix uses "dashboard:session:".
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Load(ctx context.Context, key string) (*Entry, error) {
	data, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry: %w", err)
	}
	return decodeEntry(data)
}

// Update uses WATCH/MULTI and retries when another writer got in between.
func (s *RedisStore) Update(ctx context.Context, key string, fn func(*Entry) error) error {
	k := s.key(key)

	for i := 0; i < redisMaxRetries; i++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			var current *Entry
			data, err := tx.Get(ctx, k).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				if current, err = decodeEntry(data); err != nil {
					return err
				}
			}

			next, err := apply(current, fn)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if next == nil {
					pipe.Del(ctx, k)
					return nil
				}
				encoded, err := json.Marshal(next)
				if err != nil {
					return err
				}
				pipe.Set(ctx, k, encoded, 0)
				return nil
			})
			return err
		}, k)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return fmt.Errorf("cache entry %s: too much contention", key)
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func decodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to parse cache entry: %w", err)
	}
	return &e, nil
}
