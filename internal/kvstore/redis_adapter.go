package kvstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyIndexSuffix names the Redis set tracking live keys under a namespace, needed
// because Redis has no native "list all keys in this store" primitive that
// is safe to run against a shared instance.
const keyIndexSuffix = ":__keys__"

// RedisStore implements Store against go-redis v9, giving the C4 `store`
// handler and optional C12 durable snapshot a persistence layer that
// survives process restarts. Grounded on the teacher's go-redis adapter,
// trimmed from its pub/sub surface (unused by this domain) to the plain
// key/value operations the Store interface needs.
type RedisStore struct {
	rdb       *redis.Client
	namespace string
}

// NewRedisStore connects to addr and verifies connectivity with a ping
// before returning; the caller decides whether to fall back to MemoryStore
// on error (spec §3 Non-goals: the registry/store is not required to be
// durable, so Redis is an enhancement, not a hard dependency).
func NewRedisStore(addr, password string, db int, namespace string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}

	slog.Info("kvstore: redis connected", "addr", addr, "db", db, "namespace", namespace)
	return &RedisStore{rdb: rdb, namespace: namespace}, nil
}

// Close shuts down the underlying redis client.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

func (r *RedisStore) key(k string) string {
	return r.namespace + ":" + k
}

func (r *RedisStore) index() string {
	return r.namespace + keyIndexSuffix
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return err
	}
	return r.rdb.SAdd(ctx, r.index(), key).Err()
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.rdb.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		return err
	}
	return r.rdb.SRem(ctx, r.index(), key).Err()
}

func (r *RedisStore) List(ctx context.Context) ([]string, error) {
	keys, err := r.rdb.SMembers(ctx, r.index()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	keys, err := r.rdb.SMembers(ctx, r.index()).Result()
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		namespaced := make([]string, len(keys))
		for i, k := range keys {
			namespaced[i] = r.key(k)
		}
		if err := r.rdb.Del(ctx, namespaced...).Err(); err != nil {
			return err
		}
	}
	return r.rdb.Del(ctx, r.index()).Err()
}
