package foxytools

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps cache entries in Redis under
// <prefix>:{<collection>}:<key>, with a set per collection listing its keys.
// The braces keep a collection in one cluster hash slot.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBackend wraps client. An empty prefix defaults to "foxytools".
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "foxytools"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) entryKey(collection, key string) string {
	return r.prefix + ":{" + collection + "}:" + key
}

func (r *RedisBackend) indexKey(collection string) string {
	return r.prefix + ":{" + collection + "}:__keys"
}

func (r *RedisBackend) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, r.entryKey(collection, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &StoreIOError{Op: "get", Path: r.entryKey(collection, key), Err: err}
	}
	return value, true, nil
}

func (r *RedisBackend) Put(ctx context.Context, collection, key string, value []byte) error {
	entry := r.entryKey(collection, key)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entry, value, 0)
		pipe.SAdd(ctx, r.indexKey(collection), entry)
		return nil
	})
	if err != nil {
		return &StoreIOError{Op: "put", Path: entry, Err: err}
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, collection, key string) error {
	entry := r.entryKey(collection, key)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, entry)
		pipe.SRem(ctx, r.indexKey(collection), entry)
		return nil
	})
	if err != nil {
		return &StoreIOError{Op: "delete", Path: entry, Err: err}
	}
	return nil
}

func (r *RedisBackend) DeleteAll(ctx context.Context, collection string) error {
	index := r.indexKey(collection)
	keys, err := r.client.SMembers(ctx, index).Result()
	if err != nil {
		return &StoreIOError{Op: "delete_all", Path: index, Err: err}
	}
	keys = append(keys, index)
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return &StoreIOError{Op: "delete_all", Path: index, Err: err}
	}
	return nil
}
