package persist

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStorage stores blobs as plain keys. Session blobs get a TTL that is
// renewed on every write.
type RedisStorage struct {
	client     redis.Cmdable
	prefix     string
	sessionTTL time.Duration
}

func NewRedisStorage(client redis.Cmdable, prefix string, sessionTTL time.Duration) *RedisStorage {
	return &RedisStorage{client: client, prefix: prefix, sessionTTL: sessionTTL}
}

func (r *RedisStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	blob, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return blob, true, nil
}

func (r *RedisStorage) Set(ctx context.Context, key string, blob []byte, scope Scope) error {
	var ttl time.Duration
	if scope == Session {
		ttl = r.sessionTTL
	}
	return r.client.Set(ctx, r.prefix+key, blob, ttl).Err()
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
