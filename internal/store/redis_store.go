package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(addr, password string, db int, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "promptrelay:"
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		prefix: prefix,
	}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) ClaimID(ctx context.Context, correlationID string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+"claim:"+correlationID, "1", ttl).Result()
}

func (r *RedisStore) SetStatus(ctx context.Context, correlationID, status string, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+"status:"+correlationID, status, ttl).Err()
}

func (r *RedisStore) GetStatus(ctx context.Context, correlationID string) (string, error) {
	result, err := r.client.Get(ctx, r.prefix+"status:"+correlationID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return result, err
}
