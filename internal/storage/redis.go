package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/koopa0/system-design/14-lru-cache/pkg/errors"
)

// Redis 以 Redis 作為後端儲存。
//
// 所有 key 加上 prefix（例如 "lru:"），避免與同一個 Redis 的其他資料衝突。
// ttl 為 0 表示不過期。
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis 建立 Redis 儲存。client 的生命週期由呼叫端管理。
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

// Get 取得值；redis.Nil 轉為 ErrKeyNotFound
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrKeyNotFound
	}
	if err != nil {
		return nil, unavailable("redis get", err)
	}
	return value, nil
}

// Set 寫入值
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), value, r.ttl).Err(); err != nil {
		return unavailable("redis set", err)
	}
	return nil
}

// Delete 刪除值；key 不存在時不報錯
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return unavailable("redis del", err)
	}
	return nil
}

// Ping 檢查連線
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable("redis ping", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return apperrors.ErrBackendUnavailable.WithDetails(op).WithCause(err)
}
