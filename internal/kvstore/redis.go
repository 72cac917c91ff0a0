package kvstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore は Store のRedis実装です。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Get はキーの値を取得します。
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// Set は値をTTL付きで保存します。
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

// GetDel は GETDEL コマンドで取得と削除をアトミックに行います。
func (s *RedisStore) GetDel(ctx context.Context, key string) (string, bool, error) {
	value, err := s.rdb.GetDel(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// Delete はキーを削除します。
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// Increment は INCR と EXPIRE をパイプラインで実行します。
// 加算のたびにTTLを更新するため、失敗が続く限り窓は延長されます。
func (s *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
