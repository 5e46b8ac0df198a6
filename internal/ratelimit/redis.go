package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	failKeyPrefix = "loginfail:"
	lockKeyPrefix = "loginlock:"
)

// Redis は試行回数を Redis に保存します。複数プロセスで制限を共有できます。
type Redis struct {
	rdb  *redis.Client
	opts Options
}

// NewRedis はRedis版の制限を作成します。
func NewRedis(rdb *redis.Client, opts Options) *Redis {
	return &Redis{
		rdb:  rdb,
		opts: opts.withDefaults(),
	}
}

// Check はロックキーの残りTTLを返します。
func (r *Redis) Check(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.rdb.PTTL(ctx, lockKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to check login lock: %w", err)
	}
	if ttl <= 0 {
		// キーなし（-2）または期限なし（-1）はロックなしとして扱う
		return 0, nil
	}
	return ttl, nil
}

// RecordFailure は失敗カウンタを加算し、上限到達でロックキーを立てます。
func (r *Redis) RecordFailure(ctx context.Context, key string) error {
	fk := failKey(key)
	count, err := r.rdb.Incr(ctx, fk).Result()
	if err != nil {
		return fmt.Errorf("failed to record login failure: %w", err)
	}
	if count == 1 {
		if err := r.rdb.Expire(ctx, fk, r.opts.Window).Err(); err != nil {
			return fmt.Errorf("failed to set failure window: %w", err)
		}
	}
	if count >= int64(r.opts.MaxAttempts) {
		pipe := r.rdb.TxPipeline()
		pipe.Set(ctx, lockKey(key), "1", r.opts.LockDuration)
		pipe.Del(ctx, fk)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to lock login attempts: %w", err)
		}
	}
	return nil
}

// Reset は失敗カウンタとロックを消去します。
func (r *Redis) Reset(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, failKey(key), lockKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}

func failKey(key string) string { return failKeyPrefix + key }
func lockKey(key string) string { return lockKeyPrefix + key }
