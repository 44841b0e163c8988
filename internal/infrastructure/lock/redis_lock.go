package lock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLocker 基于 Redis 的分布式实现
//
// 加锁：SET key token NX EX ttl
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（持有者崩溃时锁自动释放，防止死锁）
//
// 释放：Lua 脚本先比对 token 再删除，保证"检查+删除"的原子性。
// 不比对 token 的话，A 的锁过期后 B 拿到锁，A 执行完 Unlock 会误删 B 的锁
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client, ttl, retryInterval time.Duration, maxRetries int) *RedisLocker {
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *RedisLocker) TryLock(ctx context.Context, key, token string) (bool, error) {
	success, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
// 重试次数用尽仍未拿到锁时返回 ErrLockFailed，调用方应整体重试本次操作
func (l *RedisLocker) Lock(ctx context.Context, key, token string) error {
	for i := 0; i < l.maxRetries; i++ {
		success, err := l.TryLock(ctx, key, token)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{key}, token).Result()
	return err
}
