package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker 进程内的 Locker 实现
// 单实例部署和测试环境用它代替 Redis，语义和 RedisLocker 保持一致
type MemoryLocker struct {
	mu            sync.Mutex
	holders       map[string]string // key -> token
	retryInterval time.Duration
	maxRetries    int
}

func NewMemoryLocker(retryInterval time.Duration, maxRetries int) *MemoryLocker {
	return &MemoryLocker{
		holders:       make(map[string]string),
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

func (l *MemoryLocker) TryLock(ctx context.Context, key, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.holders[key]; held {
		return false, nil
	}
	l.holders[key] = token
	return true, nil
}

func (l *MemoryLocker) Lock(ctx context.Context, key, token string) error {
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

func (l *MemoryLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if holder, held := l.holders[key]; held && holder == token {
		delete(l.holders, key)
	}
	return nil
}
