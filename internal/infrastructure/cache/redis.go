package cache

import (
	"context"
	"fmt"
	"time"

	"ewallet/internal/config"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient 建立 Redis 连接并握手探活
// 客户端由调用方持有并传给需要它的组件，这里不留包级单例
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return client, nil
}
