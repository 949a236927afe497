package cache

import (
	"context"
	"fmt"
	"time"

	"goldledger/internal/config"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// NewRedis 创建 Redis 客户端并检查连通性
// 账户分布式锁与金价缓存共用该客户端
func NewRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "连接 Redis 失败")
	}
	return client, nil
}
