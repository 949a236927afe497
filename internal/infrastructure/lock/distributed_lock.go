package lock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"goldledger/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ============================================================================
// Redis 分布式锁
// ============================================================================
//
// 场景：同一用户的请求落在两个实例上，同时 debit(cash, 6000)，余额 10000
//
//   无锁：两个实例都读到 10000，后提交的一方版本冲突，只能返回存储错误
//   加锁：后到的实例等锁，读到 4000 后按余额不足拒绝
//
// 进程内 KeyedMutex 只能串行化单实例，多实例部署时改用 RedisLocker
//
// 加锁 SET key token NX PX ttl；释放时用脚本比对 token 再删除，
// 锁已过期被他人持有时不会误删
//
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

// 比对持有者后删除；返回 0 表示锁已不属于自己
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DistributedLock 单个 key 上的锁，token 标识持有者
type DistributedLock struct {
	client     *redis.Client
	key        string
	token      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, token string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		token:      token,
		expiration: expiration,
	}
}

// TryLock 非阻塞加锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.expiration).Result()
	if err != nil {
		return false, errors.Wrapf(err, "SETNX %s", l.key)
	}
	return ok, nil
}

// Lock 按 retryInterval 轮询，最多尝试 maxRetries 次
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for i := 0; i < maxRetries; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，返回是否确实删除了自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) (bool, error) {
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return false, errors.Wrapf(err, "unlock %s", l.key)
	}
	return n == 1, nil
}

// ============================================================================
// RedisLocker：按用户维度的账户锁
// ============================================================================

// RedisLocker 按用户维度的账户锁，满足 ledger.Locker
// 三个余额挂在同一行上，同一用户的交易、质押、借贷、赎回严格串行，不同用户互不影响
type RedisLocker struct {
	client        *redis.Client
	expiration    time.Duration
	retryInterval time.Duration
	logger        *zap.Logger
}

func NewRedisLocker(client *redis.Client, expiration time.Duration, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		client:        client,
		expiration:    expiration,
		retryInterval: 20 * time.Millisecond,
		logger:        logger,
	}
}

// AccountLockKey 账户锁的 key
func AccountLockKey(userID int64) string {
	return fmt.Sprintf("ledger:lock:account:%d", userID)
}

// Lock 阻塞直到获取锁、ctx 结束或等满一个锁过期周期
// value 使用雪花 ID，保证只会释放自己持有的锁
func (r *RedisLocker) Lock(ctx context.Context, userID int64) (func(), error) {
	l := NewDistributedLock(r.client, AccountLockKey(userID), strconv.FormatInt(idgen.NextID(), 10), r.expiration)

	maxRetries := int(r.expiration/r.retryInterval) + 1
	if err := l.Lock(ctx, r.retryInterval, maxRetries); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Wrapf(err, "账户锁 user_id=%d", userID)
	}

	return func() {
		// 持锁期间调用方的 ctx 可能已取消，释放锁不能受其影响
		unlockCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		released, err := l.Unlock(unlockCtx)
		if err != nil {
			r.logger.Warn("释放账户锁失败，等待过期",
				zap.Int64("user_id", userID),
				zap.Error(err))
			return
		}
		if !released {
			// 持锁时间超过 ttl，锁已过期或被其他实例持有
			r.logger.Warn("账户锁已过期",
				zap.Int64("user_id", userID),
				zap.Duration("ttl", r.expiration))
		}
	}, nil
}
