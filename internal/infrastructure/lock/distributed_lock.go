package lock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 同一账户的积分变动（发放、兑换扣减）必须串行：
//
//   请求1: 获取锁 -> 余额=80 -> 扣减80 -> 余额=0 -> 释放锁
//   请求2: 等待... -> 获取锁 -> 余额=0 -> 积分不足，拒绝
//
// 加锁：SET key value NX PX ttl，value 为持有者标识，ttl 防止进程崩溃后死锁
// 释放：Lua 脚本比较 value 后再 DEL，避免误删别人的锁
//
// ============================================================================

var ErrLockFailed = errors.New("获取账户锁失败")

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		// 等待一段时间后重试
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，只删除自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	_, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Result()
	return err
}

// ============================================================================
// 按账户维度加锁
// ============================================================================

// RedisAccountLocker 基于 Redis 的账户锁，多实例部署时使用
//
// 只锁单个账户，不同账户之间完全并行
type RedisAccountLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisAccountLocker(client *redis.Client, ttl time.Duration) *RedisAccountLocker {
	const retryInterval = 50 * time.Millisecond
	maxRetries := int(ttl / retryInterval)
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &RedisAccountLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

// Lock 获取账户锁，返回的 unlock 必须调用
func (l *RedisAccountLocker) Lock(ctx context.Context, accountID int64, owner string) (func(), error) {
	dl := NewDistributedLock(l.client, AccountLockKey(accountID), owner, l.ttl)
	if err := dl.Lock(ctx, l.retryInterval, l.maxRetries); err != nil {
		return nil, err
	}
	return func() {
		// 请求 ctx 可能已取消，释放锁使用独立的超时
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := dl.Unlock(unlockCtx); err != nil {
			log.Printf("[AccountLock] 释放锁失败: accountID=%d, owner=%s, err=%v", accountID, owner, err)
		}
	}, nil
}

// AccountLockKey 账户锁的 Redis key
func AccountLockKey(accountID int64) string {
	return fmt.Sprintf("ledger:lock:account:%d", accountID)
}
