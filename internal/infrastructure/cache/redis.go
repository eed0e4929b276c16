package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"loyaltyledger/internal/config"
	"loyaltyledger/internal/model"

	"github.com/go-redis/redis/v8"
)

func InitRedis(cfg *config.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("连接 Redis 失败: %v", err)
	}

	log.Println("Redis 连接成功")
	return client
}

const (
	leaderboardKeyPrefix = "ledger:leaderboard:"
	leaderboardGenKey    = leaderboardKeyPrefix + "gen"
)

// LeaderboardCache 排行榜缓存
//
// key 中带版本号。每次积分发放/兑换提交后 INCR 版本号，旧版本的 key 不再被读取，
// 随 TTL 自然过期；正确性依赖版本号，TTL 只负责回收
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardCache(client *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, ttl: ttl}
}

func leaderboardKey(gen int64, limit int) string {
	return fmt.Sprintf("%stop:%d:%d", leaderboardKeyPrefix, gen, limit)
}

func (c *LeaderboardCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, leaderboardGenKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Get 返回当前版本号；命中时 ok 为 true
func (c *LeaderboardCache) Get(ctx context.Context, limit int) ([]model.LeaderboardEntry, int64, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, 0, false, err
	}

	raw, err := c.client.Get(ctx, leaderboardKey(gen, limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}

	var entries []model.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, 0, false, err
	}
	return entries, gen, true, nil
}

// Set 写入 gen 版本的缓存，gen 应来自查询数据库之前的 Get
func (c *LeaderboardCache) Set(ctx context.Context, gen int64, limit int, entries []model.LeaderboardEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, leaderboardKey(gen, limit), raw, c.ttl).Err()
}

// Invalidate 递增版本号，使所有 limit 下的已有缓存失效
func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, leaderboardGenKey).Err()
}
