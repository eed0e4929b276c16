package service

import (
	"context"
	"log"

	"loyaltyledger/internal/model"
)

// AccountLocker 按账户维度的互斥锁
// 实现见 infrastructure/lock：Redis 分布式锁或进程内锁
type AccountLocker interface {
	Lock(ctx context.Context, accountID int64, owner string) (unlock func(), err error)
}

// LeaderboardCache 排行榜缓存，为 nil 时每次实时计算
//
// 缓存按版本号分代：Get 返回读取时的版本号，Set 只写入该版本；
// Invalidate 递增版本号，之前任何版本的写入都不会再被读到。
type LeaderboardCache interface {
	Get(ctx context.Context, limit int) (entries []model.LeaderboardEntry, gen int64, ok bool, err error)
	Set(ctx context.Context, gen int64, limit int, entries []model.LeaderboardEntry) error
	Invalidate(ctx context.Context) error
}

// invalidateLeaderboard 积分变动提交后调用
// 失效失败只记录日志：缓存带 TTL，最终会过期
func invalidateLeaderboard(ctx context.Context, cache LeaderboardCache) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
		log.Printf("[Leaderboard] 缓存失效失败: %v", err)
	}
}
