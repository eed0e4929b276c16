package service

import (
	"context"
	"log"

	"loyaltyledger/internal/config"
	"loyaltyledger/internal/model"
	"loyaltyledger/internal/repository"

	"gorm.io/gorm"
)

// LeaderboardService 按累计积分排名
//
// 排序规则：lifetime_points 降序；相同时先注册者在前；再相同按账户 id 升序。
// 因此在没有新的积分变动时，多次调用结果完全一致。
type LeaderboardService struct {
	accountRepo  *repository.AccountRepository
	cache        LeaderboardCache
	defaultLimit int
}

func NewLeaderboardService(db *gorm.DB, cache LeaderboardCache, cfg *config.Config) *LeaderboardService {
	return &LeaderboardService{
		accountRepo:  repository.NewAccountRepository(db),
		cache:        cache,
		defaultLimit: cfg.Business.LeaderboardLimit,
	}
}

// DefaultLimit 未指定 limit 时使用的条数，0 表示不限
func (s *LeaderboardService) DefaultLimit() int {
	return s.defaultLimit
}

// Rank 返回前 limit 名，limit <= 0 返回全部账户
func (s *LeaderboardService) Rank(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit < 0 {
		limit = 0
	}

	// 版本号必须在查询数据库之前读取：查询期间提交的变动会递增版本号，
	// 本次结果写入旧版本的 key，之后不会被读到
	var gen int64
	cacheable := false
	if s.cache != nil {
		entries, g, ok, err := s.cache.Get(ctx, limit)
		if err != nil {
			log.Printf("[Leaderboard] 读取缓存失败: %v", err)
		} else if ok {
			return entries, nil
		} else {
			gen, cacheable = g, true
		}
	}

	accounts, err := s.accountRepo.ListRanked(ctx, limit)
	if err != nil {
		return nil, classify(err)
	}

	entries := make([]model.LeaderboardEntry, 0, len(accounts))
	for i, acc := range accounts {
		entries = append(entries, model.LeaderboardEntry{
			Rank:           i + 1,
			AccountID:      acc.ID,
			Name:           acc.Name,
			LifetimePoints: acc.LifetimePoints,
		})
	}

	if cacheable {
		if err := s.cache.Set(ctx, gen, limit, entries); err != nil {
			log.Printf("[Leaderboard] 写入缓存失败: %v", err)
		}
	}
	return entries, nil
}
