package model

// LeaderboardEntry 排行榜条目，由账户表实时计算，不落库
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	AccountID      int64  `json:"account_id"`
	Name           string `json:"name"`
	LifetimePoints int64  `json:"lifetime_points"`
}
