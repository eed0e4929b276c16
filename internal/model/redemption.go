package model

import (
	"time"
)

// Redemption 兑换记录
// 与扣减积分在同一事务内创建；RewardName / PointsSpent 为兑换时快照。
// 生命周期：未领取 -> 已领取（仅一次，不可逆，不删除）
type Redemption struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"-"`
	RedemptionNo string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"redemption_no"`
	AccountID    int64      `gorm:"index;not null" json:"account_id"`
	AccountName  string     `gorm:"type:varchar(64);not null" json:"account_name"`
	RewardID     string     `gorm:"type:varchar(50);not null" json:"reward_id"`
	RewardName   string     `gorm:"type:varchar(128);not null" json:"reward_name"`
	PointsSpent  int64      `gorm:"not null" json:"points_spent"`
	RewardCode   string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"reward_code"`
	Claimed      bool       `gorm:"not null;default:false;index" json:"claimed"`
	ClaimedAt    *time.Time `json:"claimed_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Redemption) TableName() string {
	return "redemption"
}
