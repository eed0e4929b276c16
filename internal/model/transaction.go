package model

import (
	"time"
)

const (
	TransactionTypeCredit     = "CREDIT"     // 店员发放积分
	TransactionTypeRedemption = "REDEMPTION" // 兑换奖励扣减积分
)

// PointTransaction 积分流水表
//
// 流水表只追加，不修改，不删除。
// 任意账户的 current_points 等于其全部流水 Amount 之和，
// lifetime_points 等于其 CREDIT 流水 Amount 之和。
type PointTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	AccountID     int64     `gorm:"index;not null" json:"account_id"`
	AccountName   string    `gorm:"type:varchar(64);not null" json:"account_name"`
	Amount        int64     `gorm:"not null" json:"amount"` // 正数发放，负数兑换
	Type          string    `gorm:"type:varchar(20);index;not null" json:"type"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	LifetimeAfter int64     `gorm:"not null" json:"lifetime_after"`
	Reason        string    `gorm:"type:varchar(256)" json:"reason"`
	RefNo         string    `gorm:"type:varchar(64);index" json:"ref_no,omitempty"` // 兑换时为 redemption_no
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PointTransaction) TableName() string {
	return "point_transaction"
}
