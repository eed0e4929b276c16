package model

import (
	"time"
)

// Account 会员积分账户表
// 积分余额的唯一数据来源，name 同时作为登录查找的 key（区分大小写）
//
// 不变量：0 <= CurrentPoints <= LifetimePoints
type Account struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"name"`
	CurrentPoints  int64     `gorm:"not null;default:0" json:"current_points"`  // 可用积分
	LifetimePoints int64     `gorm:"not null;default:0" json:"lifetime_points"` // 累计获得积分，只增不减
	Version        int       `gorm:"not null;default:0" json:"-"`               // 每次变动 +1
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}
