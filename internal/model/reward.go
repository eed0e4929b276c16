package model

import (
	"time"
)

// Reward 奖励目录
type Reward struct {
	ID             string    `gorm:"type:varchar(50);primaryKey" json:"id"`
	Name           string    `gorm:"type:varchar(128);not null" json:"name"`
	Description    string    `gorm:"type:varchar(512)" json:"description"`
	ImageURL       string    `gorm:"type:varchar(512)" json:"image_url"`
	Tier           int       `gorm:"not null;default:1" json:"tier"` // 仅用于展示分组
	PointsRequired int64     `gorm:"not null" json:"points_required"`
	Active         bool      `gorm:"not null" json:"active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Reward) TableName() string {
	return "reward"
}

// DefaultCatalog 初始奖励目录
var DefaultCatalog = []Reward{
	{
		ID:             "reward_1",
		Name:           "10% Off Voucher",
		Description:    "Get 10% off on your next purchase",
		ImageURL:       "https://images.unsplash.com/photo-1556742049-0cfed4f6a45d?w=400&q=80",
		Tier:           1,
		PointsRequired: 200,
		Active:         true,
	},
	{
		ID:             "reward_2",
		Name:           "Free Triangle Waffle",
		Description:    "A delicious crispy triangle waffle",
		ImageURL:       "https://images.unsplash.com/photo-1600713531223-aab27a01bb69?w=400&q=80",
		Tier:           2,
		PointsRequired: 400,
		Active:         true,
	},
	{
		ID:             "reward_3",
		Name:           "Popsicle Waffle",
		Description:    "Waffle on a stick - perfect for on-the-go!",
		ImageURL:       "https://images.unsplash.com/photo-1740072625684-46f4f1f594d8?w=400&q=80",
		Tier:           3,
		PointsRequired: 500,
		Active:         true,
	},
	{
		ID:             "reward_4",
		Name:           "6pc Pancake Stack",
		Description:    "Six fluffy pancakes with your choice of topping",
		ImageURL:       "https://images.unsplash.com/photo-1575831967553-771b0db4f7c1?w=400&q=80",
		Tier:           4,
		PointsRequired: 600,
		Active:         true,
	},
	{
		ID:             "reward_5",
		Name:           "Premium Choice",
		Description:    "Choice of any Waffle OR 10pc Pancake",
		ImageURL:       "https://images.unsplash.com/photo-1567620905732-2d1ec7ab7445?w=400&q=80",
		Tier:           5,
		PointsRequired: 800,
		Active:         true,
	},
}
