package repository

import (
	"context"
	"errors"

	"loyaltyledger/internal/model"

	"gorm.io/gorm"
)

var ErrRewardNotFound = errors.New("奖励不存在")

type RewardRepository struct {
	db *gorm.DB
}

func NewRewardRepository(db *gorm.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

func (r *RewardRepository) GetByID(ctx context.Context, id string) (*model.Reward, error) {
	var reward model.Reward
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&reward).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRewardNotFound
		}
		return nil, err
	}
	return &reward, nil
}

// ListActive 返回上架中的奖励，按档位和所需积分排序
func (r *RewardRepository) ListActive(ctx context.Context) ([]*model.Reward, error) {
	var rewards []*model.Reward
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("tier ASC").
		Order("points_required ASC").
		Find(&rewards).Error
	return rewards, err
}

func (r *RewardRepository) SetActive(ctx context.Context, id string, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&model.Reward{}).
		Where("id = ?", id).
		Update("active", active)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		// 状态未变化时 MySQL 也返回 0 行，需再确认一次是否存在
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
