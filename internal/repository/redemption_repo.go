package repository

import (
	"context"
	"errors"
	"time"

	"loyaltyledger/internal/model"

	"gorm.io/gorm"
)

var (
	ErrRedemptionNotFound = errors.New("兑换记录不存在")
	ErrAlreadyClaimed     = errors.New("奖励已领取")
)

type RedemptionRepository struct {
	db *gorm.DB
}

func NewRedemptionRepository(db *gorm.DB) *RedemptionRepository {
	return &RedemptionRepository{db: db}
}

func (r *RedemptionRepository) Create(ctx context.Context, tx *gorm.DB, redemption *model.Redemption) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(redemption).Error
}

// CodeExists 检查领取码是否已被使用
func (r *RedemptionRepository) CodeExists(ctx context.Context, tx *gorm.DB, code string) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.Redemption{}).
		Where("reward_code = ?", code).
		Count(&count).Error
	return count > 0, err
}

func (r *RedemptionRepository) GetByRedemptionNo(ctx context.Context, redemptionNo string) (*model.Redemption, error) {
	return r.getByRedemptionNo(ctx, r.db, redemptionNo)
}

func (r *RedemptionRepository) getByRedemptionNo(ctx context.Context, tx *gorm.DB, redemptionNo string) (*model.Redemption, error) {
	var redemption model.Redemption
	err := tx.WithContext(ctx).Where("redemption_no = ?", redemptionNo).First(&redemption).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRedemptionNotFound
		}
		return nil, err
	}
	return &redemption, nil
}

// MarkClaimed 未领取 -> 已领取，条件更新保证只会成功一次
func (r *RedemptionRepository) MarkClaimed(ctx context.Context, tx *gorm.DB, redemptionNo string, claimedAt time.Time) (*model.Redemption, error) {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Redemption{}).
		Where("redemption_no = ? AND claimed = ?", redemptionNo, false).
		Updates(map[string]interface{}{
			"claimed":    true,
			"claimed_at": claimedAt,
		})

	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.getByRedemptionNo(ctx, tx, redemptionNo); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyClaimed
	}

	return r.getByRedemptionNo(ctx, tx, redemptionNo)
}

// ListByAccountID 某账户的兑换记录，最新的在前
func (r *RedemptionRepository) ListByAccountID(ctx context.Context, accountID int64, limit int) ([]*model.Redemption, error) {
	var redemptions []*model.Redemption
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id DESC").
		Limit(limit).
		Find(&redemptions).Error
	return redemptions, err
}

// List 全部兑换记录，claimed 为 nil 时不过滤领取状态
func (r *RedemptionRepository) List(ctx context.Context, claimed *bool, page, pageSize int) ([]*model.Redemption, int64, error) {
	var redemptions []*model.Redemption
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Redemption{})
	if claimed != nil {
		query = query.Where("claimed = ?", *claimed)
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&redemptions).Error

	return redemptions, total, err
}
