package repository

import (
	"context"
	"errors"
	"math"

	"loyaltyledger/internal/model"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound  = errors.New("账户不存在")
	ErrNameTaken        = errors.New("该名字已被注册")
	ErrBalanceNotEnough = errors.New("积分不足")
	ErrInvalidDelta     = errors.New("积分变动不合法")
	ErrPointsOverflow   = errors.New("积分超出上限")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create 注册新账户，名字重复返回 ErrNameTaken
// 重名由 name 唯一索引判断，并发注册同名账户时只有一个成功
func (r *AccountRepository) Create(ctx context.Context, name string) (*model.Account, error) {
	account := &model.Account{Name: name}
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrNameTaken
		}
		return nil, err
	}
	return account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	return r.getByID(ctx, r.db, id)
}

func (r *AccountRepository) getByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Account, error) {
	var account model.Account
	err := tx.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetByName 按名字精确查找（区分大小写）
func (r *AccountRepository) GetByName(ctx context.Context, name string) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if account.Name != name {
		return nil, ErrAccountNotFound
	}
	return &account, nil
}

// ApplyDelta 积分变动的唯一入口
//
// 条件更新保证"检查余额 + 扣减"是一条原子语句：
//
//	UPDATE account SET current_points = current_points + ?, ...
//	WHERE id = ? AND current_points >= -? AND lifetime_points <= MaxInt64 - ?
//
// 并发请求在行锁上串行，后到者看到的是前者提交后的余额，不会超扣。
// lifetimeDelta 不能为负，且 currentDelta <= lifetimeDelta，
// 以保持 current_points <= lifetime_points；累计积分会溢出 int64 时返回 ErrPointsOverflow。
func (r *AccountRepository) ApplyDelta(ctx context.Context, tx *gorm.DB, id int64, currentDelta, lifetimeDelta int64) (*model.Account, error) {
	if tx == nil {
		tx = r.db
	}
	if lifetimeDelta < 0 || currentDelta > lifetimeDelta || currentDelta == math.MinInt64 {
		return nil, ErrInvalidDelta
	}
	maxLifetime := math.MaxInt64 - lifetimeDelta

	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND current_points >= ? AND lifetime_points <= ?", id, -currentDelta, maxLifetime).
		Updates(map[string]interface{}{
			"current_points":  gorm.Expr("current_points + ?", currentDelta),
			"lifetime_points": gorm.Expr("lifetime_points + ?", lifetimeDelta),
			"version":         gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		account, err := r.getByID(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if account.LifetimePoints > maxLifetime {
			return nil, ErrPointsOverflow
		}
		return nil, ErrBalanceNotEnough
	}

	return r.getByID(ctx, tx, id)
}

func (r *AccountRepository) List(ctx context.Context, page, pageSize int) ([]*model.Account, int64, error) {
	var accounts []*model.Account
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Account{})

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&accounts).Error

	return accounts, total, err
}

// ListRanked 按累计积分降序；积分相同时先注册者在前，最后按 id 保证全序
// limit <= 0 时返回全部账户
func (r *AccountRepository) ListRanked(ctx context.Context, limit int) ([]*model.Account, error) {
	var accounts []*model.Account

	query := r.db.WithContext(ctx).
		Order("lifetime_points DESC").
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&accounts).Error
	return accounts, err
}

// ListIDsAfter 按 id 升序分批返回账户 id，用于对账任务遍历
func (r *AccountRepository) ListIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
