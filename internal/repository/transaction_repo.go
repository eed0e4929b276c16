package repository

import (
	"context"

	"loyaltyledger/internal/model"

	"gorm.io/gorm"
)

// TransactionRepository 积分流水，只提供追加和查询
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.PointTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) ListByAccountID(ctx context.Context, accountID int64, page, pageSize int) ([]*model.PointTransaction, int64, error) {
	return r.list(ctx, r.db.WithContext(ctx).Model(&model.PointTransaction{}).Where("account_id = ?", accountID), page, pageSize)
}

func (r *TransactionRepository) ListAll(ctx context.Context, page, pageSize int) ([]*model.PointTransaction, int64, error) {
	return r.list(ctx, r.db.WithContext(ctx).Model(&model.PointTransaction{}), page, pageSize)
}

func (r *TransactionRepository) list(ctx context.Context, query *gorm.DB, page, pageSize int) ([]*model.PointTransaction, int64, error) {
	var transactions []*model.PointTransaction
	var total int64

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// AccountTotals 从流水重建的账户积分
type AccountTotals struct {
	Current  int64
	Lifetime int64
	Count    int64
}

// SumByAccountID 汇总某账户的全部流水
func (r *TransactionRepository) SumByAccountID(ctx context.Context, accountID int64) (*AccountTotals, error) {
	var row struct {
		CurrentTotal  int64
		LifetimeTotal int64
		TxCount       int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.PointTransaction{}).
		Select("COALESCE(SUM(amount), 0) AS current_total, "+
			"COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE 0 END), 0) AS lifetime_total, "+
			"COUNT(*) AS tx_count", model.TransactionTypeCredit).
		Where("account_id = ?", accountID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &AccountTotals{Current: row.CurrentTotal, Lifetime: row.LifetimeTotal, Count: row.TxCount}, nil
}
