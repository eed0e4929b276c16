package service

import (
	"context"

	"loyaltyledger/internal/model"
	"loyaltyledger/internal/repository"

	"gorm.io/gorm"
)

// AuditService 用积分流水重建账户余额，校验两者是否一致
type AuditService struct {
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

type ReconcileReport struct {
	AccountID        int64  `json:"account_id"`
	Name             string `json:"name"`
	CurrentPoints    int64  `json:"current_points"`
	LifetimePoints   int64  `json:"lifetime_points"`
	LedgerCurrent    int64  `json:"ledger_current"`  // 全部流水之和
	LedgerLifetime   int64  `json:"ledger_lifetime"` // CREDIT 流水之和
	TransactionCount int64  `json:"transaction_count"`
	Consistent       bool   `json:"consistent"`
}

// Reconcile 对单个账户对账
//
// 账户行与流水不在同一次读取中，对账期间若有新的变动可能出现短暂不一致，
// 调用方应对不一致的账户再确认一次
func (s *AuditService) Reconcile(ctx context.Context, accountID int64) (*ReconcileReport, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, classify(err)
	}
	totals, err := s.transactionRepo.SumByAccountID(ctx, accountID)
	if err != nil {
		return nil, classify(err)
	}
	return buildReport(account, totals), nil
}

func buildReport(account *model.Account, totals *repository.AccountTotals) *ReconcileReport {
	return &ReconcileReport{
		AccountID:        account.ID,
		Name:             account.Name,
		CurrentPoints:    account.CurrentPoints,
		LifetimePoints:   account.LifetimePoints,
		LedgerCurrent:    totals.Current,
		LedgerLifetime:   totals.Lifetime,
		TransactionCount: totals.Count,
		Consistent: account.CurrentPoints == totals.Current &&
			account.LifetimePoints == totals.Lifetime &&
			account.CurrentPoints >= 0 &&
			account.CurrentPoints <= account.LifetimePoints,
	}
}

// ReconcileBatch 从 afterID 之后取 limit 个账户对账，返回不一致的报告和本批最后一个账户 id
// lastID 为 0 表示已遍历完
func (s *AuditService) ReconcileBatch(ctx context.Context, afterID int64, limit int) (drifted []*ReconcileReport, lastID int64, err error) {
	ids, err := s.accountRepo.ListIDsAfter(ctx, afterID, limit)
	if err != nil {
		return nil, 0, classify(err)
	}
	for _, id := range ids {
		report, err := s.Reconcile(ctx, id)
		if err != nil {
			return drifted, 0, err
		}
		if !report.Consistent {
			drifted = append(drifted, report)
		}
		lastID = id
	}
	return drifted, lastID, nil
}
