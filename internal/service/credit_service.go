package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"loyaltyledger/internal/config"
	"loyaltyledger/internal/metrics"
	"loyaltyledger/internal/model"
	"loyaltyledger/internal/repository"
	"loyaltyledger/pkg/idgen"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultCreditReason = "Purchase"

// CreditService 店员发放积分
//
// 同时增加 current_points 和 lifetime_points。不做幂等：每次调用都是一笔新的发放
type CreditService struct {
	db              *gorm.DB
	locker          AccountLocker
	cache           LeaderboardCache
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewCreditService(db *gorm.DB, locker AccountLocker, cache LeaderboardCache, cfg *config.Config) *CreditService {
	return &CreditService{
		db:              db,
		locker:          locker,
		cache:           cache,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db, cfg.Kafka.Topic.LedgerEvents),
	}
}

type CreditRequest struct {
	AccountID int64  `json:"account_id" binding:"required"`
	Points    int64  `json:"points"`
	Reason    string `json:"reason"`
}

type CreditResponse struct {
	Transaction *model.PointTransaction `json:"transaction"`
	Account     *model.Account          `json:"account"`
}

type creditEvent struct {
	TransactionNo  string    `json:"transaction_no"`
	AccountID      int64     `json:"account_id"`
	Points         int64     `json:"points"`
	Reason         string    `json:"reason"`
	CurrentPoints  int64     `json:"current_points"`
	LifetimePoints int64     `json:"lifetime_points"`
	CreditedAt     time.Time `json:"credited_at"`
}

func (s *CreditService) Credit(ctx context.Context, req *CreditRequest) (*CreditResponse, error) {
	if req.Points <= 0 {
		return nil, ErrInvalidAmount
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = defaultCreditReason
	}

	unlock, err := s.locker.Lock(ctx, req.AccountID, uuid.NewString())
	if err != nil {
		return nil, lockError(err)
	}
	defer unlock()

	var resp CreditResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.ApplyDelta(ctx, tx, req.AccountID, req.Points, req.Points)
		if err != nil {
			return err
		}

		trans := &model.PointTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			AccountID:     account.ID,
			AccountName:   account.Name,
			Amount:        req.Points,
			Type:          model.TransactionTypeCredit,
			BalanceBefore: account.CurrentPoints - req.Points,
			BalanceAfter:  account.CurrentPoints,
			LifetimeAfter: account.LifetimePoints,
			Reason:        reason,
		}
		if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		event := creditEvent{
			TransactionNo:  trans.TransactionNo,
			AccountID:      account.ID,
			Points:         req.Points,
			Reason:         reason,
			CurrentPoints:  account.CurrentPoints,
			LifetimePoints: account.LifetimePoints,
			CreditedAt:     trans.CreatedAt,
		}
		if err := s.outboxRepo.Append(ctx, tx, trans.TransactionNo, model.EventPointsCredited, event); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		resp.Transaction = trans
		resp.Account = account
		return nil
	})
	if errors.Is(err, repository.ErrPointsOverflow) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	if err != nil {
		return nil, classify(err)
	}

	invalidateLeaderboard(ctx, s.cache)
	metrics.CreditsTotal.Inc()
	metrics.PointsCreditedTotal.Add(float64(req.Points))

	log.Printf("[Credit] 积分发放成功: accountID=%d, points=%d, reason=%s, current=%d, lifetime=%d",
		resp.Account.ID, req.Points, reason, resp.Account.CurrentPoints, resp.Account.LifetimePoints)

	return &resp, nil
}
