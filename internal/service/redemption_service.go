package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"loyaltyledger/internal/config"
	"loyaltyledger/internal/metrics"
	"loyaltyledger/internal/model"
	"loyaltyledger/internal/repository"
	"loyaltyledger/pkg/idgen"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	maxCodeAttempts      = 5
	maxRedeemTxAttempts  = 2
	defaultHistoryLimit  = 100
	redemptionReasonTmpl = "Redeemed: %s"
)

// RedemptionService 奖励兑换与领取
//
// 兑换的"扣积分 + 生成领取码 + 写兑换记录 + 写流水"在同一个事务内完成，
// 任一步失败整体回滚，不会出现扣了积分没有码、或有码没扣积分的情况。
type RedemptionService struct {
	db              *gorm.DB
	locker          AccountLocker
	cache           LeaderboardCache
	accountRepo     *repository.AccountRepository
	rewardRepo      *repository.RewardRepository
	redemptionRepo  *repository.RedemptionRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository

	// 可替换，便于测试领取码冲突
	codeGen          func(rewardName string) (string, error)
	createRedemption func(ctx context.Context, tx *gorm.DB, redemption *model.Redemption) error
	now              func() time.Time
}

func NewRedemptionService(db *gorm.DB, locker AccountLocker, cache LeaderboardCache, cfg *config.Config) *RedemptionService {
	s := &RedemptionService{
		db:              db,
		locker:          locker,
		cache:           cache,
		accountRepo:     repository.NewAccountRepository(db),
		rewardRepo:      repository.NewRewardRepository(db),
		redemptionRepo:  repository.NewRedemptionRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db, cfg.Kafka.Topic.LedgerEvents),
		codeGen:         idgen.GenerateClaimCode,
		now:             time.Now,
	}
	s.createRedemption = s.redemptionRepo.Create
	return s
}

type RedeemRequest struct {
	AccountID int64  `json:"account_id" binding:"required"`
	RewardID  string `json:"reward_id" binding:"required"`
}

type RedeemResponse struct {
	RedemptionNo    string `json:"redemption_no"`
	RewardName      string `json:"reward_name"`
	RewardCode      string `json:"reward_code"`
	PointsSpent     int64  `json:"points_spent"`
	RemainingPoints int64  `json:"remaining_points"`
}

type redemptionEvent struct {
	RedemptionNo    string    `json:"redemption_no"`
	AccountID       int64     `json:"account_id"`
	RewardID        string    `json:"reward_id"`
	RewardName      string    `json:"reward_name"`
	RewardCode      string    `json:"reward_code,omitempty"`
	PointsSpent     int64     `json:"points_spent,omitempty"`
	RemainingPoints int64     `json:"remaining_points,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Redeem 兑换奖励
func (s *RedemptionService) Redeem(ctx context.Context, req *RedeemRequest) (resp *RedeemResponse, err error) {
	start := time.Now()
	defer func() {
		metrics.RedemptionDuration.Observe(time.Since(start).Seconds())
		metrics.RedemptionsTotal.WithLabelValues(redeemOutcome(err)).Inc()
	}()

	account, err := s.accountRepo.GetByID(ctx, req.AccountID)
	if err != nil {
		return nil, classify(err)
	}

	reward, err := s.rewardRepo.GetByID(ctx, req.RewardID)
	if err != nil {
		return nil, classify(err)
	}
	if !reward.Active {
		return nil, ErrRewardInactive
	}

	// 提前拒绝明显不足的请求；真正的判断在事务内的条件更新
	if account.CurrentPoints < reward.PointsRequired {
		return nil, ErrInsufficientPoints
	}

	unlock, err := s.locker.Lock(ctx, req.AccountID, uuid.NewString())
	if err != nil {
		return nil, lockError(err)
	}
	defer unlock()

	var redemption *model.Redemption
	var remaining int64
	for attempt := 1; attempt <= maxRedeemTxAttempts; attempt++ {
		redemption, remaining, err = s.redeemTx(ctx, account.ID, reward)
		// 唯一索引冲突（极小概率的领取码并发碰撞）时整笔事务已回滚，重新生成后再试
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		log.Printf("[Redeem] 唯一键冲突，重试: accountID=%d, rewardID=%s, attempt=%d", account.ID, reward.ID, attempt)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = fmt.Errorf("%w: %w", ErrCodeGeneration, err)
	}
	if err != nil {
		return nil, classify(err)
	}

	invalidateLeaderboard(ctx, s.cache)

	log.Printf("[Redeem] 兑换成功: redemptionNo=%s, accountID=%d, reward=%s, spent=%d, remaining=%d",
		redemption.RedemptionNo, account.ID, reward.ID, reward.PointsRequired, remaining)

	return &RedeemResponse{
		RedemptionNo:    redemption.RedemptionNo,
		RewardName:      redemption.RewardName,
		RewardCode:      redemption.RewardCode,
		PointsSpent:     redemption.PointsSpent,
		RemainingPoints: remaining,
	}, nil
}

func (s *RedemptionService) redeemTx(ctx context.Context, accountID int64, reward *model.Reward) (*model.Redemption, int64, error) {
	var redemption *model.Redemption
	var remaining int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 条件扣减：余额不足时返回 ErrBalanceNotEnough，事务回滚
		account, err := s.accountRepo.ApplyDelta(ctx, tx, accountID, -reward.PointsRequired, 0)
		if err != nil {
			return err
		}

		code, err := s.mintCode(ctx, tx, reward.Name)
		if err != nil {
			return err
		}

		redemption = &model.Redemption{
			RedemptionNo: uuid.NewString(),
			AccountID:    account.ID,
			AccountName:  account.Name,
			RewardID:     reward.ID,
			RewardName:   reward.Name,
			PointsSpent:  reward.PointsRequired,
			RewardCode:   code,
		}
		if err := s.createRedemption(ctx, tx, redemption); err != nil {
			return fmt.Errorf("创建兑换记录失败: %w", err)
		}

		trans := &model.PointTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			AccountID:     account.ID,
			AccountName:   account.Name,
			Amount:        -reward.PointsRequired,
			Type:          model.TransactionTypeRedemption,
			BalanceBefore: account.CurrentPoints + reward.PointsRequired,
			BalanceAfter:  account.CurrentPoints,
			LifetimeAfter: account.LifetimePoints,
			Reason:        fmt.Sprintf(redemptionReasonTmpl, reward.Name),
			RefNo:         redemption.RedemptionNo,
		}
		if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		event := redemptionEvent{
			RedemptionNo:    redemption.RedemptionNo,
			AccountID:       account.ID,
			RewardID:        reward.ID,
			RewardName:      reward.Name,
			RewardCode:      code,
			PointsSpent:     reward.PointsRequired,
			RemainingPoints: account.CurrentPoints,
			OccurredAt:      redemption.CreatedAt,
		}
		if err := s.outboxRepo.Append(ctx, tx, redemption.RedemptionNo, model.EventRewardRedeemed, event); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		remaining = account.CurrentPoints
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return redemption, remaining, nil
}

// mintCode 生成未被使用过的领取码
func (s *RedemptionService) mintCode(ctx context.Context, tx *gorm.DB, rewardName string) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.codeGen(rewardName)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrCodeGeneration, err)
		}
		exists, err := s.redemptionRepo.CodeExists(ctx, tx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
		log.Printf("[Redeem] 领取码冲突，重新生成: code=%s", code)
	}
	return "", ErrCodeGeneration
}

// MarkClaimed 店员核销领取码，同一兑换记录只能成功一次
func (s *RedemptionService) MarkClaimed(ctx context.Context, redemptionNo string) (*model.Redemption, error) {
	var redemption *model.Redemption

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.redemptionRepo.MarkClaimed(ctx, tx, redemptionNo, s.now())
		if err != nil {
			return err
		}

		event := redemptionEvent{
			RedemptionNo: r.RedemptionNo,
			AccountID:    r.AccountID,
			RewardID:     r.RewardID,
			RewardName:   r.RewardName,
			OccurredAt:   *r.ClaimedAt,
		}
		if err := s.outboxRepo.Append(ctx, tx, r.RedemptionNo, model.EventRedemptionClaimed, event); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		redemption = r
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	metrics.ClaimsTotal.Inc()
	log.Printf("[Claim] 领取成功: redemptionNo=%s, accountID=%d, code=%s",
		redemption.RedemptionNo, redemption.AccountID, redemption.RewardCode)

	return redemption, nil
}

func (s *RedemptionService) GetRedemption(ctx context.Context, redemptionNo string) (*model.Redemption, error) {
	redemption, err := s.redemptionRepo.GetByRedemptionNo(ctx, redemptionNo)
	return redemption, classify(err)
}

// ListByAccount 某账户的兑换记录，最新的在前
func (s *RedemptionService) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*model.Redemption, error) {
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, classify(err)
	}
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	redemptions, err := s.redemptionRepo.ListByAccountID(ctx, accountID, limit)
	return redemptions, classify(err)
}

// List 全部兑换记录，claimed 为 nil 时不过滤
func (s *RedemptionService) List(ctx context.Context, claimed *bool, page, pageSize int) ([]*model.Redemption, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	redemptions, total, err := s.redemptionRepo.List(ctx, claimed, page, pageSize)
	return redemptions, total, classify(err)
}

func redeemOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrInsufficientPoints):
		return metrics.OutcomeInsufficient
	case IsTransient(err):
		return metrics.OutcomeError
	default:
		return metrics.OutcomeRejected
	}
}
