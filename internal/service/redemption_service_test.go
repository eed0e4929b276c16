package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"loyaltyledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRedeemScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc := env.register(t, "Alice")
	env.credit(t, acc.ID, 50)
	reward := env.addReward(t, "reward_80", 80, true)

	_, err := env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: reward.ID})
	require.ErrorIs(t, err, ErrInsufficientPoints)

	unchanged, err := env.accounts.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 50, unchanged.CurrentPoints)

	credited, err := env.credits.Credit(ctx, &CreditRequest{AccountID: acc.ID, Points: 50, Reason: "Purchase"})
	require.NoError(t, err)
	assert.EqualValues(t, 100, credited.Account.CurrentPoints)
	assert.EqualValues(t, 100, credited.Account.LifetimePoints)

	resp, err := env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: reward.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.RewardCode)
	assert.NotEmpty(t, resp.RedemptionNo)
	assert.Equal(t, reward.Name, resp.RewardName)
	assert.EqualValues(t, 80, resp.PointsSpent)
	assert.EqualValues(t, 20, resp.RemainingPoints)

	after, err := env.accounts.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 20, after.CurrentPoints)
	assert.EqualValues(t, 100, after.LifetimePoints)

	claimed, err := env.redemptions.MarkClaimed(ctx, resp.RedemptionNo)
	require.NoError(t, err)
	assert.True(t, claimed.Claimed)
	assert.NotNil(t, claimed.ClaimedAt)

	_, err = env.redemptions.MarkClaimed(ctx, resp.RedemptionNo)
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	still, err := env.redemptions.GetRedemption(ctx, resp.RedemptionNo)
	require.NoError(t, err)
	assert.True(t, still.Claimed)
}

func TestRedeemRecordsTransactionAndEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc := env.register(t, "Bob")
	env.credit(t, acc.ID, 500)

	resp, err := env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: "reward_2"})
	require.NoError(t, err)
	assert.Regexp(t, `^FREETR-[2-9A-HJ-NP-Z]{8}$`, resp.RewardCode)

	var trans model.PointTransaction
	require.NoError(t, env.db.Where("ref_no = ?", resp.RedemptionNo).First(&trans).Error)
	assert.Equal(t, model.TransactionTypeRedemption, trans.Type)
	assert.EqualValues(t, -400, trans.Amount)
	assert.EqualValues(t, 500, trans.BalanceBefore)
	assert.EqualValues(t, 100, trans.BalanceAfter)
	assert.EqualValues(t, 500, trans.LifetimeAfter)
	assert.Equal(t, "Redeemed: Free Triangle Waffle", trans.Reason)

	var events []model.OutboxMessage
	require.NoError(t, env.db.Order("id ASC").Find(&events).Error)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventPointsCredited, events[0].EventType)
	assert.Equal(t, model.EventRewardRedeemed, events[1].EventType)
	assert.Equal(t, resp.RedemptionNo, events[1].MessageKey)
	assert.Equal(t, "test.ledger", events[1].Topic)
	assert.Contains(t, events[1].Payload, resp.RewardCode)
}

func TestRedeemValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc := env.register(t, "Carol")
	env.credit(t, acc.ID, 1000)
	inactive := env.addReward(t, "retired", 10, false)

	_, err := env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID + 99, RewardID: "reward_1"})
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: "nope"})
	assert.ErrorIs(t, err, ErrRewardNotFound)

	_, err = env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: inactive.ID})
	assert.ErrorIs(t, err, ErrRewardInactive)

	_, err = env.catalog.SetActive(ctx, "reward_1", false)
	require.NoError(t, err)
	_, err = env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: "reward_1"})
	assert.ErrorIs(t, err, ErrRewardInactive)

	after, err := env.accounts.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, after.CurrentPoints)
	assert.Zero(t, env.count(t, &model.Redemption{}))
}

func TestConcurrentRedemptionSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc := env.register(t, "Dave")
	reward := env.addReward(t, "reward_80", 80, true)
	env.credit(t, acc.ID, 80)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: reward.ID})
		}(i)
	}
	wg.Wait()

	var success, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrInsufficientPoints):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, success)
	assert.Equal(t, attempts-1, insufficient)

	after, err := env.accounts.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Zero(t, after.CurrentPoints)
	assert.EqualValues(t, 80, after.LifetimePoints)
	assert.EqualValues(t, 1, env.count(t, &model.Redemption{}))
}

func TestConcurrentCreditsAndRedemptionsKeepInvariants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reward := env.addReward(t, "reward_30", 30, true)

	accounts := make([]*model.Account, 4)
	for i := range accounts {
		accounts[i] = env.register(t, fmt.Sprintf("member-%d", i))
	}

	var wg sync.WaitGroup
	for _, acc := range accounts {
		for i := 0; i < 5; i++ {
			wg.Add(2)
			go func(id int64) {
				defer wg.Done()
				_, err := env.credits.Credit(ctx, &CreditRequest{AccountID: id, Points: 20})
				assert.NoError(t, err)
			}(acc.ID)
			go func(id int64) {
				defer wg.Done()
				_, err := env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: id, RewardID: reward.ID})
				if err != nil && !errors.Is(err, ErrInsufficientPoints) {
					t.Errorf("unexpected error: %v", err)
				}
			}(acc.ID)
		}
	}
	wg.Wait()

	for _, acc := range accounts {
		got, err := env.accounts.GetAccount(ctx, acc.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.CurrentPoints, int64(0))
		assert.LessOrEqual(t, got.CurrentPoints, got.LifetimePoints)
		assert.EqualValues(t, 100, got.LifetimePoints)

		report, err := env.audit.Reconcile(ctx, acc.ID)
		require.NoError(t, err)
		assert.True(t, report.Consistent, "account %d drifted: %+v", acc.ID, report)
	}
}

func TestCreditThenRedeemRestoresBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc := env.register(t, "Erin")
	env.credit(t, acc.ID, 130)

	env.credit(t, acc.ID, 200)
	_, err := env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: "reward_1"})
	require.NoError(t, err)

	after, err := env.accounts.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 130, after.CurrentPoints)
	assert.EqualValues(t, 330, after.LifetimePoints)
}

func TestClaimCodesUnique(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc := env.register(t, "Frank")
	reward := env.addReward(t, "cheap", 1, true)
	const n = 60
	env.credit(t, acc.ID, n)

	codes := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		resp, err := env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: reward.ID})
		require.NoError(t, err)
		codes[resp.RewardCode] = struct{}{}
	}
	assert.Len(t, codes, n)
}

func TestRedeemRetriesOnCodeCollision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc := env.register(t, "Gina")
	env.credit(t, acc.ID, 400)

	seq := []string{"DUP-AAAA", "DUP-AAAA", "DUP-BBBB"}
	var i int
	env.redemptions.codeGen = func(string) (string, error) {
		code := seq[i%len(seq)]
		i++
		return code, nil
	}

	first, err := env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: "reward_1"})
	require.NoError(t, err)
	assert.Equal(t, "DUP-AAAA", first.RewardCode)

	second, err := env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: "reward_1"})
	require.NoError(t, err)
	assert.Equal(t, "DUP-BBBB", second.RewardCode)
}

func TestRedeemRollsBackWhenCodeCannotBeMinted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc := env.register(t, "Hank")
	env.credit(t, acc.ID, 400)
	env.redemptions.codeGen = func(string) (string, error) { return "FIXED-CODE", nil }

	_, err := env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: "reward_1"})
	require.NoError(t, err)

	txBefore := env.count(t, &model.PointTransaction{})
	outboxBefore := env.count(t, &model.OutboxMessage{})

	_, err = env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: "reward_1"})
	require.ErrorIs(t, err, ErrCodeGeneration)
	assert.True(t, IsTransient(err))

	after, err := env.accounts.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 200, after.CurrentPoints, "failed redemption must not debit")
	assert.Equal(t, txBefore, env.count(t, &model.PointTransaction{}))
	assert.Equal(t, outboxBefore, env.count(t, &model.OutboxMessage{}))
	assert.EqualValues(t, 1, env.count(t, &model.Redemption{}))
}

func TestRedeemCodeGeneratorFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc := env.register(t, "Ivy")
	env.credit(t, acc.ID, 200)
	env.redemptions.codeGen = func(string) (string, error) { return "", errors.New("entropy exhausted") }

	_, err := env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: "reward_1"})
	require.ErrorIs(t, err, ErrCodeGeneration)
	assert.True(t, IsTransient(err))

	after, err := env.accounts.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 200, after.CurrentPoints)
	assert.Zero(t, env.count(t, &model.Redemption{}))
}

func TestMarkClaimedUnknown(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.redemptions.MarkClaimed(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRedemptionNotFound)
}

func TestRedemptionHistoryNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc := env.register(t, "Jack")
	other := env.register(t, "Kim")
	env.credit(t, acc.ID, 1000)
	env.credit(t, other.ID, 1000)

	r1, err := env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: "reward_1"})
	require.NoError(t, err)
	_, err = env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: other.ID, RewardID: "reward_1"})
	require.NoError(t, err)
	r2, err := env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: "reward_2"})
	require.NoError(t, err)

	history, err := env.redemptions.ListByAccount(ctx, acc.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, r2.RedemptionNo, history[0].RedemptionNo)
	assert.Equal(t, r1.RedemptionNo, history[1].RedemptionNo)
	assert.Equal(t, "Free Triangle Waffle", history[0].RewardName)

	_, err = env.redemptions.ListByAccount(ctx, acc.ID+99, 0)
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = env.redemptions.MarkClaimed(ctx, r1.RedemptionNo)
	require.NoError(t, err)
	unclaimed := false
	list, total, err := env.redemptions.List(ctx, &unclaimed, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, list, 2)
}

func TestRedemptionSnapshotSurvivesCatalogChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc := env.register(t, "Lena")
	env.credit(t, acc.ID, 200)
	resp, err := env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: "reward_1"})
	require.NoError(t, err)

	require.NoError(t, env.db.Model(&model.Reward{}).Where("id = ?", "reward_1").
		Updates(map[string]interface{}{"name": "Renamed", "points_required": 999}).Error)

	r, err := env.redemptions.GetRedemption(ctx, resp.RedemptionNo)
	require.NoError(t, err)
	assert.Equal(t, "10% Off Voucher", r.RewardName)
	assert.EqualValues(t, 200, r.PointsSpent)
}

func TestRedeemRetriesWholeTransactionOnDuplicateKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc := env.register(t, "Mona")
	env.credit(t, acc.ID, 400)

	var attempts int
	env.redemptions.createRedemption = func(ctx context.Context, tx *gorm.DB, r *model.Redemption) error {
		attempts++
		if attempts == 1 {
			// 另一实例在 CodeExists 之后抢先写入了同一个领取码
			taken := *r
			taken.RedemptionNo = "other-" + r.RedemptionNo
			require.NoError(t, tx.Create(&taken).Error)
		}
		return env.redemptions.redemptionRepo.Create(ctx, tx, r)
	}

	resp, err := env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: "reward_1"})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.EqualValues(t, 200, resp.RemainingPoints)

	after, err := env.accounts.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 200, after.CurrentPoints, "first attempt must be rolled back")
	assert.EqualValues(t, 1, env.count(t, &model.Redemption{}))
	assert.EqualValues(t, 2, env.count(t, &model.PointTransaction{}))
	assert.EqualValues(t, 2, env.count(t, &model.OutboxMessage{}))

	report, err := env.audit.Reconcile(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
}

func TestRedeemDuplicateKeyOnEveryAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc := env.register(t, "Nate")
	env.credit(t, acc.ID, 400)

	var attempts int
	env.redemptions.createRedemption = func(ctx context.Context, tx *gorm.DB, r *model.Redemption) error {
		attempts++
		taken := *r
		taken.RedemptionNo = "other-" + r.RedemptionNo
		require.NoError(t, tx.Create(&taken).Error)
		return env.redemptions.redemptionRepo.Create(ctx, tx, r)
	}

	_, err := env.redemptions.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: "reward_1"})
	require.ErrorIs(t, err, ErrCodeGeneration)
	assert.True(t, IsTransient(err))
	assert.Equal(t, maxRedeemTxAttempts, attempts)

	after, err := env.accounts.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 400, after.CurrentPoints)
	assert.Zero(t, env.count(t, &model.Redemption{}))
	assert.EqualValues(t, 1, env.count(t, &model.PointTransaction{}))
}

func TestConditionalDebitRejectsAfterPreCheck(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc := env.register(t, "Olga")
	reward := env.addReward(t, "reward_80", 80, true)
	env.credit(t, acc.ID, 80)
	req := &RedeemRequest{AccountID: acc.ID, RewardID: reward.ID}

	// 余额预检查已通过，加锁时另一实例（不经过这把锁）先扣光了积分
	racing := NewRedemptionService(env.db, noopLocker{}, env.cache, env.cfg)
	locker := &hookLocker{hook: func() {
		_, err := racing.Redeem(ctx, req)
		require.NoError(t, err)
	}}
	svc := NewRedemptionService(env.db, locker, env.cache, env.cfg)

	_, err := svc.Redeem(ctx, req)
	require.ErrorIs(t, err, ErrInsufficientPoints)

	after, err := env.accounts.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Zero(t, after.CurrentPoints)
	assert.EqualValues(t, 1, env.count(t, &model.Redemption{}))
}

func TestConcurrentRedemptionWithoutLockSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc := env.register(t, "Pia")
	reward := env.addReward(t, "reward_80", 80, true)
	env.credit(t, acc.ID, 80)
	svc := NewRedemptionService(env.db, noopLocker{}, env.cache, env.cfg)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Redeem(ctx, &RedeemRequest{AccountID: acc.ID, RewardID: reward.ID})
		}(i)
	}
	wg.Wait()

	var success int
	for _, err := range errs {
		if err == nil {
			success++
			continue
		}
		require.ErrorIs(t, err, ErrInsufficientPoints)
	}
	assert.Equal(t, 1, success)

	after, err := env.accounts.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Zero(t, after.CurrentPoints)
	assert.EqualValues(t, 1, env.count(t, &model.Redemption{}))

	report, err := env.audit.Reconcile(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
}
