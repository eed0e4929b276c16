package service

import (
	"context"
	"sync"
	"testing"

	"loyaltyledger/internal/config"
	"loyaltyledger/internal/infrastructure/database"
	"loyaltyledger/internal/infrastructure/lock"
	"loyaltyledger/internal/model"
	"loyaltyledger/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db          *gorm.DB
	cfg         *config.Config
	cache       *memCache
	accounts    *AccountService
	credits     *CreditService
	redemptions *RedemptionService
	leaderboard *LeaderboardService
	catalog     *CatalogService
	audit       *AuditService
}

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{Topic: config.KafkaTopicConfig{LedgerEvents: "test.ledger"}},
		Business: config.BusinessConfig{
			LeaderboardLimit: 50,
			MaxRetryCount:    3,
			LockTTLSeconds:   5,
			AdminPassword:    "1607",
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	require.NoError(t, database.SeedCatalog(context.Background(), db, model.DefaultCatalog))

	cfg := testConfig()
	locker := lock.NewLocalAccountLocker()
	cache := newMemCache()

	return &testEnv{
		db:          db,
		cfg:         cfg,
		cache:       cache,
		accounts:    NewAccountService(db),
		credits:     NewCreditService(db, locker, cache, cfg),
		redemptions: NewRedemptionService(db, locker, cache, cfg),
		leaderboard: NewLeaderboardService(db, cache, cfg),
		catalog:     NewCatalogService(db),
		audit:       NewAuditService(db),
	}
}

func (e *testEnv) register(t *testing.T, name string) *model.Account {
	t.Helper()
	acc, err := e.accounts.Register(context.Background(), name)
	require.NoError(t, err)
	return acc
}

func (e *testEnv) credit(t *testing.T, accountID, points int64) *CreditResponse {
	t.Helper()
	resp, err := e.credits.Credit(context.Background(), &CreditRequest{AccountID: accountID, Points: points})
	require.NoError(t, err)
	return resp
}

func (e *testEnv) addReward(t *testing.T, id string, cost int64, active bool) *model.Reward {
	t.Helper()
	reward := &model.Reward{ID: id, Name: "Test " + id, Tier: 1, PointsRequired: cost, Active: active}
	require.NoError(t, e.db.Create(reward).Error)
	return reward
}

func (e *testEnv) count(t *testing.T, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(m).Count(&n).Error)
	return n
}

// memCache 记录失效次数的内存排行榜缓存，与 Redis 实现一样按版本号分代
type memCache struct {
	mu            sync.Mutex
	gen           int64
	entries       map[memCacheKey][]model.LeaderboardEntry
	invalidations int
}

type memCacheKey struct {
	gen   int64
	limit int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[memCacheKey][]model.LeaderboardEntry)}
}

func (c *memCache) Get(_ context.Context, limit int) ([]model.LeaderboardEntry, int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[memCacheKey{c.gen, limit}]
	return e, c.gen, ok, nil
}

func (c *memCache) Set(_ context.Context, gen int64, limit int, entries []model.LeaderboardEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[memCacheKey{gen, limit}] = entries
	return nil
}

func (c *memCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.invalidations++
	return nil
}

func (c *memCache) invalidationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidations
}

// beforeSetCache 在写缓存之前执行一次 hook，用来模拟"查库之后、写缓存之前"提交的变动
type beforeSetCache struct {
	*memCache
	once sync.Once
	hook func()
}

func (c *beforeSetCache) Set(ctx context.Context, gen int64, limit int, entries []model.LeaderboardEntry) error {
	c.once.Do(c.hook)
	return c.memCache.Set(ctx, gen, limit, entries)
}

// noopLocker 不做任何互斥，只依赖数据库的条件更新
type noopLocker struct{}

func (noopLocker) Lock(context.Context, int64, string) (func(), error) {
	return func() {}, nil
}

// hookLocker 第一次加锁时先执行 hook，用来在余额预检查之后插入并发扣减
type hookLocker struct {
	once sync.Once
	hook func()
}

func (l *hookLocker) Lock(context.Context, int64, string) (func(), error) {
	l.once.Do(l.hook)
	return func() {}, nil
}
