package lock

import (
	"context"
	"sync"
)

// LocalAccountLocker 进程内账户锁，未启用 Redis 时使用（单实例部署、测试）
//
// 每个账户一把锁，引用计数归零后回收，map 不会随账户数无限增长
type LocalAccountLocker struct {
	mu    sync.Mutex
	locks map[int64]*accountMutex
}

type accountMutex struct {
	ch   chan struct{} // 容量为 1，写入即持有
	refs int
}

func NewLocalAccountLocker() *LocalAccountLocker {
	return &LocalAccountLocker{locks: make(map[int64]*accountMutex)}
}

// Lock 获取账户锁，ctx 取消时放弃等待
func (l *LocalAccountLocker) Lock(ctx context.Context, accountID int64, _ string) (func(), error) {
	m := l.acquireRef(accountID)

	select {
	case m.ch <- struct{}{}:
	case <-ctx.Done():
		l.releaseRef(accountID, m)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-m.ch
			l.releaseRef(accountID, m)
		})
	}, nil
}

func (l *LocalAccountLocker) acquireRef(accountID int64) *accountMutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[accountID]
	if !ok {
		m = &accountMutex{ch: make(chan struct{}, 1)}
		l.locks[accountID] = m
	}
	m.refs++
	return m
}

func (l *LocalAccountLocker) releaseRef(accountID int64, m *accountMutex) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m.refs--
	if m.refs == 0 {
		delete(l.locks, accountID)
	}
}

func (l *LocalAccountLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
