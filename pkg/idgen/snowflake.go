package idgen

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// 积分流水号使用雪花 ID：多实例部署时靠 worker_id 区分，同一实例内按毫秒递增
//
//	| 1 bit 0 | 41 bit 毫秒（自 2024-01-01 起）| 10 bit worker_id | 12 bit 毫秒内序号 |
const (
	epochMillis  = int64(1704067200000)
	workerBits   = 10
	sequenceBits = 12

	MaxWorkerID = int64(1)<<workerBits - 1
	maxSequence = int64(1)<<sequenceBits - 1
)

// Snowflake 单个 worker 的 ID 生成器，可并发使用
type Snowflake struct {
	mu         sync.Mutex
	workerID   int64
	lastMillis int64
	sequence   int64
	now        func() time.Time
}

func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > MaxWorkerID {
		return nil, fmt.Errorf("worker_id 必须在 0-%d 之间: %d", MaxWorkerID, workerID)
	}
	return &Snowflake{workerID: workerID, now: time.Now}, nil
}

var (
	defaultGenerator *Snowflake
	initOnce         sync.Once
)

// Init 设置进程级生成器，只有第一次调用生效
func Init(workerID int64) {
	initOnce.Do(func() {
		g, err := NewSnowflake(workerID)
		if err != nil {
			log.Fatalf("初始化 ID 生成器失败: %v", err)
		}
		defaultGenerator = g
	})
}

// NextID 未调用 Init 时使用 worker_id = 1
func NextID() int64 {
	Init(1)
	return defaultGenerator.Generate()
}

func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := s.now().UnixMilli()
	// 时钟回拨时沿用上一毫秒，序号继续递增，保证 ID 不重复
	if ms < s.lastMillis {
		ms = s.lastMillis
	}

	if ms == s.lastMillis {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			for ms <= s.lastMillis {
				time.Sleep(100 * time.Microsecond)
				ms = s.now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}
	s.lastMillis = ms

	return (ms-epochMillis)<<(workerBits+sequenceBits) | s.workerID<<sequenceBits | s.sequence
}

// GenerateTransactionNo 积分流水号：TXN + 秒级时间 + 19 位雪花 ID
func GenerateTransactionNo() string {
	return fmt.Sprintf("TXN%s%019d", time.Now().Format("20060102150405"), NextID())
}
