package job

import (
	"context"
	"log"
	"time"

	"loyaltyledger/internal/config"
	"loyaltyledger/internal/metrics"
	"loyaltyledger/internal/model"
	"loyaltyledger/internal/repository"

	"gorm.io/gorm"
)

// EventPublisher 事件发布者，生产环境为 mq.Publisher
type EventPublisher interface {
	Publish(topic, key, eventType, value string) error
}

// OutboxSender 轮询本地消息表，把账本事件投递到 Kafka
// 投递语义为至少一次，消费方按 message key 去重
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  EventPublisher
	maxRetry   int
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, publisher EventPublisher, cfg *config.Config) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db, cfg.Kafka.Topic.LedgerEvents),
		publisher:  publisher,
		maxRetry:   cfg.Business.MaxRetryCount,
		stopCh:     make(chan struct{}),
		interval:   100 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.Println("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Println("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// processPendingMessages 返回本轮发送成功的条数
func (s *OutboxSender) processPendingMessages(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.Printf("[OutboxSender] 查询消息失败: %v", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.EventType, msg.Payload)

	if err == nil {
		metrics.OutboxPublishedTotal.WithLabelValues(metrics.ResultSent).Inc()
		if updateErr := s.outboxRepo.MarkAsSent(ctx, msg.ID); updateErr != nil {
			// 状态没更新成功，下一轮会重复投递
			log.Printf("[OutboxSender] 更新消息状态失败: id=%d, err=%v", msg.ID, updateErr)
		}
		return true
	}

	log.Printf("[OutboxSender] 消息发送失败: id=%d, event=%s, err=%v", msg.ID, msg.EventType, err)

	failed, err := s.outboxRepo.RecordFailure(ctx, msg.ID, s.maxRetry)
	if err != nil {
		log.Printf("[OutboxSender] 记录失败次数失败: id=%d, err=%v", msg.ID, err)
		return false
	}
	if failed {
		metrics.OutboxPublishedTotal.WithLabelValues(metrics.ResultFailed).Inc()
		log.Printf("[OutboxSender] 消息超过最大重试次数，标记为失败: id=%d, key=%s", msg.ID, msg.MessageKey)
	} else {
		metrics.OutboxPublishedTotal.WithLabelValues(metrics.ResultRetry).Inc()
	}
	return false
}
