package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"loyaltyledger/internal/model"

	"gorm.io/gorm"
)

type OutboxRepository struct {
	db    *gorm.DB
	topic string
}

func NewOutboxRepository(db *gorm.DB, topic string) *OutboxRepository {
	return &OutboxRepository{db: db, topic: topic}
}

// Append 在调用方事务内写入一条账本事件
func (r *OutboxRepository) Append(ctx context.Context, tx *gorm.DB, key, eventType string, payload interface{}) error {
	if tx == nil {
		tx = r.db
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := &model.OutboxMessage{
		MessageKey: key,
		EventType:  eventType,
		Topic:      r.topic,
		Payload:    string(body),
		Status:     model.OutboxStatusPending,
	}
	return tx.WithContext(ctx).Create(msg).Error
}

func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *OutboxRepository) MarkAsSent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Update("status", model.OutboxStatusSent).Error
}

// RecordFailure 记录一次投递失败，达到最大重试次数后标记为 FAILED
func (r *OutboxRepository) RecordFailure(ctx context.Context, id int64, maxRetry int) (bool, error) {
	var msg model.OutboxMessage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.OutboxMessage{}).
			Where("id = ?", id).
			UpdateColumn("retry_count", gorm.Expr("retry_count + 1")).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).First(&msg).Error; err != nil {
			return err
		}
		if msg.RetryCount < maxRetry {
			return nil
		}
		return tx.Model(&model.OutboxMessage{}).
			Where("id = ?", id).
			Update("status", model.OutboxStatusFailed).Error
	})
	if err != nil {
		return false, err
	}
	return msg.RetryCount >= maxRetry, nil
}

func (r *OutboxRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
