package service

import (
	"context"
	"errors"
	"fmt"

	"loyaltyledger/internal/repository"
)

// 业务错误，均可直接返回给调用方
var (
	ErrAccountNotFound    = repository.ErrAccountNotFound
	ErrNameTaken          = repository.ErrNameTaken
	ErrInsufficientPoints = repository.ErrBalanceNotEnough
	ErrRewardNotFound     = repository.ErrRewardNotFound
	ErrRedemptionNotFound = repository.ErrRedemptionNotFound
	ErrAlreadyClaimed     = repository.ErrAlreadyClaimed

	ErrInvalidAmount  = errors.New("积分数量必须大于0")
	ErrInvalidName    = errors.New("名字不能为空且不超过64个字符")
	ErrRewardInactive = errors.New("奖励已下架")
)

// 临时性错误，调用方可以安全重试：失败的事务已整体回滚
var (
	ErrStorageUnavailable = errors.New("存储暂不可用，请稍后重试")
	ErrBusy               = errors.New("系统繁忙，请稍后重试")
	ErrCodeGeneration     = errors.New("生成领取码失败，请重试")
)

var businessErrors = []error{
	ErrAccountNotFound,
	ErrNameTaken,
	ErrInsufficientPoints,
	ErrRewardNotFound,
	ErrRedemptionNotFound,
	ErrAlreadyClaimed,
	ErrInvalidAmount,
	ErrInvalidName,
	ErrRewardInactive,
	ErrBusy,
	ErrCodeGeneration,
	context.Canceled,
	context.DeadlineExceeded,
}

// classify 业务错误原样返回，其余视为存储故障并保留原始错误
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

// IsTransient 调用方是否可以重试
func IsTransient(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrBusy) ||
		errors.Is(err, ErrCodeGeneration)
}

// lockError 账户锁获取失败：ctx 错误原样返回，其余视为繁忙
func lockError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBusy, err)
}
