package service

import (
	"context"
	"log"

	"loyaltyledger/internal/model"
	"loyaltyledger/internal/repository"

	"gorm.io/gorm"
)

// CatalogService 奖励目录，读多写少
type CatalogService struct {
	rewardRepo *repository.RewardRepository
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{rewardRepo: repository.NewRewardRepository(db)}
}

// ListActive 上架中的奖励
func (s *CatalogService) ListActive(ctx context.Context) ([]*model.Reward, error) {
	rewards, err := s.rewardRepo.ListActive(ctx)
	return rewards, classify(err)
}

func (s *CatalogService) GetReward(ctx context.Context, id string) (*model.Reward, error) {
	reward, err := s.rewardRepo.GetByID(ctx, id)
	return reward, classify(err)
}

// SetActive 上架/下架奖励，已生成的兑换记录不受影响
func (s *CatalogService) SetActive(ctx context.Context, id string, active bool) (*model.Reward, error) {
	if err := s.rewardRepo.SetActive(ctx, id, active); err != nil {
		return nil, classify(err)
	}
	log.Printf("[Catalog] 奖励状态变更: rewardID=%s, active=%t", id, active)
	return s.GetReward(ctx, id)
}
