package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"loyaltyledger/internal/model"
	"loyaltyledger/internal/repository"

	"gorm.io/gorm"
)

const maxNameLength = 64

// AccountService 注册、登录（按名字查找）与账户查询
type AccountService struct {
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

// Register 创建账户，名字已存在返回 ErrNameTaken
func (s *AccountService) Register(ctx context.Context, name string) (*model.Account, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	account, err := s.accountRepo.Create(ctx, name)
	return account, classify(err)
}

// Login 按名字精确查找（区分大小写），不存在返回 ErrAccountNotFound，
// 由调用方决定是否转去注册
func (s *AccountService) Login(ctx context.Context, name string) (*model.Account, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	account, err := s.accountRepo.GetByName(ctx, name)
	return account, classify(err)
}

func (s *AccountService) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, id)
	return account, classify(err)
}

func (s *AccountService) ListAccounts(ctx context.Context, page, pageSize int) ([]*model.Account, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	accounts, total, err := s.accountRepo.List(ctx, page, pageSize)
	return accounts, total, classify(err)
}

// ListTransactions 某账户的积分流水，最新的在前
func (s *AccountService) ListTransactions(ctx context.Context, accountID int64, page, pageSize int) ([]*model.PointTransaction, int64, error) {
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, 0, classify(err)
	}
	page, pageSize = normalizePage(page, pageSize)
	transactions, total, err := s.transactionRepo.ListByAccountID(ctx, accountID, page, pageSize)
	return transactions, total, classify(err)
}

// ListAllTransactions 全部积分流水，供后台审计
func (s *AccountService) ListAllTransactions(ctx context.Context, page, pageSize int) ([]*model.PointTransaction, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	transactions, total, err := s.transactionRepo.ListAll(ctx, page, pageSize)
	return transactions, total, classify(err)
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 500 {
		pageSize = 500
	}
	return page, pageSize
}
