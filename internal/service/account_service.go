package service

import (
	"context"
	"fmt"

	"ewallet/internal/model"
	"ewallet/internal/repository"
	"ewallet/internal/security"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountService 账户的创建与只读查询
// 余额变更一律走 LedgerService，这里不碰 balance
type AccountService struct {
	db              *gorm.DB
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{
		db:              db,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

// CreateAccount 开户：余额为0，对外账号随机生成（UUID，不可从内部ID推测）
func (s *AccountService) CreateAccount(ctx context.Context, userID int64, alias, pin string) (*model.Account, error) {
	pinHash, err := security.HashSecret(pin)
	if err != nil {
		return nil, fmt.Errorf("生成 PIN 哈希失败: %w", err)
	}

	account := &model.Account{
		UserID:        userID,
		Alias:         alias,
		Balance:       decimal.Zero,
		AccountNumber: uuid.NewString(),
		PinHash:       pinHash,
	}
	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("创建账户失败: %w", err)
	}
	return account, nil
}

// ListAccounts 查询用户名下全部账户（只读，无需加锁）
func (s *AccountService) ListAccounts(ctx context.Context, userID int64) ([]*model.Account, error) {
	return s.accountRepo.ListByUserID(ctx, userID)
}

// GetAccount 按对外账号查询账户，归属不符视为不存在
func (s *AccountService) GetAccount(ctx context.Context, accountNumber string, userID int64) (*model.Account, error) {
	return s.accountRepo.GetByNumber(ctx, nil, accountNumber, userID)
}

// GetHistory 查询账户流水，按时间倒序
// 先做归属校验，再读不可变的流水表，无需加锁
func (s *AccountService) GetHistory(ctx context.Context, accountNumber string, userID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	account, err := s.accountRepo.GetByNumber(ctx, nil, accountNumber, userID)
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.transactionRepo.ListByAccountID(ctx, account.ID, page, pageSize)
}

// ChangePin 修改账户 PIN
// 必须先用旧 PIN 通过校验，才允许换新的
func (s *AccountService) ChangePin(ctx context.Context, accountNumber string, userID int64, oldPin, newPin string) error {
	account, err := s.accountRepo.GetByNumber(ctx, nil, accountNumber, userID)
	if err != nil {
		return err
	}
	if !security.VerifySecret(oldPin, account.PinHash) {
		return ErrWrongPin
	}

	newHash, err := security.HashSecret(newPin)
	if err != nil {
		return fmt.Errorf("生成 PIN 哈希失败: %w", err)
	}
	return s.accountRepo.UpdatePin(ctx, account.ID, newHash)
}
