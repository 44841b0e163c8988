package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"ewallet/internal/config"
	"ewallet/internal/infrastructure/lock"
	"ewallet/internal/model"
	"ewallet/internal/repository"
	"ewallet/internal/security"
	"ewallet/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================================
// 账务引擎
// ============================================================================
//
// 存款 / 取款 / 转账三种变更都走同一条路径：
//
//   抢账户互斥锁 -> 开数据库事务 -> SELECT ... FOR UPDATE 锁源账户行
//   -> 校验 PIN -> 变更余额 -> 写流水 -> 写发件箱 -> 提交
//
// 【关键点】
// 1. 原子性：余额变更、流水、事件在同一个事务内，要么全部生效要么全部回滚
// 2. 先锁后读：余额判断必须基于持有行锁之后读到的值，防止并发超扣
// 3. 转账锁序：涉及两个账户时，固定按内部ID升序加锁。
//    A->B 和 B->A 同时发起时，两边加锁顺序一致，不会互相等待成环
// 4. 引擎内部不做自动重试；ErrConflict 由调用方整体重试
//
// ============================================================================

// 最小货币单位 0.001（对应 DECIMAL(14,3)）
var minAmountUnit = decimal.New(1, -3)

type LedgerService struct {
	db              *gorm.DB
	locker          lock.Locker
	cfg             *config.Config
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewLedgerService(db *gorm.DB, locker lock.Locker, cfg *config.Config) *LedgerService {
	return &LedgerService{
		db:              db,
		locker:          locker,
		cfg:             cfg,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

// SubmitRequest 交易请求（带类型标签的变体）
// Type 决定 TransferTo 是否生效
type SubmitRequest struct {
	UserID        int64
	AccountNumber string          // 源账户对外账号
	Type          string          // deposit / withdrawal / transfer
	Amount        decimal.Decimal // 恒为正数
	Pin           string          // 账户 PIN 明文，仅用于一次校验
	TransferTo    string          // 仅转账：目标账户对外账号
	Notes         string
}

// SubmitResult 交易结果
type SubmitResult struct {
	TransactionNo string          `json:"transaction_no"`
	Type          string          `json:"type"`
	Direction     string          `json:"direction"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"` // 变更后源账户余额
}

// Submit 按交易类型分发
func (s *LedgerService) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	switch req.Type {
	case model.TransactionTypeDeposit:
		return s.Deposit(ctx, req)
	case model.TransactionTypeWithdrawal:
		return s.Withdraw(ctx, req)
	case model.TransactionTypeTransfer:
		return s.Transfer(ctx, req)
	default:
		return nil, ErrInvalidType
	}
}

// Deposit 存款：balance += amount，写一条 in 流水
// 没有余额前置条件，不会因余额不足失败
func (s *LedgerService) Deposit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	unlock, err := s.lockAccount(ctx, req.AccountNumber)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *SubmitResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetForUpdateByNumber(ctx, tx, req.AccountNumber, req.UserID)
		if err != nil {
			return err
		}
		if !security.VerifySecret(req.Pin, account.PinHash) {
			return ErrWrongPin
		}

		if err := s.accountRepo.AddBalance(ctx, tx, account.ID, req.Amount); err != nil {
			return fmt.Errorf("入账失败: %w", err)
		}

		trans := &model.Transaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			AccountID:     account.ID,
			Type:          model.TransactionTypeDeposit,
			Direction:     model.TransactionDirectionIn,
			Amount:        req.Amount,
			Notes:         req.Notes,
		}
		if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		if err := s.writeEvent(ctx, tx, account, trans, ""); err != nil {
			return err
		}

		result = &SubmitResult{
			TransactionNo: trans.TransactionNo,
			Type:          trans.Type,
			Direction:     trans.Direction,
			Amount:        req.Amount,
			Balance:       account.Balance.Add(req.Amount),
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	log.Printf("[Ledger] 存款成功: account=%s, no=%s", req.AccountNumber, result.TransactionNo)
	return result, nil
}

// Withdraw 取款：要求 balance >= amount，写一条 out 流水
func (s *LedgerService) Withdraw(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	unlock, err := s.lockAccount(ctx, req.AccountNumber)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *SubmitResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetForUpdateByNumber(ctx, tx, req.AccountNumber, req.UserID)
		if err != nil {
			return err
		}
		if !security.VerifySecret(req.Pin, account.PinHash) {
			return ErrWrongPin
		}

		// 持有行锁后的余额才可信
		if account.Balance.LessThan(req.Amount) {
			return ErrInsufficientBalance
		}

		if err := s.accountRepo.DeductBalance(ctx, tx, account.ID, req.Amount); err != nil {
			return err
		}

		trans := &model.Transaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			AccountID:     account.ID,
			Type:          model.TransactionTypeWithdrawal,
			Direction:     model.TransactionDirectionOut,
			Amount:        req.Amount,
			Notes:         req.Notes,
		}
		if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		if err := s.writeEvent(ctx, tx, account, trans, ""); err != nil {
			return err
		}

		result = &SubmitResult{
			TransactionNo: trans.TransactionNo,
			Type:          trans.Type,
			Direction:     trans.Direction,
			Amount:        req.Amount,
			Balance:       account.Balance.Sub(req.Amount),
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	log.Printf("[Ledger] 取款成功: account=%s, no=%s", req.AccountNumber, result.TransactionNo)
	return result, nil
}

// Transfer 转账：源账户扣减、目标账户入账，两条流水互相引用，全部在一个事务内
//
// 目标账户按对外账号解析，不要求属于当前用户；
// 源账户余额不足返回 ErrInsufficientBalance，目标不存在返回 ErrTargetNotFound
func (s *LedgerService) Transfer(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.TransferTo == "" {
		return nil, ErrTargetNotFound
	}

	// 互斥锁只锁源账户：每次转账只持有一把，不会成环
	unlock, err := s.lockAccount(ctx, req.AccountNumber)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *SubmitResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 先无锁解析两个账户，拿内部ID决定加锁顺序
		src, err := s.accountRepo.GetByNumber(ctx, tx, req.AccountNumber, req.UserID)
		if err != nil {
			return err
		}
		tgt, err := s.accountRepo.GetByNumberAny(ctx, tx, req.TransferTo)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrTargetNotFound
			}
			return err
		}
		if src.ID == tgt.ID {
			return ErrSameAccount
		}

		// 固定按内部ID升序加行锁，两行都锁住之后才允许改任何一行
		firstID, secondID := src.ID, tgt.ID
		if firstID > secondID {
			firstID, secondID = secondID, firstID
		}
		first, err := s.accountRepo.GetForUpdate(ctx, tx, firstID)
		if err != nil {
			return err
		}
		second, err := s.accountRepo.GetForUpdate(ctx, tx, secondID)
		if err != nil {
			return err
		}
		source, target := first, second
		if source.ID != src.ID {
			source, target = second, first
		}

		if !security.VerifySecret(req.Pin, source.PinHash) {
			return ErrWrongPin
		}
		if source.Balance.LessThan(req.Amount) {
			return ErrInsufficientBalance
		}

		if err := s.accountRepo.DeductBalance(ctx, tx, source.ID, req.Amount); err != nil {
			return err
		}
		if err := s.accountRepo.AddBalance(ctx, tx, target.ID, req.Amount); err != nil {
			return fmt.Errorf("目标账户入账失败: %w", err)
		}

		// 两条流水互相通过 related_account_id 指向对方
		outTrans := &model.Transaction{
			TransactionNo:    idgen.GenerateTransactionNo(),
			AccountID:        source.ID,
			Type:             model.TransactionTypeTransfer,
			Direction:        model.TransactionDirectionOut,
			Amount:           req.Amount,
			Notes:            req.Notes,
			RelatedAccountID: &target.ID,
		}
		inTrans := &model.Transaction{
			TransactionNo:    idgen.GenerateTransactionNo(),
			AccountID:        target.ID,
			Type:             model.TransactionTypeTransfer,
			Direction:        model.TransactionDirectionIn,
			Amount:           req.Amount,
			Notes:            req.Notes,
			RelatedAccountID: &source.ID,
		}
		if err := s.transactionRepo.Create(ctx, tx, outTrans); err != nil {
			return fmt.Errorf("记录出账流水失败: %w", err)
		}
		if err := s.transactionRepo.Create(ctx, tx, inTrans); err != nil {
			return fmt.Errorf("记录入账流水失败: %w", err)
		}

		if err := s.writeEvent(ctx, tx, source, outTrans, target.AccountNumber); err != nil {
			return err
		}

		result = &SubmitResult{
			TransactionNo: outTrans.TransactionNo,
			Type:          outTrans.Type,
			Direction:     outTrans.Direction,
			Amount:        req.Amount,
			Balance:       source.Balance.Sub(req.Amount),
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	log.Printf("[Ledger] 转账成功: from=%s, to=%s, no=%s", req.AccountNumber, req.TransferTo, result.TransactionNo)
	return result, nil
}

// lockAccount 抢账户维度的互斥锁，返回释放函数
func (s *LedgerService) lockAccount(ctx context.Context, accountNumber string) (func(), error) {
	key := fmt.Sprintf("ledger:lock:account:%s", accountNumber)
	token := idgen.GenerateLockToken()
	if err := s.locker.Lock(ctx, key, token); err != nil {
		return nil, mapStoreError(err)
	}
	return func() {
		if err := s.locker.Unlock(ctx, key, token); err != nil {
			log.Printf("[Ledger] 释放账户锁失败: key=%s, err=%v", key, err)
		}
	}, nil
}

// writeEvent 在当前事务内写入交易事件，由发件箱任务异步投递
func (s *LedgerService) writeEvent(ctx context.Context, tx *gorm.DB, account *model.Account, trans *model.Transaction, relatedNumber string) error {
	event := &model.TransactionEvent{
		TransactionNo:        trans.TransactionNo,
		AccountNumber:        account.AccountNumber,
		UserID:               account.UserID,
		Type:                 trans.Type,
		Direction:            trans.Direction,
		Amount:               trans.Amount.String(),
		RelatedAccountNumber: relatedNumber,
		OccurredAt:           time.Now().Format(time.RFC3339),
	}
	payloadBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化交易事件失败: %w", err)
	}

	msg := &model.OutboxMessage{
		MessageKey: trans.TransactionNo,
		Topic:      s.cfg.Kafka.Topic.TransactionEvent,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入交易事件失败: %w", err)
	}
	return nil
}

// validateAmount 金额必须为正、不低于最小货币单位、小数位不超过3位
func validateAmount(amount decimal.Decimal) error {
	if amount.LessThan(minAmountUnit) {
		return ErrInvalidAmount
	}
	if !amount.Truncate(3).Equal(amount) {
		return ErrInvalidAmount
	}
	return nil
}
