package repository

import (
	"context"
	"errors"

	"ewallet/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound  = errors.New("账户不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// withWriteLock 给查询加排他行锁（SELECT ... FOR UPDATE）
// SQLite 方言没有行锁语法，写入本身就是串行的，直接跳过
func withWriteLock(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// GetByNumber 按对外账号查询账户，并校验归属用户
// 在事务内调用时必须传 tx，避免在持有事务连接时再向连接池要新连接
func (r *AccountRepository) GetByNumber(ctx context.Context, tx *gorm.DB, accountNumber string, userID int64) (*model.Account, error) {
	if tx == nil {
		tx = r.db
	}
	var account model.Account
	err := tx.WithContext(ctx).
		Where("account_number = ? AND user_id = ?", accountNumber, userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetByNumberAny 按对外账号查询账户，不限制归属
// 转账的目标账户允许属于其他用户，只能走这个入口
func (r *AccountRepository) GetByNumberAny(ctx context.Context, tx *gorm.DB, accountNumber string) (*model.Account, error) {
	if tx == nil {
		tx = r.db
	}
	var account model.Account
	err := tx.WithContext(ctx).
		Where("account_number = ?", accountNumber).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) ListByUserID(ctx context.Context, userID int64) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&accounts).Error
	return accounts, err
}

// GetForUpdate 在事务内按内部ID加排他行锁读取账户
//
// 【关键点】必须先拿到行锁再读余额，再做扣减判断。
// 否则两个并发请求可能同时读到旧余额，各自扣款后出现超扣
func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, accountID int64) (*model.Account, error) {
	if tx == nil {
		tx = r.db
	}
	var account model.Account
	err := withWriteLock(tx.WithContext(ctx)).
		Where("id = ?", accountID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetForUpdateByNumber 在事务内按对外账号加排他行锁读取账户，并校验归属用户
func (r *AccountRepository) GetForUpdateByNumber(ctx context.Context, tx *gorm.DB, accountNumber string, userID int64) (*model.Account, error) {
	if tx == nil {
		tx = r.db
	}
	var account model.Account
	err := withWriteLock(tx.WithContext(ctx)).
		Where("account_number = ? AND user_id = ?", accountNumber, userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// AddBalance 入账
func (r *AccountRepository) AddBalance(ctx context.Context, tx *gorm.DB, accountID int64, amount decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", accountID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DeductBalance 出账
//
// 【关键点】UPDATE 带 balance >= ? 条件，配合 RowsAffected 判断。
// 即使行锁失效（比如换了不支持 FOR UPDATE 的存储），余额也不会被扣成负数
func (r *AccountRepository) DeductBalance(ctx context.Context, tx *gorm.DB, accountID int64, amount decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND balance >= ?", accountID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var account model.Account
		err := tx.WithContext(ctx).Where("id = ?", accountID).First(&account).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		return ErrBalanceNotEnough
	}
	return nil
}

// UpdatePin 更新账户 PIN 哈希
// 旧 PIN 的校验在服务层完成，这里只负责落库
func (r *AccountRepository) UpdatePin(ctx context.Context, accountID int64, pinHash string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", accountID).
		Update("pin_hash", pinHash)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}
