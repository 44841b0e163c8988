package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易类型与方向常量
// ============================================================================

const (
	TransactionTypeDeposit    = "deposit"    // 存款
	TransactionTypeWithdrawal = "withdrawal" // 取款
	TransactionTypeTransfer   = "transfer"   // 转账
)

const (
	TransactionDirectionIn  = "in"  // 入账
	TransactionDirectionOut = "out" // 出账
)

// ValidTransactionType 校验交易类型是否合法
func ValidTransactionType(t string) bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeTransfer:
		return true
	}
	return false
}

// ============================================================================
// 交易流水实体
// ============================================================================

// Transaction 交易流水表
// 记录账户的每一笔资金变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. amount 恒为正数，方向由 direction 表达
// 3. 一笔转账必定产生两条流水：源账户 out 一条、目标账户 in 一条，
//    金额相同，通过 related_account_id 互相指向对方
// 4. 流水必须和余额变更在同一个事务内落库，不允许只见其一
type Transaction struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo    string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	AccountID        int64           `gorm:"index;not null" json:"account_id"`
	Type             string          `gorm:"type:varchar(20);not null" json:"type"`      // deposit / withdrawal / transfer
	Direction        string          `gorm:"type:varchar(10);not null" json:"direction"` // in / out
	Amount           decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"amount"`
	Notes            string          `gorm:"type:varchar(256)" json:"notes,omitempty"`
	RelatedAccountID *int64          `gorm:"index" json:"related_account_id,omitempty"` // 仅转账时指向对方账户
	CreatedAt        time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}
