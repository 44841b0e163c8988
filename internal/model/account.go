package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account 账户表
// 记录用户的余额，是整个账务系统的核心数据
//
// 【重要】余额约束：
// 1. balance 使用 DECIMAL(14,3) 定点数，最小单位 0.001，不用浮点数
// 2. balance 永远不允许为负（当前不支持透支）
// 3. balance 只能由账务引擎在事务内持有行锁时修改
type Account struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64           `gorm:"index;not null" json:"user_id"`
	Alias         string          `gorm:"type:varchar(64);not null" json:"alias"`
	Balance       decimal.Decimal `gorm:"type:decimal(14,3);not null;default:0" json:"balance"`
	AccountNumber string          `gorm:"type:varchar(36);uniqueIndex;not null" json:"account_number"` // 对外账号（UUID），与自增ID解耦
	PinHash       string          `gorm:"type:varchar(255);not null" json:"-"`                         // PIN 的 bcrypt 哈希，禁止序列化
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}
