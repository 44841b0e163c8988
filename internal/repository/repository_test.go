package repository

import (
	"context"
	"testing"

	"ewallet/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Account{},
		&model.Transaction{},
		&model.OutboxMessage{},
	))
	return db
}

func seedAccount(t *testing.T, db *gorm.DB, userID int64, balance string) *model.Account {
	t.Helper()
	account := &model.Account{
		UserID:        userID,
		Alias:         "测试账户",
		Balance:       decimal.RequireFromString(balance),
		AccountNumber: uuid.NewString(),
		PinHash:       "hash",
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func testCtx() context.Context {
	return context.Background()
}
