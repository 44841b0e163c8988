package service

import (
	"context"
	"testing"
	"time"

	"ewallet/internal/config"
	"ewallet/internal/infrastructure/lock"
	"ewallet/internal/model"
	"ewallet/internal/security"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 内存 SQLite
// 只开一个连接，并发事务在连接池排队，避免 SQLite 的写锁冲突
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

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{TransactionEvent: "test.transaction.event"},
		},
		JWT: config.JWTConfig{
			Secret:            "test-secret",
			AccessTTLMinutes:  15,
			RefreshTTLMinutes: 120,
		},
		Business: config.BusinessConfig{
			MaxRetryCount: 3,
		},
	}
}

type testEnv struct {
	db       *gorm.DB
	cfg      *config.Config
	ledger   *LedgerService
	accounts *AccountService
	auth     *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	cfg := newTestConfig()
	locker := lock.NewMemoryLocker(5*time.Millisecond, 1000)
	return &testEnv{
		db:       db,
		cfg:      cfg,
		ledger:   NewLedgerService(db, locker, cfg),
		accounts: NewAccountService(db),
		auth:     NewAuthService(db, &cfg.JWT),
	}
}

// createUser 建一个测试用户
func (e *testEnv) createUser(t *testing.T, username string) *model.User {
	t.Helper()
	user := &model.User{
		FirstName:  "测试",
		LastName:   "用户",
		NationalID: "ID-" + username,
		Phone:      "13800000000-" + username,
		Username:   username,
		Email:      username + "@example.com",
		Password:   "unused",
	}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

// createAccount 建一个测试账户并直接设置初始余额
func (e *testEnv) createAccount(t *testing.T, userID int64, pin, balance string) *model.Account {
	t.Helper()
	pinHash, err := security.HashSecret(pin)
	require.NoError(t, err)

	account := &model.Account{
		UserID:        userID,
		Alias:         "测试账户",
		Balance:       decimal.RequireFromString(balance),
		AccountNumber: uuid.NewString(),
		PinHash:       pinHash,
	}
	require.NoError(t, e.db.Create(account).Error)
	return account
}

// reloadAccount 重新读取账户最新状态
func (e *testEnv) reloadAccount(t *testing.T, accountID int64) *model.Account {
	t.Helper()
	var account model.Account
	require.NoError(t, e.db.Where("id = ?", accountID).First(&account).Error)
	return &account
}

// listTransactions 读取账户全部流水
func (e *testEnv) listTransactions(t *testing.T, accountID int64) []*model.Transaction {
	t.Helper()
	var transactions []*model.Transaction
	require.NoError(t, e.db.Where("account_id = ?", accountID).Order("id ASC").Find(&transactions).Error)
	return transactions
}

func testCtx() context.Context {
	return context.Background()
}
