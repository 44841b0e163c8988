package repository

import (
	"fmt"
	"testing"
	"time"

	"ewallet/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionRepoListByAccountID(t *testing.T) {
	db := newTestDB(t)
	repo := NewTransactionRepository(db)
	account := seedAccount(t, db, 1, "0")
	other := seedAccount(t, db, 1, "0")

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		trans := &model.Transaction{
			TransactionNo: fmt.Sprintf("TXN%03d", i),
			AccountID:     account.ID,
			Type:          model.TransactionTypeDeposit,
			Direction:     model.TransactionDirectionIn,
			Amount:        decimal.RequireFromString("10"),
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.Create(testCtx(), nil, trans))
	}
	// 其他账户的流水不能串进来
	require.NoError(t, repo.Create(testCtx(), nil, &model.Transaction{
		TransactionNo: "TXN-other",
		AccountID:     other.ID,
		Type:          model.TransactionTypeDeposit,
		Direction:     model.TransactionDirectionIn,
		Amount:        decimal.RequireFromString("10"),
	}))

	page1, total, err := repo.ListByAccountID(testCtx(), account.ID, 1, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, page1, 3)

	// 最新的在最前面
	assert.Equal(t, "TXN004", page1[0].TransactionNo)
	assert.Equal(t, "TXN002", page1[2].TransactionNo)

	page2, _, err := repo.ListByAccountID(testCtx(), account.ID, 2, 3)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "TXN000", page2[1].TransactionNo)
}

func TestTransactionRepoGetByTransactionNo(t *testing.T) {
	db := newTestDB(t)
	repo := NewTransactionRepository(db)
	account := seedAccount(t, db, 1, "0")

	require.NoError(t, repo.Create(testCtx(), nil, &model.Transaction{
		TransactionNo: "TXN123",
		AccountID:     account.ID,
		Type:          model.TransactionTypeWithdrawal,
		Direction:     model.TransactionDirectionOut,
		Amount:        decimal.RequireFromString("5"),
	}))

	trans, err := repo.GetByTransactionNo(testCtx(), "TXN123")
	require.NoError(t, err)
	assert.Equal(t, account.ID, trans.AccountID)

	_, err = repo.GetByTransactionNo(testCtx(), "missing")
	require.ErrorIs(t, err, ErrTransactionNotFound)
}
