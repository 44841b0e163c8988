package service

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ewallet/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeposit(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	account := env.createAccount(t, user.ID, "1234", "0")

	result, err := env.ledger.Deposit(testCtx(), &SubmitRequest{
		UserID:        user.ID,
		AccountNumber: account.AccountNumber,
		Amount:        decimal.RequireFromString("100.500"),
		Pin:           "1234",
		Notes:         "工资",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TransactionTypeDeposit, result.Type)
	assert.Equal(t, model.TransactionDirectionIn, result.Direction)
	assert.True(t, result.Balance.Equal(decimal.RequireFromString("100.5")))

	reloaded := env.reloadAccount(t, account.ID)
	assert.True(t, reloaded.Balance.Equal(decimal.RequireFromString("100.5")))

	transactions := env.listTransactions(t, account.ID)
	require.Len(t, transactions, 1)
	assert.Equal(t, model.TransactionTypeDeposit, transactions[0].Type)
	assert.Equal(t, model.TransactionDirectionIn, transactions[0].Direction)
	assert.True(t, transactions[0].Amount.Equal(decimal.RequireFromString("100.5")))
	assert.Equal(t, "工资", transactions[0].Notes)
	assert.Nil(t, transactions[0].RelatedAccountID)
}

func TestDepositWritesOutboxEvent(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	account := env.createAccount(t, user.ID, "1234", "0")

	result, err := env.ledger.Deposit(testCtx(), &SubmitRequest{
		UserID:        user.ID,
		AccountNumber: account.AccountNumber,
		Amount:        decimal.RequireFromString("10"),
		Pin:           "1234",
	})
	require.NoError(t, err)

	var messages []*model.OutboxMessage
	require.NoError(t, env.db.Find(&messages).Error)
	require.Len(t, messages, 1)
	assert.Equal(t, result.TransactionNo, messages[0].MessageKey)
	assert.Equal(t, model.OutboxStatusPending, messages[0].Status)
	assert.Equal(t, "test.transaction.event", messages[0].Topic)

	var event model.TransactionEvent
	require.NoError(t, json.Unmarshal([]byte(messages[0].Payload), &event))
	assert.Equal(t, result.TransactionNo, event.TransactionNo)
	assert.Equal(t, account.AccountNumber, event.AccountNumber)
	assert.Equal(t, user.ID, event.UserID)
	assert.Equal(t, model.TransactionTypeDeposit, event.Type)
	assert.Equal(t, model.TransactionDirectionIn, event.Direction)
	assert.Equal(t, "10", event.Amount)
	assert.Empty(t, event.RelatedAccountNumber)
}

func TestDepositWrongPin(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	account := env.createAccount(t, user.ID, "1234", "50")

	_, err := env.ledger.Deposit(testCtx(), &SubmitRequest{
		UserID:        user.ID,
		AccountNumber: account.AccountNumber,
		Amount:        decimal.RequireFromString("10"),
		Pin:           "0000",
	})
	require.ErrorIs(t, err, ErrWrongPin)

	// 余额和流水都不能有任何变化
	reloaded := env.reloadAccount(t, account.ID)
	assert.True(t, reloaded.Balance.Equal(decimal.RequireFromString("50")))
	assert.Empty(t, env.listTransactions(t, account.ID))
}

func TestDepositAccountNotOwned(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	account := env.createAccount(t, alice.ID, "1234", "0")

	// 其他用户拿着正确的账号和 PIN 也不行
	_, err := env.ledger.Deposit(testCtx(), &SubmitRequest{
		UserID:        bob.ID,
		AccountNumber: account.AccountNumber,
		Amount:        decimal.RequireFromString("10"),
		Pin:           "1234",
	})
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestInvalidAmounts(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	account := env.createAccount(t, user.ID, "1234", "100")

	for _, amount := range []string{"0", "-5", "0.0005", "1.2345"} {
		_, err := env.ledger.Withdraw(testCtx(), &SubmitRequest{
			UserID:        user.ID,
			AccountNumber: account.AccountNumber,
			Amount:        decimal.RequireFromString(amount),
			Pin:           "1234",
		})
		assert.ErrorIs(t, err, ErrInvalidAmount, "amount=%s", amount)
	}

	reloaded := env.reloadAccount(t, account.ID)
	assert.True(t, reloaded.Balance.Equal(decimal.RequireFromString("100")))
	assert.Empty(t, env.listTransactions(t, account.ID))
}

func TestSubmitUnknownType(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	account := env.createAccount(t, user.ID, "1234", "100")

	_, err := env.ledger.Submit(testCtx(), &SubmitRequest{
		UserID:        user.ID,
		AccountNumber: account.AccountNumber,
		Type:          "loan",
		Amount:        decimal.RequireFromString("10"),
		Pin:           "1234",
	})
	require.ErrorIs(t, err, ErrInvalidType)
}

func TestWithdraw(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	account := env.createAccount(t, user.ID, "1234", "100")

	result, err := env.ledger.Withdraw(testCtx(), &SubmitRequest{
		UserID:        user.ID,
		AccountNumber: account.AccountNumber,
		Amount:        decimal.RequireFromString("30.250"),
		Pin:           "1234",
	})
	require.NoError(t, err)
	assert.True(t, result.Balance.Equal(decimal.RequireFromString("69.75")))

	reloaded := env.reloadAccount(t, account.ID)
	assert.True(t, reloaded.Balance.Equal(decimal.RequireFromString("69.75")))

	transactions := env.listTransactions(t, account.ID)
	require.Len(t, transactions, 1)
	assert.Equal(t, model.TransactionTypeWithdrawal, transactions[0].Type)
	assert.Equal(t, model.TransactionDirectionOut, transactions[0].Direction)
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	account := env.createAccount(t, user.ID, "1234", "50")

	_, err := env.ledger.Withdraw(testCtx(), &SubmitRequest{
		UserID:        user.ID,
		AccountNumber: account.AccountNumber,
		Amount:        decimal.RequireFromString("50.001"),
		Pin:           "1234",
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	reloaded := env.reloadAccount(t, account.ID)
	assert.True(t, reloaded.Balance.Equal(decimal.RequireFromString("50")))
	assert.Empty(t, env.listTransactions(t, account.ID))
}

func TestTransferConservationAndSymmetry(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	source := env.createAccount(t, alice.ID, "1234", "100")
	target := env.createAccount(t, bob.ID, "5678", "50")

	result, err := env.ledger.Transfer(testCtx(), &SubmitRequest{
		UserID:        alice.ID,
		AccountNumber: source.AccountNumber,
		Amount:        decimal.RequireFromString("30"),
		Pin:           "1234",
		TransferTo:    target.AccountNumber,
		Notes:         "还钱",
	})
	require.NoError(t, err)
	assert.True(t, result.Balance.Equal(decimal.RequireFromString("70")))

	sourceAfter := env.reloadAccount(t, source.ID)
	targetAfter := env.reloadAccount(t, target.ID)
	assert.True(t, sourceAfter.Balance.Equal(decimal.RequireFromString("70")))
	assert.True(t, targetAfter.Balance.Equal(decimal.RequireFromString("80")))

	// 金额守恒：两户余额之和不变
	total := sourceAfter.Balance.Add(targetAfter.Balance)
	assert.True(t, total.Equal(decimal.RequireFromString("150")))

	// 恰好两条流水：源账户 out、目标账户 in，互相引用
	sourceTrans := env.listTransactions(t, source.ID)
	targetTrans := env.listTransactions(t, target.ID)
	require.Len(t, sourceTrans, 1)
	require.Len(t, targetTrans, 1)

	out, in := sourceTrans[0], targetTrans[0]
	assert.Equal(t, model.TransactionTypeTransfer, out.Type)
	assert.Equal(t, model.TransactionDirectionOut, out.Direction)
	assert.Equal(t, model.TransactionTypeTransfer, in.Type)
	assert.Equal(t, model.TransactionDirectionIn, in.Direction)
	assert.True(t, out.Amount.Equal(in.Amount))
	require.NotNil(t, out.RelatedAccountID)
	require.NotNil(t, in.RelatedAccountID)
	assert.Equal(t, target.ID, *out.RelatedAccountID)
	assert.Equal(t, source.ID, *in.RelatedAccountID)
}

func TestTransferToSelfRejected(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	account := env.createAccount(t, user.ID, "1234", "100")

	_, err := env.ledger.Transfer(testCtx(), &SubmitRequest{
		UserID:        user.ID,
		AccountNumber: account.AccountNumber,
		Amount:        decimal.RequireFromString("10"),
		Pin:           "1234",
		TransferTo:    account.AccountNumber,
	})
	require.ErrorIs(t, err, ErrSameAccount)

	reloaded := env.reloadAccount(t, account.ID)
	assert.True(t, reloaded.Balance.Equal(decimal.RequireFromString("100")))
	assert.Empty(t, env.listTransactions(t, account.ID))
}

func TestTransferTargetNotFound(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	account := env.createAccount(t, user.ID, "1234", "100")

	_, err := env.ledger.Transfer(testCtx(), &SubmitRequest{
		UserID:        user.ID,
		AccountNumber: account.AccountNumber,
		Amount:        decimal.RequireFromString("10"),
		Pin:           "1234",
		TransferTo:    "no-such-account",
	})
	require.ErrorIs(t, err, ErrTargetNotFound)
}

func TestTransferInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	source := env.createAccount(t, alice.ID, "1234", "20")
	target := env.createAccount(t, bob.ID, "5678", "0")

	_, err := env.ledger.Transfer(testCtx(), &SubmitRequest{
		UserID:        alice.ID,
		AccountNumber: source.AccountNumber,
		Amount:        decimal.RequireFromString("20.001"),
		Pin:           "1234",
		TransferTo:    target.AccountNumber,
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	assert.True(t, env.reloadAccount(t, source.ID).Balance.Equal(decimal.RequireFromString("20")))
	assert.True(t, env.reloadAccount(t, target.ID).Balance.Equal(decimal.Zero))
	assert.Empty(t, env.listTransactions(t, source.ID))
	assert.Empty(t, env.listTransactions(t, target.ID))
}

// 事务中途失败时必须全量回滚：
// 删掉发件箱表让事务内的最后一次写入失败，已入账的余额和已写的流水都要回滚
func TestDepositRollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	account := env.createAccount(t, user.ID, "1234", "100")

	require.NoError(t, env.db.Migrator().DropTable(&model.OutboxMessage{}))

	_, err := env.ledger.Deposit(testCtx(), &SubmitRequest{
		UserID:        user.ID,
		AccountNumber: account.AccountNumber,
		Amount:        decimal.RequireFromString("10"),
		Pin:           "1234",
	})
	require.Error(t, err)

	reloaded := env.reloadAccount(t, account.ID)
	assert.True(t, reloaded.Balance.Equal(decimal.RequireFromString("100")))
	assert.Empty(t, env.listTransactions(t, account.ID))
}

// 并发取款竞争：余额100，两个并发请求各取80，
// 必须恰好一个成功、一个余额不足，最终余额20，绝不能双双成功
func TestConcurrentWithdrawalRace(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	account := env.createAccount(t, user.ID, "1234", "100")

	withdraw := func() error {
		for i := 0; i < 50; i++ {
			_, err := env.ledger.Withdraw(testCtx(), &SubmitRequest{
				UserID:        user.ID,
				AccountNumber: account.AccountNumber,
				Amount:        decimal.RequireFromString("80"),
				Pin:           "1234",
			})
			if errors.Is(err, ErrConflict) {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return err
		}
		return ErrConflict
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- withdraw()
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, insufficient int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("未预期的错误: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)

	reloaded := env.reloadAccount(t, account.ID)
	assert.True(t, reloaded.Balance.Equal(decimal.RequireFromString("20")))
	assert.Len(t, env.listTransactions(t, account.ID), 1)
}

// 对向转账：A->B 和 B->A 同时发起，两笔都要完成，不能死锁也不能误拒
func TestOpposingTransfersComplete(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	accountA := env.createAccount(t, alice.ID, "1234", "100")
	accountB := env.createAccount(t, bob.ID, "5678", "100")

	transfer := func(userID int64, from, to, pin, amount string) error {
		for i := 0; i < 50; i++ {
			_, err := env.ledger.Transfer(testCtx(), &SubmitRequest{
				UserID:        userID,
				AccountNumber: from,
				Amount:        decimal.RequireFromString(amount),
				Pin:           pin,
				TransferTo:    to,
			})
			if errors.Is(err, ErrConflict) {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return err
		}
		return ErrConflict
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- transfer(alice.ID, accountA.AccountNumber, accountB.AccountNumber, "1234", "30")
	}()
	go func() {
		defer wg.Done()
		errs <- transfer(bob.ID, accountB.AccountNumber, accountA.AccountNumber, "5678", "50")
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	balanceA := env.reloadAccount(t, accountA.ID).Balance
	balanceB := env.reloadAccount(t, accountB.ID).Balance
	assert.True(t, balanceA.Equal(decimal.RequireFromString("120")), "balanceA=%s", balanceA)
	assert.True(t, balanceB.Equal(decimal.RequireFromString("80")), "balanceB=%s", balanceB)
	assert.True(t, balanceA.Add(balanceB).Equal(decimal.RequireFromString("200")))

	// 每个账户各有一条 out 一条 in
	assert.Len(t, env.listTransactions(t, accountA.ID), 2)
	assert.Len(t, env.listTransactions(t, accountB.ID), 2)
}

// 转账目标允许属于其他用户
func TestTransferToOtherUsersAccount(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	source := env.createAccount(t, alice.ID, "1234", "100")
	target := env.createAccount(t, bob.ID, "5678", "0")

	_, err := env.ledger.Transfer(testCtx(), &SubmitRequest{
		UserID:        alice.ID,
		AccountNumber: source.AccountNumber,
		Amount:        decimal.RequireFromString("25"),
		Pin:           "1234",
		TransferTo:    target.AccountNumber,
	})
	require.NoError(t, err)
	assert.True(t, env.reloadAccount(t, target.ID).Balance.Equal(decimal.RequireFromString("25")))
}
