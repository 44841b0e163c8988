package repository

import (
	"testing"

	"ewallet/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRepoLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewOutboxRepository(db)

	first := &model.OutboxMessage{
		Topic:      "transaction.event",
		MessageKey: "TXN001",
		Payload:    `{"transaction_no":"TXN001"}`,
		Status:     model.OutboxStatusPending,
	}
	second := &model.OutboxMessage{
		Topic:      "transaction.event",
		MessageKey: "TXN002",
		Payload:    `{"transaction_no":"TXN002"}`,
		Status:     model.OutboxStatusPending,
	}
	require.NoError(t, repo.Create(testCtx(), nil, first))
	require.NoError(t, repo.Create(testCtx(), nil, second))

	pending, err := repo.GetPendingMessages(testCtx(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	// 按写入顺序投递
	assert.Equal(t, "TXN001", pending[0].MessageKey)

	// 发送成功后不再出现在待发队列里
	require.NoError(t, repo.UpdateStatus(testCtx(), first.ID, model.OutboxStatusSent))
	pending, err = repo.GetPendingMessages(testCtx(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "TXN002", pending[0].MessageKey)

	require.NoError(t, repo.IncrementRetryCount(testCtx(), second.ID))
	require.NoError(t, repo.IncrementRetryCount(testCtx(), second.ID))

	var reloaded model.OutboxMessage
	require.NoError(t, db.First(&reloaded, second.ID).Error)
	assert.Equal(t, 2, reloaded.RetryCount)

	require.NoError(t, repo.MarkAsFailed(testCtx(), second.ID))
	pending, err = repo.GetPendingMessages(testCtx(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
