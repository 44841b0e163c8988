package job

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"ewallet/internal/config"
	"ewallet/internal/model"
	"ewallet/internal/repository"

	"gorm.io/gorm"
)

// EventPublisher 事件的对外投递端
// 生产环境是 mq.Producer，测试里用内存实现替换
type EventPublisher interface {
	Publish(ctx context.Context, topic, key, payload string) error
}

// OutboxSender 轮询发件箱，把账务引擎落库的交易事件投递出去
//
// 【关键点】发件箱里的记录和流水在同一个事务里提交，
// 这里只负责"至少一次"投递：发送成功才标记 SENT，
// 失败累计重试次数，超限标记 FAILED 等人工介入
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  EventPublisher
	maxRetries int
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, publisher EventPublisher, cfg *config.Config) *OutboxSender {
	maxRetries := cfg.Business.MaxRetryCount
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		maxRetries: maxRetries,
		interval:   100 * time.Millisecond,
		batchSize:  100,
	}
}

// Start 周期性清空发件箱，直到 ctx 取消
func (s *OutboxSender) Start(ctx context.Context) {
	log.Println("[Outbox] 交易事件投递任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Outbox] 收到停止信号，任务退出")
			return
		case <-ticker.C:
			s.drainOnce(ctx)
		}
	}
}

// drainOnce 处理一批待发送事件，返回本轮投递成功的条数
func (s *OutboxSender) drainOnce(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.Printf("[Outbox] 扫描发件箱失败: %v", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.dispatch(ctx, msg) {
			sent++
		}
	}
	return sent
}

// dispatch 投递单条事件，成功返回 true
func (s *OutboxSender) dispatch(ctx context.Context, msg *model.OutboxMessage) bool {
	var event model.TransactionEvent
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		// 载荷坏了重试也没用，直接标记失败
		log.Printf("[Outbox] 事件载荷损坏: id=%d, err=%v", msg.ID, err)
		if markErr := s.outboxRepo.MarkAsFailed(ctx, msg.ID); markErr != nil {
			log.Printf("[Outbox] 标记失败状态失败: id=%d, err=%v", msg.ID, markErr)
		}
		return false
	}

	if err := s.publisher.Publish(ctx, msg.Topic, msg.MessageKey, msg.Payload); err != nil {
		log.Printf("[Outbox] 投递失败: no=%s, type=%s, account=%s, err=%v",
			event.TransactionNo, event.Type, event.AccountNumber, err)

		if incErr := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); incErr != nil {
			log.Printf("[Outbox] 累计重试次数失败: id=%d, err=%v", msg.ID, incErr)
		}
		if msg.RetryCount+1 >= s.maxRetries {
			if markErr := s.outboxRepo.MarkAsFailed(ctx, msg.ID); markErr != nil {
				log.Printf("[Outbox] 标记失败状态失败: id=%d, err=%v", msg.ID, markErr)
			} else {
				log.Printf("[Outbox] 重试次数用尽，标记失败: no=%s", event.TransactionNo)
			}
		}
		return false
	}

	if err := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); err != nil {
		// 事件已发出但状态没改成功，下一轮会重复投递,靠流水号幂等
		log.Printf("[Outbox] 更新状态失败: id=%d, err=%v", msg.ID, err)
		return false
	}

	log.Printf("[Outbox] 事件已投递: no=%s, type=%s, direction=%s, account=%s",
		event.TransactionNo, event.Type, event.Direction, event.AccountNumber)
	return true
}
