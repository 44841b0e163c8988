package mq

import (
	"context"
	"fmt"

	"ewallet/internal/config"

	"github.com/IBM/sarama"
)

// Producer 交易事件的 Kafka 发布端
// 由 main 创建后显式注入发件箱任务，不做包级单例
type Producer struct {
	sync sarama.SyncProducer
}

func NewProducer(cfg *config.KafkaConfig) (*Producer, error) {
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll // 全副本确认后才算发出去
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true

	sp, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}
	return &Producer{sync: sp}, nil
}

// Publish 同步发送一条事件
// sarama 的同步发送不接收 ctx，这里在入口处尊重取消信号
func (p *Producer) Publish(ctx context.Context, topic, key, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, _, err := p.sync.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("投递 %s 失败: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.sync.Close()
}
