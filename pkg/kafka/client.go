// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"assistant-console-go/internal/config"
	"assistant-console-go/pkg/events"
	"assistant-console-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// EventHandler defines the interface for any service that can react to an assistant event.
// This decouples the Kafka consumer from the concrete service implementation.
type EventHandler interface {
	HandleAssistantEvent(ctx context.Context, event events.AssistantEvent) error
}

// Producer 将助手变更事件写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Publish 发送一个助手变更事件，以助手 ID 作为 key 保证同一助手的事件有序。
func (p *Producer) Publish(ctx context.Context, event events.AssistantEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AssistantID),
		Value: b,
	})
}

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者处理其他实例发出的助手事件，直到 ctx 结束。
// source 为本实例 ID，来源相同的事件会被直接提交并跳过。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, source string, handler EventHandler) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID + "-" + source,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}

		if err := dispatch(ctx, m, source, handler); err != nil {
			// 缓存失效失败不影响正确性，下一次刷新会自然纠正
			log.Errorf("处理助手事件失败: offset %d, err: %v", m.Offset, err)
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}

// dispatch 解析一条消息并交给 handler。格式错误的消息和本实例的事件不会交给 handler。
func dispatch(ctx context.Context, m kafka.Message, source string, handler EventHandler) error {
	var event events.AssistantEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		log.Warnf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		return nil
	}
	if event.Source == source {
		return nil
	}
	if err := handler.HandleAssistantEvent(ctx, event); err != nil {
		return fmt.Errorf("handle %s event for %s: %w", event.Type, event.AssistantID, err)
	}
	return nil
}
