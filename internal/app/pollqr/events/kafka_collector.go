package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

type KafkaCollector struct {
	writer *kafka.Writer
}

func NewKafkaCollector(brokers []string, topic string) *KafkaCollector {
	return &KafkaCollector{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
			Async:    true,
		},
	}
}

// Collect keys messages by poll id so one poll's events stay ordered.
func (k *KafkaCollector) Collect(event IssuedEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("qr events: marshal failed", "poll_id", event.PollID, "err", err)
		return
	}
	if err := k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(event.PollID),
		Value: data,
	}); err != nil {
		slog.Error("qr events: kafka write failed", "poll_id", event.PollID, "err", err)
	}
}

func (k *KafkaCollector) Close() {
	if err := k.writer.Close(); err != nil {
		slog.Error("qr events: kafka writer close failed", "err", err)
	}
}
