package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultTopics routes event types onto the broker topics downstream
// consumers subscribe to. Unmapped event types publish under their own name.
func DefaultTopics() map[string]string {
	return map[string]string{
		"balance.credited":            "escrow.balance-events",
		"points.transferred":          "escrow.points-events",
		"escrow.created":              "escrow.transaction-events",
		"escrow.confirmed":            "escrow.transaction-events",
		"escrow.shipped":              "escrow.transaction-events",
		"escrow.completed":            "escrow.transaction-events",
		"escrow.cancelled":            "escrow.transaction-events",
		"escrow.expired":              "escrow.transaction-events",
		"store_transaction.created":   "escrow.store-events",
		"store_transaction.confirmed": "escrow.store-events",
		"store_transaction.completed": "escrow.store-events",
		"store_transaction.cancelled": "escrow.store-events",
		"dispute.opened":              "escrow.dispute-events",
		"dispute.assigned":            "escrow.dispute-events",
		"dispute.resolved":            "escrow.dispute-events",
		"dispute.cancelled":           "escrow.dispute-events",
		"referral.registered":         "escrow.referral-events",
	}
}

type KafkaPublisher struct {
	writer       *kafka.Writer
	topicByEvent map[string]string
}

func NewKafkaPublisher(brokers []string, topicByEvent map[string]string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topicByEvent: topicByEvent,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	topic := eventType
	if mapped, ok := p.topicByEvent[eventType]; ok && mapped != "" {
		topic = mapped
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(partitionKey),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
