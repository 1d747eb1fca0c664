package kafka

import (
	"context"
	"encoding/json"
	"log"

	"github.com/segmentio/kafka-go"

	"github.com/example/agrimarket/internal/event"
)

// EventHandler consumes one decoded event envelope. A returned error is
// logged and the consumer moves on; redelivery is left to the broker.
type EventHandler func(ctx context.Context, e event.Event) error

type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Consume reads messages until ctx is cancelled, decoding each into an
// event envelope before handing it off. Messages that do not decode are
// dropped with a log line; there is nothing downstream can do with them.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("[Kafka] Error reading message: %v", err)
				continue
			}

			var e event.Event
			if err := json.Unmarshal(msg.Value, &e); err != nil {
				log.Printf("[Kafka] Dropping undecodable message (key=%s): %v", msg.Key, err)
				continue
			}

			if err := handler(ctx, e); err != nil {
				log.Printf("[Kafka] Error handling %s event %s: %v", e.Type, e.ID, err)
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
