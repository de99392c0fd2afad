package ports

import "context"

// EventPublisher delivers outbox payloads to the broker. The partition key
// keeps per-transaction event ordering stable across consumers.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}
