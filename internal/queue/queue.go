package queue

import (
	"context"
	"fmt"
	"strings"
)

// Publisher publishes record messages to a queue or topic.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg RecordMessage) error
	Close() error
}

// MessageHandler handles a consumed record message.
type MessageHandler func(ctx context.Context, msg RecordMessage) error

// Consumer consumes record messages from a queue or topic.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// DefaultRecordQueue carries pending records from the orchestrator to the workers.
const DefaultRecordQueue = "claim.validation.records"

// Backend selects the broker implementation.
type Backend string

const (
	BackendRabbitMQ Backend = "rabbitmq"
	BackendKafka    Backend = "kafka"
)

func ParseBackend(s string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(s)))
	switch b {
	case BackendRabbitMQ, BackendKafka:
		return b, nil
	case "":
		return BackendRabbitMQ, nil
	}
	return "", fmt.Errorf("unsupported queue backend %q", s)
}

// DLQName returns the dead-letter queue name for a work queue.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}
