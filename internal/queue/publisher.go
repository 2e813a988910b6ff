package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kursadbilgin/claim-validation/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQPublisher struct {
	client *RabbitMQ
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, msg RecordMessage) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if msg.CorrelationID == "" {
		msg.CorrelationID, _ = observability.CorrelationIDFromContext(ctx)
	}

	payload, err := encodeRecordMessage(msg)
	if err != nil {
		return err
	}

	ch, err := p.client.channel(ctx, queue)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.PublishWithContext(ctx, "", queue, false, false, rabbitPublishing(msg, payload)); err != nil {
		return fmt.Errorf("failed to publish message to queue %q: %w", queue, err)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

func rabbitPublishing(msg RecordMessage, payload []byte) amqp.Publishing {
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now().UTC(),
		MessageId:     msg.EventID,
		CorrelationId: msg.CorrelationID,
		Headers: amqp.Table{
			"batchId":   strconv.FormatInt(msg.BatchID, 10),
			"runNumber": strconv.FormatInt(msg.RunNumber, 10),
		},
		Body: payload,
	}
}
