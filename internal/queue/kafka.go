package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/kursadbilgin/claim-validation/internal/observability"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	defaultKafkaGroupID         = "claim-validation-workers"
	defaultKafkaHandlerAttempts = 3
	defaultKafkaRetryBackoff    = 500 * time.Millisecond
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

// Publish keys messages by batch id so one batch stays on one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, msg RecordMessage) error {
	if p == nil || p.writer == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if topic == "" {
		return fmt.Errorf("topic is required")
	}
	if msg.CorrelationID == "" {
		msg.CorrelationID, _ = observability.CorrelationIDFromContext(ctx)
	}

	km, err := kafkaMessage(topic, msg)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("failed to publish message to topic %q: %w", topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func kafkaMessage(topic string, msg RecordMessage) (kafka.Message, error) {
	payload, err := encodeRecordMessage(msg)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Topic: topic,
		Key:   []byte(strconv.FormatInt(msg.BatchID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventId", Value: []byte(msg.EventID)},
			{Key: "runNumber", Value: []byte(strconv.FormatInt(msg.RunNumber, 10))},
		},
		Time: time.Now().UTC(),
	}, nil
}

// KafkaConsumer reads record messages as part of a consumer group. Kafka has no
// per-message requeue, so failed handlers are retried in place and the offset is
// committed afterwards. A record left PENDING is republished with its next run.
type KafkaConsumer struct {
	brokers      []string
	groupID      string
	attempts     int
	retryBackoff time.Duration
	logger       *zap.Logger
	newReader    func(topic string) messageReader

	mu      sync.Mutex
	readers map[messageReader]struct{}
}

func NewKafkaConsumer(brokers []string, groupID string, logger *zap.Logger) (*KafkaConsumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if groupID == "" {
		groupID = defaultKafkaGroupID
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &KafkaConsumer{
		brokers:      brokers,
		groupID:      groupID,
		attempts:     defaultKafkaHandlerAttempts,
		retryBackoff: defaultKafkaRetryBackoff,
		logger:       logger,
		readers:      make(map[messageReader]struct{}),
	}
	c.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.brokers,
			GroupID:  c.groupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		})
	}
	return c, nil
}

func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler MessageHandler) error {
	if c == nil || c.newReader == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if topic == "" {
		return fmt.Errorf("topic is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	reader := c.newReader(topic)
	c.track(reader)
	defer c.untrack(reader)

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to fetch message from topic %q: %w", topic, err)
		}

		c.handleMessage(ctx, m, handler)

		if err := reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to commit offset on topic %q: %w", topic, err)
		}
	}
}

func (c *KafkaConsumer) handleMessage(ctx context.Context, m kafka.Message, handler MessageHandler) {
	msg, err := decodeRecordMessage(m.Value)
	if err != nil {
		c.logger.Warn("skipping invalid record message",
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Error(err),
		)
		return
	}

	backoff := c.retryBackoff
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			return
		}
		if attempt >= c.attempts || ctx.Err() != nil {
			c.logger.Error("record message handler failed, leaving record for the next run",
				zap.Int64("recordId", msg.RecordID),
				zap.Int64("batchId", msg.BatchID),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func (c *KafkaConsumer) Close() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var result *multierror.Error
	for reader := range c.readers {
		if err := reader.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		delete(c.readers, reader)
	}
	return result.ErrorOrNil()
}

func (c *KafkaConsumer) track(reader messageReader) {
	c.mu.Lock()
	c.readers[reader] = struct{}{}
	c.mu.Unlock()
}

func (c *KafkaConsumer) untrack(reader messageReader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.readers[reader]; ok {
		_ = reader.Close()
		delete(c.readers, reader)
	}
}
