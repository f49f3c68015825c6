package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shopfront/internal/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event types published on the shop topic
const (
	OrderCreated         = "order.created"
	OrderCompleted       = "order.completed"
	OrderFailed          = "order.failed"
	OrderRefunded        = "order.refunded"
	ProductRatingUpdated = "product.rating_updated"
)

const writeTimeout = 5 * time.Second

// Event is a domain event envelope
type Event struct {
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

// Publisher emits domain events after the corresponding state change has committed
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a single topic keyed by aggregate id
type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

// New returns a Kafka publisher, or a no-op publisher when no brokers are configured
func New(cfg config.KafkaConfig, logger *zap.Logger) Publisher {
	if len(cfg.Brokers) == 0 {
		logger.Info("Kafka brokers not configured, domain events are disabled")
		return NopPublisher{}
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           writeTimeout,
	}

	return newKafkaPublisher(writer, logger)
}

func newKafkaPublisher(writer messageWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger}
}

// Publish writes one event; the key keeps events of one aggregate on one partition
func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(evt.Key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(evt.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write failed: %w", err)
	}

	p.logger.Debug("Published event", zap.String("type", evt.Type), zap.String("key", evt.Key))
	return nil
}

// Close flushes pending writes
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards events
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func (NopPublisher) Close() error { return nil }

// PublishAsync publishes best-effort in the background; failures are logged only.
// The request context is detached so a finished request does not cancel delivery.
func PublishAsync(ctx context.Context, p Publisher, logger *zap.Logger, evt Event) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := p.Publish(ctx, evt); err != nil {
			logger.Warn("Failed to publish event",
				zap.String("type", evt.Type),
				zap.String("key", evt.Key),
				zap.Error(err),
			)
		}
	}()
}
