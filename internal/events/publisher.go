// Package events publishes the full new order image after every successful
// mutation, for analytics fan-out. Delivery is at-least-once; consumers key
// on order hash.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/dutchbook/dutchbook/internal/model"
	"github.com/dutchbook/dutchbook/pkg/metrics"
)

// Publisher is the sink the repository notifies on every mutation.
type Publisher interface {
	OrderUpdated(ctx context.Context, order *model.Order) error
	Close() error
}

// KafkaPublisher writes order images to a single topic, keyed by order hash
// so per-order ordering is preserved within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher against the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.CRC32Balancer{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

// OrderUpdated publishes the full new item image.
func (p *KafkaPublisher) OrderUpdated(ctx context.Context, order *model.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshaling order event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(order.OrderHash.Hex()),
		Value: data,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.PublishFailures.Inc()
		p.logger.Error("failed to publish order event",
			zap.Error(err),
			zap.String("order_hash", order.OrderHash.Hex()))
		return fmt.Errorf("publishing order event: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// Nop discards events; used where no broker is configured and in tests.
type Nop struct{}

func (Nop) OrderUpdated(context.Context, *model.Order) error { return nil }
func (Nop) Close() error                                     { return nil }
