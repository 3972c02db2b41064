package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/modahaus/storefront/internal/config"
	"github.com/modahaus/storefront/internal/entities"
)

// Kafka publishes admitted orders to the configured topic. Delivery is best
// effort: the caller has already committed the order and decides what to do
// with a publish failure.
type Kafka struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafka(logger *slog.Logger, cfg config.Kafka) *Kafka {
	return &Kafka{
		logger: logger.With(slog.String("publisher", "kafka")),
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: cfg.BatchTimeout,
		},
	}
}

type admittedEvent struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	TotalCents  int64  `json:"total_cents"`
	Status      string `json:"status"`
	StoreID     string `json:"store_id,omitempty"`
}

func (p *Kafka) PublishAdmitted(ctx context.Context, order entities.Order) error {
	event := admittedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		TotalCents:  order.TotalCents,
		Status:      string(order.Status),
		StoreID:     order.StoreID,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal admitted order: %w", err)
	}

	// Keyed by order id so retries of the same order land in one partition.
	msg := kafka.Message{
		Key:   []byte(order.ID),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish admitted order: %w", err)
	}

	p.logger.Debug("admitted order published",
		slog.String("order_id", order.ID), slog.String("order_number", order.OrderNumber))
	return nil
}

func (p *Kafka) Close() error {
	return p.writer.Close()
}
