package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/stockreturns/portfolio-service/internal/models"
)

// PortfolioUpdatedEvent is published after each successful ledger apply.
type PortfolioUpdatedEvent struct {
	EventType string                 `json:"event_type"`
	Source    string                 `json:"source"`
	Timestamp string                 `json:"timestamp"`
	Data      *models.PortfolioEntry `json:"data"`
}

// Producer publishes portfolio events to Kafka
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{writer: writer}
}

// PublishPortfolioUpdated publishes the new ledger state of one position.
// Messages are keyed by (investor, ticker, position_type) so updates for
// one key stay ordered within a partition.
func (p *Producer) PublishPortfolioUpdated(ctx context.Context, entry *models.PortfolioEntry) error {
	event := PortfolioUpdatedEvent{
		EventType: "PORTFOLIO_UPDATED",
		Source:    "portfolio-service",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      entry,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal portfolio event: %w", err)
	}

	key := fmt.Sprintf("%d:%s:%d", entry.InvestorID, entry.Ticker, int(entry.PositionType))
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish portfolio event: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
