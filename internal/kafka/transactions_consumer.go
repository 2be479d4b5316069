package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/stockreturns/portfolio-service/internal/ledger"
	"github.com/stockreturns/portfolio-service/internal/metrics"
	"github.com/stockreturns/portfolio-service/internal/models"
)

// TransactionRecorder defines the interface for the durable store operation
// that appends a transaction event and updates the portfolio ledger in one
// unit of work.
type TransactionRecorder interface {
	RecordTransaction(ctx context.Context, ev *models.TransactionEvent) (*models.PortfolioEntry, error)
}

// TransactionEvent is a trade event arriving over Kafka. Quantities come
// as strings and are parsed into decimals before recording.
type TransactionEvent struct {
	EventType string               `json:"event_type"`
	Source    string               `json:"source"`
	Timestamp string               `json:"timestamp"`
	Data      TransactionEventData `json:"data"`
}

// TransactionEventData holds the trade fields of a transaction event.
type TransactionEventData struct {
	InvestorID   int    `json:"investor_id"`
	Ticker       string `json:"ticker"`
	PositionType int    `json:"position_type"`
	Action       int    `json:"action"`
	Shares       string `json:"shares"`
	Price        string `json:"price"`
}

// errMalformedEvent marks events that can never be recorded, no matter
// how often they are retried.
var errMalformedEvent = errors.New("malformed transaction event")

// retryBaseDelay scales the backoff between attempts for one message.
// Tests shrink it.
var retryBaseDelay = time.Second

const maxRetryDelay = 30 * time.Second

// TransactionsConsumer handles consuming transaction events from Kafka
type TransactionsConsumer struct {
	reader *kafka.Reader
	repo   TransactionRecorder
}

// NewTransactionsConsumer creates a new Kafka consumer for transaction events
func NewTransactionsConsumer(brokers []string, topic, groupID string, repo TransactionRecorder) *TransactionsConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID + "-transactions",
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
		MaxWait:     1 * time.Second,
		StartOffset: kafka.FirstOffset,
	})

	return &TransactionsConsumer{
		reader: reader,
		repo:   repo,
	}
}

// Start begins consuming messages from Kafka. Offsets are committed only
// after a message is handled, so a crash or a store outage never skips a
// trade: the message is redelivered and retried instead.
func (c *TransactionsConsumer) Start(ctx context.Context) error {
	log.Printf("Starting transactions consumer for topic: %s", c.reader.Config().Topic)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("Transactions consumer shutting down...")
				return c.reader.Close()
			}
			log.Printf("Error reading transaction message: %v", err)
			continue
		}

		if err := c.handleMessage(ctx, msg); err != nil {
			// Only context cancellation gets here; the message stays
			// uncommitted for redelivery.
			return c.reader.Close()
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Printf("Error committing offset %d: %v", msg.Offset, err)
		}
	}
}

// handleMessage processes one message, retrying with backoff while the
// store is failing. Malformed events and closes of unknown positions are
// terminal: retrying cannot fix them, so they are logged and dropped.
func (c *TransactionsConsumer) handleMessage(ctx context.Context, msg kafka.Message) error {
	for attempt := 1; ; attempt++ {
		err := c.processMessage(ctx, msg)
		if err == nil {
			return nil
		}
		log.Printf("Error processing transaction message (attempt %d): %v", attempt, err)

		if !retryable(err) {
			return nil
		}

		delay := time.Duration(attempt) * retryBaseDelay
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// retryable reports whether a processing error can succeed on a later
// attempt. Engine rejections are deterministic; everything else is
// assumed to be a transient store failure.
func retryable(err error) bool {
	switch {
	case errors.Is(err, errMalformedEvent),
		errors.Is(err, ledger.ErrMissingPriorPosition),
		errors.Is(err, ledger.ErrInvalidPositionType),
		errors.Is(err, ledger.ErrInvalidAction),
		errors.Is(err, ledger.ErrNonPositiveShares),
		errors.Is(err, ledger.ErrNonPositivePrice):
		return false
	}
	return true
}

// processMessage handles a single Kafka message
func (c *TransactionsConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	log.Printf("Received transaction message from partition %d offset %d: key=%s",
		msg.Partition, msg.Offset, string(msg.Key))

	var event TransactionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		metrics.TransactionsRejected.WithLabelValues("malformed").Inc()
		return fmt.Errorf("%w: %v", errMalformedEvent, err)
	}

	if event.EventType != "TRANSACTION_CREATED" {
		log.Printf("Ignoring event type: %s", event.EventType)
		return nil
	}

	ev, err := c.convertEventData(event)
	if err != nil {
		metrics.TransactionsRejected.WithLabelValues("malformed").Inc()
		return fmt.Errorf("%w: %v", errMalformedEvent, err)
	}

	start := time.Now()
	entry, err := c.repo.RecordTransaction(ctx, ev)
	if err != nil {
		if errors.Is(err, ledger.ErrMissingPriorPosition) {
			// A closing event for a key we have never opened. Dropping it
			// silently would lose a trade, so it is surfaced loudly.
			metrics.TransactionsRejected.WithLabelValues("missing_prior_position").Inc()
			return fmt.Errorf("dropped closing event for unknown position %s/%s: %w",
				ev.Ticker, ev.PositionType, err)
		}
		if !retryable(err) {
			metrics.TransactionsRejected.WithLabelValues("constraint_violation").Inc()
			return fmt.Errorf("rejected transaction: %w", err)
		}
		metrics.TransactionsRejected.WithLabelValues("store_error").Inc()
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	metrics.ApplyLatency.Observe(time.Since(start).Seconds())
	if kind, kerr := ledger.Classify(ev.PositionType, ev.Action); kerr == nil {
		metrics.TransactionsApplied.WithLabelValues(ev.PositionType.String(), kind.String()).Inc()
	}

	log.Printf("Applied transaction: investor=%d %s %s %s shares @ $%s (position=%s, realized=%s)",
		ev.InvestorID, ev.Ticker, ev.Action, ev.Shares, ev.Price,
		entry.Position, entry.RealizedProfit)

	return nil
}

// convertEventData converts Kafka event data to a transaction event model
func (c *TransactionsConsumer) convertEventData(event TransactionEvent) (*models.TransactionEvent, error) {
	d := event.Data

	shares, err := decimal.NewFromString(d.Shares)
	if err != nil {
		return nil, fmt.Errorf("invalid shares %q: %w", d.Shares, err)
	}
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", d.Price, err)
	}

	ts := time.Now().UTC()
	if event.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, event.Timestamp); err == nil {
			ts = parsed
		}
	}

	return &models.TransactionEvent{
		InvestorID:   d.InvestorID,
		Ticker:       strings.ToUpper(d.Ticker),
		PositionType: models.PositionType(d.PositionType),
		Action:       models.Action(d.Action),
		Shares:       shares,
		Price:        price,
		Timestamp:    ts,
	}, nil
}

// Close closes the Kafka consumer
func (c *TransactionsConsumer) Close() error {
	return c.reader.Close()
}
