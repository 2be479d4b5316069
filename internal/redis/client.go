package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockreturns/portfolio-service/internal/config"
	"github.com/stockreturns/portfolio-service/internal/models"
)

// Client wraps the Redis client with portfolio-specific operations
type Client struct {
	rdb *redis.Client
}

// New creates a new Redis client
func New(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks if Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Portfolio snapshot caching. Snapshots are cached per investor and
// invalidated on every recorded transaction; a stale snapshot would show
// a ledger state that no longer exists.

// SetPortfolio caches an investor's portfolio snapshot with TTL
func (c *Client) SetPortfolio(ctx context.Context, investorID int, entries []*models.PortfolioEntry, ttl time.Duration) error {
	jsonData, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal portfolio: %w", err)
	}
	return c.rdb.Set(ctx, portfolioKey(investorID), jsonData, ttl).Err()
}

// GetPortfolio retrieves a cached portfolio snapshot
func (c *Client) GetPortfolio(ctx context.Context, investorID int) ([]*models.PortfolioEntry, error) {
	jsonData, err := c.rdb.Get(ctx, portfolioKey(investorID)).Bytes()
	if err != nil {
		return nil, err
	}

	var entries []*models.PortfolioEntry
	if err := json.Unmarshal(jsonData, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal portfolio: %w", err)
	}
	return entries, nil
}

// InvalidatePortfolio drops the cached snapshot for an investor
func (c *Client) InvalidatePortfolio(ctx context.Context, investorID int) error {
	return c.rdb.Del(ctx, portfolioKey(investorID)).Err()
}

// Last trade price caching

// SetLastPrice caches the most recent trade price for a ticker
func (c *Client) SetLastPrice(ctx context.Context, ticker string, price float64, ttl time.Duration) error {
	key := fmt.Sprintf("ticker:%s:last_price", ticker)
	return c.rdb.Set(ctx, key, price, ttl).Err()
}

// GetLastPrice retrieves the cached last trade price for a ticker
func (c *Client) GetLastPrice(ctx context.Context, ticker string) (float64, error) {
	key := fmt.Sprintf("ticker:%s:last_price", ticker)
	return c.rdb.Get(ctx, key).Float64()
}

// PortfolioUpdatesChannel carries one message per applied transaction:
// the new ledger entry for the affected key. Dashboards and downstream
// services subscribe to it for real-time updates.
const PortfolioUpdatesChannel = "portfolio.updates"

// Publish publishes a message to a channel
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.rdb.Publish(ctx, channel, jsonData).Err()
}

func portfolioKey(investorID int) string {
	return fmt.Sprintf("portfolio:%d", investorID)
}
