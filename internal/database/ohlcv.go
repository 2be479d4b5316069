package database

import (
	"context"
	"fmt"
	"math"

	"github.com/stockreturns/portfolio-service/internal/models"
)

// SaveBar inserts or updates one OHLCV price bar.
func (db *DB) SaveBar(ctx context.Context, bar *models.Bar) error {
	query := `
		INSERT INTO ohlcv (
			datetime, ticker, open, high, low, close, volume, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (datetime, ticker)
		DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			timestamp = EXCLUDED.timestamp
	`
	_, err := db.conn.ExecContext(ctx, query,
		bar.Datetime, bar.Ticker, bar.Open, bar.High, bar.Low, bar.Close,
		bar.Volume, bar.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save bar %s/%s: %w", bar.Ticker, bar.Datetime, err)
	}
	return nil
}

// GetBars returns all bars for a ticker in datetime order.
func (db *DB) GetBars(ctx context.Context, ticker string) ([]*models.Bar, error) {
	query := `
		SELECT datetime, ticker, open, high, low, close, volume, timestamp
		FROM ohlcv
		WHERE ticker = $1
		ORDER BY datetime
	`
	rows, err := db.conn.QueryContext(ctx, query, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to get bars for %s: %w", ticker, err)
	}
	defer rows.Close()

	var bars []*models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Datetime, &b.Ticker, &b.Open, &b.High, &b.Low,
			&b.Close, &b.Volume, &b.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bars = append(bars, &b)
	}
	return bars, rows.Err()
}

// GetOpenPrices returns the open-price series for a ticker in datetime
// order, with NULL rows surfaced as NaN so gap analysis can find missing
// stretches.
func (db *DB) GetOpenPrices(ctx context.Context, ticker string) ([]float64, error) {
	query := `
		SELECT open
		FROM ohlcv
		WHERE ticker = $1
		ORDER BY datetime
	`
	rows, err := db.conn.QueryContext(ctx, query, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to get open prices for %s: %w", ticker, err)
	}
	defer rows.Close()

	var prices []float64
	for rows.Next() {
		var open *float64
		if err := rows.Scan(&open); err != nil {
			return nil, fmt.Errorf("failed to scan open price: %w", err)
		}
		if open == nil {
			prices = append(prices, math.NaN())
		} else {
			prices = append(prices, *open)
		}
	}
	return prices, rows.Err()
}
