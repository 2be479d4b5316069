// Package analytics holds read-only utilities over the OHLCV store.
package analytics

import (
	"context"
	"fmt"
	"math"
)

// OpenPriceSource provides the open-price series for one ticker, with
// missing rows surfaced as NaN.
type OpenPriceSource interface {
	GetOpenPrices(ctx context.Context, ticker string) ([]float64, error)
}

// LongestNaNRun returns the length of the longest consecutive run of NaN
// values in prices.
func LongestNaNRun(prices []float64) int {
	longest, run := 0, 0
	for _, p := range prices {
		if math.IsNaN(p) {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	return longest
}

// TickerGap reports the longest stretch of missing open prices for one
// ticker.
func TickerGap(ctx context.Context, src OpenPriceSource, ticker string) (int, error) {
	prices, err := src.GetOpenPrices(ctx, ticker)
	if err != nil {
		return 0, fmt.Errorf("failed to load prices for %s: %w", ticker, err)
	}
	return LongestNaNRun(prices), nil
}
