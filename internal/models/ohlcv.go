package models

import "time"

// Bar is one OHLCV price bar keyed by (datetime, ticker). Price fields are
// pointers because gap days are stored as NULLs; market data stays float64
// (only ledger money uses decimal).
type Bar struct {
	Datetime  time.Time `json:"datetime"`
	Ticker    string    `json:"ticker"`
	Open      *float64  `json:"open"`
	High      *float64  `json:"high"`
	Low       *float64  `json:"low"`
	Close     *float64  `json:"close"`
	Volume    *float64  `json:"volume"`
	Timestamp int64     `json:"timestamp"`
}
