package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionType indicates the direction of a position.
type PositionType int

const (
	Long  PositionType = 1
	Short PositionType = -1
)

// Valid reports whether the position type is one of the two allowed values.
func (p PositionType) Valid() bool {
	return p == Long || p == Short
}

func (p PositionType) String() string {
	switch p {
	case Long:
		return "long"
	case Short:
		return "short"
	}
	return "unknown"
}

// Action indicates whether shares were bought or sold.
type Action int

const (
	Buy  Action = 1
	Sell Action = -1
)

// Valid reports whether the action is one of the two allowed values.
func (a Action) Valid() bool {
	return a == Buy || a == Sell
}

func (a Action) String() string {
	switch a {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return "unknown"
}

// TransactionEvent is an immutable record of one trade. Rows are
// append-only: once recorded they are never updated or deleted.
type TransactionEvent struct {
	TransID      int64           `json:"trans_id"`
	InvestorID   int             `json:"investor_id"`
	Ticker       string          `json:"ticker"`
	PositionType PositionType    `json:"position_type"`
	Action       Action          `json:"action"`
	Shares       decimal.Decimal `json:"shares"`
	Price        decimal.Decimal `json:"price"`
	Timestamp    time.Time       `json:"timestamp"`
}
