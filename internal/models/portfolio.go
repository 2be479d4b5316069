package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioEntry is the current ledger state of one position, keyed by
// (investor_id, ticker, position_type). Position is stored as a
// non-negative magnitude; direction is carried by PositionType.
type PortfolioEntry struct {
	InvestorID     int             `json:"investor_id"`
	Ticker         string          `json:"ticker"`
	PositionType   PositionType    `json:"position_type"`
	Position       decimal.Decimal `json:"position"`
	LastPrice      decimal.Decimal `json:"last_price"`
	CostBasis      decimal.Decimal `json:"cost_basis"`
	TotalInvested  decimal.Decimal `json:"total_invested"`
	CurrentValue   decimal.Decimal `json:"current_value"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	Gain           decimal.Decimal `json:"gain"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
