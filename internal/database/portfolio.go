package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stockreturns/portfolio-service/internal/models"
)

const portfolioColumns = `investor_id, ticker, position_type, position, last_price,
	       cost_basis, total_invested, current_value, realized_profit, gain,
	       created_at, updated_at`

// GetPortfolioEntry retrieves the ledger entry for one
// (investor, ticker, position_type) key. Returns (nil, nil) when no entry
// exists for the key.
func (db *DB) GetPortfolioEntry(ctx context.Context, investorID int, ticker string, pt models.PositionType) (*models.PortfolioEntry, error) {
	query := `
		SELECT ` + portfolioColumns + `
		FROM portfolio
		WHERE investor_id = $1 AND ticker = $2 AND position_type = $3
	`
	var e models.PortfolioEntry
	var ptRaw int
	err := db.conn.QueryRowContext(ctx, query, investorID, ticker, int(pt)).Scan(
		&e.InvestorID, &e.Ticker, &ptRaw, &e.Position, &e.LastPrice,
		&e.CostBasis, &e.TotalInvested, &e.CurrentValue, &e.RealizedProfit, &e.Gain,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio entry: %w", err)
	}
	e.PositionType = models.PositionType(ptRaw)
	return &e, nil
}

// GetInvestorPortfolio returns all ledger entries for one investor.
func (db *DB) GetInvestorPortfolio(ctx context.Context, investorID int) ([]*models.PortfolioEntry, error) {
	query := `
		SELECT ` + portfolioColumns + `
		FROM portfolio
		WHERE investor_id = $1
		ORDER BY ticker, position_type
	`
	rows, err := db.conn.QueryContext(ctx, query, investorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	defer rows.Close()

	return scanPortfolioEntries(rows)
}

// GetTickerPositions returns the long and short entries one investor holds
// in a single ticker.
func (db *DB) GetTickerPositions(ctx context.Context, investorID int, ticker string) ([]*models.PortfolioEntry, error) {
	query := `
		SELECT ` + portfolioColumns + `
		FROM portfolio
		WHERE investor_id = $1 AND ticker = $2
		ORDER BY position_type DESC
	`
	rows, err := db.conn.QueryContext(ctx, query, investorID, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticker positions: %w", err)
	}
	defer rows.Close()

	return scanPortfolioEntries(rows)
}

func scanPortfolioEntries(rows *sql.Rows) ([]*models.PortfolioEntry, error) {
	var entries []*models.PortfolioEntry
	for rows.Next() {
		var e models.PortfolioEntry
		var ptRaw int
		err := rows.Scan(
			&e.InvestorID, &e.Ticker, &ptRaw, &e.Position, &e.LastPrice,
			&e.CostBasis, &e.TotalInvested, &e.CurrentValue, &e.RealizedProfit, &e.Gain,
			&e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio entry: %w", err)
		}
		e.PositionType = models.PositionType(ptRaw)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
