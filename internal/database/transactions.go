package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stockreturns/portfolio-service/internal/ledger"
	"github.com/stockreturns/portfolio-service/internal/models"
)

// RecordTransaction appends a transaction event and applies it to the
// affected portfolio entry in one database transaction. The portfolio row
// is read under FOR UPDATE, so two events for the same
// (investor, ticker, position_type) key serialize on the row lock and
// apply in arrival order; events for different keys proceed concurrently.
// Any engine error rolls the whole unit back: the event is not recorded
// and the ledger is not mutated.
func (db *DB) RecordTransaction(ctx context.Context, ev *models.TransactionEvent) (*models.PortfolioEntry, error) {
	// Malformed events are rejected before the insert. Otherwise the table
	// CHECK constraints would reject them with a pq error that callers
	// cannot match against the engine sentinels.
	if err := ledger.Validate(ev); err != nil {
		return nil, err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertEvent := `
		INSERT INTO transaction_history (
			investor_id, datetime, ticker, position_type, action, no_shares, at_price
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING trans_id
	`
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	err = tx.QueryRowContext(ctx, insertEvent,
		ev.InvestorID, ev.Timestamp, ev.Ticker, int(ev.PositionType), int(ev.Action),
		ev.Shares, ev.Price,
	).Scan(&ev.TransID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction event: %w", err)
	}

	prior, err := lockPortfolioEntry(ctx, tx, ev.InvestorID, ev.Ticker, ev.PositionType)
	if err != nil {
		return nil, err
	}

	next, err := ledger.Apply(prior, ev)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	next.UpdatedAt = now
	if prior == nil {
		next.CreatedAt = now
		insertEntry := `
			INSERT INTO portfolio (
				investor_id, ticker, position_type, position, last_price,
				cost_basis, total_invested, current_value, realized_profit, gain,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`
		_, err = tx.ExecContext(ctx, insertEntry,
			next.InvestorID, next.Ticker, int(next.PositionType),
			next.Position, next.LastPrice, next.CostBasis, next.TotalInvested,
			next.CurrentValue, next.RealizedProfit, next.Gain,
			next.CreatedAt, next.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert portfolio entry: %w", err)
		}
	} else {
		next.CreatedAt = prior.CreatedAt
		updateEntry := `
			UPDATE portfolio SET
				position = $4, last_price = $5, cost_basis = $6,
				total_invested = $7, current_value = $8, realized_profit = $9,
				gain = $10, updated_at = $11
			WHERE investor_id = $1 AND ticker = $2 AND position_type = $3
		`
		_, err = tx.ExecContext(ctx, updateEntry,
			next.InvestorID, next.Ticker, int(next.PositionType),
			next.Position, next.LastPrice, next.CostBasis, next.TotalInvested,
			next.CurrentValue, next.RealizedProfit, next.Gain,
			next.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update portfolio entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return next, nil
}

// lockPortfolioEntry reads the entry for one key under FOR UPDATE. Returns
// (nil, nil) when no entry exists yet.
func lockPortfolioEntry(ctx context.Context, tx *sql.Tx, investorID int, ticker string, pt models.PositionType) (*models.PortfolioEntry, error) {
	query := `
		SELECT investor_id, ticker, position_type, position, last_price,
		       cost_basis, total_invested, current_value, realized_profit, gain,
		       created_at, updated_at
		FROM portfolio
		WHERE investor_id = $1 AND ticker = $2 AND position_type = $3
		FOR UPDATE
	`
	var e models.PortfolioEntry
	var ptRaw int
	err := tx.QueryRowContext(ctx, query, investorID, ticker, int(pt)).Scan(
		&e.InvestorID, &e.Ticker, &ptRaw, &e.Position, &e.LastPrice,
		&e.CostBasis, &e.TotalInvested, &e.CurrentValue, &e.RealizedProfit, &e.Gain,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock portfolio entry: %w", err)
	}
	e.PositionType = models.PositionType(ptRaw)
	return &e, nil
}

// GetTransactions returns the transaction history for one investor, oldest
// first.
func (db *DB) GetTransactions(ctx context.Context, investorID int) ([]*models.TransactionEvent, error) {
	query := `
		SELECT trans_id, investor_id, datetime, ticker, position_type, action,
		       no_shares, at_price
		FROM transaction_history
		WHERE investor_id = $1
		ORDER BY datetime, trans_id
	`
	rows, err := db.conn.QueryContext(ctx, query, investorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var events []*models.TransactionEvent
	for rows.Next() {
		var ev models.TransactionEvent
		var ptRaw, actionRaw int
		err := rows.Scan(
			&ev.TransID, &ev.InvestorID, &ev.Timestamp, &ev.Ticker,
			&ptRaw, &actionRaw, &ev.Shares, &ev.Price,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		ev.PositionType = models.PositionType(ptRaw)
		ev.Action = models.Action(actionRaw)
		events = append(events, &ev)
	}

	return events, rows.Err()
}
