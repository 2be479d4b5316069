// Package ledger implements the position-update recurrence: given one
// transaction event and the portfolio entry it affects (possibly absent),
// produce the new entry. The package is pure, storage is the caller's
// problem, so the arithmetic is testable without a database.
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stockreturns/portfolio-service/internal/models"
)

var (
	// ErrMissingPriorPosition is returned when a closing transaction
	// arrives for a key with no existing portfolio entry. The caller must
	// abort the enclosing database transaction so the event is not
	// recorded either.
	ErrMissingPriorPosition = errors.New("ledger: closing transaction with no prior position")

	// ErrInvalidPositionType is returned for a position_type outside {+1, -1}.
	ErrInvalidPositionType = errors.New("ledger: position_type must be 1 (long) or -1 (short)")

	// ErrInvalidAction is returned for an action outside {+1, -1}.
	ErrInvalidAction = errors.New("ledger: action must be 1 (buy) or -1 (sell)")

	// ErrNonPositiveShares is returned when shares <= 0.
	ErrNonPositiveShares = errors.New("ledger: shares must be positive")

	// ErrNonPositivePrice is returned when price <= 0.
	ErrNonPositivePrice = errors.New("ledger: price must be positive")
)

var hundred = decimal.NewFromInt(100)

// Kind classifies a transaction by its effect on the position.
type Kind int

const (
	// Opening increases the magnitude of the position: buy for a long,
	// sell-short for a short.
	Opening Kind = iota
	// Closing decreases it: sell for a long, buy-to-cover for a short.
	Closing
)

func (k Kind) String() string {
	if k == Opening {
		return "opening"
	}
	return "closing"
}

// Classify maps (position_type, action) onto Opening or Closing. The four
// combinations are: long+buy and short+sell open or add, long+sell and
// short+buy close.
func Classify(pt models.PositionType, action models.Action) (Kind, error) {
	if !pt.Valid() {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidPositionType, int(pt))
	}
	if !action.Valid() {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidAction, int(action))
	}
	if int(pt) == int(action) {
		return Opening, nil
	}
	return Closing, nil
}

// Validate checks an event's enum fields and quantities without touching
// any entry. Callers that persist the event run it up front, so a
// malformed event is rejected with a sentinel before anything is written
// rather than bouncing off a table constraint.
func Validate(ev *models.TransactionEvent) error {
	if !ev.Shares.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrNonPositiveShares, ev.Shares)
	}
	if !ev.Price.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrNonPositivePrice, ev.Price)
	}
	_, err := Classify(ev.PositionType, ev.Action)
	return err
}

// Apply computes the portfolio entry that results from one transaction
// event. prior is nil when no entry exists yet for the event's key.
// Apply must be invoked exactly once per event, inside the same unit of
// work that durably records it: the update is not idempotent, so replaying
// an event double-counts it.
func Apply(prior *models.PortfolioEntry, ev *models.TransactionEvent) (*models.PortfolioEntry, error) {
	if err := Validate(ev); err != nil {
		return nil, err
	}

	kind, err := Classify(ev.PositionType, ev.Action)
	if err != nil {
		return nil, err
	}

	switch {
	case kind == Opening && prior == nil:
		return open(ev), nil
	case kind == Opening:
		return add(prior, ev), nil
	case prior == nil:
		return nil, fmt.Errorf("%w: investor=%d ticker=%s position_type=%s",
			ErrMissingPriorPosition, ev.InvestorID, ev.Ticker, ev.PositionType)
	default:
		return reduce(prior, ev), nil
	}
}

// open creates the first entry for a key.
func open(ev *models.TransactionEvent) *models.PortfolioEntry {
	return &models.PortfolioEntry{
		InvestorID:     ev.InvestorID,
		Ticker:         ev.Ticker,
		PositionType:   ev.PositionType,
		Position:       ev.Shares,
		LastPrice:      ev.Price,
		CostBasis:      ev.Price,
		TotalInvested:  ev.Price.Mul(ev.Shares),
		CurrentValue:   ev.Shares.Mul(ev.Price),
		RealizedProfit: decimal.Zero,
		Gain:           decimal.Zero,
	}
}

// add grows an existing position and revises the cost basis to the
// weighted average of the old basis and the new fill. Positions are kept
// as magnitudes for both directions, so the same formula covers longs
// and shorts.
func add(prior *models.PortfolioEntry, ev *models.TransactionEvent) *models.PortfolioEntry {
	next := *prior
	newPosition := prior.Position.Add(ev.Shares)

	next.Position = newPosition
	next.LastPrice = ev.Price
	next.CostBasis = prior.Position.Mul(prior.CostBasis).
		Add(ev.Shares.Mul(ev.Price)).
		Div(newPosition)
	next.CurrentValue = newPosition.Mul(ev.Price)
	// TotalInvested and RealizedProfit are untouched by adds.
	next.Gain = gain(&next)
	return &next
}

// reduce shrinks an existing position. The cost basis is deliberately left
// alone: only opening trades revise it. Realized profit accrues the sale
// proceeds for a long, and is charged the buy-back cost for a short.
func reduce(prior *models.PortfolioEntry, ev *models.TransactionEvent) *models.PortfolioEntry {
	next := *prior
	gross := ev.Shares.Mul(ev.Price)

	next.Position = prior.Position.Sub(ev.Shares)
	next.LastPrice = ev.Price
	next.CurrentValue = next.Position.Mul(ev.Price)
	if ev.PositionType == models.Long {
		next.RealizedProfit = prior.RealizedProfit.Add(gross)
	} else {
		next.RealizedProfit = prior.RealizedProfit.Sub(gross)
	}
	next.Gain = gain(&next)
	return &next
}

// gain recomputes the percentage return of an entry. The long and short
// formulas differ structurally: the short variant divides by realized
// profit instead of the invested base. Both denominators can legitimately
// be zero (a fully closed long, a short with no closes yet); those cases
// report zero rather than dividing.
func gain(e *models.PortfolioEntry) decimal.Decimal {
	if e.PositionType == models.Long {
		invested := e.Position.Mul(e.CostBasis)
		if invested.IsZero() {
			return decimal.Zero
		}
		return hundred.Mul(e.CurrentValue.Add(e.RealizedProfit).Sub(invested)).Div(invested)
	}

	if e.RealizedProfit.IsZero() {
		return decimal.Zero
	}
	return hundred.Mul(e.RealizedProfit.Add(e.CurrentValue)).Div(e.RealizedProfit)
}
