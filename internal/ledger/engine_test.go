package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockreturns/portfolio-service/internal/models"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func event(pt models.PositionType, action models.Action, shares, price float64) *models.TransactionEvent {
	return &models.TransactionEvent{
		InvestorID:   1,
		Ticker:       "SPY",
		PositionType: pt,
		Action:       action,
		Shares:       d(shares),
		Price:        d(price),
		Timestamp:    time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC),
	}
}

// apply is a test helper that fails on unexpected errors.
func apply(t *testing.T, prior *models.PortfolioEntry, ev *models.TransactionEvent) *models.PortfolioEntry {
	t.Helper()
	entry, err := Apply(prior, ev)
	require.NoError(t, err)
	require.NotNil(t, entry)
	return entry
}

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		pt     models.PositionType
		action models.Action
		want   Kind
	}{
		{"long buy opens", models.Long, models.Buy, Opening},
		{"long sell closes", models.Long, models.Sell, Closing},
		{"short sell opens", models.Short, models.Sell, Opening},
		{"short buy closes", models.Short, models.Buy, Closing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := Classify(tt.pt, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestClassify_RejectsValuesOutsideEnum(t *testing.T) {
	_, err := Classify(models.PositionType(2), models.Buy)
	assert.ErrorIs(t, err, ErrInvalidPositionType)

	_, err = Classify(models.Long, models.Action(0))
	assert.ErrorIs(t, err, ErrInvalidAction)
}

// ---------------------------------------------------------------------------
// First open
// ---------------------------------------------------------------------------

func TestApply_FirstOpenLong(t *testing.T) {
	entry := apply(t, nil, event(models.Long, models.Buy, 100, 10))

	assert.True(t, entry.Position.Equal(d(100)), "position = %s", entry.Position)
	assert.True(t, entry.CostBasis.Equal(d(10)), "cost_basis = %s", entry.CostBasis)
	assert.True(t, entry.LastPrice.Equal(d(10)))
	assert.True(t, entry.TotalInvested.Equal(d(1000)))
	assert.True(t, entry.CurrentValue.Equal(d(1000)))
	assert.True(t, entry.RealizedProfit.IsZero())
	assert.True(t, entry.Gain.IsZero())
}

func TestApply_FirstOpenShort(t *testing.T) {
	entry := apply(t, nil, event(models.Short, models.Sell, 50, 20))

	assert.True(t, entry.Position.Equal(d(50)), "short position is stored as a magnitude")
	assert.True(t, entry.CostBasis.Equal(d(20)))
	assert.True(t, entry.TotalInvested.Equal(d(1000)))
	assert.True(t, entry.RealizedProfit.IsZero())
	assert.True(t, entry.Gain.IsZero())
}

// ---------------------------------------------------------------------------
// Weighted-average cost basis
// ---------------------------------------------------------------------------

func TestApply_AddLong_WeightedAverageCostBasis(t *testing.T) {
	tests := []struct {
		name           string
		s1, p1, s2, p2 float64
	}{
		{"equal sizes", 100, 10, 100, 20},
		{"uneven sizes", 60, 10, 50, 12},
		{"fractional shares", 2.5, 101.3, 7.5, 99.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := apply(t, nil, event(models.Long, models.Buy, tt.s1, tt.p1))
			entry = apply(t, entry, event(models.Long, models.Buy, tt.s2, tt.p2))

			want := d(tt.s1).Mul(d(tt.p1)).Add(d(tt.s2).Mul(d(tt.p2))).Div(d(tt.s1).Add(d(tt.s2)))
			assert.True(t, entry.CostBasis.Equal(want),
				"cost_basis = %s, want %s", entry.CostBasis, want)
			assert.True(t, entry.Position.Equal(d(tt.s1).Add(d(tt.s2))))
			assert.True(t, entry.RealizedProfit.IsZero(), "adds never realize profit")
		})
	}
}

func TestApply_AddShort_SameWeightedAverage(t *testing.T) {
	entry := apply(t, nil, event(models.Short, models.Sell, 30, 40))
	entry = apply(t, entry, event(models.Short, models.Sell, 10, 48))

	// (30*40 + 10*48) / 40 = 42
	assert.True(t, entry.CostBasis.Equal(d(42)), "cost_basis = %s", entry.CostBasis)
	assert.True(t, entry.Position.Equal(d(40)))
	assert.True(t, entry.LastPrice.Equal(d(48)))
}

// ---------------------------------------------------------------------------
// Closing
// ---------------------------------------------------------------------------

func TestApply_CloseLong_PreservesCostBasis(t *testing.T) {
	entry := apply(t, nil, event(models.Long, models.Buy, 100, 10))
	entry = apply(t, entry, event(models.Long, models.Sell, 30, 17))

	assert.True(t, entry.CostBasis.Equal(d(10)), "closing trades must not revise cost basis")
	assert.True(t, entry.Position.Equal(d(70)))
	assert.True(t, entry.RealizedProfit.Equal(d(510)))
	assert.True(t, entry.CurrentValue.Equal(d(1190)))
}

func TestApply_CloseLong_RealizedProfitAccumulates(t *testing.T) {
	entry := apply(t, nil, event(models.Long, models.Buy, 100, 10))

	closes := []struct{ shares, price float64 }{
		{10, 11}, {20, 9.5}, {5, 14},
	}
	want := decimal.Zero
	for _, c := range closes {
		entry = apply(t, entry, event(models.Long, models.Sell, c.shares, c.price))
		want = want.Add(d(c.shares).Mul(d(c.price)))
	}

	assert.True(t, entry.RealizedProfit.Equal(want),
		"realized_profit = %s, want %s", entry.RealizedProfit, want)
	assert.True(t, entry.Position.Equal(d(65)))
}

func TestApply_CloseShort_ChargesBuyBackCost(t *testing.T) {
	entry := apply(t, nil, event(models.Short, models.Sell, 40, 25))
	entry = apply(t, entry, event(models.Short, models.Buy, 15, 20))

	assert.True(t, entry.Position.Equal(d(25)))
	assert.True(t, entry.CostBasis.Equal(d(25)), "covering must not revise cost basis")
	assert.True(t, entry.RealizedProfit.Equal(d(-300)), "realized_profit = %s", entry.RealizedProfit)
}

func TestApply_FullClose_GainIsZeroNotDivisionByZero(t *testing.T) {
	entry := apply(t, nil, event(models.Long, models.Buy, 10, 10))
	entry = apply(t, entry, event(models.Long, models.Sell, 10, 12))

	assert.True(t, entry.Position.IsZero())
	assert.True(t, entry.Gain.IsZero(), "zero invested base must report zero gain")
}

// ---------------------------------------------------------------------------
// Gain formulas
// ---------------------------------------------------------------------------

func TestApply_LongGainFormula(t *testing.T) {
	entry := apply(t, nil, event(models.Long, models.Buy, 100, 10))
	entry = apply(t, entry, event(models.Long, models.Sell, 40, 15))

	// 100 * (cv + rp - pos*cb) / (pos*cb) = 100 * (900 + 600 - 600) / 600
	assert.True(t, entry.Gain.Equal(d(150)), "gain = %s", entry.Gain)
}

func TestApply_ShortGainDividesByRealizedProfit(t *testing.T) {
	entry := apply(t, nil, event(models.Short, models.Sell, 100, 10))
	assert.True(t, entry.Gain.IsZero(), "no closes yet, realized profit is zero")

	// Adding to the short still has zero realized profit; the short gain
	// formula must not divide by it.
	entry = apply(t, entry, event(models.Short, models.Sell, 50, 12))
	assert.True(t, entry.Gain.IsZero())

	// Cover 30 @ 8: rp = -240, cv = 120 * 8 = 960.
	entry = apply(t, entry, event(models.Short, models.Buy, 30, 8))
	want := d(100).Mul(d(-240).Add(d(960))).Div(d(-240))
	assert.True(t, entry.Gain.Equal(want), "gain = %s, want %s", entry.Gain, want)
}

// ---------------------------------------------------------------------------
// Full scenario
// ---------------------------------------------------------------------------

func TestApply_LongScenario(t *testing.T) {
	// Open 100 @ $10.
	entry := apply(t, nil, event(models.Long, models.Buy, 100, 10))
	assert.True(t, entry.Position.Equal(d(100)))
	assert.True(t, entry.CostBasis.Equal(d(10)))
	assert.True(t, entry.RealizedProfit.IsZero())

	// Sell 40 @ $15.
	entry = apply(t, entry, event(models.Long, models.Sell, 40, 15))
	assert.True(t, entry.Position.Equal(d(60)))
	assert.True(t, entry.CostBasis.Equal(d(10)))
	assert.True(t, entry.RealizedProfit.Equal(d(600)))
	assert.True(t, entry.CurrentValue.Equal(d(900)))
	assert.True(t, entry.Gain.Equal(d(150)))

	// Buy 50 @ $12.
	entry = apply(t, entry, event(models.Long, models.Buy, 50, 12))
	assert.True(t, entry.Position.Equal(d(110)))
	wantCB := d(60).Mul(d(10)).Add(d(50).Mul(d(12))).Div(d(110))
	assert.True(t, entry.CostBasis.Equal(wantCB), "cost_basis = %s, want %s", entry.CostBasis, wantCB)
	assert.InDelta(t, 10.9090909, entry.CostBasis.InexactFloat64(), 1e-6)
	assert.True(t, entry.RealizedProfit.Equal(d(600)))
	assert.True(t, entry.CurrentValue.Equal(d(1320)))
	assert.InDelta(t, 60, entry.Gain.InexactFloat64(), 1e-9)
}

// ---------------------------------------------------------------------------
// Errors and isolation
// ---------------------------------------------------------------------------

func TestApply_CloseWithoutPriorIsAnError(t *testing.T) {
	for _, ev := range []*models.TransactionEvent{
		event(models.Long, models.Sell, 10, 10),
		event(models.Short, models.Buy, 10, 10),
	} {
		entry, err := Apply(nil, ev)
		assert.ErrorIs(t, err, ErrMissingPriorPosition)
		assert.Nil(t, entry)
	}
}

func TestApply_RejectsNonPositiveQuantities(t *testing.T) {
	_, err := Apply(nil, event(models.Long, models.Buy, 0, 10))
	assert.ErrorIs(t, err, ErrNonPositiveShares)

	_, err = Apply(nil, event(models.Long, models.Buy, 10, -1))
	assert.ErrorIs(t, err, ErrNonPositivePrice)
}

func TestApply_DoesNotMutatePrior(t *testing.T) {
	prior := apply(t, nil, event(models.Long, models.Buy, 100, 10))
	before := *prior

	_ = apply(t, prior, event(models.Long, models.Sell, 40, 15))

	assert.True(t, prior.Position.Equal(before.Position))
	assert.True(t, prior.RealizedProfit.Equal(before.RealizedProfit))
	assert.True(t, prior.CostBasis.Equal(before.CostBasis))
}

func TestApply_LongAndShortEntriesAreIndependentKeys(t *testing.T) {
	long := apply(t, nil, event(models.Long, models.Buy, 100, 10))
	short := apply(t, nil, event(models.Short, models.Sell, 20, 30))

	long = apply(t, long, event(models.Long, models.Sell, 50, 12))

	// The short leg is a distinct (investor, ticker, position_type) key and
	// must be untouched by long-side events.
	assert.True(t, short.Position.Equal(d(20)))
	assert.True(t, short.CostBasis.Equal(d(30)))
	assert.True(t, short.RealizedProfit.IsZero())
	assert.True(t, long.Position.Equal(d(50)))
}
