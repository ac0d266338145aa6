package portfolio

import (
	"testing"

	"alphabot/internal/logger"
	"alphabot/internal/model"
	"alphabot/internal/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-6

func series(closes ...float64) model.PriceSeries {
	s := make(model.PriceSeries, len(closes))
	for i, c := range closes {
		s[i] = model.PricePoint{
			TS:    model.FromMillis(1_700_000_000_000 + int64(i)*3_600_000),
			Close: decimal.NewFromFloat(c),
		}
	}
	return s
}

func ev(i int, d strategy.Direction) strategy.Crossover {
	return strategy.Crossover{Index: i, Direction: d}
}

func newSim(t *testing.T, cash, fee, slip float64) *Simulator {
	t.Helper()
	sim, err := NewSimulator(NewConfig(cash, fee, slip), logger.Discard())
	require.NoError(t, err)
	return sim
}

func f(d decimal.Decimal) float64 { return d.InexactFloat64() }

func TestSimulator_NoEventsHoldsCash(t *testing.T) {
	s := series(100, 90, 120)
	res, err := newSim(t, 10000, 0.001, 0.0005).Run(s, nil)
	require.NoError(t, err)

	require.Len(t, res.EquityCurve, 3)
	for i, p := range res.EquityCurve {
		assert.Equal(t, s[i].TS, p.TS)
		assert.True(t, p.Equity.Equal(decimal.NewFromInt(10000)))
	}
	assert.Empty(t, res.Trades)
	assert.Equal(t, Flat, res.Final.Position)
}

func TestSimulator_BuyArithmetic(t *testing.T) {
	s := series(100, 110)
	res, err := newSim(t, 1000, 0.01, 0.02).Run(s, []strategy.Crossover{ev(0, strategy.Bullish)})
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	// px = 100*1.02 = 102; units = 1000/(102*1.01); notional = units*102; fee = 1% of notional
	units := 1000 / (102 * 1.01)
	assert.Equal(t, Buy, tr.Side)
	assert.InDelta(t, 102, f(tr.Price), tol)
	assert.InDelta(t, units, f(tr.Units), tol)
	assert.InDelta(t, units*102, f(tr.Notional), tol)
	assert.InDelta(t, units*102*0.01, f(tr.Fee), tol)
	assert.InDelta(t, 1000, f(tr.Notional.Add(tr.Fee)), tol, "all cash spent")
	assert.True(t, res.Final.Cash.IsZero())
	assert.Equal(t, Long, res.Final.Position)
	assert.InDelta(t, 102, f(res.Final.EntryPrice), tol)

	// marked at close, not at fill
	assert.InDelta(t, units*100, f(res.EquityCurve[0].Equity), tol)
	assert.InDelta(t, units*110, f(res.EquityCurve[1].Equity), tol)
}

func TestSimulator_SellArithmetic(t *testing.T) {
	s := series(100, 120)
	res, err := newSim(t, 1000, 0.01, 0.02).Run(s, []strategy.Crossover{
		ev(0, strategy.Bullish),
		ev(1, strategy.Bearish),
	})
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	units := 1000 / (102 * 1.01)
	px := 120 * 0.98
	proceeds := units * px
	fee := proceeds * 0.01

	tr := res.Trades[1]
	assert.Equal(t, Sell, tr.Side)
	assert.InDelta(t, px, f(tr.Price), tol)
	assert.InDelta(t, proceeds, f(tr.Notional), tol)
	assert.InDelta(t, fee, f(tr.Fee), tol)
	assert.InDelta(t, proceeds-fee-1000, f(tr.PnL), tol)
	assert.InDelta(t, proceeds-fee, f(res.Final.Cash), tol)
	assert.True(t, res.Final.Units.IsZero())
	assert.Equal(t, Flat, res.Final.Position)
	assert.InDelta(t, proceeds-fee, f(res.EquityCurve[1].Equity), tol)
}

func TestSimulator_IgnoresRedundantSignals(t *testing.T) {
	s := series(100, 101, 102, 103, 104)
	res, err := newSim(t, 1000, 0, 0).Run(s, []strategy.Crossover{
		ev(0, strategy.Bearish), // flat: ignored
		ev(1, strategy.Bullish),
		ev(2, strategy.Bullish), // already long: ignored
		ev(3, strategy.Bearish),
		ev(4, strategy.Bearish), // flat again: ignored
	})
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)
	assert.Equal(t, 1, res.Trades[0].Index)
	assert.Equal(t, 3, res.Trades[1].Index)
	// no costs: 1000 -> bought at 101, sold at 103
	assert.InDelta(t, 1000*103.0/101.0, f(res.Final.Cash), tol)
}

func TestSimulator_NoForcedExit(t *testing.T) {
	s := series(100, 105, 90)
	res, err := newSim(t, 500, 0, 0).Run(s, []strategy.Crossover{ev(1, strategy.Bullish)})
	require.NoError(t, err)
	assert.Equal(t, Long, res.Final.Position)
	assert.Len(t, res.Trades, 1)
	assert.InDelta(t, 500*90.0/105.0, f(res.EquityCurve[2].Equity), tol)
	assert.Equal(t, 2, res.LongBars)
}

func TestSimulator_CashNeverNegative(t *testing.T) {
	s := series(100, 50, 200, 10, 300, 1, 400)
	var events []strategy.Crossover
	for i := range s {
		d := strategy.Bullish
		if i%2 == 1 {
			d = strategy.Bearish
		}
		events = append(events, ev(i, d))
	}
	res, err := newSim(t, 10000, 0.0025, 0.003).Run(s, events)
	require.NoError(t, err)
	require.Len(t, res.EquityCurve, len(s))
	for _, tr := range res.Trades {
		assert.False(t, tr.Cash.IsNegative(), "cash after trade %d", tr.Index)
	}
	assert.False(t, res.Final.Cash.IsNegative())
}

func TestSimulator_EventOutOfRange(t *testing.T) {
	sim := newSim(t, 1000, 0, 0)
	s := series(1, 2, 3)

	_, err := sim.Run(s, []strategy.Crossover{ev(3, strategy.Bullish)})
	assert.ErrorIs(t, err, ErrEventOutOfRange)

	_, err = sim.Run(s, []strategy.Crossover{ev(2, strategy.Bullish), ev(1, strategy.Bearish)})
	assert.ErrorIs(t, err, ErrEventOutOfRange)
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name            string
		cash, fee, slip float64
		ok              bool
	}{
		{"defaults", 10000, 0.001, 0.0005, true},
		{"zero costs", 1, 0, 0, true},
		{"no cash", 0, 0.001, 0.0005, false},
		{"negative fee", 100, -0.1, 0, false},
		{"fee of one", 100, 1, 0, false},
		{"slippage of one", 100, 0, 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSimulator(NewConfig(tc.cash, tc.fee, tc.slip), logger.Discard())
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
