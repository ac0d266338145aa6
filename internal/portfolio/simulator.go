package portfolio

import (
	"fmt"
	"log/slog"

	"alphabot/internal/model"
	"alphabot/internal/strategy"

	"github.com/shopspring/decimal"
)

// Simulator replays crossover events over a price series. Bullish events
// move all cash into the instrument, bearish events sell everything, every
// other combination is ignored. An open position at the last bar stays open.
type Simulator struct {
	cfg Config
	log *slog.Logger
}

// NewSimulator validates cfg.
func NewSimulator(cfg Config, log *slog.Logger) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Simulator{cfg: cfg, log: log}, nil
}

// Run marks equity on every bar of series and fills at the close of each
// event's bar. Events must be in ascending index order.
func (s *Simulator) Run(series model.PriceSeries, events []strategy.Crossover) (Result, error) {
	byIndex := make(map[int]strategy.Direction, len(events))
	last := -1
	for _, ev := range events {
		if ev.Index < 0 || ev.Index >= len(series) || ev.Index <= last {
			return Result{}, fmt.Errorf("%w: index %d of %d bars", ErrEventOutOfRange, ev.Index, len(series))
		}
		byIndex[ev.Index] = ev.Direction
		last = ev.Index
	}

	st := State{Cash: s.cfg.InitialCash, Position: Flat}
	var entryCost decimal.Decimal
	res := Result{EquityCurve: make([]EquityPoint, 0, len(series))}

	for i, bar := range series {
		switch dir, ok := byIndex[i]; {
		case ok && dir == strategy.Bullish && st.Position == Flat:
			t := s.buy(&st, i, bar)
			entryCost = t.Notional.Add(t.Fee)
			res.Trades = append(res.Trades, t)
			s.log.Debug("buy", "index", i, "ts", bar.TS.String(), "price", t.Price.String(), "units", t.Units.String())
		case ok && dir == strategy.Bearish && st.Position == Long:
			t := s.sell(&st, i, bar, entryCost)
			res.Trades = append(res.Trades, t)
			s.log.Debug("sell", "index", i, "ts", bar.TS.String(), "price", t.Price.String(), "pnl", t.PnL.String())
		}

		if st.Position == Long {
			res.LongBars++
		}
		res.EquityCurve = append(res.EquityCurve, EquityPoint{TS: bar.TS, Equity: st.Equity(bar.Close)})
	}
	res.Final = st
	return res, nil
}

func (s *Simulator) buy(st *State, i int, bar model.PricePoint) Trade {
	one := decimal.NewFromInt(1)
	px := bar.Close.Mul(one.Add(s.cfg.SlippageRate))
	units := st.Cash.Div(px.Mul(one.Add(s.cfg.FeeRate)))
	notional := units.Mul(px)
	fee := notional.Mul(s.cfg.FeeRate)

	// all-in; the remainder is rounding only
	st.Cash = decimal.Zero
	st.Units = units
	st.EntryPrice = px
	st.Position = Long

	return Trade{
		Index: i, TS: bar.TS, Side: Buy,
		Close: bar.Close, Price: px, Units: units,
		Notional: notional, Fee: fee, Cash: st.Cash,
	}
}

func (s *Simulator) sell(st *State, i int, bar model.PricePoint, entryCost decimal.Decimal) Trade {
	one := decimal.NewFromInt(1)
	px := bar.Close.Mul(one.Sub(s.cfg.SlippageRate))
	units := st.Units
	proceeds := units.Mul(px)
	fee := proceeds.Mul(s.cfg.FeeRate)
	net := proceeds.Sub(fee)

	st.Cash = st.Cash.Add(net)
	st.Units = decimal.Zero
	st.EntryPrice = decimal.Zero
	st.Position = Flat

	return Trade{
		Index: i, TS: bar.TS, Side: Sell,
		Close: bar.Close, Price: px, Units: units,
		Notional: proceeds, Fee: fee, Cash: st.Cash,
		PnL: net.Sub(entryCost),
	}
}
