// Package portfolio simulates a long-only, single-instrument portfolio that
// is either fully in cash or fully invested, and summarises the outcome.
package portfolio

import (
	"errors"
	"fmt"

	"alphabot/internal/model"

	"github.com/shopspring/decimal"
)

// ErrEventOutOfRange is returned for a signal that does not index a bar of
// the series, or for signals out of ascending order.
var ErrEventOutOfRange = errors.New("portfolio: signal index out of range")

// Position is the portfolio's exposure state.
type Position string

const (
	Flat Position = "FLAT"
	Long Position = "LONG"
)

// Side of a simulated fill.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Config holds the simulation parameters. Rates are fractions (0.001 = 0.1%).
type Config struct {
	InitialCash  decimal.Decimal
	FeeRate      decimal.Decimal
	SlippageRate decimal.Decimal
}

// NewConfig builds a Config from float parameters.
func NewConfig(initialCash, feeRate, slippageRate float64) Config {
	return Config{
		InitialCash:  decimal.NewFromFloat(initialCash),
		FeeRate:      decimal.NewFromFloat(feeRate),
		SlippageRate: decimal.NewFromFloat(slippageRate),
	}
}

// Validate checks the parameters.
func (c Config) Validate() error {
	one := decimal.NewFromInt(1)
	if !c.InitialCash.IsPositive() {
		return fmt.Errorf("initial cash must be positive, got %s", c.InitialCash)
	}
	if c.FeeRate.IsNegative() || c.FeeRate.GreaterThanOrEqual(one) {
		return fmt.Errorf("fee rate must be in [0,1), got %s", c.FeeRate)
	}
	if c.SlippageRate.IsNegative() || c.SlippageRate.GreaterThanOrEqual(one) {
		return fmt.Errorf("slippage rate must be in [0,1), got %s", c.SlippageRate)
	}
	return nil
}

// State is the portfolio after a bar.
type State struct {
	Cash       decimal.Decimal `json:"cash"`
	Units      decimal.Decimal `json:"units"`
	EntryPrice decimal.Decimal `json:"entry_price"` // fill price of the open position, zero when flat
	Position   Position        `json:"position"`
}

// Equity marks the state at price.
func (s State) Equity(price decimal.Decimal) decimal.Decimal {
	if s.Position == Long {
		return s.Cash.Add(s.Units.Mul(price))
	}
	return s.Cash
}

// Trade is one simulated fill.
type Trade struct {
	Index    int             `json:"index"`
	TS       model.Timestamp `json:"ts"`
	Side     Side            `json:"side"`
	Close    decimal.Decimal `json:"close"`    // bar close
	Price    decimal.Decimal `json:"price"`    // fill price after slippage
	Units    decimal.Decimal `json:"units"`
	Notional decimal.Decimal `json:"notional"` // units * fill price
	Fee      decimal.Decimal `json:"fee"`
	Cash     decimal.Decimal `json:"cash"` // cash after the fill
	PnL      decimal.Decimal `json:"pnl"`  // sells only: net proceeds minus entry cost
}

// EquityPoint is the marked equity at the close of one bar.
type EquityPoint struct {
	TS     model.Timestamp `json:"ts"`
	Equity decimal.Decimal `json:"equity"`
}

// Result is the outcome of Simulator.Run.
type Result struct {
	EquityCurve []EquityPoint `json:"equity_curve"`
	Trades      []Trade       `json:"trades"`
	Final       State         `json:"final"`
	LongBars    int           `json:"long_bars"` // bars that closed with an open position
}
