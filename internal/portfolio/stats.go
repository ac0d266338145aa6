package portfolio

import (
	"alphabot/internal/model"

	"github.com/shopspring/decimal"
)

// Stats summarises a simulation. Percentages are in percent (4.2 = 4.2%).
type Stats struct {
	Start              model.Timestamp `json:"start"`
	End                model.Timestamp `json:"end"`
	Bars               int             `json:"bars"`
	StartEquity        decimal.Decimal `json:"start_equity"`
	EndEquity          decimal.Decimal `json:"end_equity"`
	TotalReturnPct     float64         `json:"total_return_pct"`
	BenchmarkReturnPct float64         `json:"benchmark_return_pct"` // buy and hold, no costs
	MaxDrawdownPct     float64         `json:"max_drawdown_pct"`
	Trades             int             `json:"trades"`
	RoundTrips         int             `json:"round_trips"`
	WinRatePct         float64         `json:"win_rate_pct"` // of round trips; 0 when none closed
	TotalFees          decimal.Decimal `json:"total_fees"`
	ExposurePct        float64         `json:"exposure_pct"`
	OpenPosition       bool            `json:"open_position"`
}

// ComputeStats derives Stats from a result and the series it was run over.
func ComputeStats(res Result, series model.PriceSeries, initialCash decimal.Decimal) Stats {
	st := Stats{
		Bars:         len(series),
		StartEquity:  initialCash,
		EndEquity:    initialCash,
		Trades:       len(res.Trades),
		TotalFees:    decimal.Zero,
		OpenPosition: res.Final.Position == Long,
	}
	if len(series) > 0 {
		st.Start = series[0].TS
		st.End = series[len(series)-1].TS
		st.ExposurePct = float64(res.LongBars) / float64(len(series)) * 100
		if first := series[0].Close; !first.IsZero() {
			st.BenchmarkReturnPct = pct(series[len(series)-1].Close.Div(first))
		}
	}
	if n := len(res.EquityCurve); n > 0 {
		st.EndEquity = res.EquityCurve[n-1].Equity
	}
	if initialCash.IsPositive() {
		st.TotalReturnPct = pct(st.EndEquity.Div(initialCash))
	}
	st.MaxDrawdownPct = maxDrawdownPct(initialCash, res.EquityCurve)

	wins := 0
	for _, t := range res.Trades {
		st.TotalFees = st.TotalFees.Add(t.Fee)
		if t.Side == Sell {
			st.RoundTrips++
			if t.PnL.IsPositive() {
				wins++
			}
		}
	}
	if st.RoundTrips > 0 {
		st.WinRatePct = float64(wins) / float64(st.RoundTrips) * 100
	}
	return st
}

// maxDrawdownPct is the largest peak-to-trough fall of the equity curve,
// with the initial cash as the first peak.
func maxDrawdownPct(initial decimal.Decimal, curve []EquityPoint) float64 {
	peak := initial
	worst := 0.0
	for _, p := range curve {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(p.Equity).Div(peak).InexactFloat64() * 100
		if dd > worst {
			worst = dd
		}
	}
	return worst
}

// pct turns a ratio into a percentage change: 1.04 -> 4.
func pct(ratio decimal.Decimal) float64 {
	return ratio.Sub(decimal.NewFromInt(1)).InexactFloat64() * 100
}
