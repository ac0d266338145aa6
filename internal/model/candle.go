package model

import "github.com/shopspring/decimal"

// Candle is one OHLCV bar for a single instrument.
// Prices and volume are decimals so values round-trip through the store exactly.
type Candle struct {
	Symbol string          `json:"symbol"`
	TS     Timestamp       `json:"ts"` // bar open time, ns since epoch (UTC)
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// PricePoint is a (timestamp, close) pair of a price series.
type PricePoint struct {
	TS    Timestamp
	Close decimal.Decimal
}

// PriceSeries is an ascending sequence of closes, one entry per candle.
type PriceSeries []PricePoint

// SeriesFromCandles projects candles onto their closing prices.
func SeriesFromCandles(candles []Candle) PriceSeries {
	s := make(PriceSeries, len(candles))
	for i, c := range candles {
		s[i] = PricePoint{TS: c.TS, Close: c.Close}
	}
	return s
}

// Closes returns the close prices as float64 for indicator math.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Close.InexactFloat64()
	}
	return out
}

// Timestamps returns the series timestamps.
func (s PriceSeries) Timestamps() []Timestamp {
	out := make([]Timestamp, len(s))
	for i, p := range s {
		out[i] = p.TS
	}
	return out
}

// Window returns the sub-series with from <= TS <= to. Zero bounds are open.
func (s PriceSeries) Window(from, to Timestamp) PriceSeries {
	lo, hi := 0, len(s)
	for lo < hi && from != 0 && s[lo].TS < from {
		lo++
	}
	for hi > lo && to != 0 && s[hi-1].TS > to {
		hi--
	}
	return s[lo:hi]
}
