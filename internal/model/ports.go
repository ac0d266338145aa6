package model

import "context"

// ── Storage Port Interfaces ──
// Business logic depends on these; internal/store/sqlite implements them.

// CursorSource reports the newest persisted candle for a symbol.
type CursorSource interface {
	// MaxTimestamp returns ok=false when nothing is stored for symbol.
	MaxTimestamp(ctx context.Context, symbol string) (ts Timestamp, ok bool, err error)
}

// CandleAppender persists one page of candles atomically.
type CandleAppender interface {
	Append(ctx context.Context, symbol string, rows []Candle) error
}

// CandleReader reads the full stored history of a symbol.
type CandleReader interface {
	// ReadAll returns candles ascending by TS.
	ReadAll(ctx context.Context, symbol string) ([]Candle, error)
}

// CandleStore is the time-series store consumed by both pipelines.
type CandleStore interface {
	CursorSource
	CandleAppender
	CandleReader

	// Close releases underlying resources.
	Close() error
}
