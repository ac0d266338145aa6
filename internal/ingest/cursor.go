// Package ingest runs the resumable candle ingestion loop:
// resolve cursor, fetch a page, append it, advance, repeat until the exchange
// reports no more data.
package ingest

import (
	"context"
	"fmt"
	"time"

	"alphabot/internal/model"
)

// ResolveCursor returns the exclusive lower bound (ms) for the next fetch.
// With stored data it is the newest stored candle; otherwise one millisecond
// before start so that a candle opening exactly at start is still included.
func ResolveCursor(ctx context.Context, src model.CursorSource, symbol string, start time.Time) (int64, error) {
	last, ok, err := src.MaxTimestamp(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("resolve cursor for %s: %w", symbol, err)
	}
	if ok {
		return last.Millis(), nil
	}
	return start.UnixMilli() - 1, nil
}
