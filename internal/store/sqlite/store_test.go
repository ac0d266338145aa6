package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"alphabot/internal/logger"
	"alphabot/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sym = "BTC-USDT"

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), Config{DBPath: filepath.Join(t.TempDir(), "candles.db")}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func page(symbol string, fromMs int64, n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = model.Candle{
			Symbol: symbol,
			TS:     model.FromMillis(fromMs + int64(i)*3_600_000),
			Open:   d("42000.1"),
			High:   d("42100.25"),
			Low:    d("41900.005"),
			Close:  decimal.NewFromInt(42000 + int64(i)),
			Volume: d("12.34567891"),
		}
	}
	return out
}

func TestStore_MaxTimestamp_Empty(t *testing.T) {
	s := openStore(t)
	_, ok, err := s.MaxTimestamp(context.Background(), sym)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_RoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	in := page(sym, 1_577_836_800_000, 5)

	require.NoError(t, s.Append(ctx, sym, in))

	out, err := s.ReadAll(ctx, sym)
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i := range in {
		assert.Equal(t, in[i].TS, out[i].TS)
		assert.Equal(t, sym, out[i].Symbol)
		assert.True(t, in[i].Open.Equal(out[i].Open), "open %d", i)
		assert.True(t, in[i].High.Equal(out[i].High), "high %d", i)
		assert.True(t, in[i].Low.Equal(out[i].Low), "low %d", i)
		assert.True(t, in[i].Close.Equal(out[i].Close), "close %d", i)
		assert.True(t, in[i].Volume.Equal(out[i].Volume), "volume %d", i)
	}

	last, ok, err := s.MaxTimestamp(ctx, sym)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in[4].TS, last)
}

func TestStore_AppendGrowsByPageSize(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	var committed []int
	s.onCommit = func(rows int, _ time.Duration) { committed = append(committed, rows) }

	require.NoError(t, s.Append(ctx, sym, page(sym, 0, 3)))
	require.NoError(t, s.Append(ctx, sym, page(sym, 3*3_600_000, 4)))

	n, err := s.Count(ctx, sym)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, []int{3, 4}, committed)
}

func TestStore_RejectsOverlapWithStoredMax(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, sym, page(sym, 0, 3)))

	// starts at the last stored candle
	err := s.Append(ctx, sym, page(sym, 2*3_600_000, 3))
	var iv *model.IntegrityViolation
	require.True(t, errors.As(err, &iv), "got %v", err)

	n, err := s.Count(ctx, sym)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "rejected page must not be partially written")
}

func TestStore_RejectsUnorderedPage(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	p := page(sym, 0, 4)
	p[2], p[3] = p[3], p[2]

	err := s.Append(ctx, sym, p)
	var iv *model.IntegrityViolation
	require.True(t, errors.As(err, &iv))

	n, err := s.Count(ctx, sym)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_RejectsDuplicateWithinPage(t *testing.T) {
	s := openStore(t)
	p := page(sym, 0, 2)
	p[1].TS = p[0].TS
	err := s.Append(context.Background(), sym, p)
	var iv *model.IntegrityViolation
	assert.True(t, errors.As(err, &iv))
}

func TestStore_RejectsForeignSymbol(t *testing.T) {
	s := openStore(t)
	err := s.Append(context.Background(), sym, page("ETH-USDT", 0, 2))
	var iv *model.IntegrityViolation
	assert.True(t, errors.As(err, &iv))
}

func TestStore_SymbolsAreIndependent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, sym, page(sym, 0, 3)))
	require.NoError(t, s.Append(ctx, "ETH-USDT", page("ETH-USDT", 0, 2)))

	eth, err := s.ReadAll(ctx, "ETH-USDT")
	require.NoError(t, err)
	assert.Len(t, eth, 2)
}

func TestStore_EmptyAppendIsNoop(t *testing.T) {
	s := openStore(t)
	assert.NoError(t, s.Append(context.Background(), sym, nil))
}

func TestStore_ClosedIsConnectivityError(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Close())

	_, _, err := s.MaxTimestamp(context.Background(), sym)
	var ce *model.ConnectivityError
	assert.True(t, errors.As(err, &ce))
}
