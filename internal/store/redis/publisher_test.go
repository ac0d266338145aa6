package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"alphabot/internal/logger"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStreamClient struct {
	added  []*goredis.XAddArgs
	err    error
	onXAdd func()
}

func (f *fakeStreamClient) XAdd(_ context.Context, a *goredis.XAddArgs) *goredis.StringCmd {
	if f.onXAdd != nil {
		f.onXAdd()
	}
	if f.err != nil {
		return goredis.NewStringResult("", f.err)
	}
	f.added = append(f.added, a)
	return goredis.NewStringResult("1-0", nil)
}

type sample struct {
	Rows int `json:"rows"`
}

func TestPublisher_Publish(t *testing.T) {
	rdb := &fakeStreamClient{}
	cb, _ := newBreaker(3, time.Second)
	p := NewPublisher(rdb, cb, 0, logger.Discard())

	require.NoError(t, p.Publish(context.Background(), "BTC-USDT", "ingest", sample{Rows: 42}))

	require.Len(t, rdb.added, 1)
	a := rdb.added[0]
	assert.Equal(t, "runs:BTC-USDT", a.Stream)
	assert.Equal(t, int64(defaultStreamMaxLen), a.MaxLen)
	assert.True(t, a.Approx)

	values := a.Values.(map[string]interface{})
	assert.Equal(t, "ingest", values["kind"])
	var got sample
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &got))
	assert.Equal(t, 42, got.Rows)
}

func TestPublisher_BuffersWhileOpenAndFlushes(t *testing.T) {
	rdb := &fakeStreamClient{err: errors.New("connection refused")}
	cb, clk := newBreaker(1, time.Second)
	p := NewPublisher(rdb, cb, 50, logger.Discard())
	buffered, flushed := 0, 0
	p.OnBuffer = func() { buffered++ }
	p.OnFlush = func(n int) { flushed += n }

	ctx := context.Background()
	// first failure trips the breaker and keeps the report
	assert.Error(t, p.Publish(ctx, "BTC-USDT", "ingest", sample{Rows: 1}))
	require.Equal(t, StateOpen, cb.CurrentState())

	// while open: buffered, not an error
	assert.NoError(t, p.Publish(ctx, "BTC-USDT", "backtest", sample{Rows: 2}))
	assert.Equal(t, 2, p.PendingCount())
	assert.Equal(t, 2, buffered)

	rdb.err = nil
	clk.advance(2 * time.Second)
	require.NoError(t, p.Publish(ctx, "BTC-USDT", "ingest", sample{Rows: 3}))

	assert.Zero(t, p.PendingCount())
	assert.Equal(t, 2, flushed)
	require.Len(t, rdb.added, 3)
	for i, a := range rdb.added {
		var got sample
		require.NoError(t, json.Unmarshal([]byte(a.Values.(map[string]interface{})["data"].(string)), &got))
		assert.Equal(t, i+1, got.Rows, "reports flushed in order")
		assert.Equal(t, int64(50), a.MaxLen)
	}
	assert.Equal(t, StateClosed, cb.CurrentState())
}

func TestPublisher_BufferIsBounded(t *testing.T) {
	rdb := &fakeStreamClient{err: errors.New("down")}
	cb, _ := newBreaker(1, time.Hour)
	p := NewPublisher(rdb, cb, 0, logger.Discard())
	p.maxBuf = 3

	for i := 0; i < 10; i++ {
		p.Publish(context.Background(), "BTC-USDT", "ingest", sample{Rows: i})
	}
	assert.Equal(t, 3, p.PendingCount())
}

func TestPublisher_FailedFlushKeepsBound(t *testing.T) {
	rdb := &fakeStreamClient{err: errors.New("down")}
	cb, _ := newBreaker(1, time.Hour)
	p := NewPublisher(rdb, cb, 0, logger.Discard())
	p.maxBuf = 3

	report := func(rows int) pendingReport {
		data, _ := json.Marshal(sample{Rows: rows})
		return pendingReport{stream: StreamKey("BTC-USDT"), kind: "ingest", data: data}
	}
	for i := 0; i < 3; i++ {
		p.bufferReport(report(i))
	}
	// reports buffered by other callers while the flush is in flight
	rdb.onXAdd = func() {
		rdb.onXAdd = nil
		p.bufferReport(report(3))
		p.bufferReport(report(4))
	}

	require.Error(t, p.flush(context.Background()))
	require.Equal(t, 3, p.PendingCount())

	var rows []int
	for _, pr := range p.buffer {
		var got sample
		require.NoError(t, json.Unmarshal(pr.data, &got))
		rows = append(rows, got.Rows)
	}
	assert.Equal(t, []int{2, 3, 4}, rows, "oldest reports dropped")
}

func TestPublisher_MarshalError(t *testing.T) {
	cb, _ := newBreaker(1, time.Second)
	p := NewPublisher(&fakeStreamClient{}, cb, 0, logger.Discard())
	err := p.Publish(context.Background(), "BTC-USDT", "ingest", make(chan int))
	assert.Error(t, err)
	assert.Zero(t, p.PendingCount())
}
