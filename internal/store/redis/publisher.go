package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	goredis "github.com/go-redis/redis/v8"
)

const defaultStreamMaxLen = 1000

// streamClient is the subset of *goredis.Client the publisher uses.
type streamClient interface {
	XAdd(ctx context.Context, a *goredis.XAddArgs) *goredis.StringCmd
}

// pendingReport is a report held back while the breaker was open.
type pendingReport struct {
	stream string
	kind   string
	data   []byte
}

// Publisher appends run reports to the capped stream runs:{symbol}. Calls
// go through a circuit breaker; while it is open reports are buffered
// (oldest dropped past maxBuf) and flushed ahead of the next successful
// publish.
type Publisher struct {
	rdb    streamClient
	cb     *CircuitBreaker
	maxLen int64
	log    *slog.Logger

	mu     sync.Mutex
	buffer []pendingReport
	maxBuf int

	// Callbacks (optional)
	OnBuffer func()
	OnFlush  func(count int)
}

// NewPublisher creates a Publisher. maxLen caps each stream (approximate
// trimming); zero uses a default.
func NewPublisher(rdb streamClient, cb *CircuitBreaker, maxLen int64, log *slog.Logger) *Publisher {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &Publisher{
		rdb:    rdb,
		cb:     cb,
		maxLen: maxLen,
		log:    log,
		maxBuf: 100,
	}
}

// Publish appends report, tagged with kind ("ingest" or "backtest"), to the
// symbol's stream. A report buffered because the breaker is open is not an
// error.
func (p *Publisher) Publish(ctx context.Context, symbol, kind string, report any) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal %s report: %w", kind, err)
	}
	pr := pendingReport{stream: StreamKey(symbol), kind: kind, data: data}

	err = p.cb.Execute(func() error {
		if err := p.flush(ctx); err != nil {
			return err
		}
		return p.add(ctx, pr)
	})
	if errors.Is(err, ErrCircuitOpen) {
		p.bufferReport(pr)
		return nil
	}
	if err != nil {
		p.bufferReport(pr)
		return err
	}
	return nil
}

// PendingCount returns the number of buffered reports.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

func (p *Publisher) add(ctx context.Context, pr pendingReport) error {
	err := p.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: pr.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{"kind": pr.kind, "data": string(pr.data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis XADD %s: %w", pr.stream, err)
	}
	return nil
}

func (p *Publisher) bufferReport(pr pendingReport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buffer) >= p.maxBuf {
		p.buffer = p.buffer[1:]
	}
	p.buffer = append(p.buffer, pr)
	p.log.Warn("run report buffered", "stream", pr.stream, "kind", pr.kind, "pending", len(p.buffer))
	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// flush writes buffered reports in order, stopping at the first failure
// with the rest kept, oldest dropped past maxBuf.
func (p *Publisher) flush(ctx context.Context) error {
	p.mu.Lock()
	toFlush := p.buffer
	p.buffer = nil
	p.mu.Unlock()
	if len(toFlush) == 0 {
		return nil
	}

	for i, pr := range toFlush {
		if err := p.add(ctx, pr); err != nil {
			p.mu.Lock()
			p.buffer = append(toFlush[i:], p.buffer...)
			if len(p.buffer) > p.maxBuf {
				p.buffer = p.buffer[len(p.buffer)-p.maxBuf:]
			}
			p.mu.Unlock()
			return err
		}
	}
	p.log.Info("flushed buffered run reports", "count", len(toFlush))
	if p.OnFlush != nil {
		p.OnFlush(len(toFlush))
	}
	return nil
}
