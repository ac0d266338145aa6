package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"alphabot/config"
	"alphabot/internal/exchange/okx"
	"alphabot/internal/logger"
	"alphabot/internal/metrics"
	"alphabot/internal/model"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// ErrLockNotAcquired wraps a failure to take the per-symbol ingest lock.
var ErrLockNotAcquired = errors.New("ingest lock not acquired")

// Fetcher returns one page of candles strictly after req.After, oldest first.
type Fetcher interface {
	FetchPage(ctx context.Context, req okx.PageRequest) ([]model.Candle, error)
}

// Store is the part of the candle store the pipeline writes through.
type Store interface {
	model.CursorSource
	model.CandleAppender
}

// Locker guards a symbol against concurrent ingestion runs.
type Locker interface {
	Acquire(ctx context.Context, symbol string) (release func(), err error)
}

// Config is the per-pipeline parameter set.
type Config struct {
	Symbol    string
	Bar       string
	PageLimit int
	PageDelay time.Duration // minimum spacing between page requests
	StartDate time.Time
	MaxPages  int // 0 = unbounded
	Retry     config.RetryConfig
}

// ConfigFrom maps the application config onto a pipeline config.
func ConfigFrom(cfg *config.Config) (Config, error) {
	start, err := cfg.StartTime()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Symbol:    cfg.Exchange.InstID,
		Bar:       cfg.Exchange.Bar,
		PageLimit: cfg.Exchange.PageLimit,
		PageDelay: cfg.Exchange.PageDelay,
		StartDate: start,
		MaxPages:  cfg.Ingest.MaxPages,
		Retry:     cfg.Ingest.Retry,
	}, nil
}

// Report summarises one ingestion run.
type Report struct {
	RunID       string          `json:"run_id"`
	Symbol      string          `json:"symbol"`
	Pages       int             `json:"pages"`
	Rows        int             `json:"rows"`
	Dropped     int             `json:"dropped"`
	FirstTS     model.Timestamp `json:"first_ts"`
	LastTS      model.Timestamp `json:"last_ts"`
	StartCursor int64           `json:"start_cursor"`
	EndCursor   int64           `json:"end_cursor"`
	Duration    time.Duration   `json:"duration"`
}

// Pipeline wires cursor resolution, paging and writing for one symbol.
// Run must not be called concurrently for the same symbol.
type Pipeline struct {
	cfg     Config
	store   Store
	fetcher Fetcher
	limiter *rate.Limiter
	log     *slog.Logger

	// Optional
	Metrics *metrics.Metrics
	Lock    Locker
	OnPage  func(cursor int64, page []model.Candle)
}

// New creates a pipeline.
func New(cfg Config, store Store, fetcher Fetcher, log *slog.Logger) *Pipeline {
	limit := rate.Inf
	if cfg.PageDelay > 0 {
		limit = rate.Every(cfg.PageDelay)
	}
	return &Pipeline{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

// Run ingests until the exchange reports end of data, MaxPages is reached,
// or an error occurs. Pages committed before an error stay committed and the
// next run resumes after them.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	started := time.Now()
	runID := logger.NewRunID(p.cfg.Symbol)
	ctx = logger.WithRunID(ctx, runID)
	log := p.log.With(logger.LogWithRun(ctx)...).With("symbol", p.cfg.Symbol)

	rep := Report{RunID: runID, Symbol: p.cfg.Symbol}
	err := p.run(ctx, log, &rep)
	rep.Duration = time.Since(started)

	status := "ok"
	if err != nil {
		status = "error"
		p.countRunError(err)
		log.Error("ingestion aborted", "err", err, "pages", rep.Pages, "rows", rep.Rows)
	} else {
		log.Info("ingestion complete", "pages", rep.Pages, "rows", rep.Rows, "took", rep.Duration)
	}
	if p.Metrics != nil {
		p.Metrics.RunsTotal.WithLabelValues("ingest", status).Inc()
	}
	return rep, err
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger, rep *Report) error {
	if p.Lock != nil {
		release, err := p.Lock.Acquire(ctx, p.cfg.Symbol)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrLockNotAcquired, err)
		}
		defer release()
	}

	cursor, err := ResolveCursor(ctx, p.store, p.cfg.Symbol, p.cfg.StartDate)
	if err != nil {
		return err
	}
	rep.StartCursor, rep.EndCursor = cursor, cursor
	log.Info("resolved cursor", "after_ms", cursor, "after", model.FromMillis(cursor).String())

	for p.cfg.MaxPages == 0 || rep.Pages < p.cfg.MaxPages {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		page, err := p.fetch(ctx, log, cursor)
		if errors.Is(err, model.ErrEndOfData) {
			log.Info("no more data past cursor", "after_ms", cursor)
			return nil
		}
		if err != nil {
			return fmt.Errorf("fetch after %d: %w", cursor, err)
		}

		fresh := afterCursor(page, cursor)
		if dropped := len(page) - len(fresh); dropped > 0 {
			rep.Dropped += dropped
			log.Warn("dropped candles not after cursor", "count", dropped, "after_ms", cursor)
			if p.Metrics != nil {
				p.Metrics.DroppedCandles.Add(float64(dropped))
			}
		}
		if len(fresh) == 0 {
			log.Info("page had nothing past cursor, treating as end of data", "after_ms", cursor)
			return nil
		}

		if err := p.store.Append(ctx, p.cfg.Symbol, fresh); err != nil {
			return fmt.Errorf("append page after %d: %w", cursor, err)
		}

		if rep.Rows == 0 {
			rep.FirstTS = fresh[0].TS
		}
		rep.Pages++
		rep.Rows += len(fresh)
		rep.LastTS = fresh[len(fresh)-1].TS
		cursor = rep.LastTS.Millis()
		rep.EndCursor = cursor

		log.Info("page written", "rows", len(fresh), "total", rep.Rows, "newest", rep.LastTS.String())
		if p.Metrics != nil {
			p.Metrics.PagesTotal.Inc()
			p.Metrics.RowsTotal.Add(float64(len(fresh)))
			p.Metrics.CursorMillis.Set(float64(cursor))
		}
		if p.OnPage != nil {
			p.OnPage(cursor, fresh)
		}
	}
	log.Info("max pages reached", "max_pages", p.cfg.MaxPages)
	return nil
}

// fetch runs one page request under the configured retry policy.
func (p *Pipeline) fetch(ctx context.Context, log *slog.Logger, cursor int64) ([]model.Candle, error) {
	req := okx.PageRequest{
		InstID: p.cfg.Symbol,
		Bar:    p.cfg.Bar,
		After:  cursor,
		Limit:  p.cfg.PageLimit,
	}

	var page []model.Candle
	op := func() error {
		start := time.Now()
		candles, err := p.fetcher.FetchPage(ctx, req)
		if p.Metrics != nil {
			p.Metrics.FetchDur.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			if model.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		page = candles
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("page fetch failed, retrying", "err", err, "wait", wait, "after_ms", cursor)
		if p.Metrics != nil {
			p.Metrics.FetchRetries.Inc()
		}
	}

	err := backoff.RetryNotify(op, backoff.WithContext(newBackOff(p.cfg.Retry), ctx), notify)
	return page, err
}

// countRunError records why a run failed.
func (p *Pipeline) countRunError(err error) {
	if p.Metrics == nil {
		return
	}
	var (
		te *model.TransportError
		ce *model.ConnectivityError
		iv *model.IntegrityViolation
	)
	kind := "other"
	switch {
	case errors.Is(err, ErrLockNotAcquired):
		kind = "lock"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = "cancelled"
	case errors.As(err, &te):
		kind = "transport"
	case errors.As(err, &ce):
		kind = "connectivity"
	case errors.As(err, &iv):
		kind = "integrity"
	}
	p.Metrics.RunErrorsTotal.WithLabelValues(kind).Inc()
}

// afterCursor keeps candles strictly after the exclusive cursor (ms).
func afterCursor(page []model.Candle, cursor int64) []model.Candle {
	i := 0
	for i < len(page) && page[i].TS.Millis() <= cursor {
		i++
	}
	return page[i:]
}
