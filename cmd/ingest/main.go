// cmd/ingest downloads historical candles for one instrument from OKX into
// the SQLite candle store, resuming after the newest stored candle.
//
// Usage:
//
//	go run ./cmd/ingest --config=alphabot.yaml
//	go run ./cmd/ingest --schedule="0 5 * * * *"   # every hour at :05:00
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"alphabot/config"
	"alphabot/internal/exchange/okx"
	"alphabot/internal/ingest"
	"alphabot/internal/logger"
	"alphabot/internal/metrics"
	"alphabot/internal/model"
	"alphabot/internal/notification"
	redisstore "alphabot/internal/store/redis"
	sqlitestore "alphabot/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
)

func main() {
	configPath := flag.String("config", "alphabot.yaml", "Path to YAML config (missing file uses env and defaults)")
	schedule := flag.String("schedule", "", "Cron spec with seconds field; overrides ingest.schedule")
	maxPages := flag.Int("max-pages", -1, "Stop after this many pages (0 = until end of data); overrides ingest.max_pages")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		os.Exit(1)
	}
	if *schedule != "" {
		cfg.Ingest.Schedule = *schedule
	}
	if *maxPages >= 0 {
		cfg.Ingest.MaxPages = *maxPages
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "ingest: invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init("ingest", cfg.SlogLevel())
	if err := run(cfg, log); err != nil {
		log.Error("ingest failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus(cfg.Exchange.InstID, cfg.Redis.Addr != "")
	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, prom, health, log)
		srv.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(sctx)
		}()
	}

	// ---- Candle store ----
	if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	store, err := sqlitestore.New(ctx, sqlitestore.Config{
		DBPath: cfg.Storage.SQLitePath,
		OnCommit: func(rows int, took time.Duration) {
			prom.SQLiteCommitDur.Observe(took.Seconds())
		},
	}, log)
	if err != nil {
		return err
	}
	defer store.Close()
	health.SetSQLiteOK(true)

	// ---- Pipeline ----
	pcfg, err := ingest.ConfigFrom(cfg)
	if err != nil {
		return err
	}
	client := okx.New(okx.Config{BaseURL: cfg.Exchange.BaseURL, Timeout: cfg.Exchange.Timeout}, log)
	pipeline := ingest.New(pcfg, store, client, log)
	pipeline.Metrics = prom
	pipeline.OnPage = func(cursor int64, page []model.Candle) {
		health.SetLastPageTime(time.Now())
		fmt.Printf("Imported %d rows through %s\n", len(page), page[len(page)-1].TS)
	}

	// ---- Redis (optional): lock + report stream ----
	var (
		rdb       *goredis.Client
		publisher *redisstore.Publisher
	)
	if cfg.Redis.Addr != "" {
		rdb, err = redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			return err
		}
		defer rdb.Close()
		health.SetRedisConnected(true)

		pipeline.Lock = redisstore.NewLocker(rdb, cfg.Redis.LockTTL, log)
		publisher = redisstore.NewPublisher(rdb, newBreaker(prom, log), cfg.Redis.StreamMaxLen, log)
	}
	health.StartLivenessChecker(ctx, rdb, store.DB(), 10*time.Second)

	notifier := notification.FromConfig(cfg, log)
	report := func(rep ingest.Report, runErr error) {
		// deliver even when the run was interrupted
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()

		if runErr == nil {
			fmt.Printf("Imported %d rows in %d pages for %s\n", rep.Rows, rep.Pages, rep.Symbol)
			if n, err := store.Count(rctx, rep.Symbol); err != nil {
				log.Warn("count stored candles failed", "err", err)
			} else {
				fmt.Printf("%d candles stored for %s\n", n, rep.Symbol)
			}
		}
		if publisher != nil {
			if err := publisher.Publish(rctx, rep.Symbol, "ingest", rep); err != nil {
				log.Warn("publish ingest report failed", "err", err)
			}
		}
		if err := notifier.Send(rctx, notification.IngestAlert(rep, runErr)); err != nil {
			log.Warn("notify failed", "err", err)
		}
	}

	if cfg.Ingest.Schedule == "" {
		rep, err := pipeline.Run(ctx)
		report(rep, err)
		return err
	}

	sched, err := ingest.NewScheduler(ctx, cfg.Ingest.Schedule, pipeline, log)
	if err != nil {
		return err
	}
	sched.OnRun = report
	sched.Start()
	log.Info("waiting for scheduled runs", "schedule", cfg.Ingest.Schedule)
	<-ctx.Done()
	sched.Stop()
	return nil
}

func newBreaker(prom *metrics.Metrics, log *slog.Logger) *redisstore.CircuitBreaker {
	cb := redisstore.NewCircuitBreaker(3, 30*time.Second)
	cb.OnStateChange = func(from, to redisstore.State) {
		prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			prom.RedisCircuitBreakerTrips.Inc()
		}
		log.Warn("redis circuit breaker", "from", from.String(), "to", to.String())
	}
	return cb
}
