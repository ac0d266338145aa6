// cmd/backtest runs the MACD crossover strategy over the stored candle
// series and prints the simulated portfolio outcome.
//
// Usage:
//
//	go run ./cmd/backtest --config=alphabot.yaml
//	go run ./cmd/backtest --from=1672531200000 --to=1704067199999 --trades
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alphabot/config"
	"alphabot/internal/backtest"
	"alphabot/internal/logger"
	"alphabot/internal/metrics"
	"alphabot/internal/model"
	"alphabot/internal/notification"
	redisstore "alphabot/internal/store/redis"
	sqlitestore "alphabot/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "alphabot.yaml", "Path to YAML config (missing file uses env and defaults)")
	fromMs := flag.Int64("from", 0, "First bar to include, ms since epoch (0 = from the start)")
	toMs := flag.Int64("to", 0, "Last bar to include, ms since epoch (0 = to the end)")
	showTrades := flag.Bool("trades", false, "Print every simulated trade")
	serve := flag.Bool("serve", false, "Keep serving /metrics after the run until interrupted")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "backtest: invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init("backtest", cfg.SlogLevel())
	opts := options{from: *fromMs, to: *toMs, showTrades: *showTrades, serve: *serve}
	if err := run(cfg, opts, log); err != nil {
		log.Error("backtest failed", "err", err)
		os.Exit(1)
	}
}

type options struct {
	from, to   int64
	showTrades bool
	serve      bool
}

func run(cfg *config.Config, opts options, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prom := metrics.NewMetrics()
	if cfg.MetricsAddr != "" {
		health := metrics.NewHealthStatus(cfg.Exchange.InstID, false)
		health.SetSQLiteOK(true)
		srv := metrics.NewServer(cfg.MetricsAddr, prom, health, log)
		srv.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(sctx)
		}()
	}

	store, err := sqlitestore.New(ctx, sqlitestore.Config{DBPath: cfg.Storage.SQLitePath}, log)
	if err != nil {
		return err
	}
	defer store.Close()

	bcfg := backtest.ConfigFrom(cfg)
	if opts.from > 0 {
		bcfg.From = model.FromMillis(opts.from)
	}
	if opts.to > 0 {
		bcfg.To = model.FromMillis(opts.to)
	}
	runner, err := backtest.New(bcfg, store, log)
	if err != nil {
		return err
	}
	runner.Metrics = prom

	rep, runErr := runner.Run(ctx)
	if runErr == nil {
		printReport(os.Stdout, rep, opts.showTrades)
	}
	deliver(ctx, cfg, rep, runErr, log)
	if runErr != nil {
		return runErr
	}

	if opts.serve && cfg.MetricsAddr != "" {
		log.Info("serving metrics until interrupted", "addr", cfg.MetricsAddr)
		<-ctx.Done()
	}
	return nil
}

// deliver publishes the report to Redis and notifies the operator.
func deliver(ctx context.Context, cfg *config.Config, rep backtest.Report, runErr error, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	if runErr == nil && cfg.Redis.Addr != "" {
		rdb, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			log.Warn("skipping report publish", "err", err)
		} else {
			pub := redisstore.NewPublisher(rdb, redisstore.NewCircuitBreaker(1, time.Minute), cfg.Redis.StreamMaxLen, log)
			if err := pub.Publish(ctx, rep.Symbol, "backtest", rep); err != nil {
				log.Warn("publish backtest report failed", "err", err)
			}
			rdb.Close()
		}
	}

	if err := notification.FromConfig(cfg, log).Send(ctx, notification.BacktestAlert(rep, runErr)); err != nil {
		log.Warn("notify failed", "err", err)
	}
}
