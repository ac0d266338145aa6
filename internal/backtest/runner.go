// Package backtest runs the MACD crossover strategy over a stored candle
// series and reports the simulated outcome.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"alphabot/config"
	"alphabot/internal/logger"
	"alphabot/internal/metrics"
	"alphabot/internal/model"
	"alphabot/internal/portfolio"
	"alphabot/internal/strategy"
)

// Config is the per-run parameter set.
type Config struct {
	Symbol    string
	Strategy  strategy.MACDCrossover
	Portfolio portfolio.Config
	From, To  model.Timestamp // inclusive; zero is open
}

// ConfigFrom maps the application config onto a backtest config.
func ConfigFrom(cfg *config.Config) Config {
	b := cfg.Backtest
	return Config{
		Symbol: cfg.Exchange.InstID,
		Strategy: strategy.MACDCrossover{
			FastSpan:   b.FastSpan,
			SlowSpan:   b.SlowSpan,
			SignalSpan: b.SignalSpan,
		},
		Portfolio: portfolio.NewConfig(b.InitialCash, b.FeeRate, b.SlippageRate),
	}
}

// Report is the outcome of one backtest run.
type Report struct {
	RunID       string                  `json:"run_id"`
	Symbol      string                  `json:"symbol"`
	Strategy    string                  `json:"strategy"`
	FeeRate     string                  `json:"fee_rate"`
	Slippage    string                  `json:"slippage_rate"`
	Crossovers  int                     `json:"crossovers"`
	Stats       portfolio.Stats         `json:"stats"`
	Final       portfolio.State         `json:"final"`
	Trades      []portfolio.Trade       `json:"trades"`
	EquityCurve []portfolio.EquityPoint `json:"-"`
	Duration    time.Duration           `json:"duration"`
}

// Runner reads the series and drives indicator, signals and simulator.
type Runner struct {
	cfg    Config
	reader model.CandleReader
	sim    *portfolio.Simulator
	log    *slog.Logger

	// Optional
	Metrics *metrics.Metrics
}

// New validates the simulation parameters.
func New(cfg Config, reader model.CandleReader, log *slog.Logger) (*Runner, error) {
	sim, err := portfolio.NewSimulator(cfg.Portfolio, log)
	if err != nil {
		return nil, fmt.Errorf("backtest config: %w", err)
	}
	return &Runner{cfg: cfg, reader: reader, sim: sim, log: log}, nil
}

// Run executes one backtest. It fails with model.ErrEmptySeries when the
// store holds no candles for the symbol inside the window.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	started := time.Now()
	runID := logger.NewRunID(r.cfg.Symbol)
	ctx = logger.WithRunID(ctx, runID)
	log := r.log.With(logger.LogWithRun(ctx)...).With("symbol", r.cfg.Symbol)

	rep, err := r.run(ctx, log)
	rep.RunID = runID
	rep.Duration = time.Since(started)

	status := "ok"
	if err != nil {
		status = "error"
		log.Error("backtest failed", "err", err)
	} else {
		log.Info("backtest complete",
			"bars", rep.Stats.Bars,
			"trades", rep.Stats.Trades,
			"end_equity", rep.Stats.EndEquity.StringFixed(2),
			"return_pct", rep.Stats.TotalReturnPct,
			"took", rep.Duration,
		)
		r.observe(rep)
	}
	if r.Metrics != nil {
		r.Metrics.RunsTotal.WithLabelValues("backtest", status).Inc()
	}
	return rep, err
}

func (r *Runner) run(ctx context.Context, log *slog.Logger) (Report, error) {
	rep := Report{
		Symbol:   r.cfg.Symbol,
		Strategy: r.cfg.Strategy.Name(),
		FeeRate:  r.cfg.Portfolio.FeeRate.String(),
		Slippage: r.cfg.Portfolio.SlippageRate.String(),
	}

	candles, err := r.reader.ReadAll(ctx, r.cfg.Symbol)
	if err != nil {
		return rep, fmt.Errorf("read series: %w", err)
	}
	series := model.SeriesFromCandles(candles).Window(r.cfg.From, r.cfg.To)
	if len(series) == 0 {
		return rep, fmt.Errorf("%w: %s has %d stored candles, none in window", model.ErrEmptySeries, r.cfg.Symbol, len(candles))
	}
	log.Info("series loaded", "bars", len(series), "from", series[0].TS.String(), "to", series[len(series)-1].TS.String())

	_, events, err := r.cfg.Strategy.Evaluate(series)
	if err != nil {
		return rep, fmt.Errorf("evaluate %s: %w", rep.Strategy, err)
	}
	rep.Crossovers = len(events)

	res, err := r.sim.Run(series, events)
	if err != nil {
		return rep, fmt.Errorf("simulate: %w", err)
	}

	rep.Stats = portfolio.ComputeStats(res, series, r.cfg.Portfolio.InitialCash)
	rep.Final = res.Final
	rep.Trades = res.Trades
	rep.EquityCurve = res.EquityCurve
	return rep, nil
}

func (r *Runner) observe(rep Report) {
	if r.Metrics == nil {
		return
	}
	r.Metrics.BacktestBars.Set(float64(rep.Stats.Bars))
	r.Metrics.BacktestTrades.Set(float64(rep.Stats.Trades))
	r.Metrics.BacktestFinalEquity.Set(rep.Stats.EndEquity.InexactFloat64())
	r.Metrics.BacktestReturnPct.Set(rep.Stats.TotalReturnPct)
	r.Metrics.BacktestMaxDDPct.Set(rep.Stats.MaxDrawdownPct)
}
