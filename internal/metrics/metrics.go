package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for ingestion and backtest runs.
type Metrics struct {
	// Ingestion
	PagesTotal      prometheus.Counter
	RowsTotal       prometheus.Counter
	DroppedCandles  prometheus.Counter     // candles at or before the cursor
	RunErrorsTotal  *prometheus.CounterVec // labels: kind=transport|connectivity|integrity|lock|cancelled|other
	FetchRetries    prometheus.Counter
	FetchDur        prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram
	CursorMillis    prometheus.Gauge
	RunsTotal       *prometheus.CounterVec // labels: pipeline, status=ok|error

	// Redis report publishing, guarded by a circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Backtest
	BacktestBars        prometheus.Gauge
	BacktestTrades      prometheus.Gauge
	BacktestFinalEquity prometheus.Gauge
	BacktestReturnPct   prometheus.Gauge
	BacktestMaxDDPct    prometheus.Gauge

	Registry *prometheus.Registry
}

// NewMetrics creates all metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		PagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_pages_total",
			Help: "Candle pages fetched and committed",
		}),
		RowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_rows_total",
			Help: "Candles written to the store",
		}),
		DroppedCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_dropped_candles_total",
			Help: "Fetched candles dropped because they were not after the cursor",
		}),
		RunErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_run_errors_total",
			Help: "Failed ingestion runs by error kind",
		}, []string{"kind"}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_fetch_retries_total",
			Help: "Page fetch retries after a retryable transport error",
		}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_fetch_duration_seconds",
			Help:    "Exchange page fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_sqlite_commit_duration_seconds",
			Help:    "SQLite page commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		CursorMillis: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_cursor_millis",
			Help: "Current pagination cursor (ms since epoch)",
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Pipeline runs by outcome",
		}, []string{"pipeline", "status"}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		BacktestBars: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_bars",
			Help: "Bars in the last backtest",
		}),
		BacktestTrades: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_trades",
			Help: "Executed trades in the last backtest",
		}),
		BacktestFinalEquity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_final_equity",
			Help: "Final equity of the last backtest",
		}),
		BacktestReturnPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_total_return_pct",
			Help: "Total return of the last backtest in percent",
		}),
		BacktestMaxDDPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_max_drawdown_pct",
			Help: "Max drawdown of the last backtest in percent",
		}),

		Registry: prometheus.NewRegistry(),
	}

	m.Registry.MustRegister(
		m.PagesTotal,
		m.RowsTotal,
		m.DroppedCandles,
		m.RunErrorsTotal,
		m.FetchRetries,
		m.FetchDur,
		m.SQLiteCommitDur,
		m.CursorMillis,
		m.RunsTotal,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.BacktestBars,
		m.BacktestTrades,
		m.BacktestFinalEquity,
		m.BacktestReturnPct,
		m.BacktestMaxDDPct,
	)

	return m
}

// HealthStatus represents the process health.
type HealthStatus struct {
	mu sync.RWMutex

	SQLiteOK       bool      `json:"sqlite_ok"`
	RedisConnected bool      `json:"redis_connected"`
	LastPageTime   time.Time `json:"last_page_time"`
	Symbol         string    `json:"symbol"`

	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	redisEnabled bool
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(symbol string, redisEnabled bool) *HealthStatus {
	return &HealthStatus{
		Symbol:       symbol,
		StartedAt:    time.Now(),
		redisEnabled: redisEnabled,
	}
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastPageTime(t time.Time) {
	h.mu.Lock()
	h.LastPageTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if h.redisEnabled && !h.RedisConnected {
		overallStatus = "degraded"
	}

	lastPage := ""
	if !h.LastPageTime.IsZero() {
		lastPage = h.LastPageTime.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		Symbol          string  `json:"symbol"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		LastPageTime    string  `json:"last_page_time"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Symbol:          h.Symbol,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		LastPageTime:    lastPage,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  *slog.Logger
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *HealthStatus, log *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		log:  log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error("metrics server error", "err", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
