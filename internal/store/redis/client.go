// Package redis holds the optional Redis side of the pipelines: a per-symbol
// ingestion lock and a capped stream of run reports, both behind a circuit
// breaker.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Config locates the Redis server.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a client and pings the server.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	log.Info("redis connected", "addr", cfg.Addr)
	return client, nil
}

// LockKey is the ingestion lock key for symbol.
func LockKey(symbol string) string { return "lock:ingest:" + symbol }

// StreamKey is the run-report stream for symbol.
func StreamKey(symbol string) string { return "runs:" + symbol }
