package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockHeld is returned when another run owns the symbol's lock.
var ErrLockHeld = errors.New("redis: ingest lock held by another run")

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another run is left alone.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// lockClient is the subset of *goredis.Client the lock uses.
type lockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *goredis.Cmd
}

// Locker is an advisory, TTL-bounded lock per symbol that keeps a single
// ingestion writer across processes.
type Locker struct {
	rdb lockClient
	ttl time.Duration
	log *slog.Logger
}

// NewLocker creates a Locker. The TTL bounds how long a crashed run can
// block the next one.
func NewLocker(rdb lockClient, ttl time.Duration, log *slog.Logger) *Locker {
	return &Locker{rdb: rdb, ttl: ttl, log: log}
}

// Acquire takes the lock for symbol or fails with ErrLockHeld. The returned
// release func is safe to call once the lock has expired.
func (l *Locker) Acquire(ctx context.Context, symbol string) (func(), error) {
	key := LockKey(symbol)
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SETNX %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}
	l.log.Debug("ingest lock acquired", "key", key, "ttl", l.ttl)

	release := func() {
		// the run's ctx may already be cancelled
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := l.rdb.Eval(rctx, releaseScript, []string{key}, token).Int()
		switch {
		case err != nil:
			l.log.Warn("ingest lock release failed", "key", key, "err", err)
		case n == 0:
			l.log.Warn("ingest lock expired before release", "key", key)
		default:
			l.log.Debug("ingest lock released", "key", key)
		}
	}
	return release, nil
}
