// Package sqlite is the SQLite-backed candle store.
//
// Candles are append-only and keyed by (symbol, ts). Prices are stored as
// decimal text so reads return exactly what was written.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"alphabot/internal/model"

	"github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/candles.db"

	// OnCommit, if set, is called after each successful page commit.
	OnCommit func(rows int, took time.Duration)
}

// Store implements model.CandleStore. A single ingestion run is expected to
// be the only writer for a symbol.
type Store struct {
	db       *sql.DB
	log      *slog.Logger
	onCommit func(rows int, took time.Duration)
}

var _ model.CandleStore = (*Store)(nil)

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, &model.ConnectivityError{Target: "store", Err: err}
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &model.ConnectivityError{Target: "store", Err: err}
	}
	if err := createSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Info("sqlite store opened", "path", cfg.DBPath)
	return &Store{db: db, log: log, onCommit: cfg.OnCommit}, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS candles (
			symbol  TEXT    NOT NULL,
			ts      INTEGER NOT NULL,
			open    TEXT    NOT NULL,
			high    TEXT    NOT NULL,
			low     TEXT    NOT NULL,
			close   TEXT    NOT NULL,
			volume  TEXT    NOT NULL,
			PRIMARY KEY (symbol, ts)
		) WITHOUT ROWID;
	`)
	return err
}

// MaxTimestamp returns the newest stored candle timestamp for symbol.
func (s *Store) MaxTimestamp(ctx context.Context, symbol string) (model.Timestamp, bool, error) {
	ts, ok, err := maxTS(ctx, s.db, symbol)
	if err != nil {
		return 0, false, &model.ConnectivityError{Target: "store", Err: err}
	}
	return ts, ok, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func maxTS(ctx context.Context, q queryRower, symbol string) (model.Timestamp, bool, error) {
	var ts sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT MAX(ts) FROM candles WHERE symbol = ?`, symbol).Scan(&ts)
	if err != nil {
		return 0, false, err
	}
	if !ts.Valid {
		return 0, false, nil
	}
	return model.Timestamp(ts.Int64), true, nil
}

// Append inserts one page in a single transaction. The page must be strictly
// ascending and start after the stored maximum; otherwise nothing is written
// and an *model.IntegrityViolation is returned.
func (s *Store) Append(ctx context.Context, symbol string, rows []model.Candle) error {
	if len(rows) == 0 {
		return nil
	}
	if err := validatePage(symbol, rows); err != nil {
		return err
	}

	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &model.ConnectivityError{Target: "store", Err: err}
	}
	defer tx.Rollback()

	last, ok, err := maxTS(ctx, tx, symbol)
	if err != nil {
		return fmt.Errorf("sqlite max ts: %w", err)
	}
	if ok && rows[0].TS <= last {
		return &model.IntegrityViolation{Symbol: symbol, TS: rows[0].TS,
			Reason: fmt.Sprintf("not after stored max %d", int64(last))}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range rows {
		_, err := stmt.ExecContext(ctx, symbol, int64(c.TS),
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(), c.Volume.String())
		if err != nil {
			var se sqlite3.Error
			if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
				return &model.IntegrityViolation{Symbol: symbol, TS: c.TS, Reason: "duplicate (symbol, ts)"}
			}
			return fmt.Errorf("sqlite insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}

	took := time.Since(start)
	s.log.Debug("committed candles", "symbol", symbol, "rows", len(rows), "took", took)
	if s.onCommit != nil {
		s.onCommit(len(rows), took)
	}
	return nil
}

func validatePage(symbol string, rows []model.Candle) error {
	for i, c := range rows {
		if c.Symbol != symbol {
			return &model.IntegrityViolation{Symbol: symbol, TS: c.TS,
				Reason: fmt.Sprintf("row symbol %q in page for %q", c.Symbol, symbol)}
		}
		if i > 0 && c.TS <= rows[i-1].TS {
			return &model.IntegrityViolation{Symbol: symbol, TS: c.TS, Reason: "page not strictly ascending"}
		}
	}
	return nil
}

// ReadAll returns every candle for symbol ordered by timestamp ascending.
func (s *Store) ReadAll(ctx context.Context, symbol string) ([]model.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ?
		ORDER BY ts ASC
	`, symbol)
	if err != nil {
		return nil, &model.ConnectivityError{Target: "store", Err: err}
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		c := model.Candle{Symbol: symbol}
		var ts int64
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.TS = model.Timestamp(ts)
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Count returns the number of stored candles for symbol.
func (s *Store) Count(ctx context.Context, symbol string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM candles WHERE symbol = ?`, symbol).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
