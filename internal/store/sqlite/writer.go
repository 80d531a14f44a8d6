// Package sqlite archives ingested candles so sessions can be replayed and
// backtested offline.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"papertrader/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// Config configures the candle archive.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/papertrader.db"
}

// Archive stores candles keyed by (symbol, ts). Re-recording a candle for
// the same bar replaces it, so the forming bar converges to its final value.
// It implements model.CandleArchive.
type Archive struct {
	mu sync.Mutex // single writer
	db *sql.DB
}

// DSN returns the go-sqlite3 connection string for path: WAL journal,
// NORMAL sync and a 5s busy timeout. Every pool opened on the shared
// database file uses it.
func DSN(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

// Open opens (or creates) the archive database in WAL mode.
func Open(cfg Config) (*Archive, error) {
	db, err := sql.Open("sqlite3", DSN(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened candle archive at %s", cfg.DBPath)
	return &Archive{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol     TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL    NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, ts)
		);
	`)
	return err
}

// RecordCandles writes candles for symbol in one transaction.
func (a *Archive) RecordCandles(ctx context.Context, symbol string, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, c.TS.UnixMilli(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert candle %s@%d: %w", symbol, c.TS.UnixMilli(), err)
		}
	}
	return tx.Commit()
}

// SymbolCandle is a candle tagged with its symbol for channel-fed recording.
type SymbolCandle struct {
	Symbol string
	Candle model.Candle
}

// Run reads candles from ch and writes them in batched transactions.
// Flushes every batchSize candles OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or ch is closed; on cancel, candles already
// queued in ch are written before it returns.
func (a *Archive) Run(ctx context.Context, ch <-chan SymbolCandle) {
	batch := make([]SymbolCandle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		n := 0
		for sym, candles := range groupBySymbol(batch) {
			// ctx may already be cancelled on the final flush
			if err := a.RecordCandles(context.Background(), sym, candles); err != nil {
				log.Printf("[sqlite] batch insert error for %s: %v", sym, err)
				continue
			}
			n += len(candles)
		}
		log.Printf("[sqlite] committed %d candles in %v", n, time.Since(start))
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case sc, ok := <-ch:
					if !ok {
						break drain
					}
					batch = append(batch, sc)
				default:
					break drain
				}
			}
			flush()
			return
		case sc, ok := <-ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, sc)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func groupBySymbol(batch []SymbolCandle) map[string][]model.Candle {
	out := make(map[string][]model.Candle)
	for _, sc := range batch {
		out[sc.Symbol] = append(out[sc.Symbol], sc.Candle)
	}
	return out
}

// Ping checks the database connection.
func (a *Archive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}
