package execution

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"papertrader/internal/model"
	sqlitestore "papertrader/internal/store/sqlite"
)

// Journal persists trades to SQLite for analysis and audit.
// It is write-only from the session's point of view.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", sqlitestore.DSN(dbPath))
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id     TEXT NOT NULL,
		symbol         TEXT NOT NULL,
		action         TEXT NOT NULL,
		price          REAL NOT NULL,
		capital        REAL NOT NULL,
		long_size      REAL NOT NULL,
		short_size     REAL NOT NULL,
		traded_at      DATETIME NOT NULL,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_session ON trades(session_id);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordTrade persists one trade.
func (j *Journal) RecordTrade(ctx context.Context, sessionID, symbol string, t model.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO trades (session_id, symbol, action, price, capital, long_size, short_size, traded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID,
		symbol,
		t.Action.String(),
		t.Price,
		t.CapitalAfter,
		t.LongSizeAfter,
		t.ShortSizeAfter,
		t.TS.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// TradeRecord represents a row from the trades table.
type TradeRecord struct {
	ID        int64   `json:"id"`
	SessionID string  `json:"session_id"`
	Symbol    string  `json:"symbol"`
	Action    string  `json:"action"`
	Price     float64 `json:"price"`
	Capital   float64 `json:"capital"`
	LongSize  float64 `json:"long_size"`
	ShortSize float64 `json:"short_size"`
	TradedAt  string  `json:"traded_at"`
}

// GetTrades returns the last N trades, newest first.
func (j *Journal) GetTrades(limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, session_id, symbol, action, price, capital, long_size, short_size, traded_at
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Symbol, &t.Action, &t.Price,
			&t.Capital, &t.LongSize, &t.ShortSize, &t.TradedAt); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Ping checks the database connection.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
