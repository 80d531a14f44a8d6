package model

import "context"

// ── Port Interfaces ──
// These interfaces decouple the trading session from the market data source
// and from the sinks that observe it (push hub, Redis, SQLite, alerts).

// HistoryProvider supplies the most recent candles for a symbol, oldest first.
type HistoryProvider interface {
	FetchHistory(ctx context.Context, symbol string) ([]Candle, error)
}

// PriceProvider supplies the latest traded price for a symbol.
type PriceProvider interface {
	FetchLatestPrice(ctx context.Context, symbol string) (float64, error)
}

// Publisher receives one Update per ingestion. Delivery is at-most-once.
type Publisher interface {
	Publish(ctx context.Context, u Update) error
}

// TradeJournal records trades for audit. It is never read back into a session.
type TradeJournal interface {
	RecordTrade(ctx context.Context, sessionID, symbol string, t Trade) error
}

// CandleArchive records ingested candles so they can be replayed later.
type CandleArchive interface {
	RecordCandles(ctx context.Context, symbol string, candles []Candle) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, u Update) error

func (f PublisherFunc) Publish(ctx context.Context, u Update) error { return f(ctx, u) }
