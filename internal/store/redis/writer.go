// Package redis mirrors session updates into Redis so other processes
// (dashboards, bots) can follow a session without talking to it directly.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"papertrader/internal/model"
)

const (
	// ~2 days of 15m bars with headroom
	updateStreamMaxLen = 2000
	tradeStreamMaxLen  = 5000
	defaultLatestTTL   = 30 * time.Minute
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Key layout, per symbol.
func LatestKey(symbol string) string    { return "session:latest:" + symbol }
func UpdateStream(symbol string) string { return "session:updates:" + symbol }
func TradeStream(symbol string) string  { return "session:trades:" + symbol }
func PubSubChannel(symbol string) string {
	return "pub:session:" + symbol
}

// Writer writes session updates to Redis.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a Writer and pings the server.
func New(cfg Config) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// WriteUpdate pipelines SET latest + XADD update stream + PUBLISH, plus an
// XADD to the trade stream when the update carries a new trade.
func (w *Writer) WriteUpdate(ctx context.Context, u model.Update) error {
	jsonData := string(u.JSON())

	pipe := w.client.Pipeline()
	pipe.Set(ctx, LatestKey(u.Symbol), jsonData, defaultLatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: UpdateStream(u.Symbol),
		MaxLen: updateStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData, "session": u.Session},
	})
	if u.Trade != nil {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: TradeStream(u.Symbol),
			MaxLen: tradeStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"session": u.Session,
				"action":  u.Trade.Action.String(),
				"price":   u.Trade.Price,
				"capital": u.Trade.CapitalAfter,
			},
		})
	}
	pipe.Publish(ctx, PubSubChannel(u.Symbol), jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline %s: %w", u.Symbol, err)
	}
	return nil
}

// Latest returns the last update written for symbol, or false if none is
// cached (or it expired).
func (w *Writer) Latest(ctx context.Context, symbol string) ([]byte, bool, error) {
	b, err := w.client.Get(ctx, LatestKey(symbol)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis GET %s: %w", LatestKey(symbol), err)
	}
	return b, true, nil
}

// Ping checks the Redis connection.
func (w *Writer) Ping(ctx context.Context) error {
	return w.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
