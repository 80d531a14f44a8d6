// Package binance implements the session's history and price providers on
// the Binance spot REST API.
package binance

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"papertrader/internal/model"
)

const testnetURL = "https://testnet.binance.vision"

// Config holds the Binance client settings.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string // overrides the default endpoint when set
	Testnet   bool
	Interval  string // kline interval, e.g. "15m"
	Limit     int    // klines per history fetch
}

// Provider fetches klines and ticker prices. It implements
// model.HistoryProvider and model.PriceProvider.
type Provider struct {
	client   *binance.Client
	interval string
	limit    int
}

// New creates a Provider. Public market data needs no API key.
func New(cfg Config) *Provider {
	client := binance.NewClient(cfg.APIKey, cfg.APISecret)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.Testnet:
		client.BaseURL = testnetURL
	}
	if cfg.Interval == "" {
		cfg.Interval = "15m"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 192
	}
	return &Provider{client: client, interval: cfg.Interval, limit: cfg.Limit}
}

// FetchHistory returns the most recent klines for symbol, oldest first.
// The last kline may still be forming.
func (p *Provider) FetchHistory(ctx context.Context, symbol string) ([]model.Candle, error) {
	klines, err := p.client.NewKlinesService().
		Symbol(symbol).
		Interval(p.interval).
		Limit(p.limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("get klines %s %s: %w", symbol, p.interval, err)
	}

	candles := make([]model.Candle, 0, len(klines))
	for i, k := range klines {
		c, err := toCandle(k)
		if err != nil {
			return nil, fmt.Errorf("kline %d for %s: %w", i, symbol, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// FetchLatestPrice returns the last traded price for symbol.
func (p *Provider) FetchLatestPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := p.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("get price %s: %w", symbol, err)
	}
	for _, sp := range prices {
		if sp.Symbol != symbol {
			continue
		}
		v, err := parseFloat("price", sp.Price)
		if err != nil {
			return 0, err
		}
		return v, nil
	}
	return 0, fmt.Errorf("no price returned for %s", symbol)
}

// Ping checks API connectivity.
func (p *Provider) Ping(ctx context.Context) error {
	return p.client.NewPingService().Do(ctx)
}

func toCandle(k *binance.Kline) (model.Candle, error) {
	var c model.Candle
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", k.Open, &c.Open},
		{"high", k.High, &c.High},
		{"low", k.Low, &c.Low},
		{"close", k.Close, &c.Close},
		{"volume", k.Volume, &c.Volume},
	}
	for _, f := range fields {
		v, err := parseFloat(f.name, f.raw)
		if err != nil {
			return model.Candle{}, err
		}
		*f.dst = v
	}
	c.TS = time.UnixMilli(k.OpenTime).UTC()
	return c, nil
}

func parseFloat(name, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", name, raw, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("parse %s %q: not finite", name, raw)
	}
	return v, nil
}
