// cmd/backtest replays candles through a fresh paper-trading session to see
// how the crossover strategy would have traded them.
//
// Candles come from the SQLite archive written by cmd/papertrader, or are
// fetched once from Binance.
//
// Usage:
//
//	go run ./cmd/backtest --symbol=BTCUSDT --db=data/papertrader.db --speed=0
//	go run ./cmd/backtest --symbol=ETHUSDT --source=binance --interval=1h --limit=1000
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"papertrader/internal/indicator"
	"papertrader/internal/logger"
	"papertrader/internal/marketdata/binance"
	"papertrader/internal/marketdata/replay"
	"papertrader/internal/model"
	"papertrader/internal/session"
	sqlitestore "papertrader/internal/store/sqlite"
	"papertrader/internal/strategy"
)

// seedHistory serves a fixed warm-up window to Session.Start.
type seedHistory []model.Candle

func (s seedHistory) FetchHistory(ctx context.Context, symbol string) ([]model.Candle, error) {
	return s, nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	// Flags
	symbol := flag.String("symbol", "BTCUSDT", "Symbol to replay")
	source := flag.String("source", "archive", "Candle source: archive or binance")
	dbPath := flag.String("db", "data/papertrader.db", "Path to SQLite archive (source=archive)")
	fromStr := flag.String("from", "", "Replay candles after this time: RFC3339 or unix seconds (source=archive)")
	interval := flag.String("interval", "15m", "Kline interval (source=binance)")
	limit := flag.Int("limit", 1000, "Klines to fetch (source=binance)")
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	capital := flag.Float64("capital", 1000, "Starting capital")
	warmup := flag.Int("warmup", 0, "Leading candles used to seed the window without trading")
	capacity := flag.Int("capacity", 192, "Candle window capacity")
	periods := flag.String("periods", "5,16,14,14", "SMA short, SMA long, RSI, ATR periods")
	verbose := flag.Bool("v", false, "Print every update, not just trades")
	flag.Parse()

	indCfg, err := parsePeriods(*periods)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Load candles
	var candles []model.Candle
	switch *source {
	case "archive":
		archive, err := sqlitestore.Open(sqlitestore.Config{DBPath: *dbPath})
		if err != nil {
			log.Fatalf("[backtest] sqlite open failed: %v", err)
		}
		defer archive.Close()
		from, err := parseFrom(*fromStr)
		if err != nil {
			log.Fatalf("[backtest] %v", err)
		}
		candles, err = archive.ReadCandles(strings.ToUpper(*symbol), from)
		if err != nil {
			log.Fatalf("[backtest] read archive: %v", err)
		}
	case "binance":
		p := binance.New(binance.Config{Interval: *interval, Limit: *limit})
		fetchCtx, fetchCancel := context.WithTimeout(ctx, 30*time.Second)
		candles, err = p.FetchHistory(fetchCtx, strings.ToUpper(*symbol))
		fetchCancel()
		if err != nil {
			log.Fatalf("[backtest] fetch klines: %v", err)
		}
	default:
		log.Fatalf("[backtest] unknown source %q", *source)
	}
	if len(candles) == 0 {
		log.Fatalf("[backtest] no candles for %s", *symbol)
	}
	if *warmup > len(candles) {
		*warmup = len(candles)
	}

	// Session with an in-process publisher that prints trades
	trades := 0
	printer := model.PublisherFunc(func(ctx context.Context, u model.Update) error {
		if u.Trade != nil {
			trades++
			t := u.Trade
			fmt.Printf("  [%s] %-5s @ %-12s capital=%-12s long=%-10s short=%s\n",
				t.TS.UTC().Format("2006-01-02 15:04"), t.Action,
				decimal.NewFromFloat(t.Price).StringFixed(2),
				decimal.NewFromFloat(t.CapitalAfter).StringFixed(2),
				decimal.NewFromFloat(t.LongSizeAfter).Round(6).String(),
				decimal.NewFromFloat(t.ShortSizeAfter).Round(6).String())
		} else if *verbose {
			fmt.Printf("  [%s] close=%.2f smaS=%s smaL=%s rsi=%s\n",
				u.TS.UTC().Format("2006-01-02 15:04"), u.Price, opt(u.SMAShort), opt(u.SMALong), opt(u.RSI))
		}
		return nil
	})

	sess := session.New(seedHistory(candles[:*warmup]), nil,
		session.WithCapacity(*capacity),
		session.WithIndicators(indCfg),
		session.WithEvaluator(strategy.NewCrossover(strategy.DefaultRules())),
		session.WithPublisher(printer),
		session.WithLogger(logger.New(os.Stderr, "backtest", logger.ParseLevel(os.Getenv("LOG_LEVEL")))),
	)
	if _, err := sess.Start(ctx, *symbol, *capital); err != nil {
		log.Fatalf("[backtest] start: %v", err)
	}

	replayer := replay.New(nil)
	replayer.ContinueOnError = true
	stats, err := replayer.RunCandles(ctx, candles[*warmup:], *speed, func(ctx context.Context, c model.Candle) error {
		_, err := sess.Ingest(ctx, c)
		return err
	})
	if err != nil {
		log.Printf("[backtest] replay stopped: %v", err)
	}

	snap := sess.Stop()
	sum := snap.Summary

	// Print summary
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Symbol:            %-16s ║\n", snap.Symbol)
	fmt.Printf("║  Candles replayed:  %-16d ║\n", stats.Emitted)
	fmt.Printf("║  Candles rejected:  %-16d ║\n", stats.Failed)
	fmt.Printf("║  Trades:            %-16d ║\n", trades)
	fmt.Printf("║  Round trips:       %-16d ║\n", sum.RoundTrips)
	fmt.Printf("║  Win rate:          %-16s ║\n", decimal.NewFromFloat(sum.WinRate()).StringFixed(1)+"%")
	fmt.Printf("║  Initial capital:   %-16s ║\n", decimal.NewFromFloat(sum.InitialCapital).StringFixed(2))
	fmt.Printf("║  Equity:            %-16s ║\n", decimal.NewFromFloat(sum.Equity).StringFixed(2))
	fmt.Printf("║  Return:            %-16s ║\n", decimal.NewFromFloat(sum.ReturnPct).StringFixed(2)+"%")
	fmt.Printf("║  Max drawdown:      %-16s ║\n", decimal.NewFromFloat(sum.MaxDrawdownPct).StringFixed(2)+"%")
	fmt.Printf("║  Open position:     %-16s ║\n", snap.Position.Side)
	fmt.Println("╚══════════════════════════════════════╝")
}

func opt(o model.Optional) string {
	if !o.OK {
		return "-"
	}
	return strconv.FormatFloat(o.Value, 'f', 2, 64)
}

func parsePeriods(s string) (indicator.Config, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return indicator.Config{}, fmt.Errorf("periods: want 4 comma-separated values, got %q", s)
	}
	var n [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return indicator.Config{}, fmt.Errorf("periods: %q: %w", p, err)
		}
		n[i] = v
	}
	cfg := indicator.Config{ShortPeriod: n[0], LongPeriod: n[1], RSIPeriod: n[2], ATRPeriod: n[3]}
	return cfg, cfg.Validate()
}

func parseFrom(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("from: %w", err)
	}
	return t, nil
}
