package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"papertrader/internal/indicator"
	"papertrader/internal/model"
	"papertrader/internal/strategy"
)

// ────────────────────────────────────────────────────────────
// Fakes
// ────────────────────────────────────────────────────────────

var t0 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

type fakeHistory struct {
	candles []model.Candle
	err     error
	calls   int
}

func (f *fakeHistory) FetchHistory(ctx context.Context, symbol string) ([]model.Candle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

type fakePrices struct {
	price  float64
	err    error
	before func()
}

func (f *fakePrices) FetchLatestPrice(ctx context.Context, symbol string) (float64, error) {
	if f.before != nil {
		f.before()
	}
	return f.price, f.err
}

type recorder struct {
	mu      sync.Mutex
	updates []model.Update
}

func (r *recorder) Publish(ctx context.Context, u model.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return nil
}

type fakeJournal struct{ trades []model.Trade }

func (j *fakeJournal) RecordTrade(ctx context.Context, sessionID, symbol string, t model.Trade) error {
	j.trades = append(j.trades, t)
	return nil
}

type fakeArchive struct{ n int }

func (a *fakeArchive) RecordCandles(ctx context.Context, symbol string, candles []model.Candle) error {
	a.n += len(candles)
	return nil
}

// scripted returns the queued actions in order, then None.
func scripted(actions ...model.Action) strategy.Evaluator {
	var mu sync.Mutex
	return strategy.EvaluatorFunc(func(ic model.IndicatedCandle) strategy.Signal {
		mu.Lock()
		defer mu.Unlock()
		if len(actions) == 0 {
			return strategy.Signal{Action: model.ActionNone}
		}
		a := actions[0]
		actions = actions[1:]
		return strategy.Signal{Action: a, Price: ic.Close}
	})
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func bar(i int, close float64) model.Candle {
	return model.Candle{
		TS:   t0.Add(time.Duration(i) * 15 * time.Minute),
		Open: close, High: close + 0.5, Low: close - 0.5, Close: close, Volume: 1,
	}
}

// zigzag: 20 flat bars at 100, 40 bars alternating +2/−1, 40 bars alternating −2/+1.
func zigzag() []model.Candle {
	out := make([]model.Candle, 0, 100)
	p := 100.0
	for i := 0; i < 20; i++ {
		out = append(out, bar(len(out), p))
	}
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			p += 2
		} else {
			p--
		}
		out = append(out, bar(len(out), p))
	}
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			p -= 2
		} else {
			p++
		}
		out = append(out, bar(len(out), p))
	}
	return out
}

// ────────────────────────────────────────────────────────────
// Start
// ────────────────────────────────────────────────────────────

func TestStart_ConfigErrors(t *testing.T) {
	h := &fakeHistory{}
	s := New(h, &fakePrices{}, quiet())

	cases := []struct {
		symbol  string
		capital float64
	}{
		{"", 1000},
		{"   ", 1000},
		{"BTC USDT", 1000},
		{"BTC/USDT", 1000},
		{"BTCUSDT", 0},
		{"BTCUSDT", -5},
		{"BTCUSDT", math.NaN()},
		{"BTCUSDT", math.Inf(1)},
	}
	for _, tc := range cases {
		_, err := s.Start(context.Background(), tc.symbol, tc.capital)
		if !IsConfig(err) {
			t.Errorf("Start(%q, %v): expected ConfigError, got %v", tc.symbol, tc.capital, err)
		}
	}
	if h.calls != 0 {
		t.Errorf("history fetched %d times for invalid input", h.calls)
	}
	if s.Running() {
		t.Error("session should not be running")
	}
}

func TestStart_SeedsUpToCapacity(t *testing.T) {
	hist := make([]model.Candle, 250)
	for i := range hist {
		hist[i] = bar(i, 100+float64(i%7))
	}
	archive := &fakeArchive{}
	s := New(&fakeHistory{candles: hist}, &fakePrices{}, quiet(), WithArchive(archive))

	snap, err := s.Start(context.Background(), "btcusdt", 1000)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if snap.Symbol != "BTCUSDT" {
		t.Errorf("symbol not normalized: %s", snap.Symbol)
	}
	if snap.Buffered != 192 {
		t.Fatalf("expected 192 buffered, got %d", snap.Buffered)
	}
	if snap.ID == "" || !snap.Running {
		t.Errorf("expected running session with id, got %+v", snap)
	}
	if len(snap.Trades) != 0 || snap.Capital != 1000 {
		t.Errorf("seed must not trade: trades=%d capital=%v", len(snap.Trades), snap.Capital)
	}

	candles := s.Candles()
	if candles[0].TS != hist[58].TS || candles[191].TS != hist[249].TS {
		t.Errorf("window should hold the newest 192 bars")
	}
	if latest, ok := s.Latest(); !ok || !latest.Ready() {
		t.Errorf("latest bar should have every indicator after full seed")
	}
	if archive.n != 250 {
		t.Errorf("expected 250 archived seed candles, got %d", archive.n)
	}
}

func TestStart_ShortAndMalformedHistory(t *testing.T) {
	hist := []model.Candle{bar(0, 100), {TS: t0.Add(time.Minute), Close: math.NaN()}, bar(2, 101)}
	s := New(&fakeHistory{candles: hist}, &fakePrices{}, quiet())
	snap, err := s.Start(context.Background(), "ETHUSDT", 500)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if snap.Buffered != 2 {
		t.Errorf("expected malformed bar skipped, buffered=%d", snap.Buffered)
	}
	if snap.Latest == nil || snap.Latest.SMAShort.OK {
		t.Errorf("short history must leave indicators unavailable: %+v", snap.Latest)
	}
}

func TestStart_TransportErrorKeepsPriorState(t *testing.T) {
	h := &fakeHistory{candles: zigzag()[:30]}
	s := New(h, &fakePrices{}, quiet())
	first, err := s.Start(context.Background(), "BTCUSDT", 1000)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.err = errors.New("connection reset")
	_, err = s.Start(context.Background(), "ETHUSDT", 50)
	if !IsTransport(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}

	after := s.Snapshot()
	if after.ID != first.ID || after.Symbol != "BTCUSDT" || after.Buffered != 30 || !after.Running {
		t.Errorf("prior state lost: %+v", after)
	}
}

func TestStart_ResetsPreviousSession(t *testing.T) {
	s := New(&fakeHistory{}, &fakePrices{}, quiet(), WithEvaluator(scripted(model.ActionBuy)))
	first, _ := s.Start(context.Background(), "BTCUSDT", 1000)
	s.Ingest(context.Background(), bar(0, 100))
	if len(s.Trades()) != 1 {
		t.Fatal("expected one trade before restart")
	}

	second, err := s.Start(context.Background(), "BTCUSDT", 2000)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if second.ID == first.ID {
		t.Error("restart should assign a new session id")
	}
	if len(second.Trades) != 0 || second.Capital != 2000 || second.Buffered != 0 || second.Position.Side != model.Flat {
		t.Errorf("restart did not reset state: %+v", second)
	}
}

// ────────────────────────────────────────────────────────────
// Ingest
// ────────────────────────────────────────────────────────────

func TestIngest_BuyThenSellScenario(t *testing.T) {
	rec := &recorder{}
	journal := &fakeJournal{}
	s := New(&fakeHistory{}, &fakePrices{}, quiet(),
		WithEvaluator(scripted(model.ActionBuy, model.ActionSell)),
		WithPublisher(rec), WithJournal(journal))
	if _, err := s.Start(context.Background(), "BTCUSDT", 1000); err != nil {
		t.Fatal(err)
	}

	snap, err := s.Ingest(context.Background(), bar(0, 100))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(snap.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(snap.Trades))
	}
	buy := snap.Trades[0]
	if buy.Action != model.ActionBuy || buy.Price != 100 || buy.CapitalAfter != 0 || buy.LongSizeAfter != 10 {
		t.Errorf("unexpected buy %+v", buy)
	}

	snap, _ = s.Ingest(context.Background(), bar(1, 110))
	if len(snap.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(snap.Trades))
	}
	sell := snap.Trades[1]
	if sell.Action != model.ActionSell || sell.Price != 110 || sell.CapitalAfter != 1100 || sell.LongSizeAfter != 0 {
		t.Errorf("unexpected sell %+v", sell)
	}
	if snap.Summary.RealizedPnL != 100 || snap.Summary.Wins != 1 {
		t.Errorf("unexpected summary %+v", snap.Summary)
	}

	if len(rec.updates) != 2 {
		t.Fatalf("expected one update per ingest, got %d", len(rec.updates))
	}
	u := rec.updates[1]
	if u.Action != "update" || u.Price != 110 || u.Trade == nil || u.Trade.Action != model.ActionSell || len(u.TradeLog) != 2 {
		t.Errorf("unexpected update %+v", u)
	}
	if u.Session != snap.ID || u.Symbol != "BTCUSDT" {
		t.Errorf("update not tagged with session: %+v", u)
	}
	if len(journal.trades) != 2 {
		t.Errorf("expected 2 journaled trades, got %d", len(journal.trades))
	}
}

func TestIngest_StoppedIsNoOp(t *testing.T) {
	rec := &recorder{}
	s := New(&fakeHistory{candles: zigzag()[:20]}, &fakePrices{}, quiet(),
		WithEvaluator(scripted(model.ActionBuy, model.ActionBuy)), WithPublisher(rec))
	s.Start(context.Background(), "BTCUSDT", 1000)
	s.Ingest(context.Background(), bar(20, 100))
	before := s.Stop()

	after, err := s.Ingest(context.Background(), bar(21, 105))
	if !errors.Is(err, ErrNotRunning) || !IsState(err) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if after.Buffered != before.Buffered || len(after.Trades) != len(before.Trades) || after.Capital != before.Capital {
		t.Errorf("state changed while stopped: before=%+v after=%+v", before, after)
	}
	if len(rec.updates) != 1 {
		t.Errorf("stopped ingest must not publish, got %d updates", len(rec.updates))
	}

	// Stop keeps the window and ledger for inspection, and is idempotent.
	if again := s.Stop(); again.Buffered != 21 || len(again.Trades) != 1 || again.Running {
		t.Errorf("unexpected state after second stop: %+v", again)
	}
}

func TestIngest_BeforeStart(t *testing.T) {
	s := New(&fakeHistory{}, &fakePrices{}, quiet())
	if _, err := s.Ingest(context.Background(), bar(0, 100)); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestIngest_RejectsMalformedAndOutOfOrder(t *testing.T) {
	s := New(&fakeHistory{}, &fakePrices{}, quiet())
	s.Start(context.Background(), "BTCUSDT", 1000)
	s.Ingest(context.Background(), bar(5, 100))

	if _, err := s.Ingest(context.Background(), model.Candle{TS: t0.Add(24 * time.Hour), Open: 1, High: 1, Low: 1, Close: -1}); !IsConfig(err) {
		t.Errorf("expected ConfigError for negative close, got %v", err)
	}
	if _, err := s.Ingest(context.Background(), bar(4, 100)); !IsConfig(err) {
		t.Errorf("expected ConfigError for older candle, got %v", err)
	}
	if _, err := s.Ingest(context.Background(), bar(5, 101)); err != nil {
		t.Errorf("equal timestamp should be accepted, got %v", err)
	}
	if n := s.Snapshot().Buffered; n != 2 {
		t.Errorf("expected 2 buffered, got %d", n)
	}
}

func TestIngest_WindowNeverExceedsCapacity(t *testing.T) {
	s := New(&fakeHistory{}, &fakePrices{}, quiet(), WithCapacity(16))
	s.Start(context.Background(), "BTCUSDT", 1000)

	bars := zigzag()
	for i, c := range bars {
		snap, err := s.Ingest(context.Background(), c)
		if err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
		want := i + 1
		if want > 16 {
			want = 16
		}
		if snap.Buffered != want {
			t.Fatalf("ingest %d: buffered=%d, want %d", i, snap.Buffered, want)
		}
	}
	candles := s.Candles()
	if candles[15].TS != bars[len(bars)-1].TS || candles[0].TS != bars[len(bars)-16].TS {
		t.Error("window should hold the 16 most recent bars")
	}
}

// ────────────────────────────────────────────────────────────
// Full pipeline with the crossover rule
// ────────────────────────────────────────────────────────────

func runPipeline(t *testing.T, bars []model.Candle) []model.Trade {
	t.Helper()
	s := New(&fakeHistory{}, &fakePrices{}, quiet())
	if _, err := s.Start(context.Background(), "BTCUSDT", 1000); err != nil {
		t.Fatal(err)
	}
	for i, c := range bars {
		snap, err := s.Ingest(context.Background(), c)
		if err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
		p := snap.Position
		if p.LongSize() > 0 && p.ShortSize() > 0 {
			t.Fatalf("bar %d: long and short open at once", i)
		}
		if p.Side != model.Flat && snap.Capital != 0 {
			t.Fatalf("bar %d: capital %v with open position", i, snap.Capital)
		}
		if snap.Capital < 0 {
			t.Fatalf("bar %d: negative capital", i)
		}
	}
	return s.Trades()
}

func TestPipeline_TrendReversal(t *testing.T) {
	trades := runPipeline(t, zigzag())

	want := []model.Action{model.ActionBuy, model.ActionSell, model.ActionShort}
	if len(trades) != len(want) {
		t.Fatalf("expected %d trades, got %d: %+v", len(want), len(trades), trades)
	}
	for i, a := range want {
		if trades[i].Action != a {
			t.Errorf("trade %d: got %s, want %s", i, trades[i].Action, a)
		}
	}

	// First bar of the uptrend is filtered (RSI 100); the second buys at 101.
	if trades[0].Price != 101 {
		t.Errorf("expected buy at 101, got %v", trades[0].Price)
	}

	// Capital conservation through each formula.
	size := 1000 / trades[0].Price
	if math.Abs(trades[0].LongSizeAfter-size) > 1e-9 {
		t.Errorf("long size: got %v, want %v", trades[0].LongSizeAfter, size)
	}
	if math.Abs(trades[1].CapitalAfter-size*trades[1].Price) > 1e-9 {
		t.Errorf("sell capital: got %v, want %v", trades[1].CapitalAfter, size*trades[1].Price)
	}
	if math.Abs(trades[2].ShortSizeAfter-trades[1].CapitalAfter/trades[2].Price) > 1e-9 {
		t.Errorf("short size: got %v", trades[2].ShortSizeAfter)
	}
}

func TestPipeline_Deterministic(t *testing.T) {
	bars := zigzag()
	a := runPipeline(t, bars)
	b := runPipeline(t, bars)
	if len(a) != len(b) {
		t.Fatalf("trade counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("trade %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestPipeline_NoTradeBeforeSlowestIndicator(t *testing.T) {
	// ATR(40) becomes available at index 39, well after the SMAs and RSI.
	s := New(&fakeHistory{}, &fakePrices{}, quiet(),
		WithIndicators(indicator.Config{ShortPeriod: 5, LongPeriod: 16, RSIPeriod: 14, ATRPeriod: 40}))
	if _, err := s.Start(context.Background(), "BTCUSDT", 1000); err != nil {
		t.Fatal(err)
	}
	bars := zigzag()
	for i, c := range bars {
		snap, err := s.Ingest(context.Background(), c)
		if err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
		if i < 39 && len(snap.Trades) != 0 {
			t.Fatalf("bar %d: traded %s while ATR unavailable", i, snap.Trades[0].Action)
		}
	}
	trades := s.Trades()
	if len(trades) == 0 {
		t.Fatal("expected trades once every indicator is available")
	}
	if trades[0].TS.Before(bars[39].TS) {
		t.Errorf("first trade at %s, before ATR warm-up ends at %s", trades[0].TS, bars[39].TS)
	}
}

// ────────────────────────────────────────────────────────────
// Tick
// ────────────────────────────────────────────────────────────

func TestTick_IngestsPriceCandle(t *testing.T) {
	prices := &fakePrices{price: 123.5}
	now := t0.Add(48 * time.Hour)
	s := New(&fakeHistory{candles: zigzag()[:10]}, prices, quiet(), WithClock(func() time.Time { return now }))
	s.Start(context.Background(), "BTCUSDT", 1000)

	snap, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if snap.Buffered != 11 {
		t.Fatalf("expected 11 buffered, got %d", snap.Buffered)
	}
	latest, _ := s.Latest()
	if latest.Open != 123.5 || latest.High != 123.5 || latest.Low != 123.5 || latest.Close != 123.5 || latest.Volume != 0 {
		t.Errorf("expected degenerate candle at 123.5, got %+v", latest.Candle)
	}
	if !latest.TS.Equal(now) {
		t.Errorf("expected tick stamped with clock, got %v", latest.TS)
	}
}

func TestTick_TransportFailureLeavesStateUnchanged(t *testing.T) {
	prices := &fakePrices{err: errors.New("503 from exchange")}
	s := New(&fakeHistory{candles: zigzag()[:10]}, prices, quiet(), WithClock(func() time.Time { return t0.Add(48 * time.Hour) }))
	s.Start(context.Background(), "BTCUSDT", 1000)
	before := s.Snapshot()

	_, err := s.Tick(context.Background())
	if !IsTransport(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	after := s.Snapshot()
	if after.Buffered != before.Buffered || after.Capital != before.Capital || !after.Running {
		t.Errorf("failed tick changed state: before=%+v after=%+v", before, after)
	}

	prices.err = nil
	prices.price = 0
	if _, err := s.Tick(context.Background()); !IsTransport(err) {
		t.Errorf("zero price should be a TransportError, got %v", err)
	}
}

func TestTick_WhileStopped(t *testing.T) {
	s := New(&fakeHistory{}, &fakePrices{price: 100}, quiet())
	if _, err := s.Tick(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestTick_StoppedDuringFetch(t *testing.T) {
	var s *Session
	prices := &fakePrices{price: 100}
	prices.before = func() { s.Stop() }
	s = New(&fakeHistory{}, prices, quiet(), WithClock(func() time.Time { return t0 }))
	s.Start(context.Background(), "BTCUSDT", 1000)

	if _, err := s.Tick(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if s.Snapshot().Buffered != 0 {
		t.Error("tick must not land after stop")
	}
}

func TestRunTicker_StopsOnCancel(t *testing.T) {
	var mu sync.Mutex
	n := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
	s := New(&fakeHistory{}, &fakePrices{price: 100}, quiet(), WithClock(clock))
	s.Start(context.Background(), "BTCUSDT", 1000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunTicker(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for s.Snapshot().Buffered < 3 {
		select {
		case <-deadline:
			t.Fatal("ticker did not ingest")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunTicker did not return after cancel")
	}
}

// ────────────────────────────────────────────────────────────
// Concurrency
// ────────────────────────────────────────────────────────────

func TestIngest_ConcurrentCallsSerialize(t *testing.T) {
	rec := &recorder{}
	s := New(&fakeHistory{}, &fakePrices{}, quiet(), WithCapacity(32), WithPublisher(rec))
	s.Start(context.Background(), "BTCUSDT", 1000)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				c := bar(0, 100+float64((g+i)%5))
				if _, err := s.Ingest(context.Background(), c); err != nil {
					t.Errorf("ingest: %v", err)
				}
				s.Snapshot()
			}
		}(g)
	}
	wg.Wait()

	snap := s.Snapshot()
	if snap.Buffered != 32 {
		t.Errorf("expected full window of 32, got %d", snap.Buffered)
	}
	if len(rec.updates) != 200 {
		t.Errorf("expected 200 updates, got %d", len(rec.updates))
	}
}
