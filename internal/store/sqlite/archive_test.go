package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"papertrader/internal/model"
)

var t0 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func openTemp(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(Config{DBPath: filepath.Join(t.TempDir(), "archive.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func bar(i int, close float64) model.Candle {
	return model.Candle{
		TS:   t0.Add(time.Duration(i) * 15 * time.Minute),
		Open: close - 1, High: close + 1, Low: close - 2, Close: close, Volume: 3.5,
	}
}

func TestArchive_RecordAndRead(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	if err := a.RecordCandles(ctx, "BTCUSDT", []model.Candle{bar(1, 101), bar(0, 100), bar(2, 102)}); err != nil {
		t.Fatalf("RecordCandles: %v", err)
	}
	if err := a.RecordCandles(ctx, "ETHUSDT", []model.Candle{bar(0, 10)}); err != nil {
		t.Fatalf("RecordCandles: %v", err)
	}

	got, err := a.ReadCandles("BTCUSDT", time.Time{})
	if err != nil {
		t.Fatalf("ReadCandles: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(got))
	}
	for i, c := range got {
		want := bar(i, float64(100+i))
		if !c.TS.Equal(want.TS) || c.Close != want.Close || c.High != want.High || c.Volume != want.Volume {
			t.Errorf("index %d: got %+v, want %+v", i, c, want)
		}
	}

	after, _ := a.ReadCandles("BTCUSDT", t0)
	if len(after) != 2 {
		t.Errorf("expected 2 candles after t0, got %d", len(after))
	}

	syms, _ := a.Symbols()
	if len(syms) != 2 || syms[0] != "BTCUSDT" || syms[1] != "ETHUSDT" {
		t.Errorf("unexpected symbols %v", syms)
	}
}

func TestArchive_ReplaceSameBar(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	a.RecordCandles(ctx, "BTCUSDT", []model.Candle{bar(0, 100)})
	a.RecordCandles(ctx, "BTCUSDT", []model.Candle{bar(0, 105)})

	got, _ := a.ReadCandles("BTCUSDT", time.Time{})
	if len(got) != 1 || got[0].Close != 105 {
		t.Fatalf("expected single replaced bar at 105, got %+v", got)
	}

	last, err := a.LastTimestamp("BTCUSDT")
	if err != nil || !last.Equal(t0) {
		t.Errorf("LastTimestamp = %v, %v; want %v", last, err, t0)
	}
	if none, _ := a.LastTimestamp("XRPUSDT"); !none.IsZero() {
		t.Errorf("expected zero time for unknown symbol, got %v", none)
	}
}

func TestArchive_RunFlushesOnClose(t *testing.T) {
	a := openTemp(t)
	ch := make(chan SymbolCandle, 10)
	done := make(chan struct{})
	go func() {
		a.Run(context.Background(), ch)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		ch <- SymbolCandle{Symbol: "BTCUSDT", Candle: bar(i, float64(100+i))}
	}
	close(ch)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after channel close")
	}

	got, _ := a.ReadCandles("BTCUSDT", time.Time{})
	if len(got) != 5 {
		t.Fatalf("expected 5 flushed candles, got %d", len(got))
	}
}

func TestQueue_FeedsRunWithoutBlocking(t *testing.T) {
	a := openTemp(t)
	q := NewQueue(8)

	seed := []model.Candle{bar(0, 100), bar(1, 101), bar(2, 102)}
	if err := q.RecordCandles(context.Background(), "BTCUSDT", seed); err != nil {
		t.Fatalf("RecordCandles: %v", err)
	}
	if q.Pending() != 3 {
		t.Fatalf("expected 3 pending, got %d", q.Pending())
	}

	// Cancelling before Run ever reads still writes everything queued.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.Run(ctx, q.C())

	got, _ := a.ReadCandles("BTCUSDT", time.Time{})
	if len(got) != 3 {
		t.Fatalf("expected 3 archived candles, got %d", len(got))
	}
	if q.Pending() != 0 {
		t.Errorf("expected queue drained, %d pending", q.Pending())
	}
}

func TestQueue_FullDropsAndReports(t *testing.T) {
	q := NewQueue(2)
	err := q.RecordCandles(context.Background(), "ETHUSDT", []model.Candle{bar(0, 1), bar(1, 2), bar(2, 3), bar(3, 4)})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if q.Dropped() != 2 {
		t.Errorf("expected 2 dropped, got %d", q.Dropped())
	}
	first := <-q.C()
	if first.Symbol != "ETHUSDT" || first.Candle.Close != 1 {
		t.Errorf("expected oldest candle kept first, got %+v", first)
	}
}

func TestQueue_DefaultSize(t *testing.T) {
	if got := cap(NewQueue(0).ch); got != DefaultQueueSize {
		t.Fatalf("expected default size %d, got %d", DefaultQueueSize, got)
	}
}

func TestArchive_Ping(t *testing.T) {
	if err := openTemp(t).Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
