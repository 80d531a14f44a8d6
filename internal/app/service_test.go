package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"papertrader/config"
	sqlitestore "papertrader/internal/store/sqlite"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		HTTPAddr:       "127.0.0.1:0",
		BufferCapacity: 192,
		SMAShort:       5,
		SMALong:        16,
		RSIPeriod:      14,
		ATRPeriod:      14,
		RSIOverbought:  70,
		RSIOversold:    30,
		FetchTimeout:   time.Second,
		KlineInterval:  "15m",
		BinanceBaseURL: "http://127.0.0.1:1", // never reached by these tests
		SQLitePath:     filepath.Join(t.TempDir(), "data", "papertrader.db"),
	}
}

func TestNew_WiresOptionalSQLite(t *testing.T) {
	svc, err := New(testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if svc.journal == nil || svc.archive == nil {
		t.Fatal("expected SQLite journal and archive to be opened")
	}
	t.Cleanup(func() {
		svc.journal.Close()
		svc.archive.Close()
	})
	if svc.redis != nil {
		t.Error("redis should stay disabled without REDIS_ADDR")
	}

	rec := httptest.NewRecorder()
	svc.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /session: %d", rec.Code)
	}
	var snap map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &snap)
	if snap["running"] != false {
		t.Errorf("new service should have a stopped session, got %v", snap)
	}

	rec = httptest.NewRecorder()
	svc.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/journal", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("journal route should be enabled, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	svc.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/start", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST /start without body: expected 400, got %d", rec.Code)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.SMAShort = 20
	if _, err := New(cfg, slog.Default()); err == nil {
		t.Fatal("expected config validation error")
	}
}

func TestRun_ArchivesSeedCandlesBeforeShutdown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			[1704067200000,"42000.10","42100.00","41900.50","42050.00","12.5",1704068099999,"525000.0",100,"6.0","252000.0","0"],
			[1704068100000,"42050.00","42200.00","42000.00","42150.25","8.25",1704068999999,"347000.0",80,"4.0","168000.0","0"]
		]`))
	})
	mux.HandleFunc("/api/v3/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	exchange := httptest.NewServer(mux)
	defer exchange.Close()

	cfg := testConfig(t)
	cfg.BinanceBaseURL = exchange.URL
	cfg.AutoSymbol = "BTCUSDT"
	cfg.AutoCapital = 1000

	svc, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !svc.session.Running() {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("auto start did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	a, err := sqlitestore.Open(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		t.Fatalf("reopen archive: %v", err)
	}
	defer a.Close()
	got, err := a.ReadCandles("BTCUSDT", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 archived seed candles, got %d", len(got))
	}
}
