// Package session orchestrates one paper-trading session: it seeds a candle
// window from history, and on every new candle recomputes indicators,
// classifies the newest bar and applies the signal to the position ledger.
//
// All mutation is serialized by a single mutex. Provider calls made by Tick
// happen outside the lock, so a slow exchange never blocks readers.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"papertrader/internal/execution"
	"papertrader/internal/indicator"
	"papertrader/internal/logger"
	"papertrader/internal/metrics"
	"papertrader/internal/model"
	"papertrader/internal/portfolio"
	"papertrader/internal/ringbuf"
	"papertrader/internal/strategy"
)

// Snapshot is a read-only view of the session.
type Snapshot struct {
	ID             string                 `json:"id"`
	Symbol         string                 `json:"symbol"`
	InitialCapital float64                `json:"initialCapital"`
	Capital        float64                `json:"capital"`
	Running        bool                   `json:"running"`
	Position       model.Position         `json:"position"`
	Buffered       int                    `json:"buffered"`
	Latest         *model.IndicatedCandle `json:"latest"`
	Trades         []model.Trade          `json:"trades"`
	Summary        portfolio.Summary      `json:"summary"`
}

// Session is a single-symbol trading session.
type Session struct {
	mu sync.Mutex

	history model.HistoryProvider
	prices  model.PriceProvider

	capacity  int
	engine    *indicator.Engine
	eval      strategy.Evaluator
	publisher model.Publisher
	journal   model.TradeJournal
	archive   model.CandleArchive
	metrics   *metrics.Metrics
	health    *metrics.HealthStatus
	logger    *slog.Logger
	now       func() time.Time

	// state, guarded by mu
	id        string
	symbol    string
	initial   float64
	running   bool
	buf       *ringbuf.Buffer
	ledger    *execution.Ledger
	equity    *portfolio.EquityTracker
	indicated []model.IndicatedCandle
}

// New creates a stopped session reading candles from history and live
// prices from prices.
func New(history model.HistoryProvider, prices model.PriceProvider, opts ...Option) *Session {
	s := &Session{
		history: history,
		prices:  prices,
		engine:  indicator.NewEngine(indicator.DefaultConfig()),
		eval:    strategy.NewCrossover(strategy.DefaultRules()),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.buf = ringbuf.New(s.capacity)
	s.ledger = execution.NewLedger(0)
	s.equity = portfolio.NewEquityTracker(0)
	return s
}

// Start resets the session for symbol with capital and seeds the window
// from history. Invalid input returns a ConfigError and a failed fetch a
// TransportError; in both cases the previous state is kept. Seed candles
// never trade.
func (s *Session) Start(ctx context.Context, symbol string, capital float64) (Snapshot, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return s.Snapshot(), err
	}
	if math.IsNaN(capital) || math.IsInf(capital, 0) || capital <= 0 {
		return s.Snapshot(), fmt.Errorf("%w: capital must be positive, got %v", ErrConfig, capital)
	}

	fetchStart := time.Now()
	history, err := s.history.FetchHistory(ctx, symbol)
	s.metrics.ObserveHistoryFetch(time.Since(fetchStart))
	if err != nil {
		return s.Snapshot(), fmt.Errorf("%w: fetch history for %s: %v", ErrTransport, symbol, err)
	}

	seed := make([]model.Candle, 0, len(history))
	for i, c := range history {
		if err := c.Validate(); err != nil {
			s.logger.Warn("skipping malformed history candle", "symbol", symbol, "index", i, "error", err)
			continue
		}
		seed = append(seed, c)
	}

	s.mu.Lock()
	s.id = uuid.NewString()
	s.symbol = symbol
	s.initial = capital
	s.buf.Reset()
	for _, c := range seed {
		s.buf.Push(c)
	}
	s.ledger.Reset(capital)
	s.equity = portfolio.NewEquityTracker(capital)
	s.indicated = s.engine.Recompute(s.buf.Snapshot())
	s.running = true
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.metrics.SetRunning(true)
	s.metrics.ObserveLedger(capital, capital, 0)
	if s.health != nil {
		s.health.SetSession(true, symbol)
	}

	ctx = logger.WithSessionID(ctx, snap.ID)
	s.logger.Info("session started",
		append(logger.LogWithTrace(ctx),
			"symbol", symbol, "capital", capital,
			"history", len(history), "seeded", snap.Buffered,
			"indicators", s.engine.Names())...)

	if s.archive != nil && len(seed) > 0 {
		if err := s.archive.RecordCandles(ctx, symbol, seed); err != nil {
			s.logger.Warn("archive seed candles failed", append(logger.LogWithTrace(ctx), "error", err)...)
		}
	}
	return snap, nil
}

// Ingest appends one candle and runs a full cycle: recompute indicators,
// classify the newest bar, apply the signal and publish one Update.
// While stopped it returns the unchanged state and ErrNotRunning.
func (s *Session) Ingest(ctx context.Context, c model.Candle) (Snapshot, error) {
	return s.ingest(ctx, c, "")
}

// ingest runs one cycle. A non-empty expectID rejects the candle if the
// session was restarted since the caller read it.
func (s *Session) ingest(ctx context.Context, c model.Candle, expectID string) (Snapshot, error) {
	if err := c.Validate(); err != nil {
		s.metrics.IncRejected()
		return s.Snapshot(), fmt.Errorf("%w: %v", ErrConfig, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || (expectID != "" && expectID != s.id) {
		s.metrics.IncRejected()
		return s.snapshotLocked(), ErrNotRunning
	}
	if last, ok := s.buf.Last(); ok && c.TS.Before(last.TS) {
		s.metrics.IncRejected()
		return s.snapshotLocked(), fmt.Errorf("%w: candle at %s is older than newest buffered %s",
			ErrConfig, c.TS.Format(time.RFC3339), last.TS.Format(time.RFC3339))
	}

	ctx = logger.WithSessionID(logger.WithTraceID(ctx, logger.GenerateTraceID(s.symbol, c.TS)), s.id)

	evicted := s.buf.Push(c)
	start := time.Now()
	s.indicated = s.engine.Recompute(s.buf.Snapshot())
	s.metrics.ObserveIngest(time.Since(start), s.buf.Len(), evicted)

	newest := s.indicated[len(s.indicated)-1]
	sig := s.eval.Evaluate(newest)
	s.metrics.IncSignal(sig.Action.String())

	var tradePtr *model.Trade
	if trade, ok := s.ledger.Apply(sig.Action, c.Close, c.TS); ok {
		tradePtr = &trade
		s.metrics.IncTrade(trade.Action.String())
		s.logger.Info("trade",
			append(logger.LogWithTrace(ctx),
				"action", trade.Action.String(), "price", trade.Price,
				"capital", trade.CapitalAfter, "long", trade.LongSizeAfter,
				"short", trade.ShortSizeAfter, "reason", sig.Reason)...)
		if s.journal != nil {
			if err := s.journal.RecordTrade(ctx, s.id, s.symbol, trade); err != nil {
				s.logger.Warn("journal trade failed", append(logger.LogWithTrace(ctx), "error", err)...)
			}
		}
	} else {
		s.logger.Debug("bar evaluated",
			append(logger.LogWithTrace(ctx), "signal", sig.Action.String(), "close", c.Close, "reason", sig.Reason)...)
	}

	eq := s.ledger.Equity(c.Close)
	dd := s.equity.Observe(eq)
	s.metrics.ObserveLedger(s.ledger.Capital(), eq, dd)
	if s.health != nil {
		s.health.SetLastIngest(s.now())
	}

	if s.archive != nil {
		if err := s.archive.RecordCandles(ctx, s.symbol, []model.Candle{c}); err != nil {
			s.logger.Warn("archive candle failed", append(logger.LogWithTrace(ctx), "error", err)...)
		}
	}

	if s.publisher != nil {
		u := model.Update{
			Action:   "update",
			Session:  s.id,
			Symbol:   s.symbol,
			Price:    c.Close,
			SMAShort: newest.SMAShort,
			SMALong:  newest.SMALong,
			RSI:      newest.RSI,
			ATR:      newest.ATR,
			Trade:    tradePtr,
			TradeLog: s.ledger.Trades(),
			TS:       c.TS,
		}
		if err := s.publisher.Publish(ctx, u); err != nil {
			s.metrics.IncPublishFailure("session")
			s.logger.Warn("publish update failed", append(logger.LogWithTrace(ctx), "error", err)...)
		}
	}

	return s.snapshotLocked(), nil
}

// Tick fetches the latest price and ingests it as a zero-volume candle.
// A failed fetch returns a TransportError and leaves the session untouched.
func (s *Session) Tick(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	running, symbol, id := s.running, s.symbol, s.id
	s.mu.Unlock()

	if !running {
		return s.Snapshot(), ErrNotRunning
	}

	fetchStart := time.Now()
	price, err := s.prices.FetchLatestPrice(ctx, symbol)
	s.metrics.ObservePriceFetch(time.Since(fetchStart))
	if err == nil && (math.IsNaN(price) || math.IsInf(price, 0) || price <= 0) {
		err = fmt.Errorf("invalid price %v", price)
	}
	if err != nil {
		s.metrics.IncTickFailure()
		return s.Snapshot(), fmt.Errorf("%w: fetch price for %s: %v", ErrTransport, symbol, err)
	}

	return s.ingest(ctx, model.PriceCandle(price, s.now()), id)
}

// Stop marks the session not running. The window and ledger are kept so
// they can still be inspected. Stopping twice is a no-op.
func (s *Session) Stop() Snapshot {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if wasRunning {
		s.metrics.SetRunning(false)
		if s.health != nil {
			s.health.SetSession(false, snap.Symbol)
		}
		s.logger.Info("session stopped", "session_id", snap.ID, "symbol", snap.Symbol, "trades", len(snap.Trades))
	}
	return snap
}

// RunTicker calls Tick every interval until ctx is done. Per-tick errors
// are logged and never stop the loop.
func (s *Session) RunTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, interval)
			_, err := s.Tick(tickCtx)
			cancel()
			switch {
			case err == nil:
			case IsState(err):
				s.logger.Debug("auto tick skipped", "error", err)
			default:
				s.logger.Warn("auto tick failed", "error", err)
			}
		}
	}
}

// Snapshot returns the current read-only view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Trades returns a copy of the trade log, oldest first.
func (s *Session) Trades() []model.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Trades()
}

// Candles returns the indicated window, oldest first.
func (s *Session) Candles() []model.IndicatedCandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.IndicatedCandle, len(s.indicated))
	copy(out, s.indicated)
	return out
}

// Latest returns the newest indicated candle.
func (s *Session) Latest() (model.IndicatedCandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.indicated) == 0 {
		return model.IndicatedCandle{}, false
	}
	return s.indicated[len(s.indicated)-1], true
}

// Running reports whether the session accepts candles.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:             s.id,
		Symbol:         s.symbol,
		InitialCapital: s.initial,
		Capital:        s.ledger.Capital(),
		Running:        s.running,
		Position:       s.ledger.Position(),
		Buffered:       s.buf.Len(),
		Trades:         s.ledger.Trades(),
	}
	mark := 0.0
	if n := len(s.indicated); n > 0 {
		latest := s.indicated[n-1]
		snap.Latest = &latest
		mark = latest.Close
	}
	snap.Summary = portfolio.Summarize(s.initial, snap.Capital, snap.Position, snap.Trades, mark)
	snap.Summary.MaxDrawdownPct = s.equity.MaxDrawdown()
	return snap
}

// normalizeSymbol upper-cases symbol and requires 2 to 20 letters or digits.
func normalizeSymbol(symbol string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if len(sym) < 2 || len(sym) > 20 {
		return "", fmt.Errorf("%w: invalid symbol %q", ErrConfig, symbol)
	}
	for _, r := range sym {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: invalid symbol %q", ErrConfig, symbol)
		}
	}
	return sym, nil
}
