package session

import (
	"log/slog"
	"time"

	"papertrader/internal/indicator"
	"papertrader/internal/metrics"
	"papertrader/internal/model"
	"papertrader/internal/strategy"
)

// Option configures a Session.
type Option func(*Session)

// WithCapacity sets the candle window length. Non-positive values keep the
// default of 192.
func WithCapacity(n int) Option {
	return func(s *Session) { s.capacity = n }
}

// WithIndicators sets the indicator periods.
func WithIndicators(cfg indicator.Config) Option {
	return func(s *Session) { s.engine = indicator.NewEngine(cfg) }
}

// WithEvaluator replaces the default SMA crossover rule.
func WithEvaluator(e strategy.Evaluator) Option {
	return func(s *Session) { s.eval = e }
}

// WithPublisher sets the sink that receives one Update per ingestion.
func WithPublisher(p model.Publisher) Option {
	return func(s *Session) { s.publisher = p }
}

// WithJournal records every trade to j.
func WithJournal(j model.TradeJournal) Option {
	return func(s *Session) { s.journal = j }
}

// WithArchive records seed and ingested candles to a.
func WithArchive(a model.CandleArchive) Option {
	return func(s *Session) { s.archive = a }
}

// WithMetrics instruments the session.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithHealth reports session state to the health endpoint.
func WithHealth(h *metrics.HealthStatus) Option {
	return func(s *Session) { s.health = h }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock sets the time source used to stamp tick candles.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}
