// Package metrics exposes Prometheus metrics and a health endpoint for the
// paper-trading service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the trading session and its sinks.
// Every method is safe to call on a nil *Metrics, so components can run
// without instrumentation in tests.
type Metrics struct {
	// Session pipeline
	IngestsTotal      prometheus.Counter
	RejectedCandles   prometheus.Counter
	SignalsTotal      *prometheus.CounterVec // labels: action
	TradesTotal       *prometheus.CounterVec // labels: action
	TickFailuresTotal prometheus.Counter
	RecomputeDur      prometheus.Histogram
	SessionRunning    prometheus.Gauge

	// Candle window
	BufferLen       prometheus.Gauge
	BufferEvictions prometheus.Counter

	// Ledger
	Capital     prometheus.Gauge
	Equity      prometheus.Gauge
	DrawdownPct prometheus.Gauge

	// Outbound delivery
	FanoutDropsTotal  *prometheus.CounterVec // labels: subscriber
	PublishFailures   *prometheus.CounterVec // labels: sink
	WSClients         prometheus.Gauge
	AlertsTotal       *prometheus.CounterVec // labels: notifier, result
	RedisBreakerState prometheus.Gauge       // 0=closed, 1=open, 2=half-open
	RedisBreakerTrips prometheus.Counter

	// Market data
	HistoryFetchDur prometheus.Histogram
	PriceFetchDur   prometheus.Histogram
}

// NewMetrics creates all metrics and registers them on reg.
// Pass prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_ingests_total",
			Help: "Candles ingested by a running session",
		}),
		RejectedCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_rejected_candles_total",
			Help: "Candles rejected as malformed or received while stopped",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_signals_total",
			Help: "Signals classified on the newest bar (by action)",
		}, []string{"action"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_trades_total",
			Help: "Ledger transitions recorded (by action)",
		}, []string{"action"}),
		TickFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_tick_failures_total",
			Help: "Manual or automatic ticks that failed to fetch a price",
		}),
		RecomputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrader_recompute_duration_seconds",
			Help:    "Full indicator recompute latency over the candle window",
			Buckets: []float64{0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),
		SessionRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_session_running",
			Help: "1 while a session is running, 0 otherwise",
		}),

		BufferLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_buffer_len",
			Help: "Candles currently held in the window",
		}),
		BufferEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_buffer_evictions_total",
			Help: "Oldest candles evicted on window overflow",
		}),

		Capital: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_capital",
			Help: "Uncommitted simulated capital",
		}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_equity",
			Help: "Capital plus open position marked at the last close",
		}),
		DrawdownPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_drawdown_pct",
			Help: "Current drawdown from peak equity in percent",
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_fanout_drops_total",
			Help: "Updates dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_publish_failures_total",
			Help: "Failed deliveries per sink",
		}, []string{"sink"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_alerts_total",
			Help: "Trade alerts sent (by notifier and result)",
		}, []string{"notifier", "result"}),
		RedisBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		HistoryFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrader_history_fetch_duration_seconds",
			Help:    "Candle history fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		PriceFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrader_price_fetch_duration_seconds",
			Help:    "Latest price fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.IngestsTotal,
		m.RejectedCandles,
		m.SignalsTotal,
		m.TradesTotal,
		m.TickFailuresTotal,
		m.RecomputeDur,
		m.SessionRunning,
		m.BufferLen,
		m.BufferEvictions,
		m.Capital,
		m.Equity,
		m.DrawdownPct,
		m.FanoutDropsTotal,
		m.PublishFailures,
		m.WSClients,
		m.AlertsTotal,
		m.RedisBreakerState,
		m.RedisBreakerTrips,
		m.HistoryFetchDur,
		m.PriceFetchDur,
	)

	return m
}

// ObserveIngest records one accepted candle and the window state after it.
func (m *Metrics) ObserveIngest(recompute time.Duration, bufLen int, evicted bool) {
	if m == nil {
		return
	}
	m.IngestsTotal.Inc()
	m.RecomputeDur.Observe(recompute.Seconds())
	m.BufferLen.Set(float64(bufLen))
	if evicted {
		m.BufferEvictions.Inc()
	}
}

// ObserveLedger records capital, equity and drawdown.
func (m *Metrics) ObserveLedger(capital, equity, drawdownPct float64) {
	if m == nil {
		return
	}
	m.Capital.Set(capital)
	m.Equity.Set(equity)
	m.DrawdownPct.Set(drawdownPct)
}

// IncSignal counts a classified signal.
func (m *Metrics) IncSignal(action string) {
	if m == nil {
		return
	}
	m.SignalsTotal.WithLabelValues(action).Inc()
}

// IncTrade counts a ledger transition.
func (m *Metrics) IncTrade(action string) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(action).Inc()
}

// IncRejected counts a rejected candle.
func (m *Metrics) IncRejected() {
	if m == nil {
		return
	}
	m.RejectedCandles.Inc()
}

// IncTickFailure counts a failed tick.
func (m *Metrics) IncTickFailure() {
	if m == nil {
		return
	}
	m.TickFailuresTotal.Inc()
}

// SetRunning sets the session running gauge.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.SessionRunning.Set(1)
	} else {
		m.SessionRunning.Set(0)
	}
}

// IncFanoutDrop counts an update dropped for a slow subscriber.
func (m *Metrics) IncFanoutDrop(subscriber string) {
	if m == nil {
		return
	}
	m.FanoutDropsTotal.WithLabelValues(subscriber).Inc()
}

// IncPublishFailure counts a failed delivery to sink.
func (m *Metrics) IncPublishFailure(sink string) {
	if m == nil {
		return
	}
	m.PublishFailures.WithLabelValues(sink).Inc()
}

// SetWSClients sets the connected WebSocket client count.
func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.WSClients.Set(float64(n))
}

// IncAlert counts an alert delivery attempt.
func (m *Metrics) IncAlert(notifier string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.AlertsTotal.WithLabelValues(notifier, result).Inc()
}

// SetBreakerState records the Redis circuit breaker state; a transition to
// open counts as a trip.
func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.RedisBreakerState.Set(float64(state))
	if state == 1 {
		m.RedisBreakerTrips.Inc()
	}
}

// ObserveHistoryFetch records a history fetch latency.
func (m *Metrics) ObserveHistoryFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.HistoryFetchDur.Observe(d.Seconds())
}

// ObservePriceFetch records a latest-price fetch latency.
func (m *Metrics) ObservePriceFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.PriceFetchDur.Observe(d.Seconds())
}
