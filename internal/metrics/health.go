package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency that can be probed for liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// dependency holds the last probe result for one optional dependency.
type dependency struct {
	enabled   bool
	ok        bool
	latencyMs float64
}

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	sessionRunning bool
	symbol         string
	lastIngest     time.Time

	redis    dependency
	sqlite   dependency
	exchange dependency

	lastCheckAt time.Time
	startedAt   time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{startedAt: time.Now()}
}

// SetSession records the session state.
func (h *HealthStatus) SetSession(running bool, symbol string) {
	h.mu.Lock()
	h.sessionRunning = running
	h.symbol = symbol
	h.mu.Unlock()
}

// SetLastIngest records the time of the last accepted candle.
func (h *HealthStatus) SetLastIngest(t time.Time) {
	h.mu.Lock()
	h.lastIngest = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	h.record(&h.redis, err, time.Since(start))
}

// CheckSQLite probes the SQLite store.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db Pinger) {
	start := time.Now()
	err := db.Ping(ctx)
	h.record(&h.sqlite, err, time.Since(start))
}

// CheckExchange probes the market data source.
func (h *HealthStatus) CheckExchange(ctx context.Context, ex Pinger) {
	start := time.Now()
	err := ex.Ping(ctx)
	h.record(&h.exchange, err, time.Since(start))
}

func (h *HealthStatus) record(d *dependency, err error, latency time.Duration) {
	h.mu.Lock()
	d.enabled = true
	d.ok = err == nil
	d.latencyMs = float64(latency.Microseconds()) / 1000.0
	h.lastCheckAt = time.Now()
	h.mu.Unlock()
	if err != nil {
		log.Printf("[health] probe failed: %v", err)
	}
}

// Probes groups the optional dependencies checked by the liveness loop.
// Nil fields are skipped.
type Probes struct {
	Redis    *goredis.Client
	SQLite   Pinger
	Exchange Pinger
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, p Probes, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.probe(ctx, p)
			}
		}
	}()
}

func (h *HealthStatus) probe(ctx context.Context, p Probes) {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if p.Redis != nil {
		h.CheckRedis(probeCtx, p.Redis)
	}
	if p.SQLite != nil {
		h.CheckSQLite(probeCtx, p.SQLite)
	}
	if p.Exchange != nil {
		h.CheckExchange(probeCtx, p.Exchange)
	}
}

// ServeHTTP handles the health endpoint.
// Degraded means an enabled dependency failed its last probe.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	for _, d := range []dependency{h.redis, h.sqlite, h.exchange} {
		if d.enabled && !d.ok {
			overallStatus = "degraded"
			httpCode = http.StatusServiceUnavailable
		}
	}

	ingestAge := ""
	if !h.lastIngest.IsZero() {
		ingestAge = time.Since(h.lastIngest).Round(time.Millisecond).String()
	}

	status := struct {
		Status            string  `json:"status"`
		Uptime            string  `json:"uptime"`
		SessionRunning    bool    `json:"session_running"`
		Symbol            string  `json:"symbol,omitempty"`
		IngestAge         string  `json:"ingest_age"`
		RedisConnected    *bool   `json:"redis_connected,omitempty"`
		RedisLatencyMs    float64 `json:"redis_latency_ms,omitempty"`
		SQLiteOK          *bool   `json:"sqlite_ok,omitempty"`
		SQLiteLatencyMs   float64 `json:"sqlite_latency_ms,omitempty"`
		ExchangeOK        *bool   `json:"exchange_ok,omitempty"`
		ExchangeLatencyMs float64 `json:"exchange_latency_ms,omitempty"`
		LastCheckAt       string  `json:"last_check_at,omitempty"`
	}{
		Status:            overallStatus,
		Uptime:            time.Since(h.startedAt).Round(time.Second).String(),
		SessionRunning:    h.sessionRunning,
		Symbol:            h.symbol,
		IngestAge:         ingestAge,
		RedisConnected:    okPtr(h.redis),
		RedisLatencyMs:    h.redis.latencyMs,
		SQLiteOK:          okPtr(h.sqlite),
		SQLiteLatencyMs:   h.sqlite.latencyMs,
		ExchangeOK:        okPtr(h.exchange),
		ExchangeLatencyMs: h.exchange.latencyMs,
	}
	if !h.lastCheckAt.IsZero() {
		status.LastCheckAt = h.lastCheckAt.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

func okPtr(d dependency) *bool {
	if !d.enabled {
		return nil
	}
	ok := d.ok
	return &ok
}

// Server runs a standalone HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server backed by gatherer.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
