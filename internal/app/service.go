// Package app wires the papertrader service: market data, the trading
// session, its sinks and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"papertrader/config"
	"papertrader/internal/execution"
	"papertrader/internal/gateway"
	"papertrader/internal/indicator"
	"papertrader/internal/marketdata/binance"
	"papertrader/internal/marketdata/bus"
	"papertrader/internal/metrics"
	"papertrader/internal/notification"
	"papertrader/internal/session"
	redisstore "papertrader/internal/store/redis"
	sqlitestore "papertrader/internal/store/sqlite"
	"papertrader/internal/strategy"
)

const (
	busBufferSize    = 256
	livenessInterval = 15 * time.Second
	shutdownTimeout  = 5 * time.Second
)

// Service is the top-level orchestrator.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg *config.Config
	log *slog.Logger

	registry *prometheus.Registry
	prom     *metrics.Metrics
	health   *metrics.HealthStatus

	provider *binance.Provider
	bus      *bus.FanOut
	journal  *execution.Journal
	archive  *sqlitestore.Archive
	archiveQ *sqlitestore.Queue
	redis    *redisstore.Writer
	breaker  *redisstore.CircuitBreaker
	alerter  *notification.TradeAlerter
	session  *session.Session
	hub      *gateway.Hub

	httpSrv    *http.Server
	metricsSrv *metrics.Server

	stopArchive context.CancelFunc
	archiveDone chan struct{}
}

// New builds the service. Optional sinks (SQLite, Redis, alerts) that fail
// to initialize are logged and skipped.
func New(cfg *config.Config, log *slog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	svc := &Service{
		cfg:      cfg,
		log:      log,
		registry: prometheus.NewRegistry(),
		health:   metrics.NewHealthStatus(),
	}
	svc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	svc.prom = metrics.NewMetrics(svc.registry)

	// ---- Market data ----
	svc.provider = binance.New(binance.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		BaseURL:   cfg.BinanceBaseURL,
		Testnet:   cfg.BinanceTestnet,
		Interval:  cfg.KlineInterval,
		Limit:     cfg.BufferCapacity,
	})

	// ---- Storage ----
	if cfg.SQLitePath != "" {
		svc.openSQLite(cfg.SQLitePath)
	}
	if cfg.RedisAddr != "" {
		svc.openRedis()
	}

	// ---- Fan-out + alerts ----
	svc.bus = bus.New(busBufferSize)
	svc.bus.OnDrop = svc.prom.IncFanoutDrop
	svc.alerter = notification.NewTradeAlerter(svc.prom, svc.notifiers()...)

	// ---- Session ----
	opts := []session.Option{
		session.WithCapacity(cfg.BufferCapacity),
		session.WithIndicators(indicator.Config{
			ShortPeriod: cfg.SMAShort,
			LongPeriod:  cfg.SMALong,
			RSIPeriod:   cfg.RSIPeriod,
			ATRPeriod:   cfg.ATRPeriod,
		}),
		session.WithEvaluator(strategy.NewCrossover(strategy.Rules{
			Overbought: cfg.RSIOverbought,
			Oversold:   cfg.RSIOversold,
		})),
		session.WithPublisher(svc.bus),
		session.WithMetrics(svc.prom),
		session.WithHealth(svc.health),
		session.WithLogger(log),
	}
	if svc.journal != nil {
		opts = append(opts, session.WithJournal(svc.journal))
	}
	if svc.archive != nil {
		opts = append(opts, session.WithArchive(svc.archiveQ))
	}
	svc.session = session.New(svc.provider, svc.provider, opts...)

	// ---- HTTP ----
	svc.hub = gateway.NewHub(svc.session, svc.prom)
	routerCfg := gateway.RouterConfig{
		Controller:     svc.session,
		Hub:            svc.hub,
		Health:         svc.health,
		Gatherer:       svc.registry,
		OTPSecret:      cfg.ControlSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		FetchTimeout:   cfg.FetchTimeout,
	}
	if svc.journal != nil {
		routerCfg.Journal = svc.journal
	}
	svc.httpSrv = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           gateway.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if cfg.MetricsAddr != "" {
		svc.metricsSrv = metrics.NewServer(cfg.MetricsAddr, svc.health, svc.registry)
	}

	return svc, nil
}

func (svc *Service) openSQLite(path string) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			svc.log.Warn("sqlite dir create failed, continuing without SQLite", "path", dir, "error", err)
			return
		}
	}
	j, err := execution.NewJournal(path)
	if err != nil {
		svc.log.Warn("trade journal init failed", "error", err)
	} else {
		svc.journal = j
	}
	a, err := sqlitestore.Open(sqlitestore.Config{DBPath: path})
	if err != nil {
		svc.log.Warn("candle archive init failed", "error", err)
	} else {
		svc.archive = a
		svc.archiveQ = sqlitestore.NewQueue(sqlitestore.DefaultQueueSize)
	}
}

func (svc *Service) openRedis() {
	w, err := redisstore.New(redisstore.Config{
		Addr:     svc.cfg.RedisAddr,
		Password: svc.cfg.RedisPassword,
		DB:       svc.cfg.RedisDB,
	})
	if err != nil {
		svc.log.Warn("redis unavailable, continuing without update mirroring", "addr", svc.cfg.RedisAddr, "error", err)
		return
	}
	svc.redis = w
	svc.breaker = redisstore.NewCircuitBreaker(5, 10*time.Second)
	svc.breaker.OnStateChange = func(from, to redisstore.State) {
		svc.prom.SetBreakerState(int(to))
		svc.log.Warn("redis circuit breaker transition", "from", from.String(), "to", to.String())
	}
}

func (svc *Service) notifiers() []notification.Notifier {
	ns := []notification.Notifier{notification.NewLogNotifier()}
	if svc.cfg.WebhookURL != "" {
		ns = append(ns, notification.NewWebhookNotifier(svc.cfg.WebhookURL))
	}
	if svc.cfg.TelegramToken != "" {
		tg, err := notification.NewTelegramNotifier(svc.cfg.TelegramToken, svc.cfg.TelegramChatID)
		if err != nil {
			svc.log.Warn("telegram alerts disabled", "error", err)
		} else {
			ns = append(ns, tg)
		}
	}
	return ns
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg

	// ---- Consumers ----
	go svc.hub.Run(ctx, svc.bus.Subscribe("ws"))
	go svc.alerter.Run(ctx, svc.bus.Subscribe("alerts"))
	if svc.redis != nil {
		bw := redisstore.NewBufferedWriter(ctx, svc.redis, svc.breaker, 0)
		bw.OnError = func(error) { svc.prom.IncPublishFailure("redis") }
		go bw.Run(ctx, svc.bus.Subscribe("redis"))
	}

	if svc.archive != nil {
		// Outlives ctx so shutdown can stop the session before the last flush.
		archCtx, stop := context.WithCancel(context.Background())
		svc.stopArchive = stop
		svc.archiveDone = make(chan struct{})
		go func() {
			defer close(svc.archiveDone)
			svc.archive.Run(archCtx, svc.archiveQ.C())
		}()
	}

	// ---- Health ----
	probes := metrics.Probes{Exchange: svc.provider}
	if svc.redis != nil {
		probes.Redis = svc.redis.Client()
	}
	if svc.archive != nil {
		probes.SQLite = svc.archive
	}
	svc.health.StartLivenessChecker(ctx, probes, livenessInterval)

	// ---- HTTP ----
	if svc.metricsSrv != nil {
		svc.metricsSrv.Start()
	}
	errCh := make(chan error, 1)
	go func() {
		svc.log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := svc.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// ---- Optional auto start / auto tick ----
	if cfg.AutoSymbol != "" {
		startCtx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
		if _, err := svc.session.Start(startCtx, cfg.AutoSymbol, cfg.AutoCapital); err != nil {
			svc.log.Error("auto start failed", "symbol", cfg.AutoSymbol, "error", err)
		}
		cancel()
	}
	if cfg.TickInterval > 0 {
		go svc.session.RunTicker(ctx, cfg.TickInterval)
	}

	svc.log.Info("papertrader running",
		"http", cfg.HTTPAddr,
		"interval", cfg.KlineInterval,
		"redis", svc.redis != nil,
		"sqlite", svc.archive != nil,
		"auto_tick", cfg.TickInterval.String(),
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	svc.shutdown()
	return runErr
}

// shutdown stops the session and closes connections.
func (svc *Service) shutdown() {
	svc.log.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := svc.httpSrv.Shutdown(ctx); err != nil {
		svc.log.Warn("http shutdown", "error", err)
	}
	if svc.metricsSrv != nil {
		svc.metricsSrv.Stop(ctx)
	}

	snap := svc.session.Stop()
	svc.bus.Close()

	if svc.stopArchive != nil {
		svc.stopArchive()
		select {
		case <-svc.archiveDone:
		case <-ctx.Done():
			svc.log.Warn("candle archive flush timed out", "pending", svc.archiveQ.Pending())
		}
	}

	if svc.journal != nil {
		svc.journal.Close()
	}
	if svc.archive != nil {
		svc.archive.Close()
	}
	if svc.redis != nil {
		svc.redis.Close()
	}

	svc.log.Info("shutdown complete", "session_id", snap.ID, "trades", len(snap.Trades), "capital", snap.Capital)
}
