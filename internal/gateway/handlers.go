// Package gateway exposes a trading session over HTTP and WebSocket: the
// control routes (start, stop, manual tick), read views, health, metrics and
// the live update push.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"papertrader/internal/execution"
	"papertrader/internal/model"
	"papertrader/internal/session"
)

// Controller is the session surface the HTTP routes drive.
type Controller interface {
	Ticker
	Start(ctx context.Context, symbol string, capital float64) (session.Snapshot, error)
	Stop() session.Snapshot
	Snapshot() session.Snapshot
	Trades() []model.Trade
}

// TradeHistory reads the persisted trade journal.
type TradeHistory interface {
	GetTrades(limit int) ([]execution.TradeRecord, error)
}

// RouterConfig wires the HTTP surface. Only Controller and Hub are required.
type RouterConfig struct {
	Controller     Controller
	Hub            *Hub
	Health         http.Handler
	Gatherer       prometheus.Gatherer
	Journal        TradeHistory
	OTPSecret      string
	AllowedOrigins []string
	FetchTimeout   time.Duration // bounds provider calls made by /start and /update
	Now            func() time.Time
}

type handlers struct {
	ctl     Controller
	hub     *Hub
	journal TradeHistory
	timeout time.Duration
}

// NewRouter builds the routed, CORS-wrapped handler.
func NewRouter(cfg RouterConfig) http.Handler {
	h := &handlers{
		ctl:     cfg.Controller,
		hub:     cfg.Hub,
		journal: cfg.Journal,
		timeout: cfg.FetchTimeout,
	}
	if h.timeout <= 0 {
		h.timeout = defaultTickTimeout
	}
	guard := RequireOTP(cfg.OTPSecret, cfg.Now)

	r := mux.NewRouter()

	// Control
	r.Handle("/start", guard(http.HandlerFunc(h.start))).Methods(http.MethodPost)
	r.Handle("/stop", guard(http.HandlerFunc(h.stop))).Methods(http.MethodPost)
	r.HandleFunc("/update", h.update).Methods(http.MethodGet)

	// Read views
	r.HandleFunc("/trades", h.trades).Methods(http.MethodGet)
	r.HandleFunc("/session", h.snapshot).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/updates", h.recentUpdates).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/journal", h.journalTrades).Methods(http.MethodGet)

	// Ops
	if cfg.Health != nil {
		r.Handle("/api/v1/health", cfg.Health).Methods(http.MethodGet)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	// Push
	r.HandleFunc("/ws", h.hub.HandleWS)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", OTPHeader},
	}).Handler(r)
}

func (h *handlers) start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	snap, err := h.ctl.Start(ctx, req.Symbol, req.Capital)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StartResponse{
		Status:  "started",
		Symbol:  snap.Symbol,
		Capital: snap.InitialCapital,
		Session: snap.ID,
	})
}

func (h *handlers) stop(w http.ResponseWriter, r *http.Request) {
	h.ctl.Stop()
	writeJSON(w, http.StatusOK, StatusResponse{Status: "stopped"})
}

// update runs one manual tick. A stopped session or an exchange failure
// skips the tick rather than failing the request.
func (h *handlers) update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	_, err := h.ctl.Tick(ctx)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, StatusResponse{Status: "updated"})
	case session.IsState(err) || session.IsTransport(err):
		log.Printf("[gateway] manual tick skipped: %v", err)
		writeJSON(w, http.StatusOK, StatusResponse{Status: "skipped", Reason: err.Error()})
	default:
		writeError(w, err)
	}
}

func (h *handlers) trades(w http.ResponseWriter, r *http.Request) {
	trades := h.ctl.Trades()
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (h *handlers) snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctl.Snapshot())
}

func (h *handlers) recentUpdates(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	recent := h.hub.Recent(limit)
	out := make([]json.RawMessage, len(recent))
	for i, b := range recent {
		out[i] = b
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) journalTrades(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "trade journal not configured"})
		return
	}
	records, err := h.journal.GetTrades(queryInt(r, "limit", 100))
	if err != nil {
		log.Printf("[gateway] journal read failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "journal read failed"})
		return
	}
	if records == nil {
		records = []execution.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// writeError maps session error kinds to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case session.IsConfig(err):
		status = http.StatusBadRequest
	case session.IsTransport(err):
		status = http.StatusBadGateway
	case session.IsState(err):
		status = http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[gateway] encode response: %v", err)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
