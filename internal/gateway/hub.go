package gateway

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"papertrader/internal/metrics"
	"papertrader/internal/model"
	"papertrader/internal/session"
)

const (
	defaultBacklog     = 200
	defaultTickTimeout = 10 * time.Second
	clientSendBuffer   = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Ticker runs one manual tick of the session.
type Ticker interface {
	Tick(ctx context.Context) (session.Snapshot, error)
}

// Hub pushes session updates to WebSocket clients and keeps a short backlog
// of recent updates for late joiners.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64
	backlog *ReplayBuffer

	ticker      Ticker
	metrics     *metrics.Metrics
	tickTimeout time.Duration
}

// NewHub creates a Hub. ticker serves client "update" messages; m may be nil.
func NewHub(ticker Ticker, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		backlog:     NewReplayBuffer(defaultBacklog),
		ticker:      ticker,
		metrics:     m,
		tickTimeout: defaultTickTimeout,
	}
}

// Run broadcasts every update from ch. Blocks until ctx is cancelled or ch
// is closed, then disconnects all clients.
func (h *Hub) Run(ctx context.Context, ch <-chan model.Update) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-ch:
			if !ok {
				return
			}
			h.Broadcast(u.JSON())
		}
	}
}

// Broadcast sends data to every client without blocking. A client whose
// send buffer is full misses the message.
func (h *Hub) Broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	h.backlog.Push(h.seq, data)

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.metrics.IncFanoutDrop("ws")
		}
	}
}

// Recent returns up to n of the most recent broadcasts, oldest first.
func (h *Hub) Recent(n int) [][]byte {
	entries := h.backlog.Last(n)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// HandleWS upgrades the request and registers the client. The optional
// backlog query parameter replays that many recent updates on connect.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		hub:  h,
	}
	conn.EnableWriteCompression(true)

	backlog, _ := strconv.Atoi(r.URL.Query().Get("backlog"))

	h.mu.Lock()
	if backlog > 0 {
		if backlog > clientSendBuffer {
			backlog = clientSendBuffer
		}
		for _, e := range h.backlog.Last(backlog) {
			client.send <- e.Data
		}
	}
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetWSClients(count)
	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.writePump()
	go client.readPump()
}

// RemoveClient unregisters c and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetWSClients(count)
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.metrics.SetWSClients(0)
}

// tick runs a manual tick on behalf of a client. Errors are reported to
// that client only.
func (h *Hub) tick(c *Client) {
	if h.ticker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.tickTimeout)
	defer cancel()

	if _, err := h.ticker.Tick(ctx); err != nil {
		log.Printf("[gateway] ws-triggered tick failed: %v", err)
		c.trySend(errorMessage(err))
	}
}
