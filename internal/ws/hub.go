package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/vitals/internal/api"
	"github.com/obsidianstack/vitals/internal/config"
	"github.com/obsidianstack/vitals/internal/store"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10 // must stay below pongWait
	sendBuffer   = 16                // queued messages per client before it is dropped
	maxInbound   = 512               // clients only send control frames
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients on every broadcast tick.
type Message struct {
	Event string               `json:"event"`
	Data  api.SnapshotResponse `json:"data"`
}

// Hub manages WebSocket client connections and pushes the score of every live
// page view to all connected clients every interval. A client that connects
// with ?page={id} only receives that page.
type Hub struct {
	store  *store.Store
	resets chan time.Duration

	mu       sync.RWMutex
	interval time.Duration
	clients  map[*client]struct{}
}

// client is one websocket subscriber.
type client struct {
	conn *websocket.Conn
	send chan []byte
	page string // empty means every page
}

// New creates a Hub that reads from st and broadcasts every interval.
// A non-positive interval uses config.DefaultPollInterval.
func New(st *store.Store, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}
	return &Hub{
		store:    st,
		interval: interval,
		resets:   make(chan time.Duration, 1),
		clients:  make(map[*client]struct{}),
	}
}

// SetInterval changes the broadcast period of a running hub.
func (h *Hub) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	h.mu.Lock()
	h.interval = d
	h.mu.Unlock()
	select {
	case h.resets <- d:
	default:
		// A reset is already queued; Run reads the latest interval anyway.
	}
}

// Run starts the broadcast ticker loop. Run blocks until ctx is cancelled,
// then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	h.mu.RLock()
	t := time.NewTicker(h.interval)
	h.mu.RUnlock()
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-h.resets:
			h.mu.RLock()
			t.Reset(h.interval)
			h.mu.RUnlock()
		case <-t.C:
			h.broadcast()
		}
	}
}

// ServeHTTP upgrades the request and streams snapshots until the client
// disconnects. The first snapshot is queued right away rather than on the
// next tick.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("ws: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		page: r.URL.Query().Get("page"),
	}
	h.register(c)
	defer h.unregister(c)

	if data, err := h.buildMessage(c.page); err == nil {
		select {
		case c.send <- data:
		default:
		}
	}

	go c.writeLoop()
	c.readLoop()
}

// Count reports how many clients are connected.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	slog.Debug("ws: client connected", "page", c.page, "clients", h.Count())
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) broadcast() {
	h.mu.RLock()
	if len(h.clients) == 0 {
		h.mu.RUnlock()
		return
	}

	// One encoding per distinct filter.
	msgs := make(map[string][]byte)
	var slow []*client
	for c := range h.clients {
		data, ok := msgs[c.page]
		if !ok {
			var err error
			if data, err = h.buildMessage(c.page); err != nil {
				slog.Error("ws: encode snapshot", "err", err)
				continue
			}
			msgs[c.page] = data
		}
		// Sends happen under the read lock so unregister cannot close
		// c.send concurrently.
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		// Client's outgoing buffer is full; disconnect it.
		slog.Debug("ws: dropping slow client", "page", c.page)
		h.unregister(c)
	}
}

func (h *Hub) buildMessage(page string) ([]byte, error) {
	snap := api.BuildSnapshot(h.store)
	if page != "" {
		filtered := snap.Pages[:0]
		for _, p := range snap.Pages {
			if p.PageID == page {
				filtered = append(filtered, p)
			}
		}
		snap.Pages = filtered
	}
	return json.Marshal(Message{Event: "snapshot", Data: snap})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// writeLoop forwards queued snapshots and keeps the connection alive with
// pings. It owns all writes to conn.
func (c *client) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	defer c.conn.Close()

	for {
		var err error
		select {
		case msg, open := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if !open {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck
				return
			}
			err = c.conn.WriteMessage(websocket.TextMessage, msg)
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			err = c.conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

// readLoop discards inbound frames so pongs and close frames are processed.
// It returns once the peer goes away or stops answering pings.
func (c *client) readLoop() {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxInbound)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) }
	extend("") //nolint:errcheck
	c.conn.SetPongHandler(extend)
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}
