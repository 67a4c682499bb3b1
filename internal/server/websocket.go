package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/frontbuild/internal/logging"
	"github.com/conneroisu/frontbuild/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Messages queued per client before it is considered slow and dropped.
	sendBuffer = 16
)

// Message types sent to the browser.
const (
	MessageReload = "reload"
	MessageCSS    = "css"
)

// Message is one live reload instruction.
type Message struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Client represents a WebSocket client
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub keeps the connected browsers and fans out reload messages.
type Hub struct {
	clients    map[*Client]struct{}
	mutex      sync.RWMutex
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	origins    []string
	logger     logging.Logger
	recorder   *metrics.Recorder
}

// NewHub creates a hub. origins are host patterns accepted in addition to
// same-origin requests.
func NewHub(origins []string, logger logging.Logger, recorder *metrics.Recorder) *Hub {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		origins:    origins,
		logger:     logger,
		recorder:   recorder,
	}
}

// Run serves register, unregister and broadcast requests until ctx is done,
// then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mutex.Unlock()
			h.recorder.SetLiveClients(count)
			h.logger.Debug(ctx, "Client connected", "clients", count)

		case client := <-h.unregister:
			h.remove(client, websocket.StatusNormalClosure)
			h.logger.Debug(ctx, "Client disconnected", "clients", h.Count())

		case message := <-h.broadcast:
			h.mutex.RLock()
			var slow []*Client
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					slow = append(slow, client)
				}
			}
			h.mutex.RUnlock()

			for _, client := range slow {
				h.logger.Warn(ctx, nil, "Dropping slow live reload client")
				h.remove(client, websocket.StatusPolicyViolation)
			}
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every client. It never blocks: when the queue is
// full the message is dropped, since a newer one will follow.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn(context.Background(), nil, "Live reload queue full, dropping message", "type", msg.Type)
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.origins,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  h,
	}

	// Registration completes before the read pump can unregister.
	select {
	case h.register <- client:
	case <-r.Context().Done():
		conn.CloseNow()
		return
	}

	// The request context ends when the handler returns, so the pumps use
	// their own.
	ctx, cancel := context.WithCancel(context.Background())
	go client.writePump(ctx)
	go func() {
		client.readPump(ctx)
		cancel()
	}()
}

func (h *Hub) remove(client *Client, status websocket.StatusCode) {
	h.mutex.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mutex.Unlock()

	if ok {
		client.conn.Close(status, "")
		h.recorder.SetLiveClients(count)
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.mutex.Unlock()

	for client := range clients {
		close(client.send)
		client.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	h.recorder.SetLiveClients(0)
}

// readPump discards incoming messages; it exists to notice disconnects.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-time.After(writeWait):
		}
	}()

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// writePump pumps messages to the websocket connection
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
