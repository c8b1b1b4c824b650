// Package realtime pushes order outcomes to connected operator consoles
// over WebSocket.
package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 5 * time.Second
	broadcastQueue = 256
)

// Hub manages WebSocket clients and broadcasts messages to them. Publishing
// never blocks the caller: when the queue is full the message is dropped.
type Hub struct {
	connections map[*websocket.Conn]struct{}
	register    chan *websocket.Conn
	unregister  chan *websocket.Conn
	broadcast   chan []byte
	upgrader    websocket.Upgrader
	logger      *slog.Logger
	dropped     atomic.Int64

	// done is closed when Run returns.
	done     chan struct{}
	stopOnce sync.Once
}

// NewHub constructs a Hub. Run must be started before clients connect.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		connections: make(map[*websocket.Conn]struct{}),
		register:    make(chan *websocket.Conn),
		unregister:  make(chan *websocket.Conn),
		broadcast:   make(chan []byte, broadcastQueue),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run processes register/unregister/broadcast events until ctx ends, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-ctx.Done():
			for conn := range h.connections {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				_ = conn.Close()
				delete(h.connections, conn)
			}
			return
		case conn := <-h.register:
			h.connections[conn] = struct{}{}
		case conn := <-h.unregister:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				_ = conn.Close()
			}
		case msg := <-h.broadcast:
			for conn := range h.connections {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					_ = conn.Close()
					delete(h.connections, conn)
				}
			}
		}
	}
}

// Publish queues msg for every client.
func (h *Hub) Publish(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
	}
}

// PublishJSON encodes v and queues it.
func (h *Hub) PublishJSON(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("encode realtime event", "err", err)
		return
	}
	h.Publish(msg)
}

// Dropped reports how many messages were discarded on a full queue.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects. Clients only receive; inbound frames are discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade", "err", err)
		return
	}

	select {
	case h.register <- conn:
	case <-r.Context().Done():
		_ = conn.Close()
		return
	case <-h.done:
		_ = conn.Close()
		return
	}

	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	select {
	case h.unregister <- conn:
	case <-r.Context().Done():
		_ = conn.Close()
	case <-h.done:
		_ = conn.Close()
	}
}
