package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tareeqk/towing/internal/metrics"
	"github.com/tareeqk/towing/internal/storage"
)

const writeDeadline = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans towing request events out to every connected websocket
// client. All access to the clients map happens inside Run.
type Hub struct {
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan storage.Event
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan storage.Event, 16),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				_ = conn.Close()
				delete(h.clients, conn)
			}
			metrics.WebsocketClients.Set(0)
			return

		case conn := <-h.register:
			h.clients[conn] = struct{}{}
			metrics.WebsocketClients.Set(float64(len(h.clients)))
			zap.S().Debugf("websocket client connected, %d online", len(h.clients))

		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				_ = conn.Close()
				delete(h.clients, conn)
				metrics.WebsocketClients.Set(float64(len(h.clients)))
				zap.S().Debugf("websocket client disconnected, %d online", len(h.clients))
			}

		case event := <-h.broadcast:
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := conn.WriteJSON(event); err != nil {
					zap.S().Warnf("websocket broadcast failed: %v", err)
					_ = conn.Close()
					delete(h.clients, conn)
				}
			}
			metrics.WebsocketClients.Set(float64(len(h.clients)))
		}
	}
}

// Broadcast queues an event for delivery. Drops the event when the hub
// is saturated rather than blocking the caller.
func (h *Hub) Broadcast(event storage.Event) {
	select {
	case h.broadcast <- event:
	default:
		zap.S().Warn("websocket broadcast queue full, dropping event")
	}
}

// Handler upgrades the connection and parks it on the hub. Incoming
// frames are read and discarded so pings and closes are processed.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			zap.S().Warnf("websocket upgrade failed: %v", err)
			return
		}

		h.register <- conn

		go func() {
			defer func() { h.unregister <- conn }()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
