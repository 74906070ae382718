// Package livefeed broadcasts tracking objects to websocket clients.
package livefeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"avl-gateway/internal/dispatcher"
	"avl-gateway/internal/pipeline"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	count      atomic.Int64
}

func NewHub(lg *slog.Logger) *Hub {
	return &Hub{
		logger: lg.With("component", "livefeed"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, sendBuffer),
	}
}

// Run owns the client set until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.logger.Debug("register websocket client", "remote", c.conn.RemoteAddr().String())
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow reader
					h.remove(c)
				}
			}
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			return nil
		}
	}
}

func (h *Hub) remove(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
	h.logger.Debug("unregister websocket client", "remote", c.conn.RemoteAddr().String())
}

func (h *Hub) ClientCount() int { return int(h.count.Load()) }

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}
	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and unregisters on close.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-time.After(writeWait):
		}
		_ = c.conn.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) Name() string { return "livefeed" }

// Deliver broadcasts one JSON text message per record. It is a no-op while
// nobody is listening.
func (h *Hub) Deliver(ctx context.Context, b dispatcher.Batch) error {
	if h.ClientCount() == 0 {
		return nil
	}
	for _, tr := range pipeline.Track(b.IMEI, b.Packets, time.Now()) {
		msg, err := json.Marshal(tr)
		if err != nil {
			return err
		}
		select {
		case h.broadcast <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
