package api

import (
	"context"
	"net/http"
	"time"

	xlogger "FinPattern/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	clientBuffer   = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans signal results out to websocket subscribers. New subscribers
// receive the last broadcast first. Slow subscribers are dropped.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan any
	clients    map[*client]struct{}
	latest     any
	done       chan struct{}
	logger     *xlogger.Logger
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan any
}

func NewHub(log *xlogger.Logger) *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan any, 64),
		clients:    make(map[*client]struct{}),
		done:       make(chan struct{}),
		logger:     log.With("ws"),
	}
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return nil
		case c := <-h.register:
			h.clients[c] = struct{}{}
			if h.latest != nil {
				c.send <- h.latest
			}
			h.logger.Debug("ws subscriber joined", xlogger.Int("clients", len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
		case msg := <-h.broadcast:
			h.latest = msg
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.drop(c)
					h.logger.Warn("ws subscriber too slow, dropped")
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
}

// Broadcast queues v for every subscriber. It never blocks; when the queue
// is full the message is discarded.
func (h *Hub) Broadcast(v any) {
	select {
	case h.broadcast <- v:
	default:
		h.logger.Warn("ws broadcast queue full, message dropped")
	}
}

// Serve upgrades GET /ws/signals.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Debug("ws upgrade failed", xlogger.Error(err))
		return nil
	}
	cl := &client{hub: h, conn: conn, send: make(chan any, clientBuffer)}
	select {
	case h.register <- cl:
	case <-h.done:
		_ = conn.Close()
		return nil
	case <-c.Request().Context().Done():
		_ = conn.Close()
		return nil
	}
	go cl.writePump()
	go cl.readPump()
	return nil
}

// readPump only drains control frames; subscribers do not send commands.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("ws read error", xlogger.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
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
			if err := c.conn.WriteJSON(msg); err != nil {
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

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/signals", h.Serve)
}
