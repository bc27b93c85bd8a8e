// Package ws pushes price events to websocket subscribers.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"PricePull/internal/catalog"
	"PricePull/internal/domain/models"
	domrepo "PricePull/internal/domain/repository"
	applogger "PricePull/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// HubOption configures Hub.
type HubOption func(*HubConfig)

type HubConfig struct {
	SendBuffer   int
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// WithSendBuffer sets how many events may queue per subscriber before drops.
func WithSendBuffer(n int) HubOption {
	return func(c *HubConfig) {
		if n > 0 {
			c.SendBuffer = n
		}
	}
}

// WithPingInterval sets the keepalive ping period.
func WithPingInterval(d time.Duration) HubOption {
	return func(c *HubConfig) {
		if d > 0 {
			c.PingInterval = d
		}
	}
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	part string // empty means every part
}

// Hub fans PriceEvents out to connected websocket clients.
// A slow client loses events rather than blocking publishers.
type Hub struct {
	cfg      *HubConfig
	catalog  *catalog.Catalog
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[*subscriber]struct{}
	closed   bool
	l        *applogger.Logger
}

func NewHub(cat *catalog.Catalog, opts ...HubOption) *Hub {
	cfg := &HubConfig{
		SendBuffer:   64,
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Hub{
		cfg:     cfg,
		catalog: cat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
		l:    applogger.Nop(),
	}
}

// SetLogger injects a structured logger.
func (h *Hub) SetLogger(l *applogger.Logger) {
	if l != nil {
		h.l = l
	}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/prices", h.Serve)
}

// Serve upgrades the request. An optional part query parameter narrows the stream.
func (h *Hub) Serve(c echo.Context) error {
	part := c.QueryParam("part")
	if part != "" {
		it, ok := h.catalog.Item(part)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown part")
		}
		part = it.Key
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.l.Warn("websocket upgrade failed", applogger.Error(err))
		return nil
	}
	sub := &subscriber{conn: conn, send: make(chan []byte, h.cfg.SendBuffer), part: part}
	if !h.add(sub) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		_ = conn.Close()
		return nil
	}
	h.l.Debug("websocket subscribed", applogger.String("remote", c.RealIP()), applogger.String("part", part))

	go h.writeLoop(sub)
	h.readLoop(sub)
	return nil
}

func (h *Hub) add(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[sub] = struct{}{}
	return true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.send)
	}
}

// readLoop drains client frames so control messages are handled, and ends the
// subscription when the client goes away.
func (h *Hub) readLoop(sub *subscriber) {
	defer h.remove(sub)
	sub.conn.SetReadLimit(512)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = sub.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Publish broadcasts ev to every matching subscriber.
func (h *Hub) Publish(_ context.Context, ev models.PriceEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.part != "" && sub.part != ev.ItemKey {
			continue
		}
		select {
		case sub.send <- b:
		default:
			h.l.Debug("websocket subscriber lagging, event dropped", applogger.String("part", ev.ItemKey))
		}
	}
	return nil
}

// Subscribers reports the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.send)
	}
	return nil
}

var _ domrepo.Publisher = (*Hub)(nil)
