// Package ws bridges signal bus events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/server/middleware"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBufferSize = 256
)

// Bus patterns bridged to clients. Order events are private to the order's
// owner; ticker events are public.
const (
	OrderPattern  = "ch:binary_order:*"
	TickerPattern = "ch:ticker:*"
)

var bridged = []string{OrderPattern, TickerPattern}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	subs   map[string]bool
	mu     sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to change subscriptions.
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// Hub manages a set of connected WebSocket clients and forwards signal bus
// messages to the clients subscribed to them.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	logger     *slog.Logger
}

type broadcastMsg struct {
	channel string
	owner   string // empty for public messages
	data    []byte
}

// NewHub creates a Hub. allowedOrigins restricts the upgrade's Origin
// header; empty allows any origin.
func NewHub(bus domain.SignalBus, allowedOrigins []string, logger *slog.Logger) *Hub {
	h := &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			for _, o := range allowedOrigins {
				if o == "*" || strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		},
	}
	return h
}

// Run subscribes to the bridged bus patterns and serves client
// registration and fan-out until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range bridged {
		go h.subscribeToChannel(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client connected", slog.String("user_id", c.userID), slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client disconnected", slog.String("user_id", c.userID), slog.Int("total_clients", n))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if msg.owner != "" && msg.owner != c.userID {
					continue
				}
				if !c.isSubscribed(msg.channel) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("dropping message for slow client", slog.String("user_id", c.userID))
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) subscribeToChannel(ctx context.Context, channel string) {
	msgCh, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("subscription closed", slog.String("channel", channel))
				return
			}
			msg := broadcastMsg{channel: channel, data: data}
			if channel == OrderPattern {
				msg.owner = orderOwner(data)
				if msg.owner == "" {
					continue
				}
			}
			select {
			case h.broadcast <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// orderOwner extracts order.userId from an order event.
func orderOwner(data []byte) string {
	var evt struct {
		Order struct {
			UserID string `json:"userId"`
		} `json:"order"`
	}
	if err := json.Unmarshal(data, &evt); err != nil {
		return ""
	}
	return evt.Order.UserID
}

// HandleWS upgrades an authenticated request to a WebSocket connection.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
		subs:   map[string]bool{OrderPattern: true},
	}

	h.register <- c
	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range msg.Channels {
		switch msg.Action {
		case "subscribe":
			c.subs[ch] = true
		case "unsubscribe":
			delete(c.subs, ch)
		}
	}
}

// isSubscribed checks whether the client is subscribed to channel. A
// trailing "*" in a subscription matches any suffix.
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
