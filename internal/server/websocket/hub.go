// Package websocket relays cross-tab notifications between browsing
// contexts and the in-process broker.
//
// Each connection is a browsing context identified by the "client" query
// parameter. It subscribes to topics and publishes events with Frames;
// events it publishes reach every other context on the topic but never
// itself.
package websocket

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync/internal/notify"
	"github.com/agentstation/leadsync/pkg/constants"
)

// Hub maintains active browsing-context connections.
type Hub struct {
	broker     *notify.Broker
	upgrader   websocket.Upgrader
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *zerolog.Logger
	ctx        context.Context
}

// NewHub creates a hub relaying through broker. Browsers may connect from
// the hub's own origin or from one of allowedOrigins; "*" allows any.
// Clients that send no Origin header, such as sidecar processes, are
// always accepted.
func NewHub(broker *notify.Broker, logger *zerolog.Logger, allowedOrigins ...string) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins, logger),
		},
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		logger:     logger,
		ctx:        context.Background(),
	}
}

func originChecker(allowed []string, logger *zerolog.Logger) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err == nil && strings.EqualFold(u.Host, r.Host) {
			return true
		}
		if set["*"] || set[strings.ToLower(strings.TrimRight(origin, "/"))] {
			return true
		}
		logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection from foreign origin")
		return false
	}
}

// Run starts the hub's main loop until ctx is done, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info().Msg("WebSocket hub shut down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().
				Str("client_id", client.id).
				Int("total_clients", total).
				Msg("Browsing context connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
			}
			total := len(h.clients)
			h.mu.Unlock()
			client.close()
			h.logger.Info().
				Str("client_id", client.id).
				Int("total_clients", total).
				Msg("Browsing context disconnected")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) context() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctx
}

// ServeHTTP upgrades the request and serves the connection until it
// closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	id := r.URL.Query().Get("client")
	if id == "" {
		id = uuid.NewString()
	}
	client := NewClient(id, h, conn)
	select {
	case h.register <- client:
	case <-h.context().Done():
		_ = conn.Close()
		return
	}
	client.enqueue(notify.Frame{Op: notify.OpWelcome, Client: id})

	go client.WritePump()
	client.ReadPump()
}

// Client is one connected browsing context.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan notify.Frame

	mu   sync.Mutex
	subs map[string]notify.Subscription

	once sync.Once
	done chan struct{}
}

// NewClient creates a client for conn.
func NewClient(id string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   id,
		hub:  hub,
		conn: conn,
		send: make(chan notify.Frame, constants.SubscriberBufferSize),
		subs: make(map[string]notify.Subscription),
		done: make(chan struct{}),
	}
}

// ID returns the browsing context id.
func (c *Client) ID() string {
	return c.id
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = constants.MaxPayloadBytes
)

// enqueue queues f for the peer. Frames for a slow peer are dropped.
func (c *Client) enqueue(f notify.Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- f:
		return true
	case <-c.done:
		return false
	default:
		c.hub.logger.Warn().Str("client_id", c.id).Str("op", f.Op).Msg("Client buffer full, frame dropped")
		return false
	}
}

// close stops delivery and releases every subscription.
func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		for topic, sub := range c.subs {
			_ = sub.Close()
			delete(c.subs, topic)
		}
		c.mu.Unlock()
	})
}

// ReadPump reads frames from the peer until the connection fails.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.context().Done():
			c.close()
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error().Err(err).Str("client_id", c.id).Msg("WebSocket read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var f notify.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.hub.logger.Warn().Err(err).Str("client_id", c.id).Msg("Discarding malformed frame")
			continue
		}
		c.handle(f)
	}
}

func (c *Client) handle(f notify.Frame) {
	switch f.Op {
	case notify.OpSubscribe:
		if f.Topic == "" {
			return
		}
		c.mu.Lock()
		if _, ok := c.subs[f.Topic]; !ok {
			topic := f.Topic
			c.subs[topic] = c.hub.broker.Subscribe(topic, func(e notify.Event) {
				c.enqueue(notify.Frame{Op: notify.OpEvent, Topic: topic, Event: &e})
			}, notify.WithOrigin(c.id))
		}
		c.mu.Unlock()
		c.enqueue(notify.Frame{Op: notify.OpSubscribed, Topic: f.Topic})

	case notify.OpUnsubscribe:
		c.mu.Lock()
		if sub, ok := c.subs[f.Topic]; ok {
			_ = sub.Close()
			delete(c.subs, f.Topic)
		}
		c.mu.Unlock()

	case notify.OpPublish:
		if f.Event == nil {
			return
		}
		topic := f.Topic
		if topic == "" {
			topic = f.Event.Topic
		}
		e := *f.Event
		e.Origin = c.id
		if err := c.hub.broker.Publish(c.hub.context(), topic, e); err != nil {
			c.hub.logger.Warn().Err(err).Str("client_id", c.id).Msg("Rejected published event")
		}

	default:
		c.hub.logger.Debug().Str("client_id", c.id).Str("op", f.Op).Msg("Ignoring unknown frame")
	}
}

// WritePump writes queued frames and keepalive pings to the peer.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case f := <-c.send:
			data, err := json.Marshal(f)
			if err != nil {
				c.hub.logger.Error().Err(err).Msg("Failed to marshal WebSocket frame")
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
