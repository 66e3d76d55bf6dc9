package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/efreitasn/tokenexchange/internal/domain"
	"github.com/efreitasn/tokenexchange/internal/events"
)

// ChannelAll receives every event.
const ChannelAll = "all"

const (
	wsSendBuffer   = 256
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
)

// wsRequest is a client control message.
type wsRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// wsMessage is a server message. Data is set for events, Channels for
// subscription acknowledgements.
type wsMessage struct {
	Type     string         `json:"type"`
	Data     *events.Record `json:"data,omitempty"`
	Channels []string       `json:"channels,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Hub fans events out to websocket clients. A client receives an event
// when it subscribes to "all", the event's symbol, its kind, or its
// trader's address. Clients that fall behind are disconnected.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*wsClient]struct{}
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHub creates an empty hub. Upgrades from a browser are accepted only
// when their Origin is listed in origins; "*" or an empty list allows any.
func NewHub(logger *slog.Logger, origins []string) *Hub {
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
	}
}

// originChecker matches the Origin header against origins. Requests
// without an Origin header do not come from a browser and are accepted.
func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.ToLower(strings.TrimSuffix(o, "/"))] = true
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return allowed[strings.ToLower(origin)]
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket. The optional channels
// query parameter is a comma-separated initial subscription list and
// defaults to "all".
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &wsClient{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, wsSendBuffer),
		id:            conn.RemoteAddr().String(),
		subscriptions: make(map[string]bool),
	}
	channels := []string{ChannelAll}
	if q := r.URL.Query().Get("channels"); q != "" {
		channels = strings.Split(q, ",")
	}
	c.subscribe(channels)

	h.register(c)
	go c.writePump()
	go c.readPump()
}

// Deliver implements events.Sink.
func (h *Hub) Deliver(_ context.Context, e domain.Event) error {
	rec := events.NewRecord(e)
	msg, err := json.Marshal(wsMessage{Type: "event", Data: &rec})
	if err != nil {
		return err
	}
	channels := []string{ChannelAll, string(e.Kind)}
	if e.Symbol != "" {
		channels = append(channels, e.Symbol)
	}
	if e.Trader != (common.Address{}) {
		channels = append(channels, e.Trader.Hex())
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.subscribedAny(channels) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("websocket client too slow, disconnecting", slog.String("client", c.id))
			h.drop(c)
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.drop(c)
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", slog.String("client", c.id), slog.Int("clients", n))
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	h.drop(c)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client disconnected", slog.String("client", c.id), slog.Int("clients", n))
}

// drop removes c and closes its send channel. h.mu must be held.
func (h *Hub) drop(c *wsClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// reply queues msg for c if it is still registered.
func (h *Hub) reply(c *wsClient, msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// wsClient is one websocket connection.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	subsMu        sync.RWMutex
	subscriptions map[string]bool
}

// channelName normalizes addresses to their checksummed form.
func channelName(ch string) string {
	ch = strings.TrimSpace(ch)
	if common.IsHexAddress(ch) {
		return common.HexToAddress(ch).Hex()
	}
	return ch
}

func (c *wsClient) subscribe(channels []string) []string {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	out := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch = channelName(ch); ch != "" {
			c.subscriptions[ch] = true
			out = append(out, ch)
		}
	}
	return out
}

func (c *wsClient) unsubscribe(channels []string) []string {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	out := make([]string, 0, len(channels))
	for _, ch := range channels {
		ch = channelName(ch)
		delete(c.subscriptions, ch)
		out = append(out, ch)
	}
	return out
}

func (c *wsClient) subscribedAny(channels []string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	for _, ch := range channels {
		if c.subscriptions[ch] {
			return true
		}
	}
	return false
}

// readPump handles subscription requests until the connection fails.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed", slog.String("client", c.id), slog.String("error", err.Error()))
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.hub.reply(c, wsMessage{Type: "error", Error: "invalid message"})
			continue
		}
		switch req.Op {
		case "subscribe":
			c.hub.reply(c, wsMessage{Type: "subscribed", Channels: c.subscribe(req.Channels)})
		case "unsubscribe":
			c.hub.reply(c, wsMessage{Type: "unsubscribed", Channels: c.unsubscribe(req.Channels)})
		default:
			c.hub.reply(c, wsMessage{Type: "error", Error: "unknown op: " + req.Op})
		}
	}
}

// writePump writes queued messages and keeps the connection alive.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
