package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"statsScope/internal/broadcast"
	"statsScope/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 1024
	sendQueueSize  = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub attaches push clients to the broadcaster topics.
type Hub struct {
	svc    *service.Service
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func NewHub(svc *service.Service, logger *zap.Logger) *Hub {
	return &Hub{
		svc:     svc,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// ServeWS upgrades the request, sends the cached metrics and subscribes the
// connection to future refreshes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &wsClient{conn: conn, send: make(chan []byte, sendQueueSize), hub: h}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	b := h.svc.Deps().Broadcaster
	if h.svc.Lottery != nil {
		c.sendCached(service.TopicStats, h.svc.Lottery)
		c.subscribe(b, service.TopicStats)
	}
	if h.svc.TVL != nil {
		c.sendCached(service.TopicTVL, h.svc.TVL)
		c.subscribe(b, service.TopicTVL)
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) remove(c *wsClient) {
	b := h.svc.Deps().Broadcaster
	c.mu.Lock()
	handles := c.handles
	c.handles = nil
	c.mu.Unlock()
	for _, handle := range handles {
		b.Unsubscribe(handle)
	}
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// cachedMetric is satisfied by *service.Metric[T].
type cachedMetric interface {
	CachedAny() (any, bool)
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu      sync.Mutex
	closed  bool
	handles []broadcast.Handle
}

func (c *wsClient) sendCached(msgType string, m cachedMetric) {
	value, ok := m.CachedAny()
	if !ok {
		return
	}
	payload, err := broadcast.Encode(msgType, value)
	if err != nil {
		c.hub.logger.Warn("encode cached metric", zap.Error(err))
		return
	}
	_ = c.Deliver(payload)
}

// subscribe registers c on topic unless it is already closed. The handle is
// recorded under c.mu so a concurrent close always sees it.
func (c *wsClient) subscribe(b *broadcast.Broadcaster, topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.handles = append(c.handles, b.Subscribe(topic, c))
	return true
}

// Deliver enqueues without blocking. A full queue drops the client.
func (c *wsClient) Deliver(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return broadcast.ErrClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		go c.close()
		return broadcast.ErrBufferFull
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	c.hub.remove(c)
	_ = c.conn.Close()
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("websocket write failed", zap.Error(err))
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

// readPump only services control frames; clients have nothing to say.
func (c *wsClient) readPump() {
	defer c.close()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket closed", zap.Error(err))
			}
			return
		}
	}
}
