package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jiin/botwatch/internal/logger"
	"github.com/jiin/botwatch/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	clientBuffer   = 64
)

// WSMessage is the frame pushed to websocket clients
type WSMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

type wsClient struct {
	id   string
	ip   string
	conn *websocket.Conn
	send chan WSMessage
}

// Hub relays monitor events to connected websocket clients
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient

	limiter  *ConnectionLimiter
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewHub(limiter *ConnectionLimiter) *Hub {
	return &Hub{
		clients: make(map[string]*wsClient),
		limiter: limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: logger.WithComponent("ws"),
	}
}

// Run forwards events until ctx is done or the channel closes, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context, events <-chan models.Event) {
	defer h.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.Broadcast(eventMessage(ev))
		}
	}
}

func eventMessage(ev models.Event) WSMessage {
	return WSMessage{Type: string(ev.Type), Timestamp: ev.Timestamp, Data: ev.Payload()}
}

// Broadcast queues msg for every client. A client whose buffer is full
// misses it.
func (h *Hub) Broadcast(msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Debug("Client buffer full, message dropped", "client", c.id, "type", msg.Type)
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Info("Client connected", "client", c.id, "ip", c.ip, "total", total)
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Info("Client disconnected", "client", c.id, "total", total)
}

// Serve upgrades the request and starts the client's pumps. initial, when
// not nil, is the first frame the client receives.
func (h *Hub) Serve(c *gin.Context, initial *WSMessage) {
	ip := c.ClientIP()
	if h.limiter != nil && !h.limiter.Acquire(ip) {
		RespondError(c, http.StatusServiceUnavailable, "too many concurrent connections")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the error response
		h.log.Warn("Websocket upgrade failed", "ip", ip, "error", err)
		if h.limiter != nil {
			h.limiter.Release(ip)
		}
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		ip:   ip,
		conn: conn,
		send: make(chan WSMessage, clientBuffer),
	}
	if initial != nil {
		client.send <- *initial
	}
	h.register(client)

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		if h.limiter != nil {
			h.limiter.Release(c.ip)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("Websocket read error", "client", c.id, "error", err)
			}
			return
		}

		switch msg.Type {
		case "ping":
			h.trySend(c, WSMessage{Type: "pong", Timestamp: time.Now()})
		case "unsubscribe":
			return
		default:
			h.log.Debug("Unknown websocket message", "client", c.id, "type", msg.Type)
		}
	}
}

// trySend delivers to one client unless it is gone or full
func (h *Hub) trySend(c *wsClient, msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				h.log.Debug("Websocket write failed", "client", c.id, "error", err)
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
