package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dotcommander/taskbrew/internal/models"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsSendBuffer   = 64
	wsPingInterval = 30 * time.Second
)

// wsMessage is the frame sent to dashboard clients.
type wsMessage struct {
	Type string        `json:"type"`
	Data *models.Event `json:"data"`
}

// wsClient is one connected dashboard.
type wsClient struct {
	conn *websocket.Conn
	send chan *wsMessage
}

// Hub broadcasts bus events to WebSocket clients. There is no backpressure:
// a client whose send buffer fills is disconnected.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*wsClient]bool
	closed  bool
}

// NewHub builds an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger.With("component", "ws"),
		clients: make(map[*wsClient]bool),
	}
}

// Broadcast fans an event out to every connected client.
func (h *Hub) Broadcast(ev *models.Event) {
	msg := &wsMessage{Type: ev.Type, Data: ev}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			h.logger.Warn("dropping slow websocket client")
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[*wsClient]bool)
}

func (h *Hub) add(client *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[client] = true
	return true
}

func (h *Hub) remove(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from a different origin in development.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWS upgrades the connection and streams events until the client
// disconnects or falls behind.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan *wsMessage, wsSendBuffer)}
	if !s.hub.add(client) {
		_ = conn.Close()
		return
	}

	go s.hub.writeLoop(client)

	// Discard inbound frames; the stream is one-way. Read errors signal
	// disconnect.
	go func() {
		defer s.hub.remove(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) writeLoop(client *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				_ = client.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteTimeout))
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteJSON(msg); err != nil {
				h.remove(client)
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				h.remove(client)
				return
			}
		}
	}
}
