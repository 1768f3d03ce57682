package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/stockfusion/internal/enrichment"
	"github.com/wonny/stockfusion/pkg/logger"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ProgressMessage is the envelope sent to websocket clients
type ProgressMessage struct {
	Type    string                   `json:"type"`
	Payload enrichment.ProgressEvent `json:"payload"`
}

type progressClient struct {
	conn *websocket.Conn
	send chan []byte
}

// ProgressHub fans enrichment progress out to websocket clients.
// A client whose buffer is full misses events instead of stalling the batch.
// ⭐ SSOT: 진행 상황 브로드캐스트는 이 허브에서만
type ProgressHub struct {
	clients map[*progressClient]struct{}
	mu      sync.RWMutex
	logger  *logger.Logger
}

// NewProgressHub creates an empty hub
func NewProgressHub(log *logger.Logger) *ProgressHub {
	return &ProgressHub{
		clients: make(map[*progressClient]struct{}),
		logger:  log.Module("progress"),
	}
}

// Publish implements enrichment.ProgressSink. It never blocks.
func (h *ProgressHub) Publish(event enrichment.ProgressEvent) {
	data, err := json.Marshal(ProgressMessage{Type: "enrichment_progress", Payload: event})
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal progress event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("Progress client buffer full, dropping event")
		}
	}
}

// ClientCount returns the number of connected clients
func (h *ProgressHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the connection and streams progress until the client leaves
// GET /ws/enrichment
func (h *ProgressHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to upgrade websocket connection")
		return
	}

	c := &progressClient{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.WithField("clients", h.ClientCount()).Info("Progress client connected")

	go h.writePump(c)
	h.readLoop(c)
}

func (h *ProgressHub) unregister(c *progressClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// readLoop discards client messages and returns when the connection closes
func (h *ProgressHub) readLoop(c *progressClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		h.logger.WithField("clients", h.ClientCount()).Info("Progress client disconnected")
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *ProgressHub) writePump(c *progressClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
