package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the API key guards the route
	},
}

// Client is one connected WebSocket consumer. kind optionally restricts
// delivery to "attendance" or "leave" events.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	kind string
}

type message struct {
	kind string
	data []byte
}

// Hub fans committed events out to live WebSocket clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub event loop; it returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
				observability.WSConnections.Dec()
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "filter", c.kind)

		case c := <-h.unregister:
			h.remove(c)

		case msg := <-h.broadcast:
			var slow []*Client
			h.mu.RLock()
			for c := range h.clients {
				if c.kind != "" && c.kind != msg.kind {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				slog.Warn("ws client too slow, disconnecting")
				h.remove(c)
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		observability.WSConnections.Dec()
		slog.Debug("ws client disconnected")
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastEvent queues an event for every matching client. It never
// blocks; when the hub is backed up the event is dropped.
func (h *Hub) BroadcastEvent(event *dto.WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	select {
	case h.broadcast <- message{kind: event.Data.Kind, data: data}:
	default:
		slog.Warn("ws broadcast queue full, event dropped", "identity", event.Data.Identity)
	}
}

// HandleWS upgrades the request. ?kind=attendance|leave filters events.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 64),
		kind: c.Query("kind"),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump only detects disconnection; clients never send.
func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
