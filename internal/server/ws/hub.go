// Package ws streams application events to browser clients over WebSocket
// and accepts simple control messages back.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/emmett/voxtask/internal/app"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 4096
)

// Controller is the part of the voice app clients may drive
type Controller interface {
	Listen() (string, error)
	Cancel()
	HandleTranscript(ctx context.Context, text string, conf float64) (app.CommandReport, error)
}

// Message is sent by clients: "start", "stop" or "say" with Text
type Message struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Reply answers one client message
type Reply struct {
	Type      string             `json:"type"`
	SessionID string             `json:"session_id,omitempty"`
	Command   *app.CommandReport `json:"command,omitempty"`
	Error     string             `json:"error,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to every connected client
type Hub struct {
	upgrader websocket.Upgrader
	control  Controller
	logger   zerolog.Logger

	mu        sync.Mutex
	clients   map[*client]bool
	broadcast chan []byte
}

// NewHub creates a hub. control may be nil, in which case client messages
// are refused.
func NewHub(control Controller, logger zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		control:   control,
		logger:    logger.With().Str("component", "ws").Logger(),
		clients:   make(map[*client]bool),
		broadcast: make(chan []byte, 256),
	}
}

// Publish implements app.EventSink. Events are dropped when the broadcast
// queue is full.
func (h *Hub) Publish(ev app.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(ev.Type)).Msg("failed to encode event")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Debug().Str("type", string(ev.Type)).Msg("broadcast queue full, event dropped")
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run delivers published events until ctx is done, then disconnects all
// clients
func (h *Hub) Run(ctx context.Context) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.broadcast:
			h.runBroadcast(msg)
		}
	}
}

// runBroadcast sends msg to all connected clients, dropping slow ones
func (h *Hub) runBroadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			close(c.send)
			delete(h.clients, c)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		close(c.send)
		delete(h.clients, c)
	}
}

// reply queues a message for one client unless it has gone away
func (h *Hub) reply(c *client, r Reply) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// ServeHTTP upgrades the connection and serves one client until it
// disconnects
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64)}
	h.register(c)
	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("client connected")

	go h.writePump(c)
	h.readPump(r.Context(), c)
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		h.reply(c, h.handle(ctx, msg))
	}
}

func (h *Hub) handle(ctx context.Context, msg Message) Reply {
	if h.control == nil {
		return Reply{Type: "error", Error: "control not available"}
	}

	switch msg.Type {
	case "start":
		id, err := h.control.Listen()
		if err != nil {
			return Reply{Type: "error", Error: err.Error()}
		}
		return Reply{Type: "started", SessionID: id}

	case "stop":
		h.control.Cancel()
		return Reply{Type: "stopped"}

	case "say":
		report, err := h.control.HandleTranscript(ctx, msg.Text, 1)
		if err != nil {
			return Reply{Type: "error", Command: &report, Error: err.Error()}
		}
		return Reply{Type: "executed", Command: &report}

	default:
		return Reply{Type: "error", Error: "unknown message type: " + msg.Type}
	}
}

func (h *Hub) writePump(c *client) {
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
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
