package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/user/nation-builder/internal/interfaces"
	"github.com/user/nation-builder/internal/types"
	"go.uber.org/zap"
)

// Message is the JSON envelope of everything sent over the socket
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Message types
const (
	MessageStateChanged = "state_changed"
	MessageGameEvent    = "game_event"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 256
)

// Client is one websocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans nation changes and game events out to every connected client
type Hub struct {
	Logger *zap.Logger

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// Ensure Hub satisfies the observer and sink interfaces
var (
	_ interfaces.StateObserver = (*Hub)(nil)
	_ interfaces.EventSink     = (*Hub)(nil)
)

// NewHub creates a hub; Run must be started for it to deliver anything
func NewHub() *Hub {
	return &Hub{
		Logger:     zap.NewNop(),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, sendBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop; it returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.Logger.Debug("Websocket client registered", zap.Int("clients", len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client
					close(client.send)
					delete(h.clients, client)
				}
			}

		case <-ctx.Done():
			close(h.done)
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		}
	}
}

// Publish queues a message for every client, dropping it when the queue is full
func (h *Hub) Publish(msgType string, payload any) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		h.Logger.Error("Failed to encode websocket message", zap.String("type", msgType), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.Logger.Warn("Websocket broadcast queue full, dropping message", zap.String("type", msgType))
	}
}

// StateChanged broadcasts the new nation state
func (h *Hub) StateChanged(state *types.NationState) {
	h.Publish(MessageStateChanged, state)
}

// GameEvent broadcasts a multiplayer event
func (h *Hub) GameEvent(event types.GameEvent) {
	h.Publish(MessageGameEvent, event)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWs upgrades the request and registers the connection
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump drains the connection until it closes; clients only listen
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Debug("Websocket read failed", zap.Error(err))
			}
			return
		}
	}
}

// writePump writes queued messages until the hub closes the send channel
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
