package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wricardo/startlights/game/engine"
	"github.com/wricardo/startlights/game/service"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Time allowed for an inbound action to complete.
	actionTimeout = 5 * time.Second

	broadcastBuffer = 1024
)

// Outbound events that are not lifecycle notifications
const (
	EventActionResult = "action_result"
	EventError        = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; the desktop client and browser UI connect from anywhere.
		return true
	},
}

// Message represents an outbound WebSocket message
type Message struct {
	SessionID string      `json:"session_id"`
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
}

// ClientMessage is an inbound action from a client
type ClientMessage struct {
	Action  string `json:"action"`            // start, react or advance
	Channel string `json:"channel,omitempty"` // react only; defaults to key
}

// Actions is the part of the game service clients may drive
type Actions interface {
	Start(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	React(ctx context.Context, sessionID, channel string) (*service.ReactResult, error)
	Advance(ctx context.Context, sessionID string) (*engine.Snapshot, error)
}

// Client represents a WebSocket client
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

type directMessage struct {
	client *Client
	data   []byte
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients by session ID
	sessions map[string]map[*Client]bool

	// Outbound session events
	broadcast chan *Message

	// Replies addressed to one client
	direct chan *directMessage

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	done    chan struct{}
	actions Actions
	logger  *zap.Logger
	dropped atomic.Int64
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		broadcast:  make(chan *Message, broadcastBuffer),
		direct:     make(chan *directMessage, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// SetActions enables inbound actions. Call it before serving connections.
func (h *Hub) SetActions(actions Actions) {
	h.actions = actions
}

// Run starts the hub's event loop. It returns when ctx is done, after
// closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for _, clients := range h.sessions {
			for client := range clients {
				h.unregisterClient(client)
			}
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case msg := <-h.direct:
			h.sendDirect(msg)
		}
	}
}

// ServeWS handles WebSocket requests from clients
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 256),
		sessionID: sessionID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// Start client goroutines
	go client.writePump()
	go client.readPump()
}

// BroadcastEvent queues an event for every client of a session. It never
// blocks; when the queue is full the event is dropped.
func (h *Hub) BroadcastEvent(sessionID string, event string, data interface{}) {
	message := &Message{
		SessionID: sessionID,
		Event:     event,
		Data:      data,
	}

	select {
	case h.broadcast <- message:
	default:
		h.dropped.Add(1)
		h.logger.Warn("websocket event dropped",
			zap.String("session_id", sessionID), zap.String("event", event))
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// registerClient adds a client to a session
func (h *Hub) registerClient(client *Client) {
	if h.sessions[client.sessionID] == nil {
		h.sessions[client.sessionID] = make(map[*Client]bool)
	}
	h.sessions[client.sessionID][client] = true

	h.logger.Debug("client registered",
		zap.String("session_id", client.sessionID),
		zap.Int("clients", len(h.sessions[client.sessionID])))
}

// unregisterClient removes a client from a session
func (h *Hub) unregisterClient(client *Client) {
	if clients, ok := h.sessions[client.sessionID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.send)

			// Clean up empty sessions
			if len(clients) == 0 {
				delete(h.sessions, client.sessionID)
			}

			h.logger.Debug("client unregistered",
				zap.String("session_id", client.sessionID),
				zap.Int("clients", len(clients)))
		}
	}
}

// broadcastMessage sends a message to all clients in a session
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", zap.Error(err))
		return
	}

	if clients, ok := h.sessions[message.SessionID]; ok {
		for client := range clients {
			select {
			case client.send <- data:
			default:
				h.unregisterClient(client)
			}
		}
	}
}

// sendDirect delivers a reply if its client is still registered
func (h *Hub) sendDirect(msg *directMessage) {
	if !h.sessions[msg.client.sessionID][msg.client] {
		return
	}
	select {
	case msg.client.send <- msg.data:
	default:
		h.unregisterClient(msg.client)
	}
}

// handle runs one inbound action and replies to the sender
func (c *Client) handle(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.reply(EventError, map[string]string{"error": "invalid message"})
		return
	}
	if c.hub.actions == nil {
		c.reply(EventError, map[string]string{"action": msg.Action, "error": "actions not enabled"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	var (
		result interface{}
		err    error
	)
	switch msg.Action {
	case "start":
		result, err = c.hub.actions.Start(ctx, c.sessionID)
	case "react":
		result, err = c.hub.actions.React(ctx, c.sessionID, msg.Channel)
	case "advance":
		result, err = c.hub.actions.Advance(ctx, c.sessionID)
	default:
		c.reply(EventError, map[string]string{"action": msg.Action, "error": "unknown action"})
		return
	}
	if err != nil {
		c.reply(EventError, map[string]string{"action": msg.Action, "error": err.Error()})
		return
	}
	c.reply(EventActionResult, map[string]interface{}{"action": msg.Action, "result": result})
}

func (c *Client) reply(event string, data interface{}) {
	encoded, err := json.Marshal(&Message{SessionID: c.sessionID, Event: event, Data: data})
	if err != nil {
		c.hub.logger.Error("failed to marshal reply", zap.Error(err))
		return
	}
	select {
	case c.hub.direct <- &directMessage{client: c, data: encoded}:
	case <-c.hub.done:
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", zap.Error(err))
			}
			break
		}
		c.handle(data)
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
// Each message is written as its own frame.
func (c *Client) writePump() {
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
				// The hub closed the channel
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
