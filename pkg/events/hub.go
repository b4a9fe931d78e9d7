// Package events delivers engine activity to WebSocket clients: signal
// events, action results, pipeline lifecycle changes and system status,
// each on its own named channel clients subscribe to.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// The channels clients can subscribe to.
const (
	ChannelEvents    = "events"
	ChannelActions   = "actions"
	ChannelPipelines = "pipelines"
	ChannelSystem    = "system"
)

// Channels lists every valid channel name, in the order advertised in
// the welcome frame.
func Channels() []string {
	return []string{ChannelEvents, ChannelActions, ChannelPipelines, ChannelSystem}
}

func validChannel(name string) bool {
	switch name {
	case ChannelEvents, ChannelActions, ChannelPipelines, ChannelSystem:
		return true
	}
	return false
}

// ClientMessage is what clients send: a message type plus the channel it
// applies to. Ping needs no channel.
type ClientMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Hub tracks connected WebSocket clients and their channel
// subscriptions. One Hub per process; a single mutex guards both maps.
type Hub struct {
	writeTimeout time.Duration

	mu       sync.RWMutex
	clients  map[string]*client
	channels map[string]map[string]bool
	closed   bool
}

// client is one connected socket. writeMu serializes frame writes so
// broadcasts and per-client replies never interleave mid-frame.
type client struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
}

// NewHub builds an empty hub. writeTimeout bounds every frame write.
func NewHub(writeTimeout time.Duration) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Hub{
		writeTimeout: writeTimeout,
		clients:      make(map[string]*client),
		channels:     make(map[string]map[string]bool),
	}
}

// HandleConnection owns one WebSocket connection from upgrade to close.
// Blocks until the client disconnects or parentCtx is cancelled.
func (h *Hub) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}

	if !h.register(c) {
		cancel()
		_ = conn.Close(websocket.StatusGoingAway, "hub closed")
		return
	}
	defer h.unregister(c)

	slog.Info("WebSocket client connected", "client_id", c.id)
	h.send(c, map[string]any{
		"type":      "welcome",
		"client_id": c.id,
		"channels":  Channels(),
		"timestamp": nowStamp(),
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.send(c, map[string]any{"type": "error", "message": "invalid message"})
			continue
		}
		h.handleMessage(c, msg)
	}
}

func (h *Hub) handleMessage(c *client, msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		if !validChannel(msg.Channel) {
			h.send(c, map[string]any{"type": "error", "message": "unknown channel: " + msg.Channel})
			return
		}
		h.mu.Lock()
		if h.channels[msg.Channel] == nil {
			h.channels[msg.Channel] = make(map[string]bool)
		}
		h.channels[msg.Channel][c.id] = true
		h.mu.Unlock()
		h.send(c, map[string]any{"type": "subscribed", "channel": msg.Channel})

	case "unsubscribe":
		if !validChannel(msg.Channel) {
			h.send(c, map[string]any{"type": "error", "message": "unknown channel: " + msg.Channel})
			return
		}
		h.mu.Lock()
		delete(h.channels[msg.Channel], c.id)
		h.mu.Unlock()
		h.send(c, map[string]any{"type": "unsubscribed", "channel": msg.Channel})

	case "ping":
		h.send(c, map[string]any{"type": "pong", "timestamp": nowStamp()})

	default:
		h.send(c, map[string]any{"type": "error", "message": "unknown message type: " + msg.Type})
	}
}

// Broadcast sends a frame to every subscriber of a channel. A client
// whose write fails is disconnected; the rest are unaffected.
func (h *Hub) Broadcast(channel string, frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Warn("Failed to marshal broadcast frame", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	subs := make([]*client, 0, len(h.channels[channel]))
	for id := range h.channels[channel] {
		if c, ok := h.clients[id]; ok {
			subs = append(subs, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range subs {
		if err := h.write(c, data); err != nil {
			slog.Warn("Dropping WebSocket client after failed send",
				"client_id", c.id, "channel", channel, "error", err)
			c.cancel()
		}
	}
}

// ActiveClients reports the number of connected clients.
func (h *Hub) ActiveClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount reports the subscribers of one channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Close disconnects every client and rejects new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.cancel()
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	for _, subs := range h.channels {
		delete(subs, c.id)
	}
	h.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
	slog.Info("WebSocket client disconnected", "client_id", c.id)
}

// send marshals and writes one frame to a single client. Failures only
// log; the read loop notices the dead socket and cleans up.
func (h *Hub) send(c *client, frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket frame", "client_id", c.id, "error", err)
		return
	}
	if err := h.write(c, data); err != nil {
		slog.Warn("Failed to send WebSocket frame", "client_id", c.id, "error", err)
	}
}

func (h *Hub) write(c *client, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	writeCtx, cancel := context.WithTimeout(c.ctx, h.writeTimeout)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}
