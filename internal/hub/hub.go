// Package hub relays live stream messages to dashboard browser clients
// over WebSocket.
//
// The hub is itself a ref-counted consumer of the stream manager: it
// holds one manager subscription per channel only while at least one
// browser client wants that channel, and disposes it when the last
// interested client unsubscribes or disconnects.
package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"flowdash/internal/stream"
)

// envelope is the wire format pushed to browser clients.
type envelope struct {
	Type    string           `json:"type"` // "message" or "status"
	Channel stream.ChannelID `json:"channel,omitempty"`
	Status  string           `json:"status,omitempty"`
	Data    any              `json:"data,omitempty"`
}

// command is the wire format received from browser clients.
type command struct {
	Action  string           `json:"action"` // "subscribe" or "unsubscribe"
	Channel stream.ChannelID `json:"channel"`
}

// relay is one manager subscription shared by every client interested
// in a channel.
type relay struct {
	dispose func()
	refs    int
}

// Hub manages browser WebSocket clients and their channel interests.
type Hub struct {
	manager  *stream.Manager
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]bool
	relays  map[stream.ChannelID]*relay
}

// New creates a Hub on top of the given stream manager.
func New(manager *stream.Manager, log *slog.Logger) *Hub {
	return &Hub{
		manager: manager,
		log:     log.With("component", "hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The dashboard UI is served from arbitrary dev origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*Client]bool),
		relays:  make(map[stream.ChannelID]*relay),
	}
}

// ServeWS upgrades an HTTP connection to a WebSocket and registers the
// client with the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := newClient(h, conn)

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	h.log.Info("client connected", "client", c.id, "remote", r.RemoteAddr)

	go c.writePump()
	go c.readPump()
}

// PushStatus broadcasts a global stream-status change to every client.
func (h *Hub) PushStatus(s stream.State) {
	frame, err := json.Marshal(envelope{Type: "status", Status: s.String()})
	if err != nil {
		return
	}
	h.mu.Lock()
	for c := range h.clients {
		h.sendLocked(c, frame)
	}
	h.mu.Unlock()
}

// subscribeClient records a client's interest in a channel, acquiring a
// manager subscription if this is the first interested client.
func (h *Hub) subscribeClient(c *Client, ch stream.ChannelID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.channels[ch] {
		return nil
	}

	rl := h.relays[ch]
	if rl == nil {
		dispose, err := h.manager.Subscribe(ch, func(msg any) { h.broadcast(ch, msg) })
		if err != nil {
			return err
		}
		rl = &relay{dispose: dispose}
		h.relays[ch] = rl
	}
	rl.refs++
	c.channels[ch] = true
	h.log.Debug("client subscribed", "client", c.id, "channel", ch, "refs", rl.refs)
	return nil
}

// unsubscribeClient drops a client's interest in a channel, disposing
// the manager subscription when no client wants it anymore.
func (h *Hub) unsubscribeClient(c *Client, ch stream.ChannelID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releaseLocked(c, ch)
}

func (h *Hub) releaseLocked(c *Client, ch stream.ChannelID) {
	if !c.channels[ch] {
		return
	}
	delete(c.channels, ch)
	rl := h.relays[ch]
	if rl == nil {
		return
	}
	rl.refs--
	if rl.refs <= 0 {
		delete(h.relays, ch)
		rl.dispose()
		h.log.Debug("relay released", "channel", ch)
	}
}

// removeClient tears a client down and releases all its interests.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for ch := range c.channels {
		h.releaseLocked(c, ch)
	}
	close(c.send)
	h.mu.Unlock()
	h.log.Info("client disconnected", "client", c.id)
}

// broadcast fans one decoded stream message out to every client
// interested in its channel. The envelope is marshalled once.
func (h *Hub) broadcast(ch stream.ChannelID, msg any) {
	frame, err := json.Marshal(envelope{Type: "message", Channel: ch, Data: msg})
	if err != nil {
		h.log.Error("marshalling envelope", "channel", ch, "error", err)
		return
	}
	h.mu.Lock()
	for c := range h.clients {
		if c.channels[ch] {
			h.sendLocked(c, frame)
		}
	}
	h.mu.Unlock()
}

// sendLocked queues a frame for one client, dropping the client if its
// send buffer is full.
func (h *Hub) sendLocked(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		h.log.Warn("client too slow, dropping", "client", c.id)
		delete(h.clients, c)
		for ch := range c.channels {
			h.releaseLocked(c, ch)
		}
		close(c.send)
	}
}
