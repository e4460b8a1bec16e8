package hub

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"flowdash/internal/stream"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
	maxCmdSize = 512
)

// Client represents a single browser WebSocket connection managed by a
// Hub.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// channels is guarded by hub.mu.
	channels map[stream.ChannelID]bool
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:       uuid.NewString(),
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		channels: make(map[stream.ChannelID]bool),
	}
}

// readPump consumes subscribe/unsubscribe commands from the client
// until the connection drops, then unregisters it.
func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxCmdSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.hub.log.Warn("bad client command", "client", c.id, "error", err)
			continue
		}
		switch cmd.Action {
		case "subscribe":
			if err := c.hub.subscribeClient(c, cmd.Channel); err != nil {
				c.hub.log.Warn("subscribe rejected", "client", c.id,
					"channel", cmd.Channel, "error", err)
			}
		case "unsubscribe":
			c.hub.unsubscribeClient(c, cmd.Channel)
		default:
			c.hub.log.Warn("unknown client action", "client", c.id, "action", cmd.Action)
		}
	}
}

// writePump pushes queued frames and periodic pings to the client.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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
