package ws

import (
	"encoding/json"
	"log/slog"
	"path"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// subscribeMsg changes a client's channel set. Channels may be glob
// patterns such as "ledger:*".
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

type client struct {
	conn *websocket.Conn

	sendMu sync.Mutex
	send   chan []byte
	closed bool

	mu   sync.RWMutex
	subs map[string]struct{}
}

func newClient(conn *websocket.Conn, channels []string) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]struct{}, len(channels)),
	}
	for _, ch := range channels {
		c.subs[ch] = struct{}{}
	}
	return c
}

// enqueue queues msg without blocking and reports whether it fit. A stopped
// client accepts nothing.
func (c *client) enqueue(msg []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// stop closes the queue, which makes writePump close the connection.
func (c *client) stop() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// wants reports whether channel matches any subscription, exactly or as a
// glob.
func (c *client) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.subs[channel]; ok {
		return true
	}
	for pattern := range c.subs {
		if ok, _ := path.Match(pattern, channel); ok {
			return true
		}
	}
	return false
}

// apply updates the subscription set and returns it sorted. ok is false for
// an unknown action, which leaves the set unchanged.
func (c *client) apply(msg subscribeMsg) (channels []string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = struct{}{}
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	default:
		return nil, false
	}

	channels = make([]string, 0, len(c.subs))
	for ch := range c.subs {
		channels = append(channels, ch)
	}
	slices.Sort(channels)
	return channels, true
}

// readPump handles subscription changes until the connection fails. Each
// change is acknowledged with the resulting channel set.
func (c *client) readPump(logger *slog.Logger) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var msg subscribeMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(envelope{Type: "error", Payload: map[string]string{"message": "invalid JSON"}})
			continue
		}
		channels, ok := c.apply(msg)
		if !ok {
			c.reply(envelope{Type: "error", Payload: map[string]string{"message": "unknown action " + msg.Action}})
			continue
		}
		c.reply(envelope{Type: "subscriptions", Payload: map[string]any{"channels": channels}})
	}
}

func (c *client) reply(e envelope) {
	if data, err := json.Marshal(e); err == nil {
		c.enqueue(data)
	}
}

// writePump writes queued messages as text frames and pings on an interval.
// It exits when the queue is closed or a write fails.
func (c *client) writePump() {
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
