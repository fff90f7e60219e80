// Package ws bridges ledger events from the signal bus to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// Config describes what the hub relays and who may connect.
type Config struct {
	Mode           string
	AllowedOrigins []string // empty or "*" allows every origin
	Channels       []string // defaults to domain.LedgerChannels
	StartedAt      time.Time
}

// Hub relays signal bus channels to connected clients. Each client holds its
// own subscription set; a client whose queue is full misses the event
// instead of stalling the others.
type Hub struct {
	bus       domain.SignalBus
	channels  []string
	upgrader  websocket.Upgrader
	logger    *slog.Logger
	mode      string
	startedAt time.Time

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub over bus. Nothing is relayed until Run is called.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	h := &Hub{
		bus:       bus,
		channels:  cfg.Channels,
		logger:    logger.With(slog.String("component", "ws")),
		mode:      strings.ToLower(strings.TrimSpace(cfg.Mode)),
		startedAt: cfg.StartedAt,
		clients:   make(map[*client]struct{}),
	}
	if len(h.channels) == 0 {
		h.channels = domain.LedgerChannels
	}
	if h.mode == "" {
		h.mode = "unknown"
	}
	if h.startedAt.IsZero() {
		h.startedAt = time.Now().UTC()
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     allowOrigins(cfg.AllowedOrigins),
	}
	return h
}

func allowOrigins(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o = strings.TrimSpace(o); o == "*" {
			return func(*http.Request) bool { return true }
		} else if o != "" {
			set[strings.ToLower(strings.TrimSuffix(o, "/"))] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

// Run subscribes to every relayed channel and blocks until ctx is done, then
// disconnects all clients. A channel that fails to subscribe is logged and
// skipped.
func (h *Hub) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, ch := range h.channels {
		events, err := h.bus.Subscribe(ctx, ch)
		if err != nil {
			h.logger.ErrorContext(ctx, "subscribe failed",
				slog.String("channel", ch),
				slog.String("error", err.Error()),
			)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for data := range events {
				h.fanout(ch, data)
			}
			if ctx.Err() == nil {
				h.logger.WarnContext(ctx, "subscription closed", slog.String("channel", ch))
			}
		}()
	}

	<-ctx.Done()
	h.shutdown()
	wg.Wait()
	return ctx.Err()
}

func (h *Hub) fanout(channel string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.wants(channel) && !c.enqueue(data) {
			h.logger.Warn("dropping event for slow client", slog.String("channel", channel))
		}
	}
}

// HandleWS upgrades the request and starts relaying to the new client,
// which begins subscribed to every relayed channel.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(conn, h.channels)
	c.enqueue(h.status())
	if !h.add(c) {
		_ = conn.Close()
		return
	}

	go c.writePump()
	go func() {
		c.readPump(h.logger)
		h.remove(c)
	}()
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Info("client connected", slog.Int("clients", len(h.clients)))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.stop()
	h.logger.Info("client disconnected", slog.Int("clients", len(h.clients)))
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		c.stop()
		delete(h.clients, c)
	}
}

// status is the greeting every client receives before any ledger event.
func (h *Hub) status() []byte {
	msg, _ := json.Marshal(envelope{
		Type: "ledger_status",
		Payload: map[string]any{
			"mode":           h.mode,
			"uptime_seconds": max(int64(time.Since(h.startedAt).Seconds()), 0),
			"channels":       h.channels,
		},
	})
	return msg
}

// envelope frames the messages the hub itself originates.
type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}
