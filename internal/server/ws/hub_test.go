package ws_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okeymeta/probalyze-sub000/internal/cache/local"
	"github.com/okeymeta/probalyze-sub000/internal/domain"
	"github.com/okeymeta/probalyze-sub000/internal/server/ws"
)

func startHub(t *testing.T, cfg ws.Config) (*local.SignalBus, string) {
	t.Helper()
	bus := local.NewSignalBus(16)
	hub := ws.NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return bus, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil keeps publishing payload on channel until the client receives a
// message. Subscriptions are set up asynchronously, so early publishes may be
// dropped.
func readUntil(t *testing.T, bus domain.SignalBus, conn *websocket.Conn, channel string, payload []byte) []byte {
	t.Helper()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				bus.Publish(context.Background(), channel, payload)
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	typ, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, typ)
	return msg
}

func TestHub_GreetsAndForwardsLedgerEvents(t *testing.T) {
	bus, url := startHub(t, ws.Config{Mode: "Server"})
	conn := dial(t, url, nil)

	_, greeting, err := conn.ReadMessage()
	require.NoError(t, err)
	var status struct {
		Type    string `json:"type"`
		Payload struct {
			Mode     string   `json:"mode"`
			Channels []string `json:"channels"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(greeting, &status))
	assert.Equal(t, "ledger_status", status.Type)
	assert.Equal(t, "server", status.Payload.Mode)
	assert.ElementsMatch(t, domain.LedgerChannels, status.Payload.Channels)

	event := []byte(`{"type":"bet.placed","marketId":"mkt_1"}`)
	assert.JSONEq(t, string(event), string(readUntil(t, bus, conn, domain.ChannelBets, event)))
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	_, url := startHub(t, ws.Config{AllowedOrigins: []string{"https://app.example"}})

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := dial(t, url, http.Header{"Origin": {"https://app.example"}})
	_, _, err = conn.ReadMessage()
	assert.NoError(t, err)
}

func TestHub_SubscriptionAck(t *testing.T) {
	_, url := startHub(t, ws.Config{})
	conn := dial(t, url, nil)

	_, _, err := conn.ReadMessage() // greeting
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"action":   "unsubscribe",
		"channels": domain.LedgerChannels[1:],
	}))
	var ack struct {
		Type    string `json:"type"`
		Payload struct {
			Channels []string `json:"channels"`
		} `json:"payload"`
	}
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscriptions", ack.Type)
	assert.Equal(t, domain.LedgerChannels[:1], ack.Payload.Channels)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "shout"}))
	var reply struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
}
