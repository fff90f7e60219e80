package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
	"github.com/okeymeta/probalyze-sub000/internal/notify"
)

type recordingSender struct {
	name string
	err  error
	got  []string
}

func (r *recordingSender) Send(_ context.Context, title, message string) error {
	r.got = append(r.got, title+"|"+message)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_FiltersByEvent(t *testing.T) {
	ctx := context.Background()
	s := &recordingSender{name: "rec"}
	n := notify.NewNotifier([]notify.Sender{s}, []string{"market_resolved", " storage_degraded "}, discardLogger())

	require.NoError(t, n.Notify(ctx, "market_resolved", "Market resolved", "m1"))
	require.NoError(t, n.Notify(ctx, "market_refunded", "Market refunded", "m2"))
	require.NoError(t, n.Notify(ctx, "storage_degraded", "Storage degraded", "s3 down"))

	assert.Equal(t, []string{"Market resolved|m1", "Storage degraded|s3 down"}, s.got)
	assert.True(t, n.Enabled())
}

func TestNotifier_EmptyFilterAllowsAll(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := notify.NewNotifier([]notify.Sender{s}, nil, discardLogger())
	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Len(t, s.got, 1)
}

func TestNotifier_OneFailingSenderDoesNotBlockOthers(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := notify.NewNotifier([]notify.Sender{bad, good}, nil, discardLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.got, 1)
}

func TestNotifier_NoSenders(t *testing.T) {
	n := notify.NewNotifier(nil, nil, discardLogger())
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), "market_resolved", "t", "m"))
}

func TestTelegramSender(t *testing.T) {
	var gotPath string
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := notify.NewTelegramSender("TOKEN", "42").WithBaseURL(srv.URL + "/")
	require.NoError(t, s.Send(context.Background(), "Market resolved", "mkt_1 paid wallet_a"))

	assert.Equal(t, "/botTOKEN/sendMessage", gotPath)
	assert.Equal(t, "42", payload["chat_id"])
	assert.Equal(t, "Markdown", payload["parse_mode"])
	assert.Equal(t, "*Market resolved*\nmkt\\_1 paid wallet\\_a", payload["text"])
}

func TestTelegramSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := notify.NewTelegramSender("T", "1").WithBaseURL(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
	assert.Contains(t, err.Error(), "chat not found")
}

func TestDiscordSender(t *testing.T) {
	var payload struct {
		Content         string              `json:"content"`
		AllowedMentions map[string][]string `json:"allowed_mentions"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	long := strings.Repeat("x", 3000)
	require.NoError(t, notify.NewDiscordSender(srv.URL).Send(context.Background(), "Refund", long))
	assert.Len(t, payload.Content, 2000)
	assert.True(t, strings.HasPrefix(payload.Content, "**Refund**\n"))
	assert.Contains(t, payload.AllowedMentions, "parse")
}

func TestConsole_SendAndReports(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)
	require.NoError(t, c.Send(context.Background(), "Market refunded", "m1"))
	assert.Contains(t, buf.String(), "Market refunded: m1")

	yes := domain.SideYes
	closes := time.Date(2026, 11, 1, 18, 0, 0, 0, time.UTC)
	c.Markets([]domain.Market{{
		ID:             "mkt_1",
		Title:          "Will it rain?",
		Mode:           domain.MarketModeSimple,
		Status:         domain.MarketStatusResolved,
		Outcome:        &yes,
		TotalYesAmount: decimal.RequireFromString("9.75"),
		TotalNoAmount:  decimal.Zero,
		YesPrice:       decimal.NewFromInt(1),
		TotalVolume:    decimal.NewFromInt(10),
		ClosesAt:       closes,
	}})
	c.Balances(domain.BalancesDocument{
		"small": {Balance: decimal.NewFromInt(1)},
		"large": {Balance: decimal.NewFromInt(50)},
	})
	c.Stats(domain.PlatformStats{TotalMarkets: 1, TotalVolume: decimal.NewFromInt(10)})

	out := buf.String()
	assert.Contains(t, out, "mkt_1")
	assert.Contains(t, out, "resolved:yes")
	assert.Contains(t, out, "9.75")
	assert.Contains(t, out, "2026-11-01 18:00")
	assert.Less(t, strings.Index(out, "large"), strings.Index(out, "small"), "largest balance first")
	assert.Contains(t, out, "10.00")
}

func TestConsole_EmptyReports(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)
	c.Markets(nil)
	c.Balances(nil)
	assert.Equal(t, 2, strings.Count(buf.String(), "none"))
}
