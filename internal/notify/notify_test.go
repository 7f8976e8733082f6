package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

type recordSender struct {
	name   string
	err    error
	titles []string
}

func (r *recordSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordSender) Name() string { return r.name }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifier_FiltersEvents(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, DefaultEvents, discard())
	ctx := context.Background()

	require.NoError(t, n.NotifyEvent(ctx, domain.Event{Type: domain.EventHeartbeat}))
	require.NoError(t, n.NotifyEvent(ctx, domain.Event{
		Type:    domain.EventBetResolved,
		Payload: map[string]any{"ticker": "KX-A", "won": true, "pnl": 0.14, "balance": 100.14},
	}))
	require.NoError(t, n.NotifyAll(ctx, "hello", "world"))
	assert.Equal(t, []string{"Bet resolved: WIN", "hello"}, s.titles)
}

func TestNotifier_OneFailureDoesNotBlockOthers(t *testing.T) {
	bad := &recordSender{name: "bad", err: errors.New("503")}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.Notify(context.Background(), "anything", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: 503")
	assert.Len(t, good.titles, 1)
}

func TestRender(t *testing.T) {
	until := time.Date(2026, 5, 4, 15, 30, 0, 0, time.UTC)
	title, msg := Render(domain.Event{Type: domain.EventEmergencyEntered, Payload: map[string]any{"drawdown": 0.6, "until": until}})
	assert.Equal(t, "Emergency pause", title)
	assert.Contains(t, msg, "60.0%")
	assert.Contains(t, msg, "15:30 UTC")

	title, msg = Render(domain.Event{Type: domain.EventBetPlaced, Payload: map[string]any{
		"ticker": "KX-A", "side": domain.SideYes, "contracts": 2, "price": 40, "edge": 0.071,
	}})
	assert.Equal(t, "Bet placed", title)
	assert.Equal(t, "KX-A yes x2 @ 40¢ (edge 0.071)", msg)
}

func TestSenders(t *testing.T) {
	var got []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = append(got, body)
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	ctx := context.Background()

	tg := NewTelegramSender("tok", "42")
	tg.baseURL = srv.URL
	require.NoError(t, tg.Send(ctx, "T", "M"))

	require.NoError(t, NewDiscordSender(srv.URL+"/hook").Send(ctx, "T", "M"))
	assert.Error(t, NewDiscordSender(srv.URL+"/fail").Send(ctx, "T", "M"))

	require.Len(t, got, 3)
	assert.Equal(t, "42", got[0]["chat_id"])
	assert.Equal(t, "*T*\nM", got[0]["text"])
	assert.Equal(t, "**T**\nM", got[1]["content"])
}
