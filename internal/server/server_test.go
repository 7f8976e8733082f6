package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
	"github.com/alanyoungcy/kalshiedge/internal/server/handler"
	"github.com/alanyoungcy/kalshiedge/internal/server/ws"
)

var t0 = time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)

type fixedStatus struct{ snap domain.StatusSnapshot }

func (f fixedStatus) Status() domain.StatusSnapshot { return f.snap }

type memOutcomes struct {
	outcomes []domain.Outcome
	lastOpts domain.ListOpts
}

func (m *memOutcomes) Insert(_ context.Context, o domain.Outcome) error {
	m.outcomes = append(m.outcomes, o)
	return nil
}

func (m *memOutcomes) List(_ context.Context, opts domain.ListOpts) ([]domain.Outcome, error) {
	m.lastOpts = opts
	return m.outcomes, nil
}

func (m *memOutcomes) Summary(context.Context, time.Time) (domain.OutcomeSummary, error) {
	return domain.OutcomeSummary{Count: len(m.outcomes), Wins: 1, PnL: 0.14}, nil
}

type countingLimiter struct {
	mu    sync.Mutex
	calls int
	limit int
}

func (c *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.calls <= c.limit, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestServer(t *testing.T, cfg Config, checks map[string]handler.Check, limiter domain.RateLimiter) (*httptest.Server, *memOutcomes, *ws.Hub) {
	t.Helper()
	src := fixedStatus{snap: domain.StatusSnapshot{
		Mode:    "dryrun",
		Balance: 100.14,
		Cycle:   7,
		OpenPositions: []domain.Position{
			{ID: "p1", Ticker: "KX-A", Side: domain.SideYes, State: domain.PositionFilled},
		},
		Correction: domain.CorrectionStatus{Regime: "LEARNING", EdgeMultiplier: 1},
		Events: []domain.Event{
			{ID: "e1", Type: domain.EventBetPlaced, Cycle: 6},
			{ID: "e2", Type: domain.EventHeartbeat, Cycle: 6},
			{ID: "e3", Type: domain.EventHeartbeat, Cycle: 7},
		},
	}}
	outcomes := &memOutcomes{outcomes: []domain.Outcome{{PositionID: "p0", Ticker: "KX-Z", Won: true, PnL: 0.14}}}
	hub := ws.NewHub(src, nil, "", discard())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()
	t.Cleanup(cancel)

	s := NewServer(cfg, Handlers{
		Health:   handler.NewHealthHandler(checks, discard()),
		Status:   handler.NewStatusHandler(src),
		Outcomes: handler.NewOutcomeHandler(outcomes, discard()),
	}, hub, limiter, discard())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, outcomes, hub
}

func getJSON(t *testing.T, req *http.Request, dst any) int {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if dst != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp.StatusCode
}

func get(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}

func TestStatusRoutes(t *testing.T) {
	srv, outcomes, _ := newTestServer(t, Config{}, nil, nil)

	var status domain.StatusSnapshot
	assert.Equal(t, http.StatusOK, getJSON(t, get(t, srv.URL+"/api/status"), &status))
	assert.Equal(t, 100.14, status.Balance)
	assert.Equal(t, int64(7), status.Cycle)

	var positions struct {
		Positions []domain.Position `json:"positions"`
	}
	getJSON(t, get(t, srv.URL+"/api/positions"), &positions)
	require.Len(t, positions.Positions, 1)
	assert.Equal(t, "KX-A", positions.Positions[0].Ticker)

	var corr domain.CorrectionStatus
	getJSON(t, get(t, srv.URL+"/api/correction"), &corr)
	assert.Equal(t, "LEARNING", corr.Regime)

	var events struct {
		Events []domain.Event `json:"events"`
	}
	getJSON(t, get(t, srv.URL+"/api/events?type=cycle_heartbeat&limit=1"), &events)
	require.Len(t, events.Events, 1)
	assert.Equal(t, "e3", events.Events[0].ID)

	var list struct {
		Outcomes []domain.Outcome `json:"outcomes"`
		Limit    int              `json:"limit"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, get(t, srv.URL+"/api/outcomes?limit=1000&offset=5&since=2026-05-04T00:00:00Z"), &list))
	assert.Len(t, list.Outcomes, 1)
	assert.Equal(t, 500, list.Limit)
	assert.Equal(t, 5, outcomes.lastOpts.Offset)
	require.NotNil(t, outcomes.lastOpts.Since)
	assert.True(t, outcomes.lastOpts.Since.Equal(time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)))

	assert.Equal(t, http.StatusBadRequest, getJSON(t, get(t, srv.URL+"/api/outcomes?since=yesterday"), nil))

	var sum domain.OutcomeSummary
	getJSON(t, get(t, srv.URL+"/api/outcomes/summary"), &sum)
	assert.Equal(t, 1, sum.Count)
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{APIKey: "secret"}, map[string]handler.Check{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return errors.New("connection refused") },
		"s3":       nil,
	}, nil)

	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, get(t, srv.URL+"/api/health"), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Dependencies["redis"])
	assert.Equal(t, "connection refused", body.Dependencies["postgres"])
	assert.NotContains(t, body.Dependencies, "s3")
}

func TestAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{APIKey: "secret"}, nil, nil)

	assert.Equal(t, http.StatusUnauthorized, getJSON(t, get(t, srv.URL+"/api/status"), nil))

	req := get(t, srv.URL+"/api/status")
	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, getJSON(t, req, nil))

	req = get(t, srv.URL+"/api/status")
	req.Header.Set("X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, getJSON(t, req, nil))

	assert.Equal(t, http.StatusOK, getJSON(t, get(t, srv.URL+"/api/status?token=secret"), nil))
}

func TestCORSAndRateLimit(t *testing.T) {
	limiter := &countingLimiter{limit: 2}
	srv, _, _ := newTestServer(t, Config{
		CORSOrigins:     []string{"https://dash.example.com"},
		RateLimit:       2,
		RateLimitWindow: time.Second,
	}, nil, limiter)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/status", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dash.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://dash.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req = get(t, srv.URL+"/api/status")
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusOK, getJSON(t, get(t, srv.URL+"/api/status"), nil))
	assert.Equal(t, http.StatusTooManyRequests, getJSON(t, get(t, srv.URL+"/api/status"), nil))
}

func TestWebSocketEvents(t *testing.T) {
	srv, _, hub := newTestServer(t, Config{}, nil, nil)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var first struct {
		Type    string                `json:"type"`
		Payload domain.StatusSnapshot `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "status", first.Type)
	assert.Equal(t, "dryrun", first.Payload.Mode)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "subscribe", "types": []string{"bet_resolved"}}))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	// The subscription is applied asynchronously; keep sending until the
	// filtered stream delivers only the wanted type.
	var got struct {
		Type    string       `json:"type"`
		Payload domain.Event `json:"payload"`
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.Broadcast(domain.Event{ID: "hb", Type: domain.EventHeartbeat, At: t0})
		hub.Broadcast(domain.Event{ID: "r1", Type: domain.EventBetResolved, At: t0})
		require.NoError(t, conn.ReadJSON(&got))
		if got.Payload.ID == "r1" {
			break
		}
	}
	assert.Equal(t, "event", got.Type)
	assert.Equal(t, domain.EventBetResolved, got.Payload.Type)
}
