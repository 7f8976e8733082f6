package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamReadWait        = 60 * time.Second
	streamReconnectDelay  = 2 * time.Second
	streamMaxReconnect    = 60 * time.Second
	streamHandshakeTimout = 15 * time.Second
)

// TradeStream follows the Binance public trade stream for one symbol and
// feeds every trade into a Tracker. As a Provider it answers with the last
// trade while that trade is fresher than staleAfter.
type TradeStream struct {
	url        string
	tracker    *Tracker
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.RWMutex
	last   float64
	lastAt time.Time
}

// NewTradeStream creates a stream for url, e.g.
// wss://stream.binance.com:9443/ws/btcusdt@trade.
func NewTradeStream(url string, tracker *Tracker, staleAfter time.Duration, logger *slog.Logger) *TradeStream {
	return &TradeStream{
		url:        url,
		tracker:    tracker,
		staleAfter: staleAfter,
		logger:     logger.With(slog.String("component", "trade_stream")),
		now:        time.Now,
	}
}

func (s *TradeStream) Name() string { return "binance_ws" }

// Price returns the last streamed trade price.
func (s *TradeStream) Price(_ context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == 0 {
		return 0, errors.New("signal: no trade received yet")
	}
	if age := s.now().Sub(s.lastAt); age > s.staleAfter {
		return 0, fmt.Errorf("signal: last trade is %s old", age.Round(time.Second))
	}
	return s.last, nil
}

// Run connects and reads until ctx is cancelled, reconnecting with
// exponential backoff.
func (s *TradeStream) Run(ctx context.Context) error {
	delay := streamReconnectDelay
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.WarnContext(ctx, "trade stream disconnected",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", delay),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, streamMaxReconnect)
	}
}

func (s *TradeStream) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: streamHandshakeTimout}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	s.logger.InfoContext(ctx, "trade stream connected", slog.String("url", s.url))

	_ = conn.SetReadDeadline(time.Now().Add(streamReadWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(streamReadWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(streamReadWait))
		s.handle(msg)
	}
}

type binanceTrade struct {
	Event     string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

func (s *TradeStream) handle(raw []byte) {
	var t binanceTrade
	if err := json.Unmarshal(raw, &t); err != nil || (t.Event != "trade" && t.Event != "aggTrade") {
		return
	}
	px, err := parsePrice(t.Price)
	if err != nil {
		return
	}
	at := s.now()
	if t.TradeTime > 0 {
		at = time.UnixMilli(t.TradeTime)
	}

	if s.tracker != nil {
		s.tracker.Add(px, at)
	}
	s.mu.Lock()
	s.last, s.lastAt = px, s.now()
	s.mu.Unlock()
}
