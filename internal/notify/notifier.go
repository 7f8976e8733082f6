// Package notify forwards selected engine events to chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// Sender delivers one message to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// DefaultEvents are forwarded when no explicit list is configured.
var DefaultEvents = []string{
	string(domain.EventBetResolved),
	string(domain.EventPositionAbandoned),
	string(domain.EventEmergencyEntered),
	string(domain.EventEmergencyExited),
	string(domain.EventEngineStopped),
	string(domain.EventTargetHit),
	string(domain.EventTickError),
}

// Notifier fans a message out to every sender. Only allowed event types pass
// Notify; NotifyAll skips the filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Allows reports whether event passes the filter.
func (n *Notifier) Allows(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify sends when event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Allows(event) {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends unconditionally.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// NotifyEvent renders an engine event and sends it when allowed.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.Event) error {
	if !n.Enabled() || !n.Allows(string(ev.Type)) {
		return nil
	}
	title, msg := Render(ev)
	return n.dispatch(ctx, title, msg)
}

// dispatch tries every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Render turns an event into a title and a short body.
func Render(ev domain.Event) (string, string) {
	p := ev.Payload
	switch ev.Type {
	case domain.EventBetPlaced:
		return "Bet placed", fmt.Sprintf("%v %v x%v @ %v¢ (edge %.3f)",
			p["ticker"], p["side"], p["contracts"], p["price"], num(p["edge"]))
	case domain.EventBetResolved:
		verdict := "LOSS"
		if won, _ := p["won"].(bool); won {
			verdict = "WIN"
		}
		return "Bet resolved: " + verdict, fmt.Sprintf("%v %v %v (%v) P&L $%.2f, balance $%.2f",
			p["ticker"], p["side"], p["resolution"], p["reason"], num(p["pnl"]), num(p["balance"]))
	case domain.EventBetCancelled:
		return "Bet cancelled", fmt.Sprintf("%v: %v", p["ticker"], p["reason"])
	case domain.EventPositionAbandoned:
		return "Position abandoned", fmt.Sprintf("%v no longer exists at the venue, cost $%.2f written off",
			p["ticker"], num(p["cost"]))
	case domain.EventEmergencyEntered:
		return "Emergency pause", fmt.Sprintf("drawdown %.1f%%, discovery paused until %s",
			num(p["drawdown"])*100, timeOf(p["until"]))
	case domain.EventEmergencyExited:
		return "Emergency pause over", "discovery resumed"
	case domain.EventEngineStopped:
		return "Engine stopped", fmt.Sprintf("reason %v, balance $%.2f", p["reason"], num(p["balance"]))
	case domain.EventTargetHit:
		return "Target reached", fmt.Sprintf("balance $%.2f", num(p["balance"]))
	case domain.EventTickError:
		return "Tick error", fmt.Sprintf("cycle %d: %v", ev.Cycle, p["error"])
	}
	return string(ev.Type), fmt.Sprintf("cycle %d", ev.Cycle)
}

func num(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	}
	return 0
}

func timeOf(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format("15:04 MST")
	}
	return fmt.Sprint(v)
}
