package domain

import "time"

// EventType names a discrete engine notification.
type EventType string

const (
	EventHeartbeat         EventType = "cycle_heartbeat"
	EventBetPlaced         EventType = "bet_placed"
	EventBetResolved       EventType = "bet_resolved"
	EventBetCancelled      EventType = "bet_cancelled"
	EventPositionAbandoned EventType = "position_abandoned"
	EventCorrection        EventType = "correction_updated"
	EventEmergencyEntered  EventType = "emergency_entered"
	EventEmergencyExited   EventType = "emergency_exited"
	EventEngineStarted     EventType = "engine_started"
	EventEngineStopped     EventType = "engine_stopped"
	EventTargetHit         EventType = "target_hit"
	EventTickError         EventType = "tick_error"
)

// Event is a single entry on the engine's outbound stream.
type Event struct {
	ID      string         `json:"id"`
	Type    EventType      `json:"type"`
	At      time.Time      `json:"at"`
	Cycle   int64          `json:"cycle"`
	Payload map[string]any `json:"payload,omitempty"`
}

// EventSink receives events from engine components.
type EventSink interface {
	Emit(t EventType, cycle int64, payload map[string]any)
}
