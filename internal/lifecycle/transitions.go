// Package lifecycle owns open positions from order placement to early exit or
// settlement, and performs the single bookkeeping update each one gets.
package lifecycle

import (
	"fmt"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// Transition conditions.
const (
	CondOrderFilled     = "order_filled"
	CondStaleOrder      = "stale_order"
	CondOrderRejected   = "order_rejected"
	CondExpiredUnfilled = "expired_unfilled"
	CondSettled         = "settled"
	CondNotFound        = "not_found"
	CondExitFilled      = "exit_filled"
)

// StateTransition is one allowed edge of the position state machine.
type StateTransition struct {
	From        domain.PositionState
	To          domain.PositionState
	Condition   string
	Description string
}

// ValidTransitions is the complete position state machine.
var ValidTransitions = []StateTransition{
	{domain.PositionPlaced, domain.PositionFilled, CondOrderFilled, "Entry order filled"},
	{domain.PositionPlaced, domain.PositionCancelled, CondStaleOrder, "Unfilled order cancelled after the age limit"},
	{domain.PositionPlaced, domain.PositionCancelled, CondOrderRejected, "Venue cancelled the order with nothing filled"},
	{domain.PositionPlaced, domain.PositionCancelled, CondExpiredUnfilled, "Contract settled before the order filled"},
	{domain.PositionPlaced, domain.PositionSettled, CondSettled, "Fill discovered at settlement"},
	{domain.PositionPlaced, domain.PositionAbandoned, CondNotFound, "Contract no longer known to the venue"},
	{domain.PositionFilled, domain.PositionEarlyExit, CondExitFilled, "Offsetting sell executed"},
	{domain.PositionFilled, domain.PositionSettled, CondSettled, "Contract settled with a result"},
	{domain.PositionFilled, domain.PositionAbandoned, CondNotFound, "Contract no longer known to the venue"},
}

// CanTransition reports whether from->to under condition is allowed.
func CanTransition(from, to domain.PositionState, condition string) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to && t.Condition == condition {
			return true
		}
	}
	return false
}

// Transition moves pos to the next state. Terminal positions never move
// again.
func Transition(pos *domain.Position, to domain.PositionState, condition string) error {
	if pos.State.Terminal() {
		return fmt.Errorf("lifecycle: position %s is %s: %w", pos.ID, pos.State, domain.ErrAlreadyResolved)
	}
	if !CanTransition(pos.State, to, condition) {
		return fmt.Errorf("lifecycle: %s -> %s (%s): %w", pos.State, to, condition, domain.ErrInvalidTransition)
	}
	pos.State = to
	return nil
}
