package handler

import (
	"net/http"
	"strconv"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// StatusSource exposes the engine's published snapshot.
type StatusSource interface {
	Status() domain.StatusSnapshot
}

// StatusHandler serves views of the in-memory engine state.
type StatusHandler struct {
	src StatusSource
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(src StatusSource) *StatusHandler {
	return &StatusHandler{src: src}
}

// GetStatus returns the full snapshot.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.src.Status())
}

// ListPositions returns live positions.
// GET /api/positions
func (h *StatusHandler) ListPositions(w http.ResponseWriter, _ *http.Request) {
	positions := h.src.Status().OpenPositions
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// GetCorrection returns the correction engine view.
// GET /api/correction
func (h *StatusHandler) GetCorrection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.src.Status().Correction)
}

// ListEvents returns recent events, newest last, optionally filtered by
// ?type= and capped by ?limit=.
// GET /api/events
func (h *StatusHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events := h.src.Status().Events
	if t := r.URL.Query().Get("type"); t != "" {
		filtered := make([]domain.Event, 0, len(events))
		for _, ev := range events {
			if string(ev.Type) == t {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n < len(events) {
			events = events[len(events)-n:]
		}
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
