package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// OutcomeHandler serves the durable outcome ledger.
type OutcomeHandler struct {
	store  domain.OutcomeStore
	logger *slog.Logger
}

// NewOutcomeHandler creates an OutcomeHandler.
func NewOutcomeHandler(store domain.OutcomeStore, logger *slog.Logger) *OutcomeHandler {
	return &OutcomeHandler{store: store, logger: logger}
}

// ListOutcomes pages through resolved outcomes, newest first.
// GET /api/outcomes?limit=&offset=&since=&until=
func (h *OutcomeHandler) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "since/until must be RFC 3339")
		return
	}
	outcomes, err := h.store.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list outcomes failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list outcomes")
		return
	}
	if outcomes == nil {
		outcomes = []domain.Outcome{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"outcomes": outcomes,
		"limit":    opts.Limit,
		"offset":   opts.Offset,
	})
}

// Summary aggregates the ledger since ?since= (default: everything).
// GET /api/outcomes/summary
func (h *OutcomeHandler) Summary(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = t
	}
	sum, err := h.store.Summary(r.Context(), since)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: outcome summary failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to summarise outcomes")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
