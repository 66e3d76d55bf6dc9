package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/efreitasn/tokenexchange/internal/events"
	"github.com/efreitasn/tokenexchange/internal/journal"
)

// EventHandler replays the event journal.
type EventHandler struct {
	journal *journal.Journal
	logger  *slog.Logger
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(j *journal.Journal, logger *slog.Logger) *EventHandler {
	return &EventHandler{journal: j, logger: logger}
}

// eventListResponse is the JSON response for GET /events. Next is the
// from value that continues the listing.
type eventListResponse struct {
	Events []events.Record `json:"events"`
	Next   uint64          `json:"next"`
}

// List handles GET /events?from=&limit=.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	from := uint64(1)
	if f := r.URL.Query().Get("from"); f != "" {
		var err error
		from, err = strconv.ParseUint(f, 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "from must be a non-negative integer")
			return
		}
	}

	limit := journal.DefaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 || limit > 1000 {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be between 1 and 1000")
			return
		}
	}

	list, err := h.journal.Range(from, limit)
	if err != nil {
		h.logger.Error("journal range failed", slog.String("error", err.Error()))
		WriteServiceError(w, err)
		return
	}

	resp := eventListResponse{
		Events: make([]events.Record, len(list)),
		Next:   from,
	}
	for i, e := range list {
		resp.Events[i] = events.NewRecord(e)
	}
	if n := len(list); n > 0 {
		resp.Next = list[n-1].Seq + 1
	}
	WriteJSON(w, http.StatusOK, resp)
}
