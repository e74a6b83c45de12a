package reports

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/medx/lab-extractor/pkg/handlers"
)

// Handler provides the history HTTP endpoint.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a report handler.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "reports"),
	}
}

// History serves GET /api/history/{id}: all of the identifier's reports,
// newest first. An identifier with no reports is a 404, not an empty list.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrMissingUserID)
		return
	}

	history, err := h.sys.History(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNoHistory) {
			handlers.RespondMessage(w, http.StatusNotFound, "No history found for this user.")
			return
		}
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondData(w, http.StatusOK, history)
}
