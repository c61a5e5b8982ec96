package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rocketscienceinc/tictactoe-session/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-session/internal/entity"
	"github.com/rocketscienceinc/tictactoe-session/internal/session"
)

const defaultMatchLimit = 20

type Handlers interface {
	Session(w http.ResponseWriter, r *http.Request)
	Matches(w http.ResponseWriter, r *http.Request)
	Match(w http.ResponseWriter, r *http.Request)
}

type sessionInspector interface {
	Snapshot(ctx context.Context) (session.Snapshot, error)
}

type matchHistory interface {
	Recent(ctx context.Context, limit int) ([]*entity.MatchRecord, error)
	Get(ctx context.Context, id string) (*entity.MatchRecord, error)
}

type handlers struct {
	logger  *slog.Logger
	session sessionInspector
	history matchHistory
}

func NewHandlers(logger *slog.Logger, session sessionInspector, history matchHistory) Handlers {
	return &handlers{
		logger:  logger,
		session: session,
		history: history,
	}
}

// Session - the current phase, game and connections.
func (that *handlers) Session(w http.ResponseWriter, r *http.Request) {
	snapshot, err := that.session.Snapshot(r.Context())
	if err != nil {
		that.logger.Error("failed to snapshot session", "method", "Session", "error", err)
		writeError(w, http.StatusServiceUnavailable, "session unavailable")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// Matches - recent archived matches, newest first. ?limit= caps the count.
func (that *handlers) Matches(w http.ResponseWriter, r *http.Request) {
	limit := defaultMatchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := that.history.Recent(r.Context(), limit)
	if err != nil {
		that.logger.Error("failed to list matches", "method", "Matches", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func (that *handlers) Match(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := that.history.Get(r.Context(), id)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		writeError(w, http.StatusNotFound, "match not found")
		return
	case err != nil:
		that.logger.Error("failed to get match", "method", "Match", "match", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
