package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/erasmolabs/erasmo/internal/log"
	"github.com/erasmolabs/erasmo/internal/session"
)

// Pagination bounds for session listing.
const (
	DefaultListLimit = 20
	MaxListLimit     = 200

	// MaxTurnsReturned caps the turns embedded in a session detail.
	MaxTurnsReturned = 50
)

// SessionStore is the session surface the HTTP layer consumes.
// Satisfied by *session.PostgresStore.
type SessionStore interface {
	ListSessions(ctx context.Context, limit int) ([]session.Session, error)
	GetSession(ctx context.Context, sessionID string) (session.Session, error)
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]session.Turn, error)
}

// SessionHandler handles session endpoints.
type SessionHandler struct {
	store  SessionStore
	logger log.Logger
}

// NewSessionHandler creates the handler.
func NewSessionHandler(store SessionStore, logger log.Logger) *SessionHandler {
	return &SessionHandler{store: store, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.list)
	mux.HandleFunc("GET /api/sessions/{id}", h.get)
}

type sessionBody struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	TurnCount int       `json:"turn_count"`
}

type turnBody struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type sessionDetail struct {
	sessionBody
	Turns []turnBody `json:"turns"`
}

// list returns the newest sessions. The limit query parameter is clamped
// to [1, MaxListLimit].
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(h.logger, w, http.StatusBadRequest,
				errorBody{Error: "validation_error", Message: "limit must be an integer"})
			return
		}
		limit = min(max(n, 1), MaxListLimit)
	}

	sessions, err := h.store.ListSessions(r.Context(), limit)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}

	body := make([]sessionBody, len(sessions))
	for i, s := range sessions {
		body[i] = sessionBody{ID: s.ID, Title: s.Title, CreatedAt: s.CreatedAt, TurnCount: s.TurnCount}
	}
	writeJSON(h.logger, w, http.StatusOK, body)
}

// get returns session metadata plus its newest turns.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := h.store.GetSession(r.Context(), id)
	if errors.Is(err, session.ErrSessionNotFound) {
		writeJSON(h.logger, w, http.StatusNotFound,
			errorBody{Error: "not_found", Message: "session not found"})
		return
	}
	if err != nil {
		writeError(h.logger, w, err)
		return
	}

	turns, err := h.store.RecentTurns(r.Context(), id, MaxTurnsReturned)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}

	detail := sessionDetail{
		sessionBody: sessionBody{ID: sess.ID, Title: sess.Title, CreatedAt: sess.CreatedAt, TurnCount: sess.TurnCount},
		Turns:       make([]turnBody, len(turns)),
	}
	for i, t := range turns {
		detail.Turns[i] = turnBody{Role: string(t.Role), Text: t.Text, Timestamp: t.Timestamp}
	}
	writeJSON(h.logger, w, http.StatusOK, detail)
}
