package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmercier/aegis/internal/auth"
	"github.com/jmercier/aegis/internal/services"
	pkghttp "github.com/jmercier/aegis/pkg/http"
)

// SessionHandler exposes session visibility and revocation.
type SessionHandler struct {
	sessions *services.SessionService
	users    *services.UserService
}

func NewSessionHandler(sessions *services.SessionService, users *services.UserService) *SessionHandler {
	return &SessionHandler{sessions: sessions, users: users}
}

// ListMine returns the caller's active sessions.
func (h *SessionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	sessions, err := h.sessions.ListForUser(r.Context(), user.ID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toSessionResponses(sessions))
}

// ListForUser returns another user's active sessions, admin only by routing.
func (h *SessionHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListForUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toSessionResponses(sessions))
}

// Invalidate deactivates a single session.
func (h *SessionHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetUserFromContext(r)
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	if err := h.sessions.Invalidate(r.Context(), actor, chi.URLParam(r, "id"),
		pkghttp.ExtractClientIP(r), pkghttp.UserAgent(r)); err != nil {
		WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// InvalidateAllForUser deactivates every session a user holds.
func (h *SessionHandler) InvalidateAllForUser(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetUserFromContext(r)
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	target, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	count, err := h.sessions.InvalidateAllForUser(r.Context(), actor, target.ID, target.Username,
		pkghttp.ExtractClientIP(r), pkghttp.UserAgent(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]int64{"invalidated": count})
}
