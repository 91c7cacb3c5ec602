package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmercier/aegis/internal/auth"
	"github.com/jmercier/aegis/internal/services"
	pkghttp "github.com/jmercier/aegis/pkg/http"
)

// APIKeyHandler manages the caller's programmatic credentials.
type APIKeyHandler struct {
	keys *services.APIKeyService
}

func NewAPIKeyHandler(keys *services.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{keys: keys}
}

type CreateAPIKeyRequest struct {
	Name        string     `json:"name" validate:"required,min=1,max=128"`
	Description string     `json:"description" validate:"max=512"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// CreateAPIKeyResponse is the only place the plaintext key ever appears.
type CreateAPIKeyResponse struct {
	Key    string         `json:"key"`
	APIKey APIKeyResponse `json:"api_key"`
}

func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req CreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	generated, err := h.keys.Create(r.Context(), user, req.Name, req.Description, req.ExpiresAt,
		pkghttp.ExtractClientIP(r), pkghttp.UserAgent(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, CreateAPIKeyResponse{
		Key:    generated.PlainKey,
		APIKey: toAPIKeyResponse(generated.APIKey),
	})
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	keys, err := h.keys.ListForUser(r.Context(), user.ID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	out := make([]APIKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, toAPIKeyResponse(k))
	}
	pkghttp.WriteJSON(w, http.StatusOK, out)
}

func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	if err := h.keys.Revoke(r.Context(), user, chi.URLParam(r, "id"),
		pkghttp.ExtractClientIP(r), pkghttp.UserAgent(r)); err != nil {
		WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
