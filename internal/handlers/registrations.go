package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmercier/aegis/internal/auth"
	"github.com/jmercier/aegis/internal/services"
	pkghttp "github.com/jmercier/aegis/pkg/http"
)

// RegistrationHandler covers the public request form and the admin review
// queue.
type RegistrationHandler struct {
	registrations *services.RegistrationService
}

func NewRegistrationHandler(registrations *services.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations}
}

type SubmitRegistrationRequest struct {
	Email         string `json:"email" validate:"required,email"`
	FirstName     string `json:"first_name" validate:"required,min=1,max=64"`
	LastName      string `json:"last_name" validate:"required,min=1,max=64"`
	CompanyName   string `json:"company_name" validate:"max=128"`
	RequestReason string `json:"request_reason" validate:"max=1024"`
}

type ReviewRegistrationRequest struct {
	Comment string `json:"comment" validate:"max=1024"`
}

// Submit files a registration request; no authentication required.
func (h *RegistrationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	created, err := h.registrations.Submit(r.Context(), services.RegistrationInput{
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		CompanyName:   req.CompanyName,
		RequestReason: req.RequestReason,
	}, pkghttp.ExtractClientIP(r), pkghttp.UserAgent(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, toRegistrationResponse(created))
}

func (h *RegistrationHandler) List(w http.ResponseWriter, r *http.Request) {
	requests, err := h.registrations.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	out := make([]RegistrationResponse, 0, len(requests))
	for _, req := range requests {
		out = append(out, toRegistrationResponse(req))
	}
	pkghttp.WriteJSON(w, http.StatusOK, out)
}

func (h *RegistrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.registrations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, toRegistrationResponse(req))
}

func (h *RegistrationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetUserFromContext(r)
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ReviewRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	user, err := h.registrations.Approve(r.Context(), actor, chi.URLParam(r, "id"), req.Comment,
		pkghttp.ExtractClientIP(r), pkghttp.UserAgent(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *RegistrationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetUserFromContext(r)
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ReviewRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := h.registrations.Reject(r.Context(), actor, chi.URLParam(r, "id"), req.Comment,
		pkghttp.ExtractClientIP(r), pkghttp.UserAgent(r)); err != nil {
		WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
