package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmercier/aegis/internal/auth"
	"github.com/jmercier/aegis/internal/models"
	"github.com/jmercier/aegis/internal/services"
	pkghttp "github.com/jmercier/aegis/pkg/http"
)

// RoleHandler manages roles and their permission sets.
type RoleHandler struct {
	roles *services.RoleService
}

func NewRoleHandler(roles *services.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

type CreateRoleRequest struct {
	Name        string   `json:"name" validate:"required,min=2,max=64"`
	Description string   `json:"description" validate:"max=256"`
	Permissions []string `json:"permissions"`
}

type UpdateRoleRequest struct {
	Description string   `json:"description" validate:"max=256"`
	Permissions []string `json:"permissions"`
	Active      *bool    `json:"active"`
}

func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.List(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	out := make([]RoleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	pkghttp.WriteJSON(w, http.StatusOK, out)
}

func (h *RoleHandler) Get(w http.ResponseWriter, r *http.Request) {
	role, err := h.roles.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *RoleHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetUserFromContext(r)
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req CreateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	role, err := h.roles.Create(r.Context(), actor, &models.Role{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
	}, pkghttp.ExtractClientIP(r), pkghttp.UserAgent(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *RoleHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetUserFromContext(r)
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	role := &models.Role{
		ID:          chi.URLParam(r, "id"),
		Description: req.Description,
		Permissions: req.Permissions,
		Active:      true,
	}
	if req.Active != nil {
		role.Active = *req.Active
	}

	updated, err := h.roles.Update(r.Context(), actor, role,
		pkghttp.ExtractClientIP(r), pkghttp.UserAgent(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toRoleResponse(updated))
}

func (h *RoleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetUserFromContext(r)
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	if err := h.roles.Delete(r.Context(), actor, chi.URLParam(r, "id"),
		pkghttp.ExtractClientIP(r), pkghttp.UserAgent(r)); err != nil {
		WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
