package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jmercier/aegis/internal/auth"
	"github.com/jmercier/aegis/internal/services"
	pkghttp "github.com/jmercier/aegis/pkg/http"
)

// TwoFactorHandler drives TOTP enrollment for the authenticated user.
type TwoFactorHandler struct {
	twoFactor *services.TwoFactorService
}

func NewTwoFactorHandler(twoFactor *services.TwoFactorService) *TwoFactorHandler {
	return &TwoFactorHandler{twoFactor: twoFactor}
}

type BeginTwoFactorRequest struct {
	Password string `json:"password" validate:"required"`
}

type ConfirmTwoFactorRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

type DisableTwoFactorRequest struct {
	Password string `json:"password" validate:"required"`
}

// EnrollmentResponse hands the secret and QR code to the user exactly once.
type EnrollmentResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURL string `json:"provisioning_url"`
	QRCode          string `json:"qr_code"`
}

func (h *TwoFactorHandler) Begin(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req BeginTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	setup, err := h.twoFactor.BeginEnrollment(r.Context(), user.Username, req.Password,
		pkghttp.ExtractClientIP(r), pkghttp.UserAgent(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, EnrollmentResponse{
		Secret:          setup.Secret,
		ProvisioningURL: setup.ProvisioningURL,
		QRCode:          setup.QRCodeDataURL,
	})
}

func (h *TwoFactorHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ConfirmTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.twoFactor.ConfirmEnrollment(r.Context(), user.Username, req.Code,
		pkghttp.ExtractClientIP(r), pkghttp.UserAgent(r)); err != nil {
		WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req DisableTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.twoFactor.Disable(r.Context(), user.Username, req.Password,
		pkghttp.ExtractClientIP(r), pkghttp.UserAgent(r)); err != nil {
		WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
