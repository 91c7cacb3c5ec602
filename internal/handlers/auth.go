package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jmercier/aegis/internal/auth"
	"github.com/jmercier/aegis/internal/models"
	"github.com/jmercier/aegis/internal/services"
	pkghttp "github.com/jmercier/aegis/pkg/http"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	auth      *services.AuthService
	passwords *services.PasswordService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *services.AuthService, passwords *services.PasswordService) *AuthHandler {
	return &AuthHandler{auth: authService, passwords: passwords}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Verify2FARequest completes a login that requires a second factor
type Verify2FARequest struct {
	TempToken string `json:"temp_token" validate:"required"`
	Code      string `json:"code" validate:"required,len=6"`
}

// RefreshTokenRequest represents the request body for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ChangePasswordRequest rotates the caller's own password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// LoginResponse carries either a full token set or the 2FA challenge.
type LoginResponse struct {
	AccessToken          string        `json:"access_token,omitempty"`
	RefreshToken         string        `json:"refresh_token,omitempty"`
	SessionToken         string        `json:"session_token,omitempty"`
	TokenType            string        `json:"token_type,omitempty"`
	ExpiresIn            int64         `json:"expires_in,omitempty"`
	Requires2FA          bool          `json:"requires_2fa"`
	TempToken            string        `json:"temp_token,omitempty"`
	MustChangePassword   bool          `json:"must_change_password,omitempty"`
	User                 *UserResponse `json:"user,omitempty"`
}

func toLoginResponse(result *models.AuthResult) LoginResponse {
	resp := LoginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		SessionToken: result.SessionToken,
		TokenType:    result.TokenType,
		ExpiresIn:    result.ExpiresIn,
		Requires2FA:  result.Requires2FA,
		TempToken:    result.TempToken,
	}
	if result.User != nil {
		resp.MustChangePassword = result.User.MustChangePassword
		if !result.Requires2FA {
			user := toUserResponse(result.User)
			resp.User = &user
		}
	}
	return resp
}

// Login handles the first step of authentication
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))

	result, err := h.auth.Login(r.Context(), req.Username, req.Password,
		pkghttp.ExtractClientIP(r), pkghttp.UserAgent(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toLoginResponse(result))
}

// Verify2FA finishes a login for accounts with a second factor enabled
func (h *AuthHandler) Verify2FA(w http.ResponseWriter, r *http.Request) {
	var req Verify2FARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.auth.CompleteTwoFactorLogin(r.Context(), req.TempToken, req.Code,
		pkghttp.ExtractClientIP(r), pkghttp.UserAgent(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toLoginResponse(result))
}

// Refresh exchanges a refresh token for a fresh access token
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.auth.RefreshAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		AccessToken: result.AccessToken,
		TokenType:   result.TokenType,
		ExpiresIn:   result.ExpiresIn,
	})
}

// Logout revokes the caller's refresh tokens and closes the current session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	sessionToken := r.Header.Get("X-Session-Token")

	if err := h.auth.Logout(r.Context(), user, sessionToken,
		pkghttp.ExtractClientIP(r), pkghttp.UserAgent(r)); err != nil {
		WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword rotates the caller's own password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.passwords.ChangePassword(r.Context(), user.Username,
		req.CurrentPassword, req.NewPassword,
		pkghttp.ExtractClientIP(r), pkghttp.UserAgent(r)); err != nil {
		WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
