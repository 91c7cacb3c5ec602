package handlers

import (
	"time"

	"github.com/jmercier/aegis/internal/models"
)

// UserResponse is the outward-facing user shape. Hashes, secrets and history
// never leave the service boundary.
type UserResponse struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	Enabled             bool       `json:"enabled"`
	Locked              bool       `json:"locked"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	MustChangePassword  bool       `json:"must_change_password"`
	TwoFactorEnabled    bool       `json:"two_factor_enabled"`
	Roles               []string   `json:"roles"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:                  u.ID,
		Username:            u.Username,
		Email:               u.Email,
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		Enabled:             u.Enabled,
		Locked:              u.Locked,
		FailedLoginAttempts: u.FailedLoginAttempts,
		MustChangePassword:  u.MustChangePassword,
		TwoFactorEnabled:    u.TwoFactorEnabled,
		Roles:               u.RoleNames(),
		LastLoginAt:         u.LastLoginAt,
		CreatedAt:           u.CreatedAt,
	}
}

func toUserResponses(users []*models.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return out
}

type SessionResponse struct {
	ID           string    `json:"id"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	LoginTime    time.Time `json:"login_time"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func toSessionResponses(sessions []*models.Session) []SessionResponse {
	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionResponse{
			ID:           s.ID,
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
			LoginTime:    s.LoginTime,
			LastActivity: s.LastActivity,
			ExpiresAt:    s.ExpiresAt,
		})
	}
	return out
}

// APIKeyResponse exposes the display prefix only, never hash or plaintext.
type APIKeyResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	KeyPrefix   string     `json:"key_prefix"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	Active      bool       `json:"active"`
}

func toAPIKeyResponse(k *models.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:          k.ID,
		Name:        k.Name,
		Description: k.Description,
		KeyPrefix:   k.KeyPrefix,
		CreatedAt:   k.CreatedAt,
		ExpiresAt:   k.ExpiresAt,
		LastUsedAt:  k.LastUsedAt,
		Active:      k.Active,
	}
}

type RoleResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
	Active      bool     `json:"active"`
}

func toRoleResponse(r *models.Role) RoleResponse {
	return RoleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Permissions: r.Permissions,
		Active:      r.Active,
	}
}

type AuditLogResponse struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Action       string    `json:"action"`
	Details      string    `json:"details,omitempty"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent,omitempty"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func toAuditLogResponses(entries []*models.AuditLog) []AuditLogResponse {
	out := make([]AuditLogResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditLogResponse{
			ID:           e.ID,
			Username:     e.Username,
			Action:       e.Action,
			Details:      e.Details,
			IPAddress:    e.IPAddress,
			UserAgent:    e.UserAgent,
			Success:      e.Success,
			ErrorMessage: e.ErrorMessage,
			Timestamp:    e.Timestamp,
		})
	}
	return out
}

type RegistrationResponse struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	CompanyName   string     `json:"company_name,omitempty"`
	RequestReason string     `json:"request_reason,omitempty"`
	Status        string     `json:"status"`
	RequestedAt   time.Time  `json:"requested_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	ProcessedBy   string     `json:"processed_by,omitempty"`
	AdminComment  string     `json:"admin_comment,omitempty"`
}

func toRegistrationResponse(r *models.RegistrationRequest) RegistrationResponse {
	return RegistrationResponse{
		ID:            r.ID,
		Email:         r.Email,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		CompanyName:   r.CompanyName,
		RequestReason: r.RequestReason,
		Status:        r.Status,
		RequestedAt:   r.RequestedAt,
		ProcessedAt:   r.ProcessedAt,
		ProcessedBy:   r.ProcessedBy,
		AdminComment:  r.AdminComment,
	}
}
