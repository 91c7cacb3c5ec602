package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "type" claim
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
	TokenTypeTemp    = "temp" // bridges password check and 2FA completion
)

// TokenClaims are the JWT claims issued by the token manager. Subject is the
// username.
type TokenClaims struct {
	Type  string   `json:"type"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// AuthResult is the outcome of a completed or partially completed login.
// When Requires2FA is set only TempToken is populated.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	SessionToken string
	TokenType    string
	ExpiresIn    int64
	Requires2FA  bool
	TempToken    string
	User         *User
}
