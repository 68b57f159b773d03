package dto

import (
	"time"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// CredentialsRequest is the login and registration payload.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by login and stored by clients as their session.
type TokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	UserRole    domain.Role `json:"user_role"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewUserResponse renders u without its password hash.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, Role: u.Role, IsActive: u.IsActive, CreatedAt: u.CreatedAt}
}
