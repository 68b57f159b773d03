package dto

import (
	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/service"
)

// UpdateUserRequest is an admin edit of an account; absent fields are unchanged.
type UpdateUserRequest struct {
	Role     *domain.Role `json:"role"`
	IsActive *bool        `json:"is_active"`
}

// Change converts the request to a service change.
func (r UpdateUserRequest) Change() service.UserChange {
	return service.UserChange{Role: r.Role, IsActive: r.IsActive}
}

// NewUserListResponse renders users without password hashes.
func NewUserListResponse(users []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, NewUserResponse(&users[i]))
	}
	return out
}
