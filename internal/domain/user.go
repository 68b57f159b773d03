package domain

import "time"

// Role is the access level of an account.
type Role string

const (
	RoleUser     Role = "user"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleOperator, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role may see and answer every ticket.
func (r Role) IsStaff() bool {
	return r == RoleOperator || r == RoleAdmin
}

// User is an account that submits or answers tickets.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
