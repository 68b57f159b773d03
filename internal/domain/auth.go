package domain

// Session is the persisted credential used to authorize requests.
type Session struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserRole    *Role  `json:"user_role,omitempty"`
}

// AuthorizationHeader renders "{token_type} {access_token}", or "" when the
// session lacks either part.
func (s *Session) AuthorizationHeader() string {
	if s == nil || s.AccessToken == "" || s.TokenType == "" {
		return ""
	}
	return s.TokenType + " " + s.AccessToken
}

// Role returns the session role, defaulting to RoleUser.
func (s *Session) Role() Role {
	if s == nil || s.UserRole == nil {
		return RoleUser
	}
	return *s.UserRole
}

// Credentials is a login attempt.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
