package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-tracker/internal/auth"
	"github.com/spec-kit/ticket-tracker/internal/config"
	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

const invalidCredentials = "Incorrect email or password"

// LoginResult is the issued session.
type LoginResult struct {
	AccessToken string
	TokenType   string
	UserRole    domain.Role
	ExpiresAt   time.Time
}

// AuthService coordinates registration and login flows.
type AuthService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, users repository.UserRepository) *AuthService {
	return &AuthService{
		users:      users,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
	}
}

// Register creates an active account with the user role.
func (s *AuthService) Register(ctx context.Context, email, password string) (*domain.User, error) {
	return s.createUser(ctx, email, password, domain.RoleUser)
}

// EnsureAdmin makes sure an active admin account exists for email. A missing
// account is created with password; an existing one is promoted and
// reactivated while its password is left alone.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) (*domain.User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByEmail(ctx, normalized)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.createUser(ctx, normalized, password, domain.RoleAdmin)
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if user.Role == domain.RoleAdmin && user.IsActive {
		return user, nil
	}
	user.Role = domain.RoleAdmin
	user.IsActive = true
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

func (s *AuthService) createUser(ctx context.Context, email, password string, role domain.Role) (*domain.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", map[string]any{"field": "email"})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	if len(password) < auth.MinPasswordLength {
		return nil, apperrors.NewFieldError("password", "must be at least 8 characters")
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// Login verifies credentials and issues a bearer token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewUnauthorized(invalidCredentials)
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized(invalidCredentials)
	}
	if !user.IsActive {
		return nil, apperrors.NewUnauthorized("user is inactive")
	}

	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &LoginResult{AccessToken: token, TokenType: auth.TokenType, UserRole: user.Role, ExpiresAt: exp}, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", apperrors.NewFieldError("email", "invalid email address")
	}
	return strings.ToLower(addr.Address), nil
}
