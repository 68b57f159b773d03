package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

// UserChange is an admin edit of an account; nil fields are left unchanged.
type UserChange struct {
	Role     *domain.Role
	IsActive *bool
}

// UserService lets admins manage accounts and their roles.
type UserService struct {
	users  repository.UserRepository
	logger *zap.Logger
}

// NewUserService builds the service.
func NewUserService(users repository.UserRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, logger: logger}
}

// ListUsers returns every account, oldest first.
func (s *UserService) ListUsers(ctx context.Context, actor Actor) ([]domain.User, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("admin role required")
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}

// UpdateUser changes the role or active flag of an account. Admins cannot
// demote or deactivate themselves, so at least one admin always remains.
func (s *UserService) UpdateUser(ctx context.Context, actor Actor, id string, change UserChange) (*domain.User, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("admin role required")
	}
	if change.Role == nil && change.IsActive == nil {
		return nil, apperrors.NewValidationError("no fields to update", nil)
	}
	if change.Role != nil && !change.Role.Valid() {
		return nil, apperrors.NewFieldError("role", "must be one of user, operator, admin")
	}
	if id == actor.UserID &&
		((change.Role != nil && *change.Role != domain.RoleAdmin) || (change.IsActive != nil && !*change.IsActive)) {
		return nil, apperrors.NewForbidden("admins cannot demote or deactivate themselves")
	}

	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("user", nil)
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if change.Role != nil {
		user.Role = *change.Role
	}
	if change.IsActive != nil {
		user.IsActive = *change.IsActive
	}
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("user updated",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.Bool("is_active", user.IsActive),
		zap.String("changed_by", actor.UserID))
	return user, nil
}
