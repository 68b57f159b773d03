package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-tracker/internal/api/dto"
	"github.com/spec-kit/ticket-tracker/internal/service"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

// AuthHandler exposes registration and login.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	req, err := parseCredentials(c)
	if err != nil {
		return err
	}
	user, err := h.auth.Register(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.NewUserResponse(user))
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	req, err := parseCredentials(c)
	if err != nil {
		return err
	}
	res, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
		return err
	}
	return c.JSON(dto.TokenResponse{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
		UserRole:    res.UserRole,
		ExpiresAt:   res.ExpiresAt,
	})
}

func parseCredentials(c *fiber.Ctx) (dto.CredentialsRequest, error) {
	var req dto.CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return req, apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return req, apperrors.NewValidationError("email and password required", nil)
	}
	return req, nil
}
