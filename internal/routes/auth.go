package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/docuport/portal-api/internal/metrics"
	"github.com/docuport/portal-api/internal/middleware"
	"github.com/docuport/portal-api/internal/models"
	"github.com/docuport/portal-api/internal/session"
	apperrors "github.com/docuport/portal-api/pkg/errors"
)

// AuthHandler handles login, logout and session introspection
type AuthHandler struct {
	sessions *session.Manager
	logger   *logrus.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(sessions *session.Manager, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// Login authenticates a user and establishes a session
// @Summary Login
// @Description Authenticate with email and secret, returns a signed session token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Credentials"
// @Success 200 {object} models.AuthResponse "Authenticated"
// @Failure 401 {object} errors.ErrorResponse "Invalid credentials"
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return middleware.RespondError(c, apperrors.NewAppError(
			apperrors.CodeBadRequest, "Invalid request body", err))
	}

	identity, tokenString, err := h.sessions.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		metrics.RecordLogin("failure")
		return middleware.RespondError(c, err)
	}

	h.sessions.SetSessionCookie(c, tokenString)
	metrics.RecordLogin("success")

	h.logger.WithFields(logrus.Fields{
		"user_id": identity.UserID,
		"role":    identity.Role,
	}).Info("User logged in")

	return c.JSON(models.AuthResponse{
		Token:     tokenString,
		UserID:    identity.UserID,
		Email:     identity.Email,
		FullName:  identity.FullName,
		Role:      identity.Role,
		ExpiresIn: int(h.sessions.TokenTTL().Seconds()),
	})
}

// Logout clears the session cookie
// @Summary Logout
// @Description Clear the session cookie; the token itself expires on schedule
// @Tags Auth
// @Success 204 "Logged out"
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.sessions.ClearSessionCookie(c)
	return c.SendStatus(fiber.StatusNoContent)
}

// Session returns the identity bound to the current request
// @Summary Current session
// @Description Return the authenticated identity, or 401 when anonymous
// @Tags Auth
// @Produce json
// @Success 200 {object} models.Identity "Current identity"
// @Failure 401 {object} errors.ErrorResponse "Not authenticated"
// @Router /api/v1/auth/session [get]
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	identity := middleware.Identity(c)
	if identity == nil {
		return middleware.RespondError(c, apperrors.Unauthenticated("Authentication required"))
	}
	return c.JSON(identity)
}
