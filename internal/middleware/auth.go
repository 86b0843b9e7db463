package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/docuport/portal-api/internal/authz"
	"github.com/docuport/portal-api/internal/models"
	"github.com/docuport/portal-api/internal/session"
	apperrors "github.com/docuport/portal-api/pkg/errors"
)

const identityKey = "identity"

// AuthMiddleware resolves the session on each request and enforces role
// requirements. Missing or invalid sessions map to 401, valid sessions
// with insufficient role to 403.
type AuthMiddleware struct {
	sessions *session.Manager
	logger   *logrus.Logger
}

func NewAuthMiddleware(sessions *session.Manager, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, logger: logger}
}

// Resolve decodes the session, when present, into request locals and
// always continues. Handlers that tolerate anonymous callers use this.
func (a *AuthMiddleware) Resolve() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if identity := a.sessions.Read(a.sessions.TokenFromRequest(c)); identity != nil {
			c.Locals(identityKey, identity)
		}
		return c.Next()
	}
}

// RequireAuth rejects requests without a valid session
func (a *AuthMiddleware) RequireAuth() fiber.Handler {
	return a.RequireRoles(models.RoleAdmin, models.RoleDistributor)
}

// RequireRoles rejects requests whose session is absent (401) or whose
// role is not in the allowed set (403)
func (a *AuthMiddleware) RequireRoles(allowed ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity := Identity(c)
		if identity == nil {
			identity = a.sessions.Read(a.sessions.TokenFromRequest(c))
		}

		identity, err := authz.RequireRole(identity, allowed...)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Path(),
				"method": c.Method(),
			}).Debug("Request rejected by auth guard")
			return RespondError(c, err)
		}

		c.Locals(identityKey, identity)
		return c.Next()
	}
}

// Identity extracts the resolved identity from request locals
func Identity(c *fiber.Ctx) *models.Identity {
	if identity, ok := c.Locals(identityKey).(*models.Identity); ok {
		return identity
	}
	return nil
}

// GetUserID extracts the authenticated user id, or "" for anonymous
func GetUserID(c *fiber.Ctx) string {
	if identity := Identity(c); identity != nil {
		return identity.UserID
	}
	return ""
}

// RespondError writes the structured error body for an error from the
// auth or distribution layers. Unknown errors become a generic internal
// failure so no internal detail reaches the client.
func RespondError(c *fiber.Ctx, err error) error {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.NewAppError(apperrors.CodeInternalError, "Internal server error", err)
	}
	return c.Status(appErr.HTTPStatus()).JSON(appErr.ToErrorResponse(c.Get(fiber.HeaderXRequestID)))
}
