// Package session orchestrates login, session read, and logout.
//
// Sessions are stateless: a signed token carried in an HttpOnly cookie
// (or a Bearer header for non-cookie clients) is the whole session.
// There is no revocation list; the residual replay window of a
// logged-out token is bounded by the token TTL.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/docuport/portal-api/internal/models"
	"github.com/docuport/portal-api/internal/password"
	"github.com/docuport/portal-api/internal/store"
	"github.com/docuport/portal-api/internal/token"
	apperrors "github.com/docuport/portal-api/pkg/errors"
)

const bearerPrefix = "Bearer "

// Manager verifies credentials, mints tokens, and translates them back
// into identities on subsequent requests.
type Manager struct {
	credentials store.CredentialStore
	codec       *token.Codec
	hasher      *password.Hasher
	logger      *logrus.Logger

	tokenTTL      time.Duration
	cookieName    string
	secureCookies bool
}

func NewManager(credentials store.CredentialStore, codec *token.Codec, hasher *password.Hasher, logger *logrus.Logger, tokenTTL time.Duration, cookieName string, secureCookies bool) *Manager {
	return &Manager{
		credentials:   credentials,
		codec:         codec,
		hasher:        hasher,
		logger:        logger,
		tokenTTL:      tokenTTL,
		cookieName:    cookieName,
		secureCookies: secureCookies,
	}
}

// Login verifies the credential pair and mints a session token.
// Absent account, inactive account, and wrong secret all produce the
// same InvalidCredentials outcome so callers cannot enumerate users.
func (m *Manager) Login(ctx context.Context, email, secret string) (*models.Identity, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || secret == "" {
		return nil, "", apperrors.InvalidCredentials()
	}

	user, err := m.credentials.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", apperrors.InvalidCredentials()
		}
		m.logger.WithError(err).Error("Credential store lookup failed during login")
		return nil, "", apperrors.StoreUnavailable(err)
	}

	// Deactivated accounts cannot authenticate even with a correct secret
	if user.Status != models.StatusActive {
		return nil, "", apperrors.InvalidCredentials()
	}

	if !m.hasher.Verify(secret, user.PasswordHash) {
		return nil, "", apperrors.InvalidCredentials()
	}

	identity := user.Identity()
	signed, err := m.codec.Issue(identity, m.tokenTTL)
	if err != nil {
		m.logger.WithError(err).Error("Failed to issue session token")
		return nil, "", apperrors.NewAppError(apperrors.CodeInternalError, "Failed to issue session token", err)
	}

	return &identity, signed, nil
}

// Read resolves a token to an identity. Invalid or expired tokens yield
// a nil identity, not an error: absence of a session is anonymous, and
// callers that require auth enforce that through the guard.
func (m *Manager) Read(tokenString string) *models.Identity {
	if tokenString == "" {
		return nil
	}
	identity, err := m.codec.Parse(tokenString)
	if err != nil {
		return nil
	}
	return identity
}

// TokenFromRequest extracts the session token from the cookie, falling
// back to an Authorization Bearer header. Both carriers decode to the
// same identity.
func (m *Manager) TokenFromRequest(c *fiber.Ctx) string {
	if cookie := c.Cookies(m.cookieName); cookie != "" {
		return cookie
	}

	auth := c.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(auth, bearerPrefix) {
		return strings.TrimSpace(auth[len(bearerPrefix):])
	}
	return ""
}

// SetSessionCookie emits the login cookie. Max-Age and Expires are
// deliberately omitted: the browser treats it as a session cookie while
// the embedded token expiry backstops it server-side.
func (m *Manager) SetSessionCookie(c *fiber.Ctx, tokenString string) {
	c.Cookie(&fiber.Cookie{
		Name:     m.cookieName,
		Value:    tokenString,
		Path:     "/",
		HTTPOnly: true,
		Secure:   m.secureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// ClearSessionCookie instructs the client to discard the session cookie.
// The token itself stays cryptographically valid until its expiry.
func (m *Manager) ClearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		Secure:   m.secureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Now().Add(-time.Hour),
		MaxAge:   -1,
	})
}

// TokenTTL returns the configured token lifetime
func (m *Manager) TokenTTL() time.Duration {
	return m.tokenTTL
}

// CookieName returns the session cookie name
func (m *Manager) CookieName() string {
	return m.cookieName
}
