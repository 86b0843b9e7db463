package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/docuport/portal-api/internal/models"
	"github.com/docuport/portal-api/internal/password"
	"github.com/docuport/portal-api/internal/store"
	"github.com/docuport/portal-api/internal/token"
	apperrors "github.com/docuport/portal-api/pkg/errors"
)

func newTestManager(t *testing.T, credentials store.CredentialStore) *Manager {
	t.Helper()

	codec, err := token.NewCodec("test-secret", "portal-api")
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	return NewManager(credentials, codec, password.NewHasher(bcrypt.MinCost), logger, 7*24*time.Hour, "portal_session", false)
}

func seedUser(t *testing.T, s *store.Memory, email, secret string, role models.Role, status models.AccountStatus) *models.User {
	t.Helper()

	digest, err := password.NewHasher(bcrypt.MinCost).Hash(secret)
	require.NoError(t, err)

	user := &models.User{
		UserID:       "usr-" + email,
		Email:        email,
		PasswordHash: digest,
		FullName:     "Test " + email,
		Role:         role,
		Status:       status,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.CreateUser(context.Background(), user))
	return user
}

func TestManager_Login_Success(t *testing.T) {
	mem := store.NewMemory()
	seedUser(t, mem, "admin@example.com", "s3cret-pass", models.RoleAdmin, models.StatusActive)
	m := newTestManager(t, mem)

	identity, signed, err := m.Login(context.Background(), "admin@example.com", "s3cret-pass")
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, models.RoleAdmin, identity.Role)
	assert.Equal(t, "admin@example.com", identity.Email)

	// The minted token parses straight back to the same identity
	read := m.Read(signed)
	require.NotNil(t, read)
	assert.Equal(t, identity.UserID, read.UserID)
	assert.Equal(t, identity.Email, read.Email)
	assert.Equal(t, identity.Role, read.Role)
}

func TestManager_Login_EmailIsCaseInsensitive(t *testing.T) {
	mem := store.NewMemory()
	seedUser(t, mem, "dist@example.com", "s3cret-pass", models.RoleDistributor, models.StatusActive)
	m := newTestManager(t, mem)

	identity, _, err := m.Login(context.Background(), "  Dist@Example.COM ", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "dist@example.com", identity.Email)
}

func TestManager_Login_FailuresAreIndistinguishable(t *testing.T) {
	mem := store.NewMemory()
	seedUser(t, mem, "active@example.com", "right-pass", models.RoleDistributor, models.StatusActive)
	seedUser(t, mem, "inactive@example.com", "right-pass", models.RoleDistributor, models.StatusInactive)
	m := newTestManager(t, mem)

	cases := []struct {
		name  string
		email string
		pass  string
	}{
		{"unknown user", "nobody@example.com", "right-pass"},
		{"wrong secret", "active@example.com", "wrong-pass"},
		{"inactive account with correct secret", "inactive@example.com", "right-pass"},
		{"empty secret", "active@example.com", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			identity, signed, err := m.Login(context.Background(), tc.email, tc.pass)
			assert.Nil(t, identity)
			assert.Empty(t, signed)
			assert.Equal(t, apperrors.CodeInvalidCredentials, apperrors.CodeOf(err))
		})
	}
}

type failingCredentialStore struct{}

func (failingCredentialStore) FindUserByEmail(context.Context, string) (*models.User, error) {
	return nil, errors.New("connection reset")
}
func (failingCredentialStore) CreateUser(context.Context, *models.User) error { return nil }
func (failingCredentialStore) UpdateUserStatus(context.Context, string, models.AccountStatus) error {
	return nil
}

func TestManager_Login_StoreFaultIsNotInvalidCredentials(t *testing.T) {
	m := newTestManager(t, failingCredentialStore{})

	_, _, err := m.Login(context.Background(), "admin@example.com", "s3cret-pass")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeStoreUnavailable, apperrors.CodeOf(err))
	assert.True(t, err.(*apperrors.AppError).IsRetryable())
}

func newCookieTestApp(m *Manager) *fiber.App {
	app := fiber.New()
	app.Post("/set", func(c *fiber.Ctx) error {
		m.SetSessionCookie(c, "tok-value")
		return c.SendStatus(fiber.StatusOK)
	})
	app.Post("/clear", func(c *fiber.Ctx) error {
		m.ClearSessionCookie(c)
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/whoami", func(c *fiber.Ctx) error {
		identity := m.Read(m.TokenFromRequest(c))
		if identity == nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		return c.SendString(identity.Email)
	})
	return app
}

func sessionCookie(t *testing.T, resp *http.Response, name string) *http.Cookie {
	t.Helper()

	for _, cookie := range resp.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	t.Fatalf("response carries no %q cookie", name)
	return nil
}

func TestSessionCookie_LoginDirectives(t *testing.T) {
	m := newTestManager(t, store.NewMemory())
	app := newCookieTestApp(m)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/set", nil))
	require.NoError(t, err)

	cookie := sessionCookie(t, resp, m.CookieName())
	assert.Equal(t, "tok-value", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.False(t, cookie.Secure, "Secure is reserved for production")

	// No Max-Age or Expires at login: the browser holds a session cookie
	// and the token's own expiry backstops it
	assert.Zero(t, cookie.MaxAge)
	assert.True(t, cookie.Expires.IsZero())
}

func TestSessionCookie_SecureInProduction(t *testing.T) {
	codec, err := token.NewCodec("test-secret", "portal-api")
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	m := NewManager(store.NewMemory(), codec, password.NewHasher(bcrypt.MinCost), logger, 7*24*time.Hour, "portal_session", true)
	app := newCookieTestApp(m)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/set", nil))
	require.NoError(t, err)

	assert.True(t, sessionCookie(t, resp, m.CookieName()).Secure)
}

func TestSessionCookie_LogoutExpiresTheCookie(t *testing.T) {
	m := newTestManager(t, store.NewMemory())
	app := newCookieTestApp(m)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/clear", nil))
	require.NoError(t, err)

	cookie := sessionCookie(t, resp, m.CookieName())
	assert.Empty(t, cookie.Value)
	assert.True(t, cookie.Expires.Before(time.Now()), "logout overwrites with an already-expired cookie")
}

func TestSession_CookieAndBearerDecodeIdentically(t *testing.T) {
	mem := store.NewMemory()
	seedUser(t, mem, "dist@example.com", "s3cret-pass", models.RoleDistributor, models.StatusActive)
	m := newTestManager(t, mem)
	app := newCookieTestApp(m)

	_, signed, err := m.Login(context.Background(), "dist@example.com", "s3cret-pass")
	require.NoError(t, err)

	viaCookie := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	viaCookie.AddCookie(&http.Cookie{Name: m.CookieName(), Value: signed})

	viaBearer := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	viaBearer.Header.Set(fiber.HeaderAuthorization, "Bearer "+signed)

	for name, req := range map[string]*http.Request{"cookie": viaCookie, "bearer": viaBearer} {
		resp, err := app.Test(req)
		require.NoError(t, err, name)
		require.Equal(t, http.StatusOK, resp.StatusCode, name)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err, name)
		assert.Equal(t, "dist@example.com", string(body), name)
	}

	anonymous, err := app.Test(httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, anonymous.StatusCode)
}

func TestManager_Read_InvalidTokensAreAnonymous(t *testing.T) {
	m := newTestManager(t, store.NewMemory())

	assert.Nil(t, m.Read(""))
	assert.Nil(t, m.Read("garbage"))
	assert.Nil(t, m.Read("a.b.c"))
}

func TestManager_Read_ExpiredTokenIsAnonymous(t *testing.T) {
	mem := store.NewMemory()
	seedUser(t, mem, "dist@example.com", "s3cret-pass", models.RoleDistributor, models.StatusActive)

	codec, err := token.NewCodec("test-secret", "portal-api")
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	short := NewManager(mem, codec, password.NewHasher(bcrypt.MinCost), logger, time.Millisecond, "portal_session", false)

	_, signed, err := short.Login(context.Background(), "dist@example.com", "s3cret-pass")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	assert.Nil(t, short.Read(signed))
}
