package authx

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryan12324/openassistant/pkg/errx"
	"github.com/ryan12324/openassistant/pkg/kernel"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("secret", "", time.Minute)

	token, err := svc.GenerateAccessToken(kernel.AuthContext{UserID: "u1", Email: "a@example.com", Scopes: []string{"jobs:read"}})
	require.NoError(t, err)

	ac, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, kernel.UserID("u1"), ac.UserID)
	assert.Equal(t, "a@example.com", ac.Email)
	assert.Equal(t, []string{"jobs:read"}, ac.Scopes)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService("secret", "iss", time.Minute)
	token, err := svc.GenerateAccessToken(kernel.AuthContext{UserID: "u1"})
	require.NoError(t, err)

	_, err = NewJWTService("other", "iss", time.Minute).ValidateAccessToken(token)
	assert.Equal(t, "AUTHX_INVALID_TOKEN", errx.CodeOf(err))

	_, err = NewJWTService("secret", "someone-else", time.Minute).ValidateAccessToken(token)
	assert.Equal(t, "AUTHX_INVALID_TOKEN", errx.CodeOf(err))

	expired := NewJWTService("secret", "iss", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = expired.ValidateAccessToken(token)
	assert.Equal(t, "AUTHX_INVALID_TOKEN", errx.CodeOf(err))

	_, err = NewJWTService("", "", 0).GenerateAccessToken(kernel.AuthContext{UserID: "u1"})
	assert.Equal(t, "AUTHX_MISSING_SECRET", errx.CodeOf(err))
}

func TestJWTService_RejectsTokenWithoutUser(t *testing.T) {
	svc := NewJWTService("secret", "", time.Minute)
	token, err := svc.GenerateAccessToken(kernel.AuthContext{})
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)
	assert.Error(t, err)
}

func newApp(svc *JWTService) *fiber.App {
	app := fiber.New()
	app.Get("/me", Authenticate(svc), func(c *fiber.Ctx) error {
		ac, _ := FromContext(c)
		return c.SendString(ac.UserID.String())
	})
	app.Get("/admin", Authenticate(svc), RequireScope("admin:jobs"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestAuthenticate(t *testing.T) {
	svc := NewJWTService("secret", "", time.Minute)
	app := newApp(svc)
	token, err := svc.GenerateAccessToken(kernel.AuthContext{UserID: "u9"})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer nonsense")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireScope(t *testing.T) {
	svc := NewJWTService("secret", "", time.Minute)
	app := newApp(svc)

	plain, err := svc.GenerateAccessToken(kernel.AuthContext{UserID: "u1"})
	require.NoError(t, err)
	admin, err := svc.GenerateAccessToken(kernel.AuthContext{UserID: "u1", Scopes: []string{"admin:*"}})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+plain)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
