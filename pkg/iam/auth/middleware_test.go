package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/tenantry/pkg/errx"
)

func newProtectedApp(svc TokenService) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*errx.Error); ok {
				return c.Status(e.HTTPStatus).JSON(e.ToResponse(""))
			}
			return c.SendStatus(fiber.StatusInternalServerError)
		},
	})
	mw := NewAuthMiddleware(svc)
	app.Get("/me", mw.Authenticate(), func(c *fiber.Ctx) error {
		ac, ok := GetAuthContext(c)
		if !ok {
			return c.SendStatus(fiber.StatusTeapot)
		}
		return c.JSON(fiber.Map{"tenant": ac.TenantID, "scopes": ac.Scopes})
	})
	app.Get("/admin", mw.Authenticate(), mw.RequireScope("admin:billing"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestAuthenticateAcceptsOnlyAccessTokens(t *testing.T) {
	svc, _ := newTestService(t)
	app := newProtectedApp(svc)

	set, err := svc.IssueTokens(context.Background(), userClaims(), true, false)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+set.AccessToken)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+set.RefreshToken)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Cookie", "access_token="+set.AccessToken)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireScope(t *testing.T) {
	svc, _ := newTestService(t)
	app := newProtectedApp(svc)
	ctx := context.Background()

	plain, err := svc.IssueTokens(ctx, userClaims(), false, false)
	require.NoError(t, err)

	claims := userClaims()
	claims["scope"] = "openid admin:*"
	admin, err := svc.IssueTokens(ctx, claims, false, false)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+plain.AccessToken)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+admin.AccessToken)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
