package userapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam"
	"github.com/Abraxas-365/tenantry/pkg/iam/auth"
	"github.com/Abraxas-365/tenantry/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/tenantry/pkg/iam/tenant"
	"github.com/Abraxas-365/tenantry/pkg/iam/user"
	"github.com/Abraxas-365/tenantry/pkg/iam/user/userapi"
	"github.com/Abraxas-365/tenantry/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

type users struct {
	mu  sync.Mutex
	all []user.User
}

func (s *users) Create(_ context.Context, u user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.all {
		if existing.TenantID == u.TenantID && existing.Username == u.Username {
			return user.ErrUserAlreadyExists(u.Username)
		}
	}
	s.all = append(s.all, u)
	return nil
}

func (s *users) FindByUsername(context.Context, kernel.TenantID, string) (*user.User, error) {
	return nil, user.ErrUserNotFound()
}

func (s *users) FindRoot(context.Context, kernel.TenantID) (*user.User, error) {
	return nil, user.ErrUserNotFound()
}

func (s *users) List(_ context.Context, tenantID kernel.TenantID, _ kernel.PaginationOptions) ([]user.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []user.User
	for _, u := range s.all {
		if u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	return out, len(out), nil
}

type tenants struct {
	tenant.Repository
}

func (tenants) FindByID(_ context.Context, id kernel.TenantID) (*tenant.Tenant, error) {
	if id != "tenant-1" {
		return nil, tenant.ErrTenantNotFound()
	}
	return &tenant.Tenant{ID: id, TenantName: "acme", Status: tenant.StatusActive, Active: true}, nil
}

// bearerTokens resolves fixed access tokens to tenant-1 principals with the
// given scope claim.
type bearerTokens map[string]string

func (b bearerTokens) IssueTokens(context.Context, map[string]interface{}, bool, bool) (*auth.TokenSet, error) {
	return nil, iam.ErrUnauthorized()
}

func (b bearerTokens) IssueAccessToken(context.Context, map[string]interface{}) (string, time.Time, error) {
	return "", time.Time{}, iam.ErrUnauthorized()
}

func (b bearerTokens) ValidateToken(_ context.Context, raw string) (*auth.IssuedToken, error) {
	scope, ok := b[raw]
	if !ok {
		return nil, iam.ErrUnauthorized()
	}
	return &auth.IssuedToken{
		Subject:   "user-1",
		TenantID:  "tenant-1",
		TokenType: auth.TokenTypeAccess,
		Claims:    map[string]interface{}{"scope": scope},
	}, nil
}

func newApp(t *testing.T) (*fiber.App, *users) {
	t.Helper()
	store := &users{}
	tokens := bearerTokens{"root": "*", "member": "openid profile"}
	svc := usersrv.NewUserService(store, tenants{}, tokens, authinfra.NewLogxAuditService(), "console")

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var e *errx.Error
			if errors.As(err, &e) {
				return c.Status(e.HTTPStatus).JSON(e.ToResponse(""))
			}
			return c.SendStatus(fiber.StatusInternalServerError)
		},
	})
	userapi.NewUserHandlers(svc, auth.NewAuthMiddleware(tokens)).RegisterRoutes(app)
	return app, store
}

func do(t *testing.T, app *fiber.App, method, path, bearer, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestRegisterAuthUserJoinsCallerTenant(t *testing.T) {
	app, store := newApp(t)
	body := `{"username":"alice","email":"alice@acme.test","password":"correct-horse"}`

	resp := do(t, app, http.MethodPost, "/account/register/auth_user", "root", body)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "alice", created["username"])
	assert.Equal(t, "tenant-1", created["tenant_id"])
	assert.NotContains(t, created, "password_hash")
	require.Len(t, store.all, 1)

	assert.Equal(t, fiber.StatusConflict, do(t, app, http.MethodPost, "/account/register/auth_user", "root", body).StatusCode)
}

func TestRegisterAuthUserRequiresScope(t *testing.T) {
	app, store := newApp(t)
	body := `{"username":"alice","email":"alice@acme.test","password":"correct-horse"}`

	assert.Equal(t, fiber.StatusUnauthorized, do(t, app, http.MethodPost, "/account/register/auth_user", "", body).StatusCode)
	assert.Equal(t, fiber.StatusForbidden, do(t, app, http.MethodPost, "/account/register/auth_user", "member", body).StatusCode)
	assert.Empty(t, store.all)
}

func TestListAuthUsers(t *testing.T) {
	app, store := newApp(t)
	store.all = []user.User{
		{ID: "u-1", TenantID: "tenant-1", Username: "alice"},
		{ID: "u-2", TenantID: "tenant-2", Username: "mallory"},
	}

	resp := do(t, app, http.MethodGet, "/account/auth_users?page=1&page_size=5", "root", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var page user.UserPage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "alice", page.Items[0].Username)
	assert.Equal(t, 5, page.Page.Size)
	assert.Equal(t, 1, page.Page.Total)

	assert.Equal(t, fiber.StatusForbidden, do(t, app, http.MethodGet, "/account/auth_users", "member", "").StatusCode)
}

func TestAccountGuardsDoNotLeakToSiblingRoutes(t *testing.T) {
	app, _ := newApp(t)
	app.Post("/account/checkout", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	assert.Equal(t, fiber.StatusOK, do(t, app, http.MethodPost, "/account/checkout", "", "{}").StatusCode)
}
