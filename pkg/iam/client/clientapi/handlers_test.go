package clientapi_test

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
	"github.com/Abraxas-365/tenantry/pkg/iam/client"
	"github.com/Abraxas-365/tenantry/pkg/iam/client/clientapi"
	"github.com/Abraxas-365/tenantry/pkg/iam/client/clientsrv"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

type registry struct {
	mu  sync.Mutex
	all []client.OAuthClient
}

func (r *registry) Save(_ context.Context, c client.OAuthClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.all {
		if r.all[i].ID == c.ID {
			r.all[i] = c
			return nil
		}
	}
	r.all = append(r.all, c)
	return nil
}

func (r *registry) FindByClientID(_ context.Context, id kernel.ClientID) (*client.OAuthClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.all {
		if c.ClientID == id {
			return &c, nil
		}
	}
	return nil, client.ErrClientNotFound(id)
}

func (r *registry) List(_ context.Context, opts kernel.PaginationOptions) ([]*client.OAuthClient, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*client.OAuthClient
	for i := opts.Offset(); i < len(r.all) && len(out) < opts.PageSize; i++ {
		c := r.all[i]
		out = append(out, &c)
	}
	return out, len(r.all), nil
}

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

func newApp(t *testing.T) (*fiber.App, *registry) {
	t.Helper()
	repo := &registry{all: []client.OAuthClient{{
		ID:            "id-1",
		ClientID:      "portal",
		ClientName:    "Portal",
		RedirectURLs:  []string{"https://portal.example.test/cb"},
		ResponseTypes: []string{"code"},
		GrantTypes:    []string{"authorization_code"},
		Scopes:        []string{"openid"},
	}}}
	tokens := bearerTokens{"root": "*", "reader": "clients:read", "member": "openid profile"}

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var e *errx.Error
			if errors.As(err, &e) {
				return c.Status(e.HTTPStatus).JSON(e.ToResponse(""))
			}
			return c.SendStatus(fiber.StatusInternalServerError)
		},
	})
	clientapi.NewClientHandlers(clientsrv.NewClientService(repo), auth.NewAuthMiddleware(tokens)).RegisterRoutes(app)
	return app, repo
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

func TestListClients(t *testing.T) {
	app, _ := newApp(t)

	resp := do(t, app, http.MethodGet, "/client/clients?page=1&page_size=1", "reader", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var page client.ClientPage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, kernel.ClientID("portal"), page.Items[0].ClientID)
	assert.Equal(t, 1, page.Page.Total)

	raw := do(t, app, http.MethodGet, "/client/clients", "root", "")
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(raw.Body).Decode(&body))
	assert.NotContains(t, body["items"].([]interface{})[0], "client_secret_hash")

	assert.Equal(t, fiber.StatusForbidden, do(t, app, http.MethodGet, "/client/clients", "member", "").StatusCode)
	assert.Equal(t, fiber.StatusUnauthorized, do(t, app, http.MethodGet, "/client/clients", "", "").StatusCode)
}

func TestUpdateClient(t *testing.T) {
	app, repo := newApp(t)
	body := `{"redirect_urls":["https://portal.example.test/cb","https://portal.example.test/cb2"],"skip_authorization":true}`

	assert.Equal(t, fiber.StatusForbidden, do(t, app, http.MethodPut, "/client/clients/portal", "reader", body).StatusCode)

	resp := do(t, app, http.MethodPut, "/client/clients/portal", "root", body)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var updated client.OAuthClient
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	assert.True(t, updated.SkipAuthorization)
	assert.Len(t, updated.RedirectURLs, 2)
	assert.Equal(t, []string{"openid"}, updated.Scopes)
	assert.True(t, repo.all[0].AllowsRedirect("https://portal.example.test/cb2"))

	assert.Equal(t, fiber.StatusNotFound, do(t, app, http.MethodPut, "/client/clients/missing", "root", body).StatusCode)
	assert.Equal(t, fiber.StatusBadRequest, do(t, app, http.MethodPut, "/client/clients/portal", "root", `{"redirect_urls":[]}`).StatusCode)
}

func TestRegisterClientReturnsSecretOnce(t *testing.T) {
	app, repo := newApp(t)

	resp := do(t, app, http.MethodPost, "/client/register", "root",
		`{"client_name":"cli","redirect_urls":["http://localhost/cb"],"scopes":["openid"]}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get(fiber.HeaderCacheControl))

	var created client.RegisterClientResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.ClientSecret)
	require.Len(t, repo.all, 2)
	assert.NotEqual(t, created.ClientSecret, repo.all[1].ClientSecretHash)
}
