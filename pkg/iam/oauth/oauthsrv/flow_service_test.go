package oauthsrv

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/tenantry/pkg/config"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/fsx/fsxlocal"
	"github.com/Abraxas-365/tenantry/pkg/iam/auth"
	"github.com/Abraxas-365/tenantry/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/tenantry/pkg/iam/client"
	"github.com/Abraxas-365/tenantry/pkg/iam/keys/keysinfra"
	"github.com/Abraxas-365/tenantry/pkg/iam/keys/keysrv"
	"github.com/Abraxas-365/tenantry/pkg/iam/oauth"
	"github.com/Abraxas-365/tenantry/pkg/iam/oauth/oauthinfra"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

const (
	testClientID = kernel.ClientID("portal")
	testSecret   = "portal-secret"
	testRedirect = "https://portal.example.test/callback"
)

type fakeDirectory struct {
	mu      sync.Mutex
	clients map[kernel.ClientID]*client.OAuthClient
}

func (d *fakeDirectory) GetByClientID(_ context.Context, id kernel.ClientID) (*client.OAuthClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.clients[id]
	if !ok {
		return nil, client.ErrClientNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (d *fakeDirectory) VerifySecret(ctx context.Context, id kernel.ClientID, secret string) (*client.OAuthClient, error) {
	c, err := d.GetByClientID(ctx, id)
	if err != nil || secret != testSecret {
		return nil, client.ErrInvalidCredentials()
	}
	return c, nil
}

type fixture struct {
	svc    *FlowService
	tokens *auth.JWTService
	dir    *fakeDirectory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs, err := fsxlocal.NewLocalFileSystem(t.TempDir())
	require.NoError(t, err)
	keys := keysrv.NewManager(keysinfra.NewFSXKeyStore(fs, "keys.json"), nil, config.KeysConfig{RSABits: 1024})
	tokens := auth.NewJWTService(keys, config.TokensConfig{Issuer: "https://id.example.test"})

	dir := &fakeDirectory{clients: map[kernel.ClientID]*client.OAuthClient{
		testClientID: {
			ClientID:      testClientID,
			ClientName:    "Portal",
			RedirectURLs:  []string{testRedirect},
			ResponseTypes: []string{"code"},
			GrantTypes:    []string{"authorization_code", "refresh_token"},
			Scopes:        []string{"openid", "profile", "billing:*"},
		},
	}}

	svc := NewFlowService(dir, oauthinfra.NewMemoryStateStore(time.Hour), tokens, authinfra.NewLogxAuditService(), config.OAuthConfig{
		PendingTTL: 59 * time.Second,
		CodeTTL:    5 * time.Minute,
		CodeLength: 32,
	})
	return &fixture{svc: svc, tokens: tokens, dir: dir}
}

func loggedIn() *kernel.AuthContext {
	uid := kernel.NewUserID("user-1")
	return &kernel.AuthContext{
		UserID:     &uid,
		TenantID:   kernel.NewTenantID("tenant-1"),
		TenantName: "acme",
		Username:   "root",
		Role:       "root",
	}
}

func authorizeReq() AuthorizeRequest {
	return AuthorizeRequest{
		ClientID:     testClientID.String(),
		RedirectURL:  testRedirect,
		ResponseType: "code",
		Scope:        "openid billing:read",
		State:        "xyz",
		DeviceID:     "device-1",
	}
}

func codeFrom(t *testing.T, redirect string) string {
	t.Helper()
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	return u.Query().Get("code")
}

func (f *fixture) authorizeAndAllow(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	res, err := f.svc.Authorize(ctx, authorizeReq(), loggedIn())
	require.NoError(t, err)

	redirect, err := f.svc.Grant(ctx, GrantRequest{
		FlowID:      res.FlowID,
		State:       "xyz",
		ClientID:    testClientID.String(),
		RedirectURL: testRedirect,
		Action:      "allow",
	})
	require.NoError(t, err)
	code := codeFrom(t, redirect)
	require.Len(t, code, 32)
	return code
}

func TestFullFlowIssuesOneTokenTriple(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.authorizeAndAllow(t)

	resp, err := f.svc.Exchange(ctx, TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     testClientID.String(),
		ClientSecret: testSecret,
		Code:         code,
		DeviceID:     "device-1",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.NotEmpty(t, resp.IDToken)
	require.NotNil(t, resp.RefreshExp)
	require.NotNil(t, resp.IDTokenExp)

	access, err := f.tokens.ValidateToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeAccess, access.TokenType)
	assert.Equal(t, "user-1", access.Subject)
	assert.Equal(t, "tenant-1", access.TenantID)
	assert.Equal(t, testClientID.String(), access.ClientID)
	assert.Equal(t, "device-1", access.DeviceID())
	assert.Equal(t, "openid billing:read", access.ClaimString("scope"))

	_, err = f.svc.Exchange(ctx, TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     testClientID.String(),
		ClientSecret: testSecret,
		Code:         code,
		DeviceID:     "device-1",
	})
	require.Error(t, err)
	assert.True(t, errx.IsCode(err, oauth.CodeInvalidCode))
}

func TestConcurrentExchangeHasOneWinner(t *testing.T) {
	f := newFixture(t)
	code := f.authorizeAndAllow(t)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Exchange(context.Background(), TokenRequest{
				GrantType:    "authorization_code",
				ClientID:     testClientID.String(),
				ClientSecret: testSecret,
				Code:         code,
				DeviceID:     "device-1",
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestAuthorizeRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]struct {
		mutate func(*AuthorizeRequest)
		code   *errx.ErrorCode
	}{
		"unknown client":          {func(r *AuthorizeRequest) { r.ClientID = "nope" }, oauth.CodeInvalidClient},
		"unregistered redirect":   {func(r *AuthorizeRequest) { r.RedirectURL = "https://evil.example/cb" }, oauth.CodeInvalidRedirect},
		"token response type":     {func(r *AuthorizeRequest) { r.ResponseType = "token" }, oauth.CodeUnsupportedResponseType},
		"scope outside allowance": {func(r *AuthorizeRequest) { r.Scope = "openid admin:write" }, oauth.CodeInvalidScope},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := authorizeReq()
			tc.mutate(&req)
			res, err := f.svc.Authorize(ctx, req, loggedIn())
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errx.IsCode(err, tc.code), "got %v", err)
		})
	}

	_, err := f.svc.Authorize(ctx, authorizeReq(), &kernel.AuthContext{})
	assert.Error(t, err)
}

func TestGrantOutcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("deny", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.svc.Authorize(ctx, authorizeReq(), loggedIn())
		require.NoError(t, err)

		redirect, err := f.svc.Grant(ctx, GrantRequest{FlowID: res.FlowID, ClientID: testClientID.String(), RedirectURL: testRedirect, Action: "deny"})
		require.NoError(t, err)
		u, _ := url.Parse(redirect)
		assert.Equal(t, "access_denied", u.Query().Get("error"))
		assert.Equal(t, "xyz", u.Query().Get("state"))

		redirect, err = f.svc.Grant(ctx, GrantRequest{FlowID: res.FlowID, ClientID: testClientID.String(), RedirectURL: testRedirect, Action: "allow"})
		require.NoError(t, err)
		u, _ = url.Parse(redirect)
		assert.Equal(t, "identity_not_found", u.Query().Get("error"))
	})

	t.Run("timeout then not found", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.svc.Authorize(ctx, authorizeReq(), loggedIn())
		require.NoError(t, err)

		f.svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		redirect, err := f.svc.Grant(ctx, GrantRequest{FlowID: res.FlowID, ClientID: testClientID.String(), RedirectURL: testRedirect, Action: "allow"})
		require.NoError(t, err)
		u, _ := url.Parse(redirect)
		assert.Equal(t, "timeout", u.Query().Get("error"))
		assert.Empty(t, u.Query().Get("code"))

		redirect, err = f.svc.Grant(ctx, GrantRequest{FlowID: res.FlowID, ClientID: testClientID.String(), RedirectURL: testRedirect, Action: "allow"})
		require.NoError(t, err)
		u, _ = url.Parse(redirect)
		assert.Equal(t, "identity_not_found", u.Query().Get("error"))
	})

	t.Run("state doubles as flow id", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.svc.Authorize(ctx, authorizeReq(), loggedIn())
		require.NoError(t, err)

		redirect, err := f.svc.Grant(ctx, GrantRequest{State: res.FlowID, ClientID: testClientID.String(), RedirectURL: testRedirect, Action: "allow"})
		require.NoError(t, err)
		assert.NotEmpty(t, codeFrom(t, redirect))
	})

	t.Run("unregistered redirect is not followed", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Grant(ctx, GrantRequest{FlowID: "x", ClientID: testClientID.String(), RedirectURL: "https://evil.example/cb", Action: "allow"})
		assert.True(t, errx.IsCode(err, oauth.CodeInvalidRedirect))
	})

	t.Run("no redirect to fall back on", func(t *testing.T) {
		f := newFixture(t)
		f.dir.clients[testClientID].RedirectURLs = nil

		redirect, err := f.svc.Grant(ctx, GrantRequest{FlowID: "x", ClientID: testClientID.String(), Action: "deny"})
		assert.True(t, errx.IsCode(err, oauth.CodeInvalidRedirect))
		assert.Empty(t, redirect)
	})

	t.Run("empty redirect falls back to the first registered", func(t *testing.T) {
		f := newFixture(t)
		redirect, err := f.svc.Grant(ctx, GrantRequest{FlowID: "missing", ClientID: testClientID.String(), Action: "allow"})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(redirect, testRedirect+"?"))
	})

	t.Run("unknown action", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Grant(ctx, GrantRequest{FlowID: "x", ClientID: testClientID.String(), RedirectURL: testRedirect, Action: "maybe"})
		assert.True(t, errx.IsCode(err, oauth.CodeInvalidAction))
	})
}

func TestExchangeChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("unsupported grant type", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Exchange(ctx, TokenRequest{GrantType: "password", ClientID: testClientID.String(), ClientSecret: testSecret})
		assert.True(t, errx.IsCode(err, oauth.CodeUnsupportedGrantType))
	})

	t.Run("bad client secret", func(t *testing.T) {
		f := newFixture(t)
		code := f.authorizeAndAllow(t)
		_, err := f.svc.Exchange(ctx, TokenRequest{GrantType: "authorization_code", ClientID: testClientID.String(), ClientSecret: "wrong", Code: code, DeviceID: "device-1"})
		assert.True(t, errx.IsCode(err, client.CodeInvalidCredentials))
	})

	t.Run("device mismatch keeps the code usable", func(t *testing.T) {
		f := newFixture(t)
		code := f.authorizeAndAllow(t)
		_, err := f.svc.Exchange(ctx, TokenRequest{GrantType: "authorization_code", ClientID: testClientID.String(), ClientSecret: testSecret, Code: code, DeviceID: "device-2"})
		assert.True(t, errx.IsCode(err, oauth.CodeDeviceMismatch))

		_, err = f.svc.Exchange(ctx, TokenRequest{GrantType: "authorization_code", ClientID: testClientID.String(), ClientSecret: testSecret, Code: code, DeviceID: "device-1"})
		assert.NoError(t, err)
	})

	t.Run("expired code", func(t *testing.T) {
		f := newFixture(t)
		code := f.authorizeAndAllow(t)
		f.svc.now = func() time.Time { return time.Now().Add(6 * time.Minute) }
		_, err := f.svc.Exchange(ctx, TokenRequest{GrantType: "authorization_code", ClientID: testClientID.String(), ClientSecret: testSecret, Code: code, DeviceID: "device-1"})
		assert.True(t, errx.IsCode(err, oauth.CodeCodeExpired))
	})
}

func TestRefreshIssuesAccessTokenOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.authorizeAndAllow(t)

	tokens, err := f.svc.Exchange(ctx, TokenRequest{GrantType: "authorization_code", ClientID: testClientID.String(), ClientSecret: testSecret, Code: code, DeviceID: "device-1"})
	require.NoError(t, err)

	resp, err := f.svc.Exchange(ctx, TokenRequest{GrantType: "refresh_token", ClientID: testClientID.String(), ClientSecret: testSecret, RefreshToken: tokens.RefreshToken, DeviceID: "device-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Empty(t, resp.RefreshToken)
	assert.Empty(t, resp.IDToken)

	access, err := f.tokens.ValidateToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeAccess, access.TokenType)
	assert.Equal(t, "user-1", access.Subject)

	_, err = f.svc.Exchange(ctx, TokenRequest{GrantType: "refresh_token", ClientID: testClientID.String(), ClientSecret: testSecret, RefreshToken: tokens.AccessToken, DeviceID: "device-1"})
	assert.True(t, errx.IsCode(err, oauth.CodeInvalidRefreshToken))

	_, err = f.svc.Exchange(ctx, TokenRequest{GrantType: "refresh_token", ClientID: testClientID.String(), ClientSecret: testSecret, RefreshToken: tokens.RefreshToken, DeviceID: "device-9"})
	assert.True(t, errx.IsCode(err, oauth.CodeDeviceMismatch))
}
