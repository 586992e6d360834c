package client

import (
	"net/http"
	"time"

	wildcard "github.com/IGLOU-EU/go-wildcard/v2"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

// ============================================================================
// Entity
// ============================================================================

// OAuthClient is a registered relying party.
type OAuthClient struct {
	ID                      string          `json:"id"`
	ClientID                kernel.ClientID `json:"client_id"`
	ClientSecretHash        string          `json:"-"`
	ClientName              string          `json:"client_name"`
	ClientType              string          `json:"client_type"`
	RedirectURLs            []string        `json:"redirect_urls"`
	PostLogoutRedirectURLs  []string        `json:"post_logout_redirect_urls"`
	ResponseTypes           []string        `json:"response_types"`
	GrantTypes              []string        `json:"grant_types"`
	AllowedOrigins          []string        `json:"allowed_origins"`
	Scopes                  []string        `json:"scopes"`
	TokenEndpointAuthMethod string          `json:"token_endpoint_auth_method"`
	SkipAuthorization       bool            `json:"skip_authorization"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// AllowsRedirect reports an exact match against the registered URLs.
func (c *OAuthClient) AllowsRedirect(url string) bool {
	return contains(c.RedirectURLs, url)
}

func (c *OAuthClient) AllowsResponseType(rt string) bool {
	return contains(c.ResponseTypes, rt)
}

func (c *OAuthClient) AllowsGrant(grant string) bool {
	return contains(c.GrantTypes, grant)
}

// AllowsScope matches the requested scope against the client's allow-list,
// whose entries may be wildcard patterns such as "billing:*".
func (c *OAuthClient) AllowsScope(scope string) bool {
	for _, pattern := range c.Scopes {
		if pattern == scope || wildcard.Match(pattern, scope) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// ============================================================================
// DTOs
// ============================================================================

type RegisterClientRequest struct {
	ClientName             string   `json:"client_name"`
	ClientType             string   `json:"client_type"`
	RedirectURLs           []string `json:"redirect_urls"`
	PostLogoutRedirectURLs []string `json:"post_logout_redirect_urls"`
	GrantTypes             []string `json:"grant_types"`
	AllowedOrigins         []string `json:"allowed_origins"`
	Scopes                 []string `json:"scopes"`
	SkipAuthorization      bool     `json:"skip_authorization"`
}

// Validate returns field-scoped problems with the request.
func (r RegisterClientRequest) Validate() error {
	fields := errx.FieldErrors{}
	if r.ClientName == "" {
		fields.Add("client_name", "is required")
	}
	if len(r.RedirectURLs) == 0 {
		fields.Add("redirect_urls", "at least one redirect URL is required")
	}
	validateGrants(fields, r.GrantTypes)
	if e := fields.Err("invalid client registration"); e != nil {
		return e
	}
	return nil
}

// UpdateClientRequest changes the fields that are present. Identifiers and
// the secret never change.
type UpdateClientRequest struct {
	ClientName             *string   `json:"client_name"`
	RedirectURLs           *[]string `json:"redirect_urls"`
	PostLogoutRedirectURLs *[]string `json:"post_logout_redirect_urls"`
	GrantTypes             *[]string `json:"grant_types"`
	AllowedOrigins         *[]string `json:"allowed_origins"`
	Scopes                 *[]string `json:"scopes"`
	SkipAuthorization      *bool     `json:"skip_authorization"`
}

func (r UpdateClientRequest) Validate() error {
	fields := errx.FieldErrors{}
	if r.ClientName != nil && *r.ClientName == "" {
		fields.Add("client_name", "must not be empty")
	}
	if r.RedirectURLs != nil && len(*r.RedirectURLs) == 0 {
		fields.Add("redirect_urls", "at least one redirect URL is required")
	}
	if r.GrantTypes != nil {
		if len(*r.GrantTypes) == 0 {
			fields.Add("grant_types", "at least one grant type is required")
		}
		validateGrants(fields, *r.GrantTypes)
	}
	if e := fields.Err("invalid client update"); e != nil {
		return e
	}
	return nil
}

// Apply copies the present fields onto c.
func (r UpdateClientRequest) Apply(c *OAuthClient) {
	if r.ClientName != nil {
		c.ClientName = *r.ClientName
	}
	if r.RedirectURLs != nil {
		c.RedirectURLs = *r.RedirectURLs
	}
	if r.PostLogoutRedirectURLs != nil {
		c.PostLogoutRedirectURLs = *r.PostLogoutRedirectURLs
	}
	if r.GrantTypes != nil {
		c.GrantTypes = *r.GrantTypes
	}
	if r.AllowedOrigins != nil {
		c.AllowedOrigins = *r.AllowedOrigins
	}
	if r.Scopes != nil {
		c.Scopes = *r.Scopes
	}
	if r.SkipAuthorization != nil {
		c.SkipAuthorization = *r.SkipAuthorization
	}
}

func validateGrants(fields errx.FieldErrors, grants []string) {
	for _, g := range grants {
		if g != GrantAuthorizationCode && g != GrantRefreshToken {
			fields.Add("grant_types", "unsupported grant type "+g)
		}
	}
}

type ClientPage = kernel.Paginated[*OAuthClient]

type RegisterClientResponse struct {
	Client       OAuthClient `json:"client"`
	ClientSecret string      `json:"client_secret"`
	Message      string      `json:"message"`
}

const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	ResponseTypeCode       = "code"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("CLIENT")

var (
	CodeClientNotFound      = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "OAuth client not found")
	CodeInvalidCredentials  = ErrRegistry.Register("INVALID_CREDENTIALS", errx.TypeAuthorization, http.StatusUnauthorized, "invalid client credentials")
	CodeClientAlreadyExists = ErrRegistry.Register("ALREADY_EXISTS", errx.TypeConflict, http.StatusConflict, "OAuth client already exists")
)

func ErrClientNotFound(clientID kernel.ClientID) *errx.Error {
	return ErrRegistry.New(CodeClientNotFound).WithDetail("client_id", clientID.String())
}

func ErrInvalidCredentials() *errx.Error {
	return ErrRegistry.New(CodeInvalidCredentials)
}

func ErrClientAlreadyExists() *errx.Error {
	return ErrRegistry.New(CodeClientAlreadyExists)
}
