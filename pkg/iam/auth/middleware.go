package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/tenantry/pkg/iam"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

// TokenMiddleware authenticates requests with bearer access tokens.
type TokenMiddleware struct {
	tokenService TokenService
}

func NewAuthMiddleware(tokenService TokenService) *TokenMiddleware {
	return &TokenMiddleware{
		tokenService: tokenService,
	}
}

// Authenticate accepts "Authorization: Bearer <token>" or the access_token
// cookie. Only access tokens are accepted.
func (am *TokenMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			token = c.Cookies("access_token")
		}
		if token == "" {
			return iam.ErrUnauthorized()
		}

		issued, err := am.tokenService.ValidateToken(c.UserContext(), token)
		if err != nil {
			return err
		}
		if issued.TokenType != TokenTypeAccess {
			return ErrWrongTokenType(TokenTypeAccess, issued.TokenType)
		}

		c.Locals(iam.LocalsAuth, AuthContextFromToken(issued))
		return c.Next()
	}
}

// RequireScope rejects principals missing any of the given scopes.
func (am *TokenMiddleware) RequireScope(scopes ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac, ok := GetAuthContext(c)
		if !ok {
			return iam.ErrUnauthorized()
		}
		if !ac.HasAllScopes(scopes...) {
			return iam.ErrAccessDenied().WithDetail("required_scopes", scopes)
		}
		return c.Next()
	}
}

// GetAuthContext returns the principal stored by Authenticate.
func GetAuthContext(c *fiber.Ctx) (*kernel.AuthContext, bool) {
	ac, ok := c.Locals(iam.LocalsAuth).(*kernel.AuthContext)
	return ac, ok && ac != nil
}

// AuthContextFromToken maps validated claims onto the request principal.
func AuthContextFromToken(t *IssuedToken) *kernel.AuthContext {
	ac := &kernel.AuthContext{
		TenantID:   kernel.NewTenantID(t.TenantID),
		TenantName: t.TenantName,
		ClientID:   kernel.ClientID(t.ClientID),
		Username:   t.ClaimString(iam.ClaimUsername),
		Role:       t.ClaimString(iam.ClaimRole),
		Scopes:     scopesFromClaim(t.Claims[iam.ClaimScope]),
	}
	if t.Subject != "" {
		uid := kernel.NewUserID(t.Subject)
		ac.UserID = &uid
	}
	return ac
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// scopesFromClaim accepts the space separated OAuth form or a JSON array.
func scopesFromClaim(v interface{}) []string {
	switch s := v.(type) {
	case string:
		return strings.Fields(s)
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case []string:
		return s
	}
	return nil
}
