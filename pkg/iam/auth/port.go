package auth

import (
	"context"
	"crypto/rsa"
	"time"

	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

// KeyProvider is the part of the key manager the token service needs.
type KeyProvider interface {
	ActiveSigningKey(ctx context.Context) (*rsa.PrivateKey, string, error)
	PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// TokenService issues and validates RS256 tokens.
type TokenService interface {
	IssueTokens(ctx context.Context, claims map[string]interface{}, includeRefresh, includeID bool) (*TokenSet, error)
	IssueAccessToken(ctx context.Context, claims map[string]interface{}) (string, time.Time, error)
	ValidateToken(ctx context.Context, token string) (*IssuedToken, error)
}

// AuditService records security-relevant events of the login and OAuth flows.
type AuditService interface {
	LogLoginAttempt(ctx context.Context, tenantName, username string, success bool, ip string)
	LogAuthorize(ctx context.Context, clientID kernel.ClientID, userID kernel.UserID, tenantID kernel.TenantID, success bool, reason string)
	LogConsent(ctx context.Context, clientID kernel.ClientID, flowID, action string)
	LogCodeExchange(ctx context.Context, clientID kernel.ClientID, subject string, success bool, reason string)
	LogTokenRefresh(ctx context.Context, clientID kernel.ClientID, subject string, success bool, reason string)
}
