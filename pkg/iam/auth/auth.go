package auth

import (
	"net/http"
	"time"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam"
)

// ============================================================================
// Token Types
// ============================================================================

type TokenType string

const (
	TokenTypeAccess  TokenType = "access_token"
	TokenTypeRefresh TokenType = "refresh_token"
	TokenTypeID      TokenType = "id_token"
)

// TokenSet is the result of one issuance. Refresh and ID tokens are optional.
type TokenSet struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	IDToken      string     `json:"id_token,omitempty"`
	AccessExp    time.Time  `json:"access_exp"`
	RefreshExp   *time.Time `json:"refresh_exp,omitempty"`
	IDTokenExp   *time.Time `json:"id_token_exp,omitempty"`
}

// IssuedToken is a validated token. It is never persisted.
type IssuedToken struct {
	Subject    string
	TenantID   string
	TenantName string
	ClientID   string
	TokenType  TokenType
	IssuedAt   time.Time
	ExpiresAt  time.Time
	KeyID      string
	Claims     map[string]interface{}
}

// ClaimString returns a string claim or "".
func (t *IssuedToken) ClaimString(name string) string {
	v, _ := t.Claims[name].(string)
	return v
}

func (t *IssuedToken) DeviceID() string {
	return t.ClaimString(iam.ClaimDeviceID)
}

// reservedClaims are stamped by the service and never taken from callers.
var reservedClaims = map[string]struct{}{
	"iat":              {},
	"exp":              {},
	"iss":              {},
	"jti":              {},
	iam.ClaimTokenType: {},
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("AUTH")

var (
	CodeMalformedToken        = ErrRegistry.Register("MALFORMED_TOKEN", errx.TypeValidation, http.StatusUnauthorized, "Malformed token")
	CodeTokenExpired          = ErrRegistry.Register("TOKEN_EXPIRED", errx.TypeExpired, http.StatusUnauthorized, "Token has expired")
	CodeUnknownKey            = ErrRegistry.Register("UNKNOWN_KEY", errx.TypeIntegrity, http.StatusUnauthorized, "Token signed by an unknown key")
	CodeInvalidSignature      = ErrRegistry.Register("INVALID_SIGNATURE", errx.TypeIntegrity, http.StatusUnauthorized, "Token signature is invalid")
	CodeWrongTokenType        = ErrRegistry.Register("WRONG_TOKEN_TYPE", errx.TypeAuthorization, http.StatusUnauthorized, "Unexpected token type")
	CodeTokenGenerationFailed = ErrRegistry.Register("TOKEN_GENERATION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Token generation failed")
	CodeInvalidCredentials    = ErrRegistry.Register("INVALID_CREDENTIALS", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid credentials")
)

func ErrMalformedToken(reason string) *errx.Error {
	return ErrRegistry.New(CodeMalformedToken).WithDetail("reason", reason)
}

func ErrTokenExpired() *errx.Error {
	return ErrRegistry.New(CodeTokenExpired)
}

func ErrUnknownKey(kid string) *errx.Error {
	return ErrRegistry.New(CodeUnknownKey).WithDetail("kid", kid)
}

func ErrInvalidSignature() *errx.Error {
	return ErrRegistry.New(CodeInvalidSignature)
}

func ErrWrongTokenType(want, got TokenType) *errx.Error {
	return ErrRegistry.New(CodeWrongTokenType).
		WithDetail("expected", string(want)).
		WithDetail("actual", string(got))
}

func ErrTokenGenerationFailed(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeTokenGenerationFailed, cause)
}

func ErrInvalidCredentials() *errx.Error {
	return ErrRegistry.New(CodeInvalidCredentials)
}
