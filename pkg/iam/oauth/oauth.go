package oauth

import (
	"net/http"
	"time"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

// ============================================================================
// Pending authorization
// ============================================================================

// FlowStatus is the persisted part of the authorization state machine.
// EXCHANGED and EXPIRED are terminal and represented by deletion.
type FlowStatus string

const (
	StatusConsentPending FlowStatus = "CONSENT_PENDING"
	StatusCodeIssued     FlowStatus = "CODE_ISSUED"
)

// PendingAuthorization is one in-flight authorization attempt.
type PendingAuthorization struct {
	FlowID            string                 `json:"flow_id"`
	ClientID          kernel.ClientID        `json:"client_id"`
	RedirectURL       string                 `json:"redirect_url"`
	Scope             []string               `json:"scope"`
	ResponseType      string                 `json:"response_type"`
	DeviceID          string                 `json:"device_id,omitempty"`
	State             string                 `json:"state,omitempty"`
	ExpiresAt         time.Time              `json:"expires_at"`
	LoginUserClaims   map[string]interface{} `json:"login_user_claims"`
	AuthCode          string                 `json:"auth_code,omitempty"`
	AuthCodeExpiresAt *time.Time             `json:"auth_code_expires_at,omitempty"`
	Status            FlowStatus             `json:"status"`
	CreatedAt         time.Time              `json:"created_at"`
}

func (p *PendingAuthorization) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

func (p *PendingAuthorization) CodeExpired(now time.Time) bool {
	return p.AuthCodeExpiresAt == nil || now.After(*p.AuthCodeExpiresAt)
}

// IssueCode attaches a code and extends the record to the code's lifetime.
func (p *PendingAuthorization) IssueCode(code string, expiresAt time.Time) {
	p.AuthCode = code
	p.AuthCodeExpiresAt = &expiresAt
	p.ExpiresAt = expiresAt
	p.Status = StatusCodeIssued
}

// Redirect error values sent back to the client.
const (
	RedirectErrIdentityNotFound = "identity_not_found"
	RedirectErrTimeout          = "timeout"
	RedirectErrAccessDenied     = "access_denied"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	ResponseTypeCode           = "code"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("OAUTH")

var (
	CodeInvalidClient           = ErrRegistry.Register("INVALID_CLIENT", errx.TypeValidation, http.StatusBadRequest, "Unknown client")
	CodeInvalidRedirect         = ErrRegistry.Register("INVALID_REDIRECT", errx.TypeValidation, http.StatusBadRequest, "Redirect URL is not registered for this client")
	CodeUnsupportedResponseType = ErrRegistry.Register("UNSUPPORTED_RESPONSE_TYPE", errx.TypeValidation, http.StatusBadRequest, "Unsupported response_type")
	CodeInvalidScope            = ErrRegistry.Register("INVALID_SCOPE", errx.TypeValidation, http.StatusBadRequest, "Scope is not allowed for this client")
	CodeInvalidAction           = ErrRegistry.Register("INVALID_ACTION", errx.TypeValidation, http.StatusBadRequest, "action must be allow or deny")
	CodeFlowNotFound            = ErrRegistry.Register("FLOW_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Pending authorization not found")
	CodeUnsupportedGrantType    = ErrRegistry.Register("UNSUPPORTED_GRANT_TYPE", errx.TypeValidation, http.StatusBadRequest, "unsupported grant_type")
	CodeInvalidCode             = ErrRegistry.Register("INVALID_CODE", errx.TypeValidation, http.StatusBadRequest, "code already used or expired")
	CodeCodeExpired             = ErrRegistry.Register("CODE_EXPIRED", errx.TypeExpired, http.StatusBadRequest, "code expired")
	CodeClientMismatch          = ErrRegistry.Register("CLIENT_MISMATCH", errx.TypeValidation, http.StatusBadRequest, "client_id mismatch")
	CodeDeviceMismatch          = ErrRegistry.Register("DEVICE_MISMATCH", errx.TypeValidation, http.StatusBadRequest, "device_id mismatch")
	CodeInvalidRefreshToken     = ErrRegistry.Register("INVALID_REFRESH_TOKEN", errx.TypeAuthorization, http.StatusUnauthorized, "invalid refresh token")
	CodeStoreUnavailable        = ErrRegistry.Register("STORE_UNAVAILABLE", errx.TypeExternal, http.StatusServiceUnavailable, "Authorization state store unavailable")
)

func ErrInvalidClient(clientID string) *errx.Error {
	return ErrRegistry.New(CodeInvalidClient).WithField("client_id", "unknown client "+clientID)
}

func ErrInvalidRedirect(url string) *errx.Error {
	return ErrRegistry.New(CodeInvalidRedirect).WithField("redirect_url", url+" is not registered")
}

func ErrUnsupportedResponseType(rt string) *errx.Error {
	return ErrRegistry.New(CodeUnsupportedResponseType).WithField("response_type", "unsupported response_type "+rt)
}

func ErrInvalidScope(scope string) *errx.Error {
	return ErrRegistry.New(CodeInvalidScope).WithField("scope", scope+" is not allowed")
}

func ErrInvalidAction(action string) *errx.Error {
	return ErrRegistry.New(CodeInvalidAction).WithField("action", "unknown action "+action)
}

func ErrFlowNotFound(flowID string) *errx.Error {
	return ErrRegistry.New(CodeFlowNotFound).WithDetail("flow_id", flowID)
}

func ErrUnsupportedGrantType(grant string) *errx.Error {
	return ErrRegistry.New(CodeUnsupportedGrantType).WithField("grant_type", "unsupported grant_type "+grant)
}

func ErrInvalidCode() *errx.Error {
	return ErrRegistry.New(CodeInvalidCode)
}

func ErrCodeExpired() *errx.Error {
	return ErrRegistry.New(CodeCodeExpired)
}

func ErrClientMismatch() *errx.Error {
	return ErrRegistry.New(CodeClientMismatch)
}

func ErrDeviceMismatch() *errx.Error {
	return ErrRegistry.New(CodeDeviceMismatch)
}

func ErrInvalidRefreshToken(reason string) *errx.Error {
	return ErrRegistry.New(CodeInvalidRefreshToken).WithDetail("reason", reason)
}

func ErrStoreUnavailable(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeStoreUnavailable, cause)
}
