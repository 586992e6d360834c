package iam

import (
	"net/http"

	"github.com/Abraxas-365/tenantry/pkg/errx"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("IAM")

var (
	CodeUnauthorized = ErrRegistry.Register("UNAUTHORIZED", errx.TypeAuthorization, http.StatusUnauthorized, "Unauthorized")
	CodeInvalidToken = ErrRegistry.Register("INVALID_TOKEN", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid or expired token")
	CodeAccessDenied = ErrRegistry.Register("ACCESS_DENIED", errx.TypeAuthorization, http.StatusForbidden, "Access denied")
)

// Helper functions
func ErrUnauthorized() *errx.Error {
	return ErrRegistry.New(CodeUnauthorized)
}

func ErrInvalidToken() *errx.Error {
	return ErrRegistry.New(CodeInvalidToken)
}

func ErrAccessDenied() *errx.Error {
	return ErrRegistry.New(CodeAccessDenied)
}

// Claim names shared by the token service, the middleware and the OAuth flow.
const (
	ClaimSubject    = "sub"
	ClaimTenantID   = "tenant_id"
	ClaimTenantName = "tenant_name"
	ClaimUsername   = "username"
	ClaimRole       = "role"
	ClaimClientID   = "client_id"
	ClaimScope      = "scope"
	ClaimDeviceID   = "device_id"
	ClaimTokenType  = "token_type"
)

// LocalsAuth is the fiber Locals key holding the *kernel.AuthContext.
const LocalsAuth = "auth"

// Administrative scopes. Root users hold "*", which matches all of them.
const (
	ScopeUsersRead    = "users:read"
	ScopeUsersWrite   = "users:write"
	ScopeTenantsRead  = "tenants:read"
	ScopeClientsRead  = "clients:read"
	ScopeClientsWrite = "clients:write"
)
