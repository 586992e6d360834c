package kernel

import wildcard "github.com/IGLOU-EU/go-wildcard/v2"

// ============================================================================
// Context Types
// ============================================================================

// AuthContext is the authenticated principal injected into every request by
// the bearer middleware.
type AuthContext struct {
	UserID     *UserID  `json:"user_id"`
	TenantID   TenantID `json:"tenant_id"`
	TenantName string   `json:"tenant_name"`
	ClientID   ClientID `json:"client_id"`
	Username   string   `json:"username"`
	Role       string   `json:"role"`
	Scopes     []string `json:"scopes"`
}

// Claims returns the identity claims carried into tokens issued on behalf of
// this principal.
func (ac *AuthContext) Claims() map[string]interface{} {
	claims := map[string]interface{}{
		"tenant_id":   ac.TenantID.String(),
		"tenant_name": ac.TenantName,
		"username":    ac.Username,
		"role":        ac.Role,
	}
	if ac.UserID != nil {
		claims["sub"] = ac.UserID.String()
	}
	return claims
}

// IsValid reports whether the context names both a user and a tenant.
func (ac *AuthContext) IsValid() bool {
	return ac.UserID != nil && !ac.UserID.IsEmpty() && !ac.TenantID.IsEmpty()
}

// ============================================================================
// Scope Management Methods
// ============================================================================

// HasScope reports whether any granted scope matches. Granted scopes may be
// patterns ("*", "billing:*", "apps:?ead").
func (ac *AuthContext) HasScope(scope string) bool {
	for _, s := range ac.Scopes {
		if s == scope || wildcard.Match(s, scope) {
			return true
		}
	}
	return false
}

// HasAllScopes reports whether every scope is granted.
func (ac *AuthContext) HasAllScopes(scopes ...string) bool {
	for _, scope := range scopes {
		if !ac.HasScope(scope) {
			return false
		}
	}
	return true
}
