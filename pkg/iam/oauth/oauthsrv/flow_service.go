package oauthsrv

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/Abraxas-365/tenantry/pkg/config"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam"
	"github.com/Abraxas-365/tenantry/pkg/iam/auth"
	"github.com/Abraxas-365/tenantry/pkg/iam/client"
	"github.com/Abraxas-365/tenantry/pkg/iam/oauth"
	"github.com/Abraxas-365/tenantry/pkg/iam/secret"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
	"github.com/Abraxas-365/tenantry/pkg/logx"
	"github.com/Abraxas-365/tenantry/pkg/metrics"
)

// ============================================================================
// Requests and results
// ============================================================================

type AuthorizeRequest struct {
	ClientID     string `query:"client_id"`
	RedirectURL  string `query:"redirect_url"`
	RedirectURI  string `query:"redirect_uri"`
	ResponseType string `query:"response_type"`
	Scope        string `query:"scope"`
	State        string `query:"state"`
	DeviceID     string `query:"device_id"`
}

func (r AuthorizeRequest) redirect() string {
	if r.RedirectURL != "" {
		return r.RedirectURL
	}
	return r.RedirectURI
}

// ClientInfo is the client metadata shown on the consent screen.
type ClientInfo struct {
	ClientID   kernel.ClientID `json:"client_id"`
	ClientName string          `json:"client_name"`
	Scopes     []string        `json:"scopes"`
}

type AuthorizeResult struct {
	FlowID      string     `json:"flow_id"`
	ExpiresIn   int64      `json:"expires_in"`
	Client      ClientInfo `json:"client"`
	Scope       []string   `json:"scope"`
	State       string     `json:"state,omitempty"`
	RedirectURL string     `json:"redirect_url,omitempty"`
	Code        string     `json:"code,omitempty"`
}

type GrantRequest struct {
	FlowID      string `form:"flow_id" json:"flow_id"`
	State       string `form:"state" json:"state"`
	ClientID    string `form:"client_id" json:"client_id"`
	RedirectURL string `form:"redirect_url" json:"redirect_url"`
	Action      string `form:"action" json:"action"`
}

type TokenRequest struct {
	GrantType    string `form:"grant_type" json:"grant_type"`
	ClientID     string `form:"client_id" json:"client_id"`
	ClientSecret string `form:"client_secret" json:"client_secret"`
	Code         string `form:"code" json:"code"`
	RefreshToken string `form:"refresh_token" json:"refresh_token"`
	DeviceID     string `form:"device_id" json:"device_id"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshExp   *int64 `json:"refresh_exp,omitempty"`
	IDTokenExp   *int64 `json:"id_token_exp,omitempty"`
	Success      bool   `json:"success"`
	Message      string `json:"message"`
}

// ============================================================================
// Service
// ============================================================================

// FlowService drives REQUESTED → CONSENT_PENDING → CODE_ISSUED → EXCHANGED,
// with EXPIRED reachable from either pending state.
type FlowService struct {
	clients oauth.ClientDirectory
	store   oauth.StateStore
	tokens  auth.TokenService
	audit   auth.AuditService
	cfg     config.OAuthConfig
	now     func() time.Time
}

func NewFlowService(
	clients oauth.ClientDirectory,
	store oauth.StateStore,
	tokens auth.TokenService,
	audit auth.AuditService,
	cfg config.OAuthConfig,
) *FlowService {
	if cfg.PendingTTL == 0 {
		cfg.PendingTTL = 59 * time.Second
	}
	if cfg.CodeTTL == 0 {
		cfg.CodeTTL = 5 * time.Minute
	}
	if cfg.CodeLength == 0 {
		cfg.CodeLength = 32
	}
	return &FlowService{
		clients: clients,
		store:   store,
		tokens:  tokens,
		audit:   audit,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Authorize validates the request against the client registration and opens
// a pending authorization for the logged-in user.
func (s *FlowService) Authorize(ctx context.Context, req AuthorizeRequest, ac *kernel.AuthContext) (*AuthorizeResult, error) {
	if ac == nil || !ac.IsValid() {
		return nil, iam.ErrUnauthorized()
	}
	clientID := kernel.ClientID(req.ClientID)

	fail := func(err error, reason string) (*AuthorizeResult, error) {
		metrics.OAuthRequestsTotal.WithLabelValues("authorize", "rejected").Inc()
		s.audit.LogAuthorize(ctx, clientID, *ac.UserID, ac.TenantID, false, reason)
		return nil, err
	}

	c, err := s.clients.GetByClientID(ctx, clientID)
	if err != nil {
		if errx.IsCode(err, client.CodeClientNotFound) {
			return fail(oauth.ErrInvalidClient(req.ClientID), "invalid_client")
		}
		return nil, err
	}

	redirect := req.redirect()
	if !c.AllowsRedirect(redirect) {
		return fail(oauth.ErrInvalidRedirect(redirect), "invalid_redirect")
	}
	if req.ResponseType != oauth.ResponseTypeCode || !c.AllowsResponseType(req.ResponseType) {
		return fail(oauth.ErrUnsupportedResponseType(req.ResponseType), "unsupported_response_type")
	}
	scopes := strings.Fields(req.Scope)
	for _, sc := range scopes {
		if !c.AllowsScope(sc) {
			return fail(oauth.ErrInvalidScope(sc), "invalid_scope")
		}
	}

	flowID, err := secret.Token(24)
	if err != nil {
		return nil, errx.Wrap(err, "failed to generate flow id", errx.TypeInternal)
	}

	now := s.now()
	p := &oauth.PendingAuthorization{
		FlowID:          flowID,
		ClientID:        c.ClientID,
		RedirectURL:     redirect,
		Scope:           scopes,
		ResponseType:    req.ResponseType,
		DeviceID:        req.DeviceID,
		State:           req.State,
		ExpiresAt:       now.Add(s.cfg.PendingTTL),
		LoginUserClaims: ac.Claims(),
		Status:          oauth.StatusConsentPending,
		CreatedAt:       now,
	}

	result := &AuthorizeResult{
		FlowID:    flowID,
		ExpiresIn: int64(s.cfg.PendingTTL.Seconds()),
		Client: ClientInfo{
			ClientID:   c.ClientID,
			ClientName: c.ClientName,
			Scopes:     c.Scopes,
		},
		Scope: scopes,
		State: req.State,
	}

	if c.SkipAuthorization {
		code, err := s.issueCode(p)
		if err != nil {
			return nil, err
		}
		result.Code = code
		result.ExpiresIn = int64(s.cfg.CodeTTL.Seconds())
		result.RedirectURL = withQuery(p.RedirectURL, map[string]string{"code": code, "state": p.State})
	}

	if err := s.store.Save(ctx, p); err != nil {
		return nil, err
	}

	metrics.OAuthRequestsTotal.WithLabelValues("authorize", "accepted").Inc()
	s.audit.LogAuthorize(ctx, c.ClientID, *ac.UserID, ac.TenantID, true, "")
	return result, nil
}

// Grant applies the user's consent decision and returns the URL to redirect
// the browser to. Only an unregistered redirect URL is returned as an error;
// every other outcome is reported to the client through the redirect.
func (s *FlowService) Grant(ctx context.Context, req GrantRequest) (string, error) {
	clientID := kernel.ClientID(req.ClientID)
	c, err := s.clients.GetByClientID(ctx, clientID)
	if err != nil {
		if errx.IsCode(err, client.CodeClientNotFound) {
			return "", oauth.ErrInvalidClient(req.ClientID)
		}
		return "", err
	}

	redirect := req.RedirectURL
	if redirect != "" && !c.AllowsRedirect(redirect) {
		return "", oauth.ErrInvalidRedirect(redirect)
	}
	if redirect == "" && len(c.RedirectURLs) > 0 {
		redirect = c.RedirectURLs[0]
	}
	if redirect == "" {
		return "", oauth.ErrInvalidRedirect("")
	}
	if req.Action != "allow" && req.Action != "deny" {
		return "", oauth.ErrInvalidAction(req.Action)
	}

	flowID := req.FlowID
	if flowID == "" {
		flowID = req.State
	}

	p, err := s.store.Get(ctx, flowID)
	if err != nil {
		if errx.IsCode(err, oauth.CodeFlowNotFound) {
			return s.grantOutcome(ctx, c.ClientID, flowID, "not_found", withQuery(redirect, map[string]string{
				"error": oauth.RedirectErrIdentityNotFound,
				"state": req.State,
			})), nil
		}
		return "", err
	}
	if p.ClientID != c.ClientID || p.Status != oauth.StatusConsentPending {
		return s.grantOutcome(ctx, c.ClientID, flowID, "not_found", withQuery(redirect, map[string]string{
			"error": oauth.RedirectErrIdentityNotFound,
			"state": req.State,
		})), nil
	}
	// The record's redirect was validated at authorize time.
	redirect = p.RedirectURL

	if p.IsExpired(s.now()) {
		if err := s.store.Delete(ctx, flowID); err != nil {
			logx.WithError(err).Warn("Failed to delete expired pending authorization")
		}
		return s.grantOutcome(ctx, c.ClientID, flowID, "timeout", withQuery(redirect, map[string]string{
			"error": oauth.RedirectErrTimeout,
			"state": p.State,
		})), nil
	}

	if req.Action == "deny" {
		if err := s.store.Delete(ctx, flowID); err != nil {
			return "", err
		}
		return s.grantOutcome(ctx, c.ClientID, flowID, "deny", withQuery(redirect, map[string]string{
			"error": oauth.RedirectErrAccessDenied,
			"state": p.State,
		})), nil
	}

	code, err := s.issueCode(p)
	if err != nil {
		return "", err
	}
	if err := s.store.Save(ctx, p); err != nil {
		return "", err
	}
	return s.grantOutcome(ctx, c.ClientID, flowID, "allow", withQuery(redirect, map[string]string{
		"code":  code,
		"state": p.State,
	})), nil
}

// Exchange implements the token endpoint for the authorization_code and
// refresh_token grants.
func (s *FlowService) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.GrantType != oauth.GrantTypeAuthorizationCode && req.GrantType != oauth.GrantTypeRefreshToken {
		return nil, oauth.ErrUnsupportedGrantType(req.GrantType)
	}

	c, err := s.clients.VerifySecret(ctx, kernel.ClientID(req.ClientID), req.ClientSecret)
	if err != nil {
		metrics.OAuthRequestsTotal.WithLabelValues("token", "invalid_client").Inc()
		return nil, err
	}
	if !c.AllowsGrant(req.GrantType) {
		return nil, oauth.ErrUnsupportedGrantType(req.GrantType).WithDetail("client_id", c.ClientID.String())
	}

	if req.GrantType == oauth.GrantTypeRefreshToken {
		return s.refresh(ctx, c, req)
	}
	return s.exchangeCode(ctx, c, req)
}

func (s *FlowService) exchangeCode(ctx context.Context, c *client.OAuthClient, req TokenRequest) (*TokenResponse, error) {
	fail := func(err *errx.Error, subject string) (*TokenResponse, error) {
		metrics.OAuthRequestsTotal.WithLabelValues("token", "rejected").Inc()
		s.audit.LogCodeExchange(ctx, c.ClientID, subject, false, err.Code)
		return nil, err
	}

	if req.Code == "" {
		return fail(oauth.ErrInvalidCode(), "")
	}
	p, err := s.store.FindByCode(ctx, req.Code)
	if err != nil {
		if errx.IsCode(err, oauth.CodeFlowNotFound) {
			return fail(oauth.ErrInvalidCode(), "")
		}
		return nil, err
	}
	subject, _ := p.LoginUserClaims[iam.ClaimSubject].(string)

	if p.ClientID != c.ClientID {
		return fail(oauth.ErrClientMismatch(), subject)
	}
	if p.DeviceID != req.DeviceID {
		return fail(oauth.ErrDeviceMismatch(), subject)
	}
	if p.CodeExpired(s.now()) {
		if err := s.store.Delete(ctx, p.FlowID); err != nil {
			logx.WithError(err).Warn("Failed to delete expired authorization code")
		}
		return fail(oauth.ErrCodeExpired(), subject)
	}

	consumed, err := s.store.Consume(ctx, p.FlowID)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return fail(oauth.ErrInvalidCode(), subject)
	}

	claims := make(map[string]interface{}, len(p.LoginUserClaims)+3)
	for k, v := range p.LoginUserClaims {
		claims[k] = v
	}
	claims[iam.ClaimClientID] = c.ClientID.String()
	claims[iam.ClaimScope] = strings.Join(p.Scope, " ")
	if p.DeviceID != "" {
		claims[iam.ClaimDeviceID] = p.DeviceID
	}

	set, err := s.tokens.IssueTokens(ctx, claims, true, true)
	if err != nil {
		return nil, err
	}

	metrics.OAuthRequestsTotal.WithLabelValues("token", "accepted").Inc()
	metrics.TokensIssuedTotal.WithLabelValues(oauth.GrantTypeAuthorizationCode).Inc()
	s.audit.LogCodeExchange(ctx, c.ClientID, subject, true, "")

	resp := &TokenResponse{
		AccessToken:  set.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.expiresIn(set.AccessExp),
		RefreshToken: set.RefreshToken,
		IDToken:      set.IDToken,
		Success:      true,
		Message:      "tokens issued",
	}
	if set.RefreshExp != nil {
		v := set.RefreshExp.Unix()
		resp.RefreshExp = &v
	}
	if set.IDTokenExp != nil {
		v := set.IDTokenExp.Unix()
		resp.IDTokenExp = &v
	}
	return resp, nil
}

func (s *FlowService) refresh(ctx context.Context, c *client.OAuthClient, req TokenRequest) (*TokenResponse, error) {
	fail := func(err error, subject, reason string) (*TokenResponse, error) {
		metrics.OAuthRequestsTotal.WithLabelValues("refresh", "rejected").Inc()
		s.audit.LogTokenRefresh(ctx, c.ClientID, subject, false, reason)
		return nil, err
	}

	if req.RefreshToken == "" {
		return fail(oauth.ErrInvalidRefreshToken("missing refresh_token"), "", "missing")
	}
	issued, err := s.tokens.ValidateToken(ctx, req.RefreshToken)
	if err != nil {
		return fail(err, "", "invalid")
	}
	if issued.TokenType != auth.TokenTypeRefresh {
		return fail(oauth.ErrInvalidRefreshToken("not a refresh token"), issued.Subject, "token_type")
	}
	if issued.ClientID != c.ClientID.String() {
		return fail(oauth.ErrClientMismatch(), issued.Subject, "client_mismatch")
	}
	if issued.DeviceID() != req.DeviceID {
		return fail(oauth.ErrDeviceMismatch(), issued.Subject, "device_mismatch")
	}

	token, exp, err := s.tokens.IssueAccessToken(ctx, issued.Claims)
	if err != nil {
		return nil, err
	}

	metrics.OAuthRequestsTotal.WithLabelValues("refresh", "accepted").Inc()
	metrics.TokensIssuedTotal.WithLabelValues(oauth.GrantTypeRefreshToken).Inc()
	s.audit.LogTokenRefresh(ctx, c.ClientID, issued.Subject, true, "")

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   s.expiresIn(exp),
		Success:     true,
		Message:     "access token refreshed",
	}, nil
}

func (s *FlowService) issueCode(p *oauth.PendingAuthorization) (string, error) {
	code, err := secret.Code(s.cfg.CodeLength)
	if err != nil {
		return "", errx.Wrap(err, "failed to generate authorization code", errx.TypeInternal)
	}
	p.IssueCode(code, s.now().Add(s.cfg.CodeTTL))
	return code, nil
}

func (s *FlowService) grantOutcome(ctx context.Context, clientID kernel.ClientID, flowID, outcome, redirect string) string {
	metrics.OAuthRequestsTotal.WithLabelValues("grant", outcome).Inc()
	s.audit.LogConsent(ctx, clientID, flowID, outcome)
	return redirect
}

func (s *FlowService) expiresIn(exp time.Time) int64 {
	return int64(exp.Sub(s.now()).Round(time.Second).Seconds())
}

// withQuery appends non-empty parameters to a registered redirect URL.
func withQuery(raw string, params map[string]string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
