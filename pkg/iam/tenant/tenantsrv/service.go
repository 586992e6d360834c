package tenantsrv

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Abraxas-365/tenantry/pkg/config"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam"
	"github.com/Abraxas-365/tenantry/pkg/iam/secret"
	"github.com/Abraxas-365/tenantry/pkg/iam/tenant"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
	"github.com/Abraxas-365/tenantry/pkg/logx"
	"github.com/Abraxas-365/tenantry/pkg/notifx"
)

const activationTemplate = "tenant_activation"

const activationHTML = `<p>Hello {{.TenantName}},</p>
<p>Your workspace is reserved. Choose a plan to activate it:</p>
<p><a href="{{.URL}}">{{.URL}}</a></p>
<p>This link expires at {{.ExpiresAt}}.</p>`

type TenantService struct {
	repo   tenant.Repository
	mailer *notifx.Client
	cfg    config.TenantConfig
	now    func() time.Time
}

func NewTenantService(repo tenant.Repository, mailer *notifx.Client, cfg config.TenantConfig) *TenantService {
	if cfg.LinkTTL == 0 {
		cfg.LinkTTL = 24 * time.Hour
	}
	if mailer != nil {
		if err := mailer.RegisterTemplate(activationTemplate, activationHTML); err != nil {
			logx.WithError(err).Warn("Failed to register activation email template")
		}
	}
	return &TenantService{repo: repo, mailer: mailer, cfg: cfg, now: time.Now}
}

// Register creates a pending tenant with a fresh activation link and mails
// the link. The raw token is returned once and never stored.
func (s *TenantService) Register(ctx context.Context, req tenant.RegisterTenantRequest) (*tenant.RegisterTenantResponse, string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, "", err
	}

	token, err := secret.Token(32)
	if err != nil {
		return nil, "", errx.Wrap(err, "failed to generate activation token", errx.TypeInternal)
	}

	now := s.now().UTC()
	t := tenant.Tenant{
		ID:          kernel.NewTenantID(kernel.NewID()),
		TenantName:  req.TenantName,
		TenantEmail: req.TenantEmail,
		Status:      tenant.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	link := tenant.Link{
		ID:          kernel.NewID(),
		TenantID:    t.ID,
		TokenHash:   secret.Hash(token),
		RequestType: tenant.LinkTypeActivation,
		ExpiresAt:   now.Add(s.cfg.LinkTTL),
		CreatedAt:   now,
	}

	if err := s.repo.CreateWithLink(ctx, t, link); err != nil {
		return nil, "", err
	}

	logx.WithFields(logx.Fields{
		"tenant_id":   t.ID,
		"tenant_name": t.TenantName,
	}).WithContext(ctx).Info("Tenant registered")

	s.sendActivationLink(ctx, t, token, link.ExpiresAt)

	return &tenant.RegisterTenantResponse{
		Tenant:        t,
		LinkExpiresAt: link.ExpiresAt,
		Message:       "check your inbox for the activation link",
	}, token, nil
}

// ValidateActivationToken returns the open link for a raw token.
func (s *TenantService) ValidateActivationToken(ctx context.Context, raw string) (*tenant.Link, error) {
	if raw == "" {
		return nil, tenant.ErrInvalidLink()
	}
	l, err := s.repo.FindLinkByHash(ctx, secret.Hash(raw))
	if err != nil {
		return nil, err
	}
	if err := l.Check(s.now()); err != nil {
		return nil, err
	}
	return l, nil
}

// Get returns a tenant to a caller that belongs to it or holds tenants:read.
func (s *TenantService) Get(ctx context.Context, caller *kernel.AuthContext, id kernel.TenantID) (*tenant.Tenant, error) {
	if caller == nil {
		return nil, iam.ErrUnauthorized()
	}
	if caller.TenantID != id && !caller.HasScope(iam.ScopeTenantsRead) {
		return nil, iam.ErrAccessDenied().WithDetail("tenant_id", id.String())
	}
	return s.repo.FindByID(ctx, id)
}

func (s *TenantService) ActivationURL(token string) string {
	base := s.cfg.ActivationURL
	if base == "" {
		return token
	}
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Sprintf("%s?token=%s", base, url.QueryEscape(token))
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// sendActivationLink is best effort; a lost email can be recovered by
// registering again with a new link.
func (s *TenantService) sendActivationLink(ctx context.Context, t tenant.Tenant, token string, expiresAt time.Time) {
	if s.mailer == nil {
		return
	}
	data := map[string]interface{}{
		"TenantName": t.TenantName,
		"URL":        s.ActivationURL(token),
		"ExpiresAt":  expiresAt.Format(time.RFC1123),
	}
	err := s.mailer.SendTemplatedEmail(ctx, activationTemplate, data, notifx.EmailMessage{
		To:       []string{t.TenantEmail},
		Subject:  "Activate your workspace",
		TextBody: "Activate your workspace: " + s.ActivationURL(token),
	})
	if err != nil {
		logx.WithError(err).WithField("tenant_id", t.ID).Warn("Failed to send activation email")
	}
}
