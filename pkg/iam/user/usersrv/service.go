package usersrv

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam"
	"github.com/Abraxas-365/tenantry/pkg/iam/auth"
	"github.com/Abraxas-365/tenantry/pkg/iam/secret"
	"github.com/Abraxas-365/tenantry/pkg/iam/tenant"
	"github.com/Abraxas-365/tenantry/pkg/iam/user"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
	"github.com/Abraxas-365/tenantry/pkg/logx"
	"github.com/Abraxas-365/tenantry/pkg/metrics"
)

const rootPasswordLength = 16

// dummyHash keeps the cost of a login for an unknown user close to that of
// a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-password"), bcrypt.DefaultCost)

type UserService struct {
	users      user.Repository
	tenants    tenant.Repository
	tokens     auth.TokenService
	audit      auth.AuditService
	firstParty kernel.ClientID
	cost       int
	now        func() time.Time
}

func NewUserService(users user.Repository, tenants tenant.Repository, tokens auth.TokenService, audit auth.AuditService, firstParty string) *UserService {
	if firstParty == "" {
		firstParty = "tenantry-console"
	}
	return &UserService{
		users:      users,
		tenants:    tenants,
		tokens:     tokens,
		audit:      audit,
		firstParty: kernel.ClientID(firstParty),
		cost:       bcrypt.DefaultCost,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate checks a password login. Every failure is reported as the
// same invalid-credentials error.
func (s *UserService) Authenticate(ctx context.Context, tenantName, username, password string) (*user.User, *tenant.Tenant, error) {
	t, err := s.tenants.FindByName(ctx, strings.TrimSpace(tenantName))
	if err != nil {
		if errx.IsCode(err, tenant.CodeTenantNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, nil, user.ErrInvalidCredentials()
		}
		return nil, nil, err
	}

	u, err := s.users.FindByUsername(ctx, t.ID, strings.TrimSpace(username))
	if err != nil {
		if errx.IsCode(err, user.CodeUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, nil, user.ErrInvalidCredentials()
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, nil, user.ErrInvalidCredentials()
	}
	if !t.IsActive() {
		return nil, nil, tenant.ErrTenantInactive().WithDetail("tenant_id", t.ID.String())
	}
	return u, t, nil
}

// Login authenticates and issues a first-party token set.
func (s *UserService) Login(ctx context.Context, req user.LoginRequest, ip string) (*user.LoginResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	u, t, err := s.Authenticate(ctx, req.TenantName, req.Username, req.Password)
	if err != nil {
		s.audit.LogLoginAttempt(ctx, req.TenantName, req.Username, false, ip)
		return nil, err
	}
	s.audit.LogLoginAttempt(ctx, t.TenantName, u.Username, true, ip)

	claims := map[string]interface{}{
		iam.ClaimSubject:    u.ID.String(),
		iam.ClaimTenantID:   t.ID.String(),
		iam.ClaimTenantName: t.TenantName,
		iam.ClaimUsername:   u.Username,
		iam.ClaimRole:       u.Role,
		iam.ClaimClientID:   s.firstParty.String(),
		iam.ClaimScope:      strings.Join(u.Scopes(), " "),
	}
	if req.DeviceID != "" {
		claims[iam.ClaimDeviceID] = req.DeviceID
	}

	set, err := s.tokens.IssueTokens(ctx, claims, true, true)
	if err != nil {
		return nil, err
	}
	metrics.TokensIssuedTotal.WithLabelValues("password").Inc()

	return &user.LoginResponse{
		AccessToken:        set.AccessToken,
		TokenType:          "Bearer",
		ExpiresIn:          int64(time.Until(set.AccessExp).Round(time.Second).Seconds()),
		RefreshToken:       set.RefreshToken,
		IDToken:            set.IDToken,
		MustChangePassword: u.MustChangePassword,
		Success:            true,
		Message:            "login successful",
	}, nil
}

// Register adds a member account to an active tenant.
func (s *UserService) Register(ctx context.Context, tenantID kernel.TenantID, req user.RegisterUserRequest) (*user.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive() {
		return nil, tenant.ErrTenantInactive().WithDetail("tenant_id", t.ID.String())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, errx.Wrap(err, "failed to hash password", errx.TypeInternal)
	}
	now := s.now()
	u := user.User{
		ID:           kernel.NewUserID(kernel.NewID()),
		TenantID:     t.ID,
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: string(hash),
		Role:         user.RoleMember,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{
		"tenant_id": t.ID.String(),
		"user_id":   u.ID.String(),
		"username":  u.Username,
	}).WithContext(ctx).Info("User registered")
	return &u, nil
}

// List pages through the users of one tenant.
func (s *UserService) List(ctx context.Context, tenantID kernel.TenantID, opts kernel.PaginationOptions) (*user.UserPage, error) {
	opts = opts.Normalize()
	users, total, err := s.users.List(ctx, tenantID, opts)
	if err != nil {
		return nil, err
	}
	page := kernel.NewPaginated(users, opts.Page, opts.PageSize, total)
	return &page, nil
}

// EnsureRootUser returns nil credentials when the tenant already has a root
// user. Otherwise it creates one with a random one-time password that must
// be changed on first login. users may be bound to an open transaction.
func EnsureRootUser(ctx context.Context, users user.Repository, t *tenant.Tenant, now time.Time, cost int) (*user.RootCredentials, error) {
	if _, err := users.FindRoot(ctx, t.ID); err == nil {
		return nil, nil
	} else if !errx.IsCode(err, user.CodeUserNotFound) {
		return nil, err
	}

	password, err := secret.Code(rootPasswordLength)
	if err != nil {
		return nil, errx.Wrap(err, "failed to generate root password", errx.TypeInternal)
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, errx.Wrap(err, "failed to hash root password", errx.TypeInternal)
	}

	u := user.User{
		ID:                 kernel.NewUserID(kernel.NewID()),
		TenantID:           t.ID,
		Username:           user.RootUsername,
		Email:              t.TenantEmail,
		PasswordHash:       string(hash),
		Role:               user.RoleRoot,
		IsRoot:             true,
		MustChangePassword: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := users.Create(ctx, u); err != nil {
		return nil, err
	}
	return &user.RootCredentials{User: u, Password: password}, nil
}
