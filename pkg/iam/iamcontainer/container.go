package iamcontainer

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/Abraxas-365/tenantry/pkg/config"
	"github.com/Abraxas-365/tenantry/pkg/fsx"
	"github.com/Abraxas-365/tenantry/pkg/iam/auth"
	"github.com/Abraxas-365/tenantry/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/tenantry/pkg/iam/client/clientapi"
	"github.com/Abraxas-365/tenantry/pkg/iam/client/clientinfra"
	"github.com/Abraxas-365/tenantry/pkg/iam/client/clientsrv"
	"github.com/Abraxas-365/tenantry/pkg/iam/keys/keysapi"
	"github.com/Abraxas-365/tenantry/pkg/iam/keys/keysinfra"
	"github.com/Abraxas-365/tenantry/pkg/iam/keys/keysrv"
	"github.com/Abraxas-365/tenantry/pkg/iam/oauth"
	"github.com/Abraxas-365/tenantry/pkg/iam/oauth/oauthapi"
	"github.com/Abraxas-365/tenantry/pkg/iam/oauth/oauthinfra"
	"github.com/Abraxas-365/tenantry/pkg/iam/oauth/oauthsrv"
	"github.com/Abraxas-365/tenantry/pkg/iam/tenant/tenantapi"
	"github.com/Abraxas-365/tenantry/pkg/iam/tenant/tenantinfra"
	"github.com/Abraxas-365/tenantry/pkg/iam/tenant/tenantsrv"
	"github.com/Abraxas-365/tenantry/pkg/iam/user/userapi"
	"github.com/Abraxas-365/tenantry/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/tenantry/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/tenantry/pkg/logx"
	"github.com/Abraxas-365/tenantry/pkg/notifx"
)

// ---------------------------------------------------------------------------
// Deps: explicit external dependencies this bounded context requires.
// ---------------------------------------------------------------------------

type Deps struct {
	DB         *sqlx.DB
	Redis      *redis.Client
	FileSystem fsx.FileSystem
	Mailer     *notifx.Client
	Cfg        *config.Config
}

// ---------------------------------------------------------------------------
// Container: the public surface of the IAM module.
// ---------------------------------------------------------------------------

type Container struct {
	Keys          *keysrv.Manager
	TokenService  auth.TokenService
	ClientService *clientsrv.ClientService
	TenantService *tenantsrv.TenantService
	UserService   *usersrv.UserService
	FlowService   *oauthsrv.FlowService

	KeyHandlers    *keysapi.KeyHandlers
	OAuthHandlers  *oauthapi.OAuthHandlers
	ClientHandlers *clientapi.ClientHandlers
	TenantHandlers *tenantapi.TenantHandlers
	UserHandlers   *userapi.UserHandlers

	AuthMiddleware *auth.TokenMiddleware

	memoryStore *oauthinfra.MemoryStateStore
	cfg         *config.Config
}

// New builds the IAM graph: infra, repos, services, handlers, middleware.
func New(deps Deps) *Container {
	logx.Info("🔧 Initializing IAM container...")

	c := &Container{cfg: deps.Cfg}
	cfg := deps.Cfg

	// ── Signing keys ─────────────────────────────────────────────────────

	c.Keys = keysrv.NewManager(
		keysinfra.NewFSXKeyStore(deps.FileSystem, cfg.Keys.Path),
		keysinfra.NewRedisLocker(deps.Redis),
		cfg.Keys,
	)
	c.TokenService = auth.NewJWTService(c.Keys, cfg.Tokens)
	audit := authinfra.NewLogxAuditService()

	// ── Repositories ─────────────────────────────────────────────────────

	clientRepo := clientinfra.NewPostgresClientRepository(deps.DB)
	tenantRepo := tenantinfra.NewPostgresTenantRepository(deps.DB)
	userRepo := userinfra.NewPostgresUserRepository(deps.DB)

	// ── Authorization state ──────────────────────────────────────────────

	var store oauth.StateStore
	if cfg.OAuth.StateStore == "memory" {
		c.memoryStore = oauthinfra.NewMemoryStateStore(cfg.OAuth.ExpiredRetention)
		store = c.memoryStore
		logx.Warn("  ⚠️  Using in-memory authorization state (single instance only)")
	} else {
		store = oauthinfra.NewRedisStateStore(deps.Redis, cfg.OAuth.ExpiredRetention)
		logx.Info("  ✅ Using Redis authorization state")
	}

	// ── Domain services ──────────────────────────────────────────────────

	c.ClientService = clientsrv.NewClientService(clientRepo)
	c.TenantService = tenantsrv.NewTenantService(tenantRepo, deps.Mailer, cfg.Tenant)
	c.UserService = usersrv.NewUserService(userRepo, tenantRepo, c.TokenService, audit, cfg.OAuth.FirstPartyClient)
	c.FlowService = oauthsrv.NewFlowService(c.ClientService, store, c.TokenService, audit, cfg.OAuth)

	// ── Middleware & handlers ────────────────────────────────────────────

	c.AuthMiddleware = auth.NewAuthMiddleware(c.TokenService)
	c.KeyHandlers = keysapi.NewKeyHandlers(c.Keys)
	c.OAuthHandlers = oauthapi.NewOAuthHandlers(c.FlowService, c.AuthMiddleware)
	c.ClientHandlers = clientapi.NewClientHandlers(c.ClientService, c.AuthMiddleware)
	c.TenantHandlers = tenantapi.NewTenantHandlers(c.TenantService, c.AuthMiddleware)
	c.UserHandlers = userapi.NewUserHandlers(c.UserService, c.AuthMiddleware)

	logx.Info("✅ IAM container initialized")
	return c
}

// StartBackgroundServices keeps the key cache fresh and, for the in-memory
// state store, evicts stale authorizations.
func (c *Container) StartBackgroundServices(ctx context.Context) {
	if err := c.Keys.Reload(ctx); err != nil {
		logx.WithError(err).Warn("Initial signing key load failed")
	}
	go c.Keys.StartRefresh(ctx, c.cfg.Keys.RefreshInterval)
	logx.Infof("  ✅ Key refresh started (every %s)", c.cfg.Keys.RefreshInterval)

	if c.memoryStore != nil {
		go c.memoryStore.StartSweeper(ctx, time.Minute)
		logx.Info("  ✅ Authorization state sweeper started")
	}
}
