package billingcontainer

import (
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/Abraxas-365/tenantry/pkg/billing"
	"github.com/Abraxas-365/tenantry/pkg/billing/billingapi"
	"github.com/Abraxas-365/tenantry/pkg/billing/billinginfra"
	"github.com/Abraxas-365/tenantry/pkg/billing/billingsrv"
	"github.com/Abraxas-365/tenantry/pkg/billing/invoice"
	"github.com/Abraxas-365/tenantry/pkg/billing/razorpay"
	"github.com/Abraxas-365/tenantry/pkg/config"
	"github.com/Abraxas-365/tenantry/pkg/fsx"
	"github.com/Abraxas-365/tenantry/pkg/iam/auth"
	"github.com/Abraxas-365/tenantry/pkg/jobx"
	"github.com/Abraxas-365/tenantry/pkg/logx"
	"github.com/Abraxas-365/tenantry/pkg/notifx"
)

// ---------------------------------------------------------------------------
// Deps: what the billing context needs from the composition root.
// ---------------------------------------------------------------------------

type Deps struct {
	DB         *sqlx.DB
	Redis      redis.UniversalClient
	FileSystem fsx.FileSystem
	Mailer     *notifx.Client
	Jobs       *jobx.Client
	Cfg        *config.Config

	// Tokens resolves tenant activation links. Owned by the IAM context.
	Tokens billing.ActivationTokens
	// Auth guards the catalog administration routes. Owned by the IAM context.
	Auth *auth.TokenMiddleware
}

// ---------------------------------------------------------------------------
// Container: the public surface of the billing context.
// ---------------------------------------------------------------------------

type Container struct {
	CatalogService    *billingsrv.CatalogService
	CheckoutService   *billingsrv.CheckoutService
	ActivationService *billingsrv.ActivationService

	Handlers        *billingapi.BillingHandlers
	CatalogHandlers *billingapi.CatalogHandlers
	WebhookHandlers *billingapi.WebhookHandler
}

func New(deps Deps) *Container {
	logx.Info("🔧 Initializing billing container...")

	c := &Container{}
	cfg := deps.Cfg

	// ── Repositories ─────────────────────────────────────────────────────

	catalog := billinginfra.NewPostgresCatalogRepository(deps.DB)
	repo := billinginfra.NewPostgresBillingRepository(deps.DB)
	uow := billinginfra.NewPostgresUnitOfWork(deps.DB)

	// ── Payment gateway ──────────────────────────────────────────────────

	gateway := razorpay.NewGateway(cfg.Razorpay)
	if cfg.Razorpay.KeyID == "" {
		logx.Warn("  ⚠️  RAZORPAY_KEY_ID not set, paid checkouts will fail")
	} else {
		logx.Info("  ✅ Razorpay gateway configured")
	}

	// ── Services ─────────────────────────────────────────────────────────

	notifier := billingsrv.NewNotifier(
		deps.FileSystem,
		deps.Mailer,
		invoice.NewGenerator(cfg.Notifx.FromName),
		cfg.Billing,
	).WithAttempts(cfg.Notifx.MaxAttempts)

	c.CatalogService = billingsrv.NewCatalogService(catalog, cfg.Billing.Currency)
	c.ActivationService = billingsrv.NewActivationService(uow, repo, gateway, notifier)
	c.CheckoutService = billingsrv.NewCheckoutService(
		catalog,
		repo,
		uow,
		gateway,
		deps.Tokens,
		deps.Jobs,
		cfg.Billing,
	)

	if deps.Jobs != nil {
		billingsrv.RegisterJobs(deps.Jobs, c.ActivationService)
		logx.Info("  ✅ Free plan activation job registered")
	}

	// ── Handlers ─────────────────────────────────────────────────────────

	c.Handlers = billingapi.NewBillingHandlers(c.CheckoutService, c.ActivationService)
	c.CatalogHandlers = billingapi.NewCatalogHandlers(c.CatalogService, deps.Auth)
	c.WebhookHandlers = billingapi.NewWebhookHandler(c.ActivationService, deps.Redis, billingapi.WebhookConfig{
		Secret:    cfg.Razorpay.WebhookSecret,
		Required:  cfg.IsProduction(),
		DedupeTTL: cfg.Billing.WebhookDedupe,
	})

	logx.Info("✅ Billing container initialized")
	return c
}
