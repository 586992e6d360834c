package billingapi

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/tenantry/pkg/billing"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam/auth"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

const (
	ScopeCatalogRead  = "catalog:read"
	ScopeCatalogWrite = "catalog:write"
)

// Catalog is the administrative side of the plan/app catalog.
type Catalog interface {
	CreatePlan(ctx context.Context, req billing.CreatePlanRequest) (*billing.PlanDetail, error)
	PublishVersion(ctx context.Context, planID string, req billing.PlanVersionRequest) (*billing.PlanDetail, error)
	GetPlan(ctx context.Context, id string) (*billing.PlanDetail, error)
	ListPlans(ctx context.Context, opts kernel.PaginationOptions) (*billing.PlanPage, error)
	CreateApp(ctx context.Context, req billing.CreateAppRequest) (*billing.AppDetail, error)
	CreateFeature(ctx context.Context, req billing.CreateFeatureRequest) (*billing.Feature, error)
	GetApp(ctx context.Context, id string) (*billing.AppDetail, error)
	ListApps(ctx context.Context, opts kernel.PaginationOptions) (*billing.AppPage, error)
}

type CatalogHandlers struct {
	catalog Catalog
	authn   *auth.TokenMiddleware
}

func NewCatalogHandlers(catalog Catalog, authn *auth.TokenMiddleware) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog, authn: authn}
}

func (h *CatalogHandlers) RegisterRoutes(router fiber.Router) {
	read := h.authn.RequireScope(ScopeCatalogRead)
	write := h.authn.RequireScope(ScopeCatalogWrite)

	plans := router.Group("/plans", h.authn.Authenticate())
	plans.Post("/", write, h.CreatePlan)
	plans.Get("/", read, h.ListPlans)
	plans.Get("/:id", read, h.GetPlan)
	plans.Post("/:id/versions", write, h.PublishVersion)

	apps := router.Group("/apps", h.authn.Authenticate())
	apps.Post("/", write, h.CreateApp)
	apps.Get("/", read, h.ListApps)
	apps.Get("/:id", read, h.GetApp)

	router.Post("/features", h.authn.Authenticate(), write, h.CreateFeature)
}

// CreatePlan godoc
// POST /plans {plan_code, name, description, price, currency, billing_cycle, feature_ids}
func (h *CatalogHandlers) CreatePlan(c *fiber.Ctx) error {
	var req billing.CreatePlanRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithCause(err)
	}
	detail, err := h.catalog.CreatePlan(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(detail)
}

// ListPlans godoc
// GET /plans?page&page_size
func (h *CatalogHandlers) ListPlans(c *fiber.Ctx) error {
	opts, err := pagination(c)
	if err != nil {
		return err
	}
	page, err := h.catalog.ListPlans(c.UserContext(), opts)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// GetPlan godoc
// GET /plans/:id
func (h *CatalogHandlers) GetPlan(c *fiber.Ctx) error {
	detail, err := h.catalog.GetPlan(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(detail)
}

// PublishVersion godoc
// POST /plans/:id/versions {price, currency, billing_cycle, feature_ids}
func (h *CatalogHandlers) PublishVersion(c *fiber.Ctx) error {
	var req billing.PlanVersionRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithCause(err)
	}
	detail, err := h.catalog.PublishVersion(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(detail)
}

// CreateApp godoc
// POST /apps {code, name, base_price, features: [{code, name, price, is_base_feature}]}
func (h *CatalogHandlers) CreateApp(c *fiber.Ctx) error {
	var req billing.CreateAppRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithCause(err)
	}
	detail, err := h.catalog.CreateApp(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(detail)
}

// ListApps godoc
// GET /apps?page&page_size
func (h *CatalogHandlers) ListApps(c *fiber.Ctx) error {
	opts, err := pagination(c)
	if err != nil {
		return err
	}
	page, err := h.catalog.ListApps(c.UserContext(), opts)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// GetApp godoc
// GET /apps/:id
func (h *CatalogHandlers) GetApp(c *fiber.Ctx) error {
	detail, err := h.catalog.GetApp(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(detail)
}

// CreateFeature godoc
// POST /features {app_id?, code, name, price, is_base_feature}
func (h *CatalogHandlers) CreateFeature(c *fiber.Ctx) error {
	var req billing.CreateFeatureRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithCause(err)
	}
	f, err := h.catalog.CreateFeature(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(f)
}

func pagination(c *fiber.Ctx) (kernel.PaginationOptions, error) {
	var opts kernel.PaginationOptions
	if err := c.QueryParser(&opts); err != nil {
		return opts, errx.Validation("invalid pagination parameters").WithCause(err)
	}
	return opts.Normalize(), nil
}
