package tenantapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam"
	"github.com/Abraxas-365/tenantry/pkg/iam/auth"
	"github.com/Abraxas-365/tenantry/pkg/iam/tenant"
	"github.com/Abraxas-365/tenantry/pkg/iam/tenant/tenantsrv"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

type TenantHandlers struct {
	tenants *tenantsrv.TenantService
	authn   *auth.TokenMiddleware
}

func NewTenantHandlers(tenants *tenantsrv.TenantService, authn *auth.TokenMiddleware) *TenantHandlers {
	return &TenantHandlers{tenants: tenants, authn: authn}
}

func (h *TenantHandlers) RegisterRoutes(router fiber.Router) {
	router.Post("/account/register/tenant", h.Register)
	router.Get("/account/tenant/:tenant_id", h.authn.Authenticate(), h.Get)
}

// Register godoc
// POST /account/register/tenant {tenant_name, tenant_email}
// The activation token only travels by email.
func (h *TenantHandlers) Register(c *fiber.Ctx) error {
	var req tenant.RegisterTenantRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithCause(err)
	}

	resp, _, err := h.tenants.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// Get godoc
// GET /account/tenant/:tenant_id
func (h *TenantHandlers) Get(c *fiber.Ctx) error {
	ac, ok := auth.GetAuthContext(c)
	if !ok {
		return iam.ErrUnauthorized()
	}
	t, err := h.tenants.Get(c.UserContext(), ac, kernel.NewTenantID(c.Params("tenant_id")))
	if err != nil {
		return err
	}
	return c.JSON(t)
}
