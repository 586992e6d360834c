package userapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam"
	"github.com/Abraxas-365/tenantry/pkg/iam/auth"
	"github.com/Abraxas-365/tenantry/pkg/iam/user"
	"github.com/Abraxas-365/tenantry/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

type UserHandlers struct {
	users *usersrv.UserService
	authn *auth.TokenMiddleware
}

func NewUserHandlers(users *usersrv.UserService, authn *auth.TokenMiddleware) *UserHandlers {
	return &UserHandlers{users: users, authn: authn}
}

func (h *UserHandlers) RegisterRoutes(router fiber.Router) {
	router.Post("/auth/login", h.Login)

	// Per-route guards: other contexts serve public routes under /account.
	account := router.Group("/account")
	account.Post("/register/auth_user", h.authn.Authenticate(), h.authn.RequireScope(iam.ScopeUsersWrite), h.Register)
	account.Get("/auth_users", h.authn.Authenticate(), h.authn.RequireScope(iam.ScopeUsersRead), h.List)
}

// Login godoc
// POST /auth/login {tenant_name, username, password, device_id?}
func (h *UserHandlers) Login(c *fiber.Ctx) error {
	var req user.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithCause(err)
	}

	resp, err := h.users.Login(c.UserContext(), req, c.IP())
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    resp.AccessToken,
		HTTPOnly: true,
		Secure:   c.Protocol() == "https",
		SameSite: fiber.CookieSameSiteLaxMode,
		MaxAge:   int(resp.ExpiresIn),
	})
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(resp)
}

// Register godoc
// POST /account/register/auth_user {username, email, password}
// The account joins the caller's tenant.
func (h *UserHandlers) Register(c *fiber.Ctx) error {
	ac, ok := auth.GetAuthContext(c)
	if !ok {
		return iam.ErrUnauthorized()
	}
	var req user.RegisterUserRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithCause(err)
	}
	u, err := h.users.Register(c.UserContext(), ac.TenantID, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(u)
}

// List godoc
// GET /account/auth_users?page&page_size
func (h *UserHandlers) List(c *fiber.Ctx) error {
	ac, ok := auth.GetAuthContext(c)
	if !ok {
		return iam.ErrUnauthorized()
	}
	var opts kernel.PaginationOptions
	if err := c.QueryParser(&opts); err != nil {
		return errx.Validation("invalid pagination parameters").WithCause(err)
	}
	page, err := h.users.List(c.UserContext(), ac.TenantID, opts)
	if err != nil {
		return err
	}
	return c.JSON(page)
}
