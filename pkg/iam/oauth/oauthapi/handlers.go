package oauthapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam"
	"github.com/Abraxas-365/tenantry/pkg/iam/auth"
	"github.com/Abraxas-365/tenantry/pkg/iam/oauth/oauthsrv"
)

type OAuthHandlers struct {
	flows *oauthsrv.FlowService
	authn *auth.TokenMiddleware
}

func NewOAuthHandlers(flows *oauthsrv.FlowService, authn *auth.TokenMiddleware) *OAuthHandlers {
	return &OAuthHandlers{flows: flows, authn: authn}
}

func (h *OAuthHandlers) RegisterRoutes(router fiber.Router) {
	group := router.Group("/oauth")
	group.Get("/authorize", h.authn.Authenticate(), h.Authorize)
	group.Post("/grant", h.Grant)
	group.Post("/token", h.Token)
}

// Authorize godoc
// GET /oauth/authorize?client_id&redirect_url&response_type=code&scope&state&device_id
func (h *OAuthHandlers) Authorize(c *fiber.Ctx) error {
	ac, ok := auth.GetAuthContext(c)
	if !ok {
		return iam.ErrUnauthorized()
	}

	var req oauthsrv.AuthorizeRequest
	if err := c.QueryParser(&req); err != nil {
		return errx.Validation("invalid query parameters").WithCause(err)
	}

	res, err := h.flows.Authorize(c.UserContext(), req, ac)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// Grant godoc
// POST /oauth/grant (form) -> 302 to the client's redirect URL
func (h *OAuthHandlers) Grant(c *fiber.Ctx) error {
	var req oauthsrv.GrantRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid form body").WithCause(err)
	}

	redirect, err := h.flows.Grant(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Redirect(redirect, fiber.StatusFound)
}

// Token godoc
// POST /oauth/token (JSON or form)
func (h *OAuthHandlers) Token(c *fiber.Ctx) error {
	var req oauthsrv.TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithCause(err)
	}

	resp, err := h.flows.Exchange(c.UserContext(), req)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(resp)
}
