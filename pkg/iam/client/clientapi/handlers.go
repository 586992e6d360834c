package clientapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam"
	"github.com/Abraxas-365/tenantry/pkg/iam/auth"
	"github.com/Abraxas-365/tenantry/pkg/iam/client"
	"github.com/Abraxas-365/tenantry/pkg/iam/client/clientsrv"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

type ClientHandlers struct {
	clients *clientsrv.ClientService
	authn   *auth.TokenMiddleware
}

func NewClientHandlers(clients *clientsrv.ClientService, authn *auth.TokenMiddleware) *ClientHandlers {
	return &ClientHandlers{clients: clients, authn: authn}
}

func (h *ClientHandlers) RegisterRoutes(router fiber.Router) {
	group := router.Group("/client", h.authn.Authenticate())
	group.Post("/register", h.authn.RequireScope(iam.ScopeClientsWrite), h.Register)
	group.Get("/clients", h.authn.RequireScope(iam.ScopeClientsRead), h.List)
	group.Put("/clients/:client_id", h.authn.RequireScope(iam.ScopeClientsWrite), h.Update)
}

// Register godoc
// POST /client/register {client_name, redirect_urls, scopes, ...}
// The secret is only in this response.
func (h *ClientHandlers) Register(c *fiber.Ctx) error {
	var req client.RegisterClientRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithCause(err)
	}
	resp, err := h.clients.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// List godoc
// GET /client/clients?page&page_size
func (h *ClientHandlers) List(c *fiber.Ctx) error {
	var opts kernel.PaginationOptions
	if err := c.QueryParser(&opts); err != nil {
		return errx.Validation("invalid pagination parameters").WithCause(err)
	}
	page, err := h.clients.List(c.UserContext(), opts)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// Update godoc
// PUT /client/clients/:client_id {redirect_urls?, scopes?, skip_authorization?, ...}
func (h *ClientHandlers) Update(c *fiber.Ctx) error {
	var req client.UpdateClientRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithCause(err)
	}
	updated, err := h.clients.Update(c.UserContext(), kernel.ClientID(c.Params("client_id")), req)
	if err != nil {
		return err
	}
	return c.JSON(updated)
}
