package keysapi

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// JWKSProvider is the read side of the key manager.
type JWKSProvider interface {
	JWKS(ctx context.Context) (jwk.Set, error)
}

type KeyHandlers struct {
	keys JWKSProvider
}

func NewKeyHandlers(keys JWKSProvider) *KeyHandlers {
	return &KeyHandlers{keys: keys}
}

func (h *KeyHandlers) RegisterRoutes(router fiber.Router) {
	router.Get("/.well-known/jwks.json", h.JWKS)
}

// JWKS godoc
// GET /.well-known/jwks.json
func (h *KeyHandlers) JWKS(c *fiber.Ctx) error {
	set, err := h.keys.JWKS(c.UserContext())
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "public, max-age=300")
	return c.JSON(set)
}
