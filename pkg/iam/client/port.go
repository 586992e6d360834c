package client

import (
	"context"

	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

type Repository interface {
	Save(ctx context.Context, c OAuthClient) error
	FindByClientID(ctx context.Context, clientID kernel.ClientID) (*OAuthClient, error)
	// List pages through clients in registration order.
	List(ctx context.Context, opts kernel.PaginationOptions) ([]*OAuthClient, int, error)
}
