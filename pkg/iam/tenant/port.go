package tenant

import (
	"context"

	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

// Repository persists tenants and their activation links.
type Repository interface {
	// CreateWithLink inserts a pending tenant and its first activation link
	// atomically.
	CreateWithLink(ctx context.Context, t Tenant, l Link) error
	FindByID(ctx context.Context, id kernel.TenantID) (*Tenant, error)
	FindByName(ctx context.Context, name string) (*Tenant, error)
	// FindByIDForUpdate locks the tenant row until the surrounding
	// transaction ends.
	FindByIDForUpdate(ctx context.Context, id kernel.TenantID) (*Tenant, error)
	Update(ctx context.Context, t Tenant) error

	CreateLink(ctx context.Context, l Link) error
	FindLinkByHash(ctx context.Context, tokenHash string) (*Link, error)
	// MarkLinksUsed consumes every open link of the tenant.
	MarkLinksUsed(ctx context.Context, id kernel.TenantID) (int64, error)
}
