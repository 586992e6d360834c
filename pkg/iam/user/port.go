package user

import (
	"context"

	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

type Repository interface {
	Create(ctx context.Context, u User) error
	FindByUsername(ctx context.Context, tenantID kernel.TenantID, username string) (*User, error)
	// FindRoot returns ErrUserNotFound when the tenant has no root user yet.
	FindRoot(ctx context.Context, tenantID kernel.TenantID) (*User, error)
	// List pages through a tenant's users ordered by username.
	List(ctx context.Context, tenantID kernel.TenantID, opts kernel.PaginationOptions) ([]User, int, error)
}
