package billinginfra

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/Abraxas-365/tenantry/pkg/billing"
	"github.com/Abraxas-365/tenantry/pkg/database"
	"github.com/Abraxas-365/tenantry/pkg/iam/tenant/tenantinfra"
	"github.com/Abraxas-365/tenantry/pkg/iam/user/userinfra"
)

// PostgresUnitOfWork binds the billing, tenant and user repositories to one
// database transaction.
type PostgresUnitOfWork struct {
	db *sqlx.DB
}

func NewPostgresUnitOfWork(db *sqlx.DB) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{db: db}
}

func (u *PostgresUnitOfWork) Do(ctx context.Context, fn func(billing.Stores) error) error {
	return database.InTx(ctx, u.db, func(tx *sqlx.Tx) error {
		return fn(billing.Stores{
			Billing: NewPostgresBillingRepository(tx),
			Tenants: tenantinfra.NewPostgresTenantRepository(tx),
			Users:   userinfra.NewPostgresUserRepository(tx),
		})
	})
}
