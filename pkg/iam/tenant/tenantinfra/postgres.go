package tenantinfra

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Abraxas-365/tenantry/pkg/database"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam/tenant"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

// PostgresTenantRepository runs on a pool or on an open transaction.
type PostgresTenantRepository struct {
	db database.Querier
}

func NewPostgresTenantRepository(db database.Querier) *PostgresTenantRepository {
	return &PostgresTenantRepository{db: db}
}

const tenantColumns = `id, tenant_name, tenant_email, status, active, created_at, updated_at`

func (r *PostgresTenantRepository) CreateWithLink(ctx context.Context, t tenant.Tenant, l tenant.Link) error {
	return database.Within(ctx, r.db, func(q database.Querier) error {
		_, err := q.NamedExecContext(ctx, `
			INSERT INTO tenants (`+tenantColumns+`)
			VALUES (:id, :tenant_name, :tenant_email, :status, :active, :created_at, :updated_at)`, t)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return tenant.ErrNameTaken(t.TenantName)
			}
			return errx.Wrap(err, "failed to create tenant", errx.TypeInternal).
				WithDetail("tenant_name", t.TenantName)
		}
		return NewPostgresTenantRepository(q).CreateLink(ctx, l)
	})
}

func (r *PostgresTenantRepository) FindByID(ctx context.Context, id kernel.TenantID) (*tenant.Tenant, error) {
	return r.findOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id.String())
}

func (r *PostgresTenantRepository) FindByName(ctx context.Context, name string) (*tenant.Tenant, error) {
	return r.findOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE LOWER(tenant_name) = LOWER($1)`, name)
}

func (r *PostgresTenantRepository) FindByIDForUpdate(ctx context.Context, id kernel.TenantID) (*tenant.Tenant, error) {
	return r.findOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1 FOR UPDATE`, id.String())
}

func (r *PostgresTenantRepository) findOne(ctx context.Context, query string, arg string) (*tenant.Tenant, error) {
	var t tenant.Tenant
	if err := r.db.GetContext(ctx, &t, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound().WithDetail("lookup", arg)
		}
		return nil, errx.Wrap(err, "failed to load tenant", errx.TypeInternal)
	}
	return &t, nil
}

func (r *PostgresTenantRepository) Update(ctx context.Context, t tenant.Tenant) error {
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE tenants
		SET tenant_email = :tenant_email, status = :status, active = :active, updated_at = :updated_at
		WHERE id = :id`, t)
	if err != nil {
		return errx.Wrap(err, "failed to update tenant", errx.TypeInternal).
			WithDetail("tenant_id", t.ID.String())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tenant.ErrTenantNotFound().WithDetail("tenant_id", t.ID.String())
	}
	return nil
}

func (r *PostgresTenantRepository) CreateLink(ctx context.Context, l tenant.Link) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO tenant_links (id, tenant_id, token_hash, request_type, is_used, expires_at, created_at)
		VALUES (:id, :tenant_id, :token_hash, :request_type, :is_used, :expires_at, :created_at)`, l)
	if err != nil {
		return errx.Wrap(err, "failed to create activation link", errx.TypeInternal).
			WithDetail("tenant_id", l.TenantID.String())
	}
	return nil
}

func (r *PostgresTenantRepository) FindLinkByHash(ctx context.Context, tokenHash string) (*tenant.Link, error) {
	var l tenant.Link
	err := r.db.GetContext(ctx, &l, `
		SELECT id, tenant_id, token_hash, request_type, is_used, expires_at, created_at
		FROM tenant_links
		WHERE token_hash = $1`, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tenant.ErrInvalidLink()
		}
		return nil, errx.Wrap(err, "failed to load activation link", errx.TypeInternal)
	}
	return &l, nil
}

func (r *PostgresTenantRepository) MarkLinksUsed(ctx context.Context, id kernel.TenantID) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tenant_links SET is_used = TRUE WHERE tenant_id = $1 AND NOT is_used`, id.String())
	if err != nil {
		return 0, errx.Wrap(err, "failed to consume activation links", errx.TypeInternal).
			WithDetail("tenant_id", id.String())
	}
	return res.RowsAffected()
}
