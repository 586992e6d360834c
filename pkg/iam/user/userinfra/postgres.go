package userinfra

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Abraxas-365/tenantry/pkg/database"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam/user"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

type PostgresUserRepository struct {
	db database.Querier
}

func NewPostgresUserRepository(db database.Querier) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

const userColumns = `id, tenant_id, username, email, password_hash, role, is_root,
	must_change_password, created_at, updated_at`

func (r *PostgresUserRepository) Create(ctx context.Context, u user.User) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (:id, :tenant_id, :username, :email, :password_hash, :role, :is_root,
			:must_change_password, :created_at, :updated_at)`, u)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return user.ErrUserAlreadyExists(u.Username).WithDetail("tenant_id", u.TenantID.String())
		}
		return errx.Wrap(err, "failed to create user", errx.TypeInternal).
			WithDetail("tenant_id", u.TenantID.String())
	}
	return nil
}

func (r *PostgresUserRepository) FindByUsername(ctx context.Context, tenantID kernel.TenantID, username string) (*user.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND username = $2`,
		tenantID.String(), username)
}

func (r *PostgresUserRepository) FindRoot(ctx context.Context, tenantID kernel.TenantID) (*user.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND is_root`, tenantID.String())
}

func (r *PostgresUserRepository) findOne(ctx context.Context, query string, args ...interface{}) (*user.User, error) {
	var u user.User
	if err := r.db.GetContext(ctx, &u, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrUserNotFound()
		}
		return nil, errx.Wrap(err, "failed to load user", errx.TypeInternal)
	}
	return &u, nil
}

func (r *PostgresUserRepository) List(ctx context.Context, tenantID kernel.TenantID, opts kernel.PaginationOptions) ([]user.User, int, error) {
	opts = opts.Normalize()
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users WHERE tenant_id = $1`, tenantID.String()); err != nil {
		return nil, 0, errx.Wrap(err, "failed to count users", errx.TypeInternal)
	}
	var out []user.User
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+userColumns+` FROM users
		WHERE tenant_id = $1
		ORDER BY username
		LIMIT $2 OFFSET $3`, tenantID.String(), opts.PageSize, opts.Offset())
	if err != nil {
		return nil, 0, errx.Wrap(err, "failed to list users", errx.TypeInternal)
	}
	return out, total, nil
}
