package billinginfra

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/Abraxas-365/tenantry/pkg/billing"
	"github.com/Abraxas-365/tenantry/pkg/database"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

type PostgresCatalogRepository struct {
	db database.Querier
}

func NewPostgresCatalogRepository(db database.Querier) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{db: db}
}

const featureColumns = `id, app_id, code, name, price, is_base_feature, is_active`

func (r *PostgresCatalogRepository) FindPlanByCode(ctx context.Context, code string) (*billing.Plan, error) {
	var p billing.Plan
	err := r.db.GetContext(ctx, &p, `
		SELECT id, plan_code, name, description, is_active FROM plans
		WHERE plan_code = $1 AND is_active`, code)
	if err != nil {
		return nil, notFound(err, billing.ErrPlanNotFound(code), "plan")
	}
	return &p, nil
}

func (r *PostgresCatalogRepository) FindCurrentVersion(ctx context.Context, planID string) (*billing.PlanVersion, error) {
	var v billing.PlanVersion
	err := r.db.GetContext(ctx, &v, `
		SELECT id, plan_id, version, price, currency, billing_cycle, is_current FROM plan_versions
		WHERE plan_id = $1 AND is_current`, planID)
	if err != nil {
		return nil, notFound(err, billing.ErrPlanNotFound(planID), "plan version")
	}
	return &v, nil
}

func (r *PostgresCatalogRepository) ListIncludedFeatures(ctx context.Context, planVersionID string) ([]billing.Feature, error) {
	var out []billing.Feature
	err := r.db.SelectContext(ctx, &out, `
		SELECT f.id, f.app_id, f.code, f.name, f.price, f.is_base_feature, f.is_active
		FROM features f
		JOIN plan_version_features pvf ON pvf.feature_id = f.id
		WHERE pvf.plan_version_id = $1 AND f.is_active
		ORDER BY f.code`, planVersionID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to list plan features", errx.TypeInternal)
	}
	return out, nil
}

func (r *PostgresCatalogRepository) FindApp(ctx context.Context, id string) (*billing.App, error) {
	var a billing.App
	err := r.db.GetContext(ctx, &a, `
		SELECT id, code, name, base_price, is_active FROM apps
		WHERE id = $1 AND is_active`, id)
	if err != nil {
		return nil, notFound(err, billing.ErrAppNotFound(id), "app")
	}
	return &a, nil
}

func (r *PostgresCatalogRepository) FindAppFeature(ctx context.Context, appID, code string) (*billing.Feature, error) {
	var f billing.Feature
	err := r.db.GetContext(ctx, &f, `
		SELECT `+featureColumns+` FROM features
		WHERE app_id = $1 AND code = $2 AND is_active`, appID, code)
	if err != nil {
		return nil, notFound(err, billing.ErrFeatureNotFound(appID, code), "feature")
	}
	return &f, nil
}

func (r *PostgresCatalogRepository) FindCoupon(ctx context.Context, code string) (*billing.Coupon, error) {
	var c billing.Coupon
	err := r.db.GetContext(ctx, &c, `
		SELECT code, discount_type, value, is_active, expires_at FROM coupons
		WHERE code = $1`, code)
	if err != nil {
		return nil, notFound(err, billing.ErrInvalidCoupon(code), "coupon")
	}
	return &c, nil
}

func notFound(err error, missing *errx.Error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return missing
	}
	return errx.Wrap(err, "failed to load "+what, errx.TypeInternal)
}

// ============================================================================
// Administration
// ============================================================================

const (
	planColumns    = `id, plan_code, name, description, is_active`
	versionColumns = `id, plan_id, version, price, currency, billing_cycle, is_current`
	appColumns     = `id, code, name, base_price, is_active`
)

func (r *PostgresCatalogRepository) Atomic(ctx context.Context, fn func(billing.CatalogStore) error) error {
	return database.Within(ctx, r.db, func(q database.Querier) error {
		return fn(NewPostgresCatalogRepository(q))
	})
}

func (r *PostgresCatalogRepository) CreatePlan(ctx context.Context, p billing.Plan) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO plans (`+planColumns+`)
		VALUES (:id, :plan_code, :name, :description, :is_active)`, p)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return billing.ErrPlanAlreadyExists(p.PlanCode)
		}
		return errx.Wrap(err, "failed to create plan", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresCatalogRepository) FindPlan(ctx context.Context, id string) (*billing.Plan, error) {
	return r.planByID(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id)
}

func (r *PostgresCatalogRepository) LockPlan(ctx context.Context, id string) (*billing.Plan, error) {
	return r.planByID(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresCatalogRepository) planByID(ctx context.Context, query, id string) (*billing.Plan, error) {
	var p billing.Plan
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, notFound(err, billing.ErrNoSuchPlan(id), "plan")
	}
	return &p, nil
}

func (r *PostgresCatalogRepository) ListPlans(ctx context.Context, opts kernel.PaginationOptions) ([]billing.Plan, int, error) {
	opts = opts.Normalize()
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM plans`); err != nil {
		return nil, 0, errx.Wrap(err, "failed to count plans", errx.TypeInternal)
	}
	var out []billing.Plan
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+planColumns+` FROM plans
		ORDER BY plan_code
		LIMIT $1 OFFSET $2`, opts.PageSize, opts.Offset())
	if err != nil {
		return nil, 0, errx.Wrap(err, "failed to list plans", errx.TypeInternal)
	}
	return out, total, nil
}

func (r *PostgresCatalogRepository) CurrentVersions(ctx context.Context, planIDs []string) ([]billing.PlanVersion, error) {
	if len(planIDs) == 0 {
		return nil, nil
	}
	var out []billing.PlanVersion
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+versionColumns+` FROM plan_versions
		WHERE plan_id = ANY($1) AND is_current`, pq.Array(planIDs))
	if err != nil {
		return nil, errx.Wrap(err, "failed to load plan versions", errx.TypeInternal)
	}
	return out, nil
}

func (r *PostgresCatalogRepository) RetireCurrentVersion(ctx context.Context, planID string) (int, error) {
	_, err := r.db.ExecContext(ctx, `
		UPDATE plan_versions SET is_current = FALSE
		WHERE plan_id = $1 AND is_current`, planID)
	if err != nil {
		return 0, errx.Wrap(err, "failed to retire plan version", errx.TypeInternal)
	}
	var latest int
	err = r.db.GetContext(ctx, &latest, `
		SELECT COALESCE(MAX(version), 0) FROM plan_versions WHERE plan_id = $1`, planID)
	if err != nil {
		return 0, errx.Wrap(err, "failed to read plan versions", errx.TypeInternal)
	}
	return latest, nil
}

func (r *PostgresCatalogRepository) CreatePlanVersion(ctx context.Context, v billing.PlanVersion) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO plan_versions (`+versionColumns+`)
		VALUES (:id, :plan_id, :version, :price, :currency, :billing_cycle, :is_current)`, v)
	if err != nil {
		return errx.Wrap(err, "failed to create plan version", errx.TypeInternal).
			WithDetail("plan_id", v.PlanID)
	}
	return nil
}

func (r *PostgresCatalogRepository) LinkPlanFeatures(ctx context.Context, planVersionID string, featureIDs []string) error {
	if len(featureIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO plan_version_features (plan_version_id, feature_id)
		SELECT $1, unnest($2::text[])
		ON CONFLICT DO NOTHING`, planVersionID, pq.Array(featureIDs))
	if err != nil {
		return errx.Wrap(err, "failed to link plan features", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresCatalogRepository) CreateApp(ctx context.Context, a billing.App) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO apps (`+appColumns+`)
		VALUES (:id, :code, :name, :base_price, :is_active)`, a)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return billing.ErrAppAlreadyExists(a.Code)
		}
		return errx.Wrap(err, "failed to create app", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresCatalogRepository) GetApp(ctx context.Context, id string) (*billing.App, error) {
	var a billing.App
	if err := r.db.GetContext(ctx, &a, `SELECT `+appColumns+` FROM apps WHERE id = $1`, id); err != nil {
		return nil, notFound(err, billing.ErrNoSuchApp(id), "app")
	}
	return &a, nil
}

func (r *PostgresCatalogRepository) ListApps(ctx context.Context, opts kernel.PaginationOptions) ([]billing.App, int, error) {
	opts = opts.Normalize()
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM apps`); err != nil {
		return nil, 0, errx.Wrap(err, "failed to count apps", errx.TypeInternal)
	}
	var out []billing.App
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+appColumns+` FROM apps
		ORDER BY code
		LIMIT $1 OFFSET $2`, opts.PageSize, opts.Offset())
	if err != nil {
		return nil, 0, errx.Wrap(err, "failed to list apps", errx.TypeInternal)
	}
	return out, total, nil
}

func (r *PostgresCatalogRepository) ListAppFeatures(ctx context.Context, appIDs []string) ([]billing.Feature, error) {
	if len(appIDs) == 0 {
		return nil, nil
	}
	var out []billing.Feature
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+featureColumns+` FROM features
		WHERE app_id = ANY($1)
		ORDER BY code`, pq.Array(appIDs))
	if err != nil {
		return nil, errx.Wrap(err, "failed to list app features", errx.TypeInternal)
	}
	return out, nil
}

func (r *PostgresCatalogRepository) CreateFeature(ctx context.Context, f billing.Feature) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO features (`+featureColumns+`)
		VALUES (:id, :app_id, :code, :name, :price, :is_base_feature, :is_active)`, f)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return billing.ErrFeatureAlreadyExists(f.Code)
		}
		return errx.Wrap(err, "failed to create feature", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresCatalogRepository) FindFeatures(ctx context.Context, ids []string) ([]billing.Feature, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []billing.Feature
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+featureColumns+` FROM features
		WHERE id = ANY($1) AND is_active
		ORDER BY code`, pq.Array(ids))
	if err != nil {
		return nil, errx.Wrap(err, "failed to load features", errx.TypeInternal)
	}
	return out, nil
}
