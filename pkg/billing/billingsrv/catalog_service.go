package billingsrv

import (
	"context"
	"strings"

	"github.com/Abraxas-365/tenantry/pkg/billing"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
	"github.com/Abraxas-365/tenantry/pkg/logx"
)

// CatalogService manages plans, their priced versions, apps and features.
// A plan's price is never edited in place: publishing a version retires the
// current one, so orders keep pointing at the version they were priced with.
type CatalogService struct {
	store    billing.CatalogStore
	currency string
}

func NewCatalogService(store billing.CatalogStore, currency string) *CatalogService {
	if currency == "" {
		currency = "INR"
	}
	return &CatalogService{store: store, currency: currency}
}

// CreatePlan stores the plan and its first current version atomically.
func (s *CatalogService) CreatePlan(ctx context.Context, req billing.CreatePlanRequest) (*billing.PlanDetail, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	plan := billing.Plan{
		ID:          kernel.NewID(),
		PlanCode:    strings.ToUpper(strings.TrimSpace(req.PlanCode)),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		IsActive:    true,
	}

	var detail *billing.PlanDetail
	err := s.store.Atomic(ctx, func(st billing.CatalogStore) error {
		if err := st.CreatePlan(ctx, plan); err != nil {
			return err
		}
		var err error
		detail, err = s.publish(ctx, st, plan, 0, req.PlanVersionRequest)
		return err
	})
	if err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{
		"plan_id":   plan.ID,
		"plan_code": plan.PlanCode,
		"price":     detail.CurrentVersion.Price.String(),
	}).WithContext(ctx).Info("Plan created")
	return detail, nil
}

// PublishVersion makes a new version current for an existing plan.
func (s *CatalogService) PublishVersion(ctx context.Context, planID string, req billing.PlanVersionRequest) (*billing.PlanDetail, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var detail *billing.PlanDetail
	err := s.store.Atomic(ctx, func(st billing.CatalogStore) error {
		plan, err := st.LockPlan(ctx, planID)
		if err != nil {
			return err
		}
		latest, err := st.RetireCurrentVersion(ctx, plan.ID)
		if err != nil {
			return err
		}
		detail, err = s.publish(ctx, st, *plan, latest, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{
		"plan_id": planID,
		"version": detail.CurrentVersion.Version,
		"price":   detail.CurrentVersion.Price.String(),
	}).WithContext(ctx).Info("Plan version published")
	return detail, nil
}

func (s *CatalogService) publish(ctx context.Context, st billing.CatalogStore, plan billing.Plan, latest int, req billing.PlanVersionRequest) (*billing.PlanDetail, error) {
	features, err := st.FindFeatures(ctx, req.FeatureIDs)
	if err != nil {
		return nil, err
	}
	if missing := missingFeatures(req.FeatureIDs, features); len(missing) > 0 {
		return nil, billing.ErrUnknownFeatures(missing)
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.currency
	}
	v := billing.PlanVersion{
		ID:           kernel.NewID(),
		PlanID:       plan.ID,
		Version:      latest + 1,
		Price:        kernel.MoneyFromMajor(req.Price),
		Currency:     currency,
		BillingCycle: req.BillingCycle,
		IsCurrent:    true,
	}
	if err := st.CreatePlanVersion(ctx, v); err != nil {
		return nil, err
	}
	if err := st.LinkPlanFeatures(ctx, v.ID, req.FeatureIDs); err != nil {
		return nil, err
	}
	return &billing.PlanDetail{Plan: plan, CurrentVersion: &v, IncludedFeatures: features}, nil
}

// GetPlan returns the plan with its current version and included features.
func (s *CatalogService) GetPlan(ctx context.Context, id string) (*billing.PlanDetail, error) {
	plan, err := s.store.FindPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &billing.PlanDetail{Plan: *plan}

	versions, err := s.store.CurrentVersions(ctx, []string{plan.ID})
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return detail, nil
	}
	detail.CurrentVersion = &versions[0]

	detail.IncludedFeatures, err = s.store.ListIncludedFeatures(ctx, versions[0].ID)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// ListPlans pages through plans with their current versions.
func (s *CatalogService) ListPlans(ctx context.Context, opts kernel.PaginationOptions) (*billing.PlanPage, error) {
	opts = opts.Normalize()
	plans, total, err := s.store.ListPlans(ctx, opts)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(plans))
	for i, p := range plans {
		ids[i] = p.ID
	}
	versions, err := s.store.CurrentVersions(ctx, ids)
	if err != nil {
		return nil, err
	}
	byPlan := make(map[string]billing.PlanVersion, len(versions))
	for _, v := range versions {
		byPlan[v.PlanID] = v
	}

	items := make([]billing.PlanDetail, len(plans))
	for i, p := range plans {
		items[i] = billing.PlanDetail{Plan: p}
		if v, ok := byPlan[p.ID]; ok {
			v := v
			items[i].CurrentVersion = &v
		}
	}
	page := kernel.NewPaginated(items, opts.Page, opts.PageSize, total)
	return &page, nil
}

// CreateApp registers an app with its add-on and base features.
func (s *CatalogService) CreateApp(ctx context.Context, req billing.CreateAppRequest) (*billing.AppDetail, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	app := billing.App{
		ID:        kernel.NewID(),
		Code:      strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:      strings.TrimSpace(req.Name),
		BasePrice: kernel.MoneyFromMajor(req.BasePrice),
		IsActive:  true,
	}
	detail := &billing.AppDetail{App: app, Features: make([]billing.Feature, 0, len(req.Features))}

	err := s.store.Atomic(ctx, func(st billing.CatalogStore) error {
		if err := st.CreateApp(ctx, app); err != nil {
			return err
		}
		for _, fr := range req.Features {
			fr.AppID = &app.ID
			f := newFeature(fr)
			if err := st.CreateFeature(ctx, f); err != nil {
				return err
			}
			detail.Features = append(detail.Features, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{
		"app_id":   app.ID,
		"app_code": app.Code,
		"features": len(detail.Features),
	}).WithContext(ctx).Info("App registered")
	return detail, nil
}

// CreateFeature adds a feature to an existing app, or a platform feature
// that plans can include when AppID is nil.
func (s *CatalogService) CreateFeature(ctx context.Context, req billing.CreateFeatureRequest) (*billing.Feature, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.AppID != nil {
		if _, err := s.store.GetApp(ctx, *req.AppID); err != nil {
			return nil, err
		}
	}
	f := newFeature(req)
	if err := s.store.CreateFeature(ctx, f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *CatalogService) GetApp(ctx context.Context, id string) (*billing.AppDetail, error) {
	app, err := s.store.GetApp(ctx, id)
	if err != nil {
		return nil, err
	}
	features, err := s.store.ListAppFeatures(ctx, []string{app.ID})
	if err != nil {
		return nil, err
	}
	return &billing.AppDetail{App: *app, Features: nonNilFeatures(features)}, nil
}

// ListApps pages through apps with their features.
func (s *CatalogService) ListApps(ctx context.Context, opts kernel.PaginationOptions) (*billing.AppPage, error) {
	opts = opts.Normalize()
	apps, total, err := s.store.ListApps(ctx, opts)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(apps))
	for i, a := range apps {
		ids[i] = a.ID
	}
	features, err := s.store.ListAppFeatures(ctx, ids)
	if err != nil {
		return nil, err
	}
	byApp := make(map[string][]billing.Feature, len(apps))
	for _, f := range features {
		if f.AppID != nil {
			byApp[*f.AppID] = append(byApp[*f.AppID], f)
		}
	}

	items := make([]billing.AppDetail, len(apps))
	for i, a := range apps {
		items[i] = billing.AppDetail{App: a, Features: nonNilFeatures(byApp[a.ID])}
	}
	page := kernel.NewPaginated(items, opts.Page, opts.PageSize, total)
	return &page, nil
}

func newFeature(req billing.CreateFeatureRequest) billing.Feature {
	return billing.Feature{
		ID:            kernel.NewID(),
		AppID:         req.AppID,
		Code:          strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:          strings.TrimSpace(req.Name),
		Price:         kernel.MoneyFromMajor(req.Price),
		IsBaseFeature: req.IsBaseFeature,
		IsActive:      true,
	}
}

func missingFeatures(want []string, found []billing.Feature) []string {
	have := make(map[string]bool, len(found))
	for _, f := range found {
		have[f.ID] = true
	}
	var missing []string
	for _, id := range want {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func nonNilFeatures(f []billing.Feature) []billing.Feature {
	if f == nil {
		return []billing.Feature{}
	}
	return f
}
