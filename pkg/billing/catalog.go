package billing

import (
	"strconv"
	"strings"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

// ============================================================================
// Catalog administration DTOs
// ============================================================================

// PlanVersionRequest prices a plan. Price is in major units.
type PlanVersionRequest struct {
	Price        float64      `json:"price"`
	Currency     string       `json:"currency"`
	BillingCycle BillingCycle `json:"billing_cycle"`
	FeatureIDs   []string     `json:"feature_ids"`
}

func (r PlanVersionRequest) validate(fields errx.FieldErrors) {
	if r.Price < 0 {
		fields.Add("price", "must not be negative")
	}
	if r.BillingCycle != CycleMonthly && r.BillingCycle != CycleYearly {
		fields.Add("billing_cycle", "must be monthly or yearly")
	}
	seen := make(map[string]bool, len(r.FeatureIDs))
	for _, id := range r.FeatureIDs {
		if seen[id] {
			fields.Add("feature_ids", "duplicate feature "+id)
		}
		seen[id] = true
	}
}

func (r PlanVersionRequest) Validate() error {
	fields := errx.FieldErrors{}
	r.validate(fields)
	if e := fields.Err("invalid plan version"); e != nil {
		return e
	}
	return nil
}

// CreatePlanRequest creates a plan together with its first version.
type CreatePlanRequest struct {
	PlanCode    string `json:"plan_code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PlanVersionRequest
}

func (r CreatePlanRequest) Validate() error {
	fields := errx.FieldErrors{}
	if strings.TrimSpace(r.PlanCode) == "" {
		fields.Add("plan_code", "is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		fields.Add("name", "is required")
	}
	r.PlanVersionRequest.validate(fields)
	if e := fields.Err("invalid plan"); e != nil {
		return e
	}
	return nil
}

// PlanDetail is a plan with its current price and included features.
type PlanDetail struct {
	Plan
	CurrentVersion   *PlanVersion `json:"current_version"`
	IncludedFeatures []Feature    `json:"included_features,omitempty"`
}

type CreateFeatureRequest struct {
	AppID         *string `json:"app_id,omitempty"`
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	IsBaseFeature bool    `json:"is_base_feature"`
}

func (r CreateFeatureRequest) validate(fields errx.FieldErrors, prefix string) {
	if strings.TrimSpace(r.Code) == "" {
		fields.Add(prefix+"code", "is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		fields.Add(prefix+"name", "is required")
	}
	if r.Price < 0 {
		fields.Add(prefix+"price", "must not be negative")
	}
}

func (r CreateFeatureRequest) Validate() error {
	fields := errx.FieldErrors{}
	r.validate(fields, "")
	if e := fields.Err("invalid feature"); e != nil {
		return e
	}
	return nil
}

// CreateAppRequest registers an app and its features in one step.
type CreateAppRequest struct {
	Code      string                 `json:"code"`
	Name      string                 `json:"name"`
	BasePrice float64                `json:"base_price"`
	Features  []CreateFeatureRequest `json:"features"`
}

func (r CreateAppRequest) Validate() error {
	fields := errx.FieldErrors{}
	if strings.TrimSpace(r.Code) == "" {
		fields.Add("code", "is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		fields.Add("name", "is required")
	}
	if r.BasePrice < 0 {
		fields.Add("base_price", "must not be negative")
	}
	codes := make(map[string]bool, len(r.Features))
	for i, f := range r.Features {
		f.validate(fields, "features."+strconv.Itoa(i)+".")
		if codes[f.Code] {
			fields.Add("features", "duplicate feature code "+f.Code)
		}
		codes[f.Code] = true
	}
	if e := fields.Err("invalid app"); e != nil {
		return e
	}
	return nil
}

// AppDetail is an app with its feature list.
type AppDetail struct {
	App
	Features []Feature `json:"features"`
}

type PlanPage = kernel.Paginated[PlanDetail]

type AppPage = kernel.Paginated[AppDetail]
