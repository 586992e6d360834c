package billing

import (
	"testing"
	"time"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func proMonthly() Selection {
	return Selection{
		Plan:    Plan{ID: "p1", PlanCode: "PRO_MONTHLY", Name: "Pro"},
		Version: PlanVersion{ID: "v1", Price: 499900, Currency: "INR", BillingCycle: CycleMonthly},
		Included: []Feature{
			{ID: "f-users", Code: "USERS", Name: "User management", IsBaseFeature: true},
		},
		TaxRate: 0.18,
	}
}

func TestQuoteAddsTaxOnPlanPrice(t *testing.T) {
	q := proMonthly().Quote()

	assert.Equal(t, kernel.Money(499900), q.Subtotal)
	assert.Equal(t, kernel.Money(0), q.Discount)
	assert.Equal(t, kernel.Money(89982), q.Tax)
	assert.Equal(t, kernel.Money(589882), q.Total)
	assert.Equal(t, "INR", q.Currency)
}

func TestCheckDeclaredTolerance(t *testing.T) {
	q := proMonthly().Quote()

	assert.NoError(t, q.CheckDeclared(5898.82, 1.00))
	assert.NoError(t, q.CheckDeclared(5899, 1.00))

	err := q.CheckDeclared(6500, 1.00)
	require.Error(t, err)
	assert.True(t, errx.IsCode(err, CodePriceMismatch))

	var e *errx.Error
	require.True(t, errx.As(err, &e))
	assert.Equal(t, 6500.0, e.Details["declared"])
	assert.Equal(t, 5898.82, e.Details["computed"])
}

func TestQuoteAppsAndAddOns(t *testing.T) {
	sel := proMonthly()
	appID := "a1"
	sel.Apps = []AppSelection{{
		App: App{ID: appID, Code: "CRM", Name: "CRM", BasePrice: 100000},
		Features: []Feature{
			{ID: "f1", AppID: &appID, Code: "CRM_EXPORT", Price: 20000},
			{ID: "f2", AppID: &appID, Code: "CRM_BASIC", Price: 99999, IsBaseFeature: true},
		},
	}}

	q := sel.Quote()
	assert.Equal(t, kernel.Money(619900), q.Subtotal)
	assert.Equal(t, kernel.Money(619900+111582), q.Total)

	items := sel.Items()
	assert.Equal(t, []string{"f-users", "f1", "f2"}, items.FeatureIDs())
	assert.Equal(t, []string{"a1"}, items.AppIDs())
	assert.Equal(t, kernel.Money(0), items.Apps[0].Features[1].Price)
}

func TestCouponDiscount(t *testing.T) {
	future := time.Now().Add(time.Hour)
	tests := []struct {
		name   string
		coupon *Coupon
		want   kernel.Money
	}{
		{"none", nil, 0},
		{"percent", &Coupon{DiscountType: DiscountPercent, Value: 10}, 49990},
		{"flat", &Coupon{DiscountType: DiscountFlat, Value: 50000}, 50000},
		{"flat capped at subtotal", &Coupon{DiscountType: DiscountFlat, Value: 900000}, 499900},
		{"percent capped at subtotal", &Coupon{DiscountType: DiscountPercent, Value: 150, ExpiresAt: &future}, 499900},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.coupon.Discount(499900))
		})
	}
}

func TestFullDiscountIsFree(t *testing.T) {
	sel := proMonthly()
	sel.Coupon = &Coupon{DiscountType: DiscountPercent, Value: 100, IsActive: true}

	q := sel.Quote()
	assert.Equal(t, kernel.Money(0), q.Total)
	assert.NoError(t, q.CheckDeclared(0, 1.00))
}

func TestCouponUsable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)

	assert.True(t, (&Coupon{IsActive: true}).Usable(now))
	assert.False(t, (&Coupon{IsActive: false}).Usable(now))
	assert.False(t, (&Coupon{IsActive: true, ExpiresAt: &past}).Usable(now))
}

func TestBuildLineItems(t *testing.T) {
	sel := proMonthly()
	sel.Apps = []AppSelection{{
		App:      App{ID: "a1", Code: "CRM", Name: "CRM", BasePrice: 100000},
		Features: []Feature{{ID: "f1", Code: "CRM_EXPORT", Name: "Export", Price: 20000}},
	}}

	lines := BuildLineItems(sel.Items())
	require.Len(t, lines, 4)
	assert.Equal(t, "plan", lines[0].Kind)
	assert.Equal(t, "Pro (monthly)", lines[0].Description)
	assert.Equal(t, "feature", lines[1].Kind)
	assert.Equal(t, kernel.Money(0), lines[1].Amount)
	assert.Equal(t, "app", lines[2].Kind)
	assert.Equal(t, "CRM: Export", lines[3].Description)
}
