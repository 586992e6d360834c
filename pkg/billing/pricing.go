package billing

import (
	"math"
	"time"

	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

// AppSelection is one chosen app with the add-on features chosen for it.
type AppSelection struct {
	App      App
	Features []Feature
}

// Selection is a checkout request resolved against the catalog.
type Selection struct {
	Plan     Plan
	Version  PlanVersion
	Included []Feature
	Apps     []AppSelection
	Coupon   *Coupon
	TaxRate  float64
}

// PriceQuote is the server-side price of a selection, in minor units.
type PriceQuote struct {
	Subtotal kernel.Money `json:"subtotal"`
	Discount kernel.Money `json:"discount"`
	Tax      kernel.Money `json:"tax"`
	Total    kernel.Money `json:"total"`
	Currency string       `json:"currency"`
}

// Quote prices the selection. Base features never add to the subtotal and
// the discount never exceeds it.
func (s Selection) Quote() PriceQuote {
	subtotal := s.Version.Price
	for _, a := range s.Apps {
		subtotal += a.App.BasePrice
		for _, f := range a.Features {
			subtotal += f.AddOnPrice()
		}
	}

	discount := s.Coupon.Discount(subtotal)
	taxable := subtotal - discount
	tax := taxable.MulRate(s.TaxRate)

	return PriceQuote{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Total:    taxable + tax,
		Currency: s.Version.Currency,
	}
}

// Items freezes the selection into the order snapshot.
func (s Selection) Items() OrderItems {
	items := OrderItems{
		PlanID:        s.Plan.ID,
		PlanCode:      s.Plan.PlanCode,
		PlanName:      s.Plan.Name,
		PlanVersionID: s.Version.ID,
		BillingCycle:  s.Version.BillingCycle,
		PlanPrice:     s.Version.Price,
		TaxRate:       s.TaxRate,
	}
	for _, f := range s.Included {
		items.IncludedFeatures = append(items.IncludedFeatures, itemFeature(f))
	}
	for _, a := range s.Apps {
		ia := ItemApp{ID: a.App.ID, Code: a.App.Code, Name: a.App.Name, BasePrice: a.App.BasePrice}
		for _, f := range a.Features {
			ia.Features = append(ia.Features, itemFeature(f))
		}
		items.Apps = append(items.Apps, ia)
	}
	return items
}

// CheckDeclared compares the client's major-unit total with the quote and
// fails when they differ by more than tolerance (major units).
func (q PriceQuote) CheckDeclared(declared float64, tolerance float64) error {
	d := kernel.MoneyFromMajor(declared)
	if (d - q.Total).Abs() > kernel.MoneyFromMajor(math.Abs(tolerance)) {
		return ErrPriceMismatch(d, q.Total)
	}
	return nil
}

// Discount returns the coupon's reduction of subtotal, capped at subtotal.
// A nil coupon discounts nothing.
func (c *Coupon) Discount(subtotal kernel.Money) kernel.Money {
	if c == nil {
		return 0
	}
	var d kernel.Money
	switch c.DiscountType {
	case DiscountPercent:
		d = subtotal.MulRate(float64(c.Value) / 100)
	case DiscountFlat:
		d = kernel.Money(c.Value)
	}
	if d > subtotal {
		return subtotal
	}
	if d < 0 {
		return 0
	}
	return d
}

// NewPeriod returns the entitlement window starting at now.
func NewPeriod(cycle BillingCycle, now time.Time) (time.Time, time.Time) {
	return now, now.Add(cycle.Period())
}

func itemFeature(f Feature) ItemFeature {
	return ItemFeature{ID: f.ID, Code: f.Code, Name: f.Name, Price: f.AddOnPrice()}
}
