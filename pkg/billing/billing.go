package billing

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

// ============================================================================
// Catalog
// ============================================================================

type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// Period is the entitlement length bought by one payment.
func (c BillingCycle) Period() time.Duration {
	if c == CycleYearly {
		return 365 * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}

type Plan struct {
	ID          string `db:"id" json:"id"`
	PlanCode    string `db:"plan_code" json:"plan_code"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	IsActive    bool   `db:"is_active" json:"is_active"`
}

type PlanVersion struct {
	ID           string       `db:"id" json:"id"`
	PlanID       string       `db:"plan_id" json:"plan_id"`
	Version      int          `db:"version" json:"version"`
	Price        kernel.Money `db:"price" json:"price"`
	Currency     string       `db:"currency" json:"currency"`
	BillingCycle BillingCycle `db:"billing_cycle" json:"billing_cycle"`
	IsCurrent    bool         `db:"is_current" json:"is_current"`
}

type App struct {
	ID        string       `db:"id" json:"id"`
	Code      string       `db:"code" json:"code"`
	Name      string       `db:"name" json:"name"`
	BasePrice kernel.Money `db:"base_price" json:"base_price"`
	IsActive  bool         `db:"is_active" json:"is_active"`
}

type Feature struct {
	ID            string       `db:"id" json:"id"`
	AppID         *string      `db:"app_id" json:"app_id,omitempty"`
	Code          string       `db:"code" json:"code"`
	Name          string       `db:"name" json:"name"`
	Price         kernel.Money `db:"price" json:"price"`
	IsBaseFeature bool         `db:"is_base_feature" json:"is_base_feature"`
	IsActive      bool         `db:"is_active" json:"is_active"`
}

// AddOnPrice is what the feature adds to an order. Base features are included.
func (f Feature) AddOnPrice() kernel.Money {
	if f.IsBaseFeature {
		return 0
	}
	return f.Price
}

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFlat    DiscountType = "flat"
)

// Coupon value is a whole percentage for percent coupons and minor units for
// flat ones.
type Coupon struct {
	Code         string       `db:"code" json:"code"`
	DiscountType DiscountType `db:"discount_type" json:"discount_type"`
	Value        int64        `db:"value" json:"value"`
	IsActive     bool         `db:"is_active" json:"is_active"`
	ExpiresAt    *time.Time   `db:"expires_at" json:"expires_at,omitempty"`
}

func (c *Coupon) Usable(now time.Time) bool {
	return c.IsActive && (c.ExpiresAt == nil || now.Before(*c.ExpiresAt))
}

// ============================================================================
// Orders and transactions
// ============================================================================

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
	OrderFailed    OrderStatus = "failed"
)

type ItemFeature struct {
	ID    string       `json:"id"`
	Code  string       `json:"code"`
	Name  string       `json:"name"`
	Price kernel.Money `json:"price"`
}

type ItemApp struct {
	ID        string        `json:"id"`
	Code      string        `json:"code"`
	Name      string        `json:"name"`
	BasePrice kernel.Money  `json:"base_price"`
	Features  []ItemFeature `json:"features"`
}

// OrderItems is the priced selection frozen at checkout.
type OrderItems struct {
	PlanID           string        `json:"plan_id"`
	PlanCode         string        `json:"plan_code"`
	PlanName         string        `json:"plan_name"`
	PlanVersionID    string        `json:"plan_version_id"`
	BillingCycle     BillingCycle  `json:"billing_cycle"`
	PlanPrice        kernel.Money  `json:"plan_price"`
	IncludedFeatures []ItemFeature `json:"included_features"`
	Apps             []ItemApp     `json:"apps"`
	TaxRate          float64       `json:"tax_rate"`
}

// FeatureIDs lists every feature granted by the order.
func (i OrderItems) FeatureIDs() []string {
	ids := make([]string, 0, len(i.IncludedFeatures))
	for _, f := range i.IncludedFeatures {
		ids = append(ids, f.ID)
	}
	for _, a := range i.Apps {
		for _, f := range a.Features {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

func (i OrderItems) AppIDs() []string {
	ids := make([]string, 0, len(i.Apps))
	for _, a := range i.Apps {
		ids = append(ids, a.ID)
	}
	return ids
}

func (i OrderItems) Value() (driver.Value, error) {
	return json.Marshal(i)
}

func (i *OrderItems) Scan(src interface{}) error {
	return scanJSON(src, i)
}

type Order struct {
	ID              kernel.OrderID  `db:"id" json:"id"`
	TenantID        kernel.TenantID `db:"tenant_id" json:"tenant_id"`
	Subtotal        kernel.Money    `db:"subtotal" json:"subtotal"`
	DiscountAmount  kernel.Money    `db:"discount_amount" json:"discount_amount"`
	TaxAmount       kernel.Money    `db:"tax_amount" json:"tax_amount"`
	TotalAmount     kernel.Money    `db:"total_amount" json:"total_amount"`
	Currency        string          `db:"currency" json:"currency"`
	Items           OrderItems      `db:"items" json:"items"`
	CouponCode      *string         `db:"coupon_code" json:"coupon_code,omitempty"`
	ProviderOrderID *string         `db:"provider_order_id" json:"provider_order_id,omitempty"`
	Status          OrderStatus     `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

func (o *Order) IsFree() bool {
	return o.TotalAmount == 0
}

type TransactionStatus string

const (
	TxPending  TransactionStatus = "PENDING"
	TxSuccess  TransactionStatus = "SUCCESS"
	TxFailed   TransactionStatus = "FAILED"
	TxRefunded TransactionStatus = "REFUNDED"
)

const (
	ProviderRazorpay = "razorpay"
	ProviderFree     = "free"
)

// Details is a free-form JSONB document, such as the gateway payment entity.
type Details map[string]interface{}

func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

func (d *Details) Scan(src interface{}) error {
	if src == nil {
		*d = nil
		return nil
	}
	return scanJSON(src, d)
}

type Transaction struct {
	ID                kernel.TransactionID   `db:"id" json:"id"`
	TenantID          kernel.TenantID        `db:"tenant_id" json:"tenant_id"`
	OrderID           kernel.OrderID         `db:"order_id" json:"order_id"`
	SubscriptionID    *kernel.SubscriptionID `db:"subscription_id" json:"subscription_id,omitempty"`
	Amount            kernel.Money           `db:"amount" json:"amount"`
	Currency          string                 `db:"currency" json:"currency"`
	Provider          string                 `db:"provider" json:"provider"`
	ProviderOrderID   *string                `db:"provider_order_id" json:"provider_order_id,omitempty"`
	ProviderPaymentID *string                `db:"provider_payment_id" json:"provider_payment_id,omitempty"`
	ProviderSignature *string                `db:"provider_signature" json:"-"`
	Status            TransactionStatus      `db:"status" json:"status"`
	FailureReason     *string                `db:"failure_reason" json:"failure_reason,omitempty"`
	PaymentDetails    Details                `db:"payment_details" json:"payment_details,omitempty"`
	PlanCode          string                 `db:"plan_code" json:"plan_code"`
	BillingCycle      BillingCycle           `db:"billing_cycle" json:"billing_cycle"`
	CreatedAt         time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time              `db:"updated_at" json:"updated_at"`
}

// CanActivate reports whether a new activation attempt may run.
func (t *Transaction) CanActivate() bool {
	return t.Status == TxPending || t.Status == TxFailed
}

// ============================================================================
// Subscriptions
// ============================================================================

type SubscriptionStatus string

const (
	SubActive    SubscriptionStatus = "active"
	SubGrace     SubscriptionStatus = "grace"
	SubExpired   SubscriptionStatus = "expired"
	SubCancelled SubscriptionStatus = "cancelled"
)

type Subscription struct {
	ID            kernel.SubscriptionID `db:"id" json:"id"`
	TenantID      kernel.TenantID       `db:"tenant_id" json:"tenant_id"`
	TransactionID kernel.TransactionID  `db:"transaction_id" json:"transaction_id"`
	PlanVersionID string                `db:"plan_version_id" json:"plan_version_id"`
	Status        SubscriptionStatus    `db:"status" json:"status"`
	StartDate     time.Time             `db:"start_date" json:"start_date"`
	EndDate       time.Time             `db:"end_date" json:"end_date"`
	AutoRenew     bool                  `db:"auto_renew" json:"auto_renew"`
	CreatedAt     time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time             `db:"updated_at" json:"updated_at"`
}

type SubscriptionCycle struct {
	ID             string                `db:"id" json:"id"`
	SubscriptionID kernel.SubscriptionID `db:"subscription_id" json:"subscription_id"`
	PlanVersionID  string                `db:"plan_version_id" json:"plan_version_id"`
	PlanCode       string                `db:"plan_code" json:"plan_code"`
	StartDate      time.Time             `db:"start_date" json:"start_date"`
	EndDate        time.Time             `db:"end_date" json:"end_date"`
	Status         string                `db:"status" json:"status"`
}

type LineItem struct {
	Kind        string       `json:"kind"` // plan | feature | app | addon
	Code        string       `json:"code"`
	Description string       `json:"description"`
	Amount      kernel.Money `json:"amount"`
}

type LineItems []LineItem

func (l LineItems) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *LineItems) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// SubscriptionBilling is the immutable invoice snapshot of one activation.
type SubscriptionBilling struct {
	ID               string                `db:"id" json:"id"`
	SubscriptionID   kernel.SubscriptionID `db:"subscription_id" json:"subscription_id"`
	TransactionID    kernel.TransactionID  `db:"transaction_id" json:"transaction_id"`
	InvoiceNumber    string                `db:"invoice_number" json:"invoice_number"`
	BaseAmount       kernel.Money          `db:"base_amount" json:"base_amount"`
	DiscountAmount   kernel.Money          `db:"discount_amount" json:"discount_amount"`
	TaxAmount        kernel.Money          `db:"tax_amount" json:"tax_amount"`
	TotalAmount      kernel.Money          `db:"total_amount" json:"total_amount"`
	Currency         string                `db:"currency" json:"currency"`
	LineItems        LineItems             `db:"line_items" json:"line_items"`
	BillingDate      time.Time             `db:"billing_date" json:"billing_date"`
	PaymentStatus    string                `db:"payment_status" json:"payment_status"`
	PaymentReference *string               `db:"payment_reference" json:"payment_reference,omitempty"`
	CreatedAt        time.Time             `db:"created_at" json:"created_at"`
}

// BuildLineItems itemises an order: the plan, each included feature at no
// charge, then each app followed by its add-ons.
func BuildLineItems(items OrderItems) LineItems {
	out := LineItems{{
		Kind:        "plan",
		Code:        items.PlanCode,
		Description: fmt.Sprintf("%s (%s)", items.PlanName, items.BillingCycle),
		Amount:      items.PlanPrice,
	}}
	for _, f := range items.IncludedFeatures {
		out = append(out, LineItem{Kind: "feature", Code: f.Code, Description: f.Name + " (included)"})
	}
	for _, a := range items.Apps {
		out = append(out, LineItem{Kind: "app", Code: a.Code, Description: a.Name, Amount: a.BasePrice})
		for _, f := range a.Features {
			out = append(out, LineItem{Kind: "addon", Code: f.Code, Description: a.Name + ": " + f.Name, Amount: f.Price})
		}
	}
	return out
}

func scanJSON(src interface{}, dst interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
	return json.Unmarshal(raw, dst)
}
