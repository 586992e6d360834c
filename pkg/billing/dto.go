package billing

import (
	"strings"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam/tenant"
	"github.com/Abraxas-365/tenantry/pkg/iam/user"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

// CheckoutRequest is the priced selection the client displayed. Totals are
// in major units as shown to the user; the server recomputes them.
type CheckoutRequest struct {
	ActivationToken string              `json:"activation_token"`
	PlanCode        string              `json:"plan_code"`
	Apps            []string            `json:"apps"`
	Features        map[string][]string `json:"features"` // app id -> feature codes
	CouponCode      string              `json:"coupon_code,omitempty"`
	PaymentMethod   string              `json:"payment_method"`
	GrandTotal      float64             `json:"grand_total"`

	// TenantID is resolved from the activation token.
	TenantID kernel.TenantID `json:"-"`
}

func (r CheckoutRequest) Validate() error {
	fields := errx.FieldErrors{}
	if strings.TrimSpace(r.PlanCode) == "" {
		fields.Add("plan_code", "is required")
	}
	if r.GrandTotal < 0 {
		fields.Add("grand_total", "must not be negative")
	}
	for appID := range r.Features {
		if !contains(r.Apps, appID) {
			fields.Add("features", "features selected for an app that is not in apps: "+appID)
		}
	}
	if e := fields.Err("invalid checkout request"); e != nil {
		return e
	}
	return nil
}

type CheckoutResponse struct {
	Valid           bool                 `json:"valid"`
	OrderID         kernel.OrderID       `json:"order_id"`
	TransactionID   kernel.TransactionID `json:"transaction_id"`
	ProviderOrderID string               `json:"razorpay_order_id,omitempty"`
	Amount          float64              `json:"amount"`
	Currency        string               `json:"currency"`
	KeyID           string               `json:"key_id,omitempty"`
	Free            bool                 `json:"free"`
	Message         string               `json:"message"`
}

type VerifyPaymentRequest struct {
	TransactionID     kernel.TransactionID `json:"transaction_id"`
	ProviderOrderID   string               `json:"razorpay_order_id"`
	ProviderPaymentID string               `json:"razorpay_payment_id"`
	Signature         string               `json:"razorpay_signature"`
}

func (r VerifyPaymentRequest) Validate() error {
	fields := errx.FieldErrors{}
	if r.ProviderOrderID == "" {
		fields.Add("razorpay_order_id", "is required")
	}
	if r.ProviderPaymentID == "" {
		fields.Add("razorpay_payment_id", "is required")
	}
	if r.Signature == "" {
		fields.Add("razorpay_signature", "is required")
	}
	if e := fields.Err("invalid payment verification request"); e != nil {
		return e
	}
	return nil
}

type PaymentStatusRequest struct {
	TransactionID   kernel.TransactionID `json:"transaction_id"`
	ProviderOrderID string               `json:"razorpay_order_id"`
}

type PaymentStatusResponse struct {
	TransactionID  kernel.TransactionID   `json:"transaction_id"`
	Status         TransactionStatus      `json:"status"`
	SubscriptionID *kernel.SubscriptionID `json:"subscription_id,omitempty"`
	FailureReason  *string                `json:"failure_reason,omitempty"`
	Amount         float64                `json:"amount"`
	Currency       string                 `json:"currency"`
}

// ActivationInput carries what the payment confirmation knows.
type ActivationInput struct {
	ProviderPaymentID string
	Signature         string
	PaymentDetails    Details
}

// ActivationResult is what the post-commit notifier needs.
type ActivationResult struct {
	AlreadyActive bool
	Transaction   Transaction
	Order         Order
	Subscription  Subscription
	Billing       SubscriptionBilling
	Tenant        tenant.Tenant
	// Root is set only when this activation created the root user.
	Root *user.RootCredentials
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
