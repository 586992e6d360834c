package billingapi

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/tenantry/pkg/billing"
	"github.com/Abraxas-365/tenantry/pkg/errx"
)

// Checkouts is the checkout side of billing.
type Checkouts interface {
	Checkout(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutResponse, error)
	PaymentStatus(ctx context.Context, req billing.PaymentStatusRequest) (*billing.PaymentStatusResponse, error)
}

// Activator settles payments.
type Activator interface {
	VerifyPayment(ctx context.Context, req billing.VerifyPaymentRequest) (*billing.ActivationResult, error)
	ActivateByProviderOrder(ctx context.Context, providerOrderID string, in billing.ActivationInput) (*billing.ActivationResult, error)
	MarkFailedByProviderOrder(ctx context.Context, providerOrderID, reason string, details billing.Details) error
	CompleteOrder(ctx context.Context, providerOrderID string) error
}

type BillingHandlers struct {
	checkouts  Checkouts
	activation Activator
}

func NewBillingHandlers(checkouts Checkouts, activation Activator) *BillingHandlers {
	return &BillingHandlers{checkouts: checkouts, activation: activation}
}

func (h *BillingHandlers) RegisterRoutes(router fiber.Router) {
	account := router.Group("/account")
	account.Post("/checkout", h.Checkout)
	account.Post("/verify-payment", h.VerifyPayment)
	account.Post("/payment-status", h.PaymentStatus)
}

// Checkout godoc
// POST /account/checkout
// Paid plans answer with the gateway order to open the payment widget; free
// plans are activated in the background and polled via payment-status.
func (h *BillingHandlers) Checkout(c *fiber.Ctx) error {
	var req billing.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithCause(err)
	}
	resp, err := h.checkouts.Checkout(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

type verifyPaymentResponse struct {
	Success        bool                      `json:"success"`
	AlreadyActive  bool                      `json:"already_active"`
	TransactionID  string                    `json:"transaction_id"`
	SubscriptionID string                    `json:"subscription_id"`
	Status         billing.TransactionStatus `json:"status"`
	InvoiceNumber  string                    `json:"invoice_number,omitempty"`
}

// VerifyPayment godoc
// POST /account/verify-payment {transaction_id, razorpay_order_id, razorpay_payment_id, razorpay_signature}
func (h *BillingHandlers) VerifyPayment(c *fiber.Ctx) error {
	var req billing.VerifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithCause(err)
	}
	res, err := h.activation.VerifyPayment(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(verifyPaymentResponse{
		Success:        true,
		AlreadyActive:  res.AlreadyActive,
		TransactionID:  res.Transaction.ID.String(),
		SubscriptionID: res.Subscription.ID.String(),
		Status:         res.Transaction.Status,
		InvoiceNumber:  res.Billing.InvoiceNumber,
	})
}

// PaymentStatus godoc
// POST /account/payment-status {transaction_id | razorpay_order_id}
func (h *BillingHandlers) PaymentStatus(c *fiber.Ctx) error {
	var req billing.PaymentStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithCause(err)
	}
	resp, err := h.checkouts.PaymentStatus(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}
