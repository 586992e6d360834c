// Package razorpay adapts the Razorpay SDK to the billing payment gateway
// port and verifies checkout and webhook signatures.
package razorpay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	rzp "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"

	"github.com/Abraxas-365/tenantry/pkg/asyncx"
	"github.com/Abraxas-365/tenantry/pkg/billing"
	"github.com/Abraxas-365/tenantry/pkg/config"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
	"github.com/Abraxas-365/tenantry/pkg/logx"
)

var ErrRegistry = errx.NewRegistry("RAZORPAY")

var (
	CodeInvalidSignature = ErrRegistry.Register("INVALID_SIGNATURE", errx.TypeIntegrity, http.StatusBadRequest, "Invalid webhook signature")
	CodeMissingSecret    = ErrRegistry.Register("MISSING_SECRET", errx.TypeIntegrity, http.StatusBadRequest, "Webhook secret is not configured")
)

// orderAPI is the part of the SDK order resource the gateway calls.
type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

const defaultCallTimeout = 15 * time.Second

type Gateway struct {
	orders    orderAPI
	keyID     string
	keySecret string
	timeout   time.Duration
}

func NewGateway(cfg config.RazorpayConfig) *Gateway {
	client := rzp.NewClient(cfg.KeyID, cfg.KeySecret)
	return &Gateway{
		orders:    client.Order,
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		timeout:   defaultCallTimeout,
	}
}

var _ billing.PaymentGateway = (*Gateway)(nil)

func (g *Gateway) KeyID() string {
	return g.keyID
}

// CreateOrder registers the amount with the gateway. The SDK call takes no
// context; the caller stops waiting when ctx ends or the call timeout passes.
func (g *Gateway) CreateOrder(ctx context.Context, req billing.GatewayOrderRequest) (*billing.GatewayOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, billing.ErrGatewayFailed(err)
	}

	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	timeout := g.timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	body, err := asyncx.WithTimeout(ctx, timeout, func(context.Context) (map[string]interface{}, error) {
		return g.orders.Create(map[string]interface{}{
			"amount":   int64(req.Amount),
			"currency": req.Currency,
			"receipt":  req.Receipt,
			"notes":    notes,
		}, nil)
	})
	if err != nil {
		logx.WithFields(logx.Fields{
			"receipt": req.Receipt,
			"amount":  int64(req.Amount),
		}).WithError(err).Error("razorpay order creation failed")
		return nil, billing.ErrGatewayFailed(err).WithDetail("receipt", req.Receipt)
	}

	id, _ := body["id"].(string)
	if id == "" {
		return nil, billing.ErrGatewayFailed(fmt.Errorf("order response without id"))
	}
	order := &billing.GatewayOrder{ID: id, Amount: req.Amount, Currency: req.Currency}
	if amount, ok := body["amount"].(float64); ok {
		order.Amount = kernel.Money(amount)
	}
	if currency, ok := body["currency"].(string); ok {
		order.Currency = currency
	}
	order.Status, _ = body["status"].(string)
	return order, nil
}

// VerifyPaymentSignature checks HMAC-SHA256(order_id|payment_id, key_secret).
func (g *Gateway) VerifyPaymentSignature(orderID, paymentID, signature string) error {
	ok := utils.VerifyPaymentSignature(map[string]interface{}{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
	}, signature, g.keySecret)
	if !ok {
		return billing.ErrInvalidPayment().WithDetail("razorpay_order_id", orderID)
	}
	return nil
}

// VerifyWebhookSignature checks HMAC-SHA256(body, secret). An empty secret is
// rejected when required is set and skipped with a warning otherwise.
func VerifyWebhookSignature(body []byte, signature, secret string, required bool) error {
	if secret == "" {
		if required {
			return ErrRegistry.New(CodeMissingSecret)
		}
		logx.Warn("razorpay webhook secret not configured, skipping signature verification")
		return nil
	}
	if signature == "" || !utils.VerifyWebhookSignature(string(body), signature, secret) {
		return ErrRegistry.New(CodeInvalidSignature)
	}
	return nil
}
