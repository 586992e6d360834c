package billingapi_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/tenantry/pkg/billing"
	"github.com/Abraxas-365/tenantry/pkg/billing/billingapi"
	"github.com/Abraxas-365/tenantry/pkg/errx"
)

const webhookSecret = "whsec_test"

type call struct {
	op      string
	orderID string
	arg     string
}

type fakeActivator struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeActivator) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.err
}

func (f *fakeActivator) VerifyPayment(_ context.Context, req billing.VerifyPaymentRequest) (*billing.ActivationResult, error) {
	if err := f.record(call{op: "verify", orderID: req.ProviderOrderID, arg: req.Signature}); err != nil {
		return nil, err
	}
	return &billing.ActivationResult{
		Transaction:  billing.Transaction{ID: req.TransactionID, Status: billing.TxSuccess},
		Subscription: billing.Subscription{ID: "sub-1"},
		Billing:      billing.SubscriptionBilling{InvoiceNumber: "INV-1"},
	}, nil
}

func (f *fakeActivator) ActivateByProviderOrder(_ context.Context, orderID string, in billing.ActivationInput) (*billing.ActivationResult, error) {
	if err := f.record(call{op: "activate", orderID: orderID, arg: in.ProviderPaymentID}); err != nil {
		return nil, err
	}
	return &billing.ActivationResult{}, nil
}

func (f *fakeActivator) MarkFailedByProviderOrder(_ context.Context, orderID, reason string, _ billing.Details) error {
	return f.record(call{op: "failed", orderID: orderID, arg: reason})
}

func (f *fakeActivator) CompleteOrder(_ context.Context, orderID string) error {
	return f.record(call{op: "complete", orderID: orderID})
}

func (f *fakeActivator) ops() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fakeCheckouts struct{}

func (fakeCheckouts) Checkout(_ context.Context, req billing.CheckoutRequest) (*billing.CheckoutResponse, error) {
	if req.GrandTotal == 6500 {
		return nil, billing.ErrPriceMismatch(650000, 589882)
	}
	return &billing.CheckoutResponse{Valid: true, ProviderOrderID: "order_1", Amount: req.GrandTotal, Currency: "INR"}, nil
}

func (fakeCheckouts) PaymentStatus(_ context.Context, req billing.PaymentStatusRequest) (*billing.PaymentStatusResponse, error) {
	return &billing.PaymentStatusResponse{TransactionID: req.TransactionID, Status: billing.TxPending}, nil
}

func errorHandler(c *fiber.Ctx, err error) error {
	var e *errx.Error
	if errors.As(err, &e) {
		return c.Status(e.HTTPStatus).JSON(e.ToResponse(""))
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"message": fe.Message})
	}
	return c.SendStatus(fiber.StatusInternalServerError)
}

func newWebhookApp(t *testing.T, cfg billingapi.WebhookConfig) (*fiber.App, *fakeActivator, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	act := &fakeActivator{}
	app := fiber.New(fiber.Config{ErrorHandler: errorHandler, BodyLimit: 4 << 20})
	billingapi.NewWebhookHandler(act, rdb, cfg).RegisterRoutes(app)
	billingapi.NewBillingHandlers(fakeCheckouts{}, act).RegisterRoutes(app)
	return app, act, mr
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func deliver(t *testing.T, app *fiber.App, body, signature, eventID string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", strings.NewReader(body))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	req.Header.Set("X-Razorpay-Signature", signature)
	if eventID != "" {
		req.Header.Set("X-Razorpay-Event-Id", eventID)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(raw)
}

const capturedEvent = `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","status":"captured"}}}}`

func TestDuplicateCapturedDeliveryIsProcessedOnce(t *testing.T) {
	app, act, _ := newWebhookApp(t, billingapi.WebhookConfig{Secret: webhookSecret, Required: true})

	for i := 0; i < 3; i++ {
		status, body := deliver(t, app, capturedEvent, sign(capturedEvent), "evt_1")
		assert.Equal(t, fiber.StatusOK, status)
		assert.JSONEq(t, `{"success":true}`, body)
	}

	assert.Equal(t, []call{{op: "activate", orderID: "order_1", arg: "pay_1"}}, act.ops())
}

func TestDedupeAcceptsUniversalClient(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { rdb.Close() })

	act := &fakeActivator{}
	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
	billingapi.NewWebhookHandler(act, rdb, billingapi.WebhookConfig{Secret: webhookSecret}).RegisterRoutes(app)

	deliver(t, app, capturedEvent, sign(capturedEvent), "evt_u")
	deliver(t, app, capturedEvent, sign(capturedEvent), "evt_u")

	assert.Len(t, act.ops(), 1)
	assert.True(t, mr.Exists("webhook:razorpay:evt_u"))
}

func TestFailedProcessingIsNotMarkedSeen(t *testing.T) {
	app, act, mr := newWebhookApp(t, billingapi.WebhookConfig{Secret: webhookSecret})
	act.err = errors.New("database down")

	status, body := deliver(t, app, capturedEvent, sign(capturedEvent), "evt_2")
	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"success":true}`, body)
	assert.False(t, mr.Exists("webhook:razorpay:evt_2"))

	act.err = nil
	deliver(t, app, capturedEvent, sign(capturedEvent), "evt_2")
	assert.Len(t, act.ops(), 2)
	assert.True(t, mr.Exists("webhook:razorpay:evt_2"))
}

func TestWebhookRouting(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []call
	}{
		{
			name: "payment failed keeps the gateway reason",
			body: `{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_2","order_id":"order_2","error_description":"Payment was unsuccessful as the card was declined"}}}}`,
			want: []call{{op: "failed", orderID: "order_2", arg: "Payment was unsuccessful as the card was declined"}},
		},
		{
			name: "order paid completes the order",
			body: `{"event":"order.paid","payload":{"order":{"entity":{"id":"order_3","status":"paid"}}}}`,
			want: []call{{op: "complete", orderID: "order_3"}},
		},
		{
			name: "unknown events are ignored",
			body: `{"event":"refund.created","payload":{}}`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, act, _ := newWebhookApp(t, billingapi.WebhookConfig{Secret: webhookSecret})
			status, _ := deliver(t, app, tt.body, sign(tt.body), "")
			assert.Equal(t, fiber.StatusOK, status)
			assert.Equal(t, tt.want, act.ops())
		})
	}
}

func TestWebhookRejectsBadSignatures(t *testing.T) {
	app, act, _ := newWebhookApp(t, billingapi.WebhookConfig{Secret: webhookSecret})

	status, body := deliver(t, app, capturedEvent, sign(`{"event":"other"}`), "evt_3")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body, "RAZORPAY_INVALID_SIGNATURE")
	assert.Empty(t, act.ops())
}

func TestWebhookFailsClosedWithoutSecretInProduction(t *testing.T) {
	app, act, _ := newWebhookApp(t, billingapi.WebhookConfig{Required: true})

	status, _ := deliver(t, app, capturedEvent, "", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Empty(t, act.ops())
}

func TestWebhookSkipsVerificationWithoutSecretOutsideProduction(t *testing.T) {
	app, act, _ := newWebhookApp(t, billingapi.WebhookConfig{})

	status, _ := deliver(t, app, capturedEvent, "", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Len(t, act.ops(), 1)
}

func TestWebhookBodyLimit(t *testing.T) {
	app, act, _ := newWebhookApp(t, billingapi.WebhookConfig{Secret: webhookSecret})
	big := `{"event":"payment.captured","pad":"` + strings.Repeat("x", 1<<20) + `"}`

	status, _ := deliver(t, app, big, sign(big), "")
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, status)
	assert.Empty(t, act.ops())
}

func TestCheckoutEndpoints(t *testing.T) {
	app, act, _ := newWebhookApp(t, billingapi.WebhookConfig{})

	post := func(path, body string) (int, string) {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		raw, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(raw)
	}

	status, body := post("/account/checkout", `{"activation_token":"t","plan_code":"PRO_MONTHLY","grand_total":5899}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `"razorpay_order_id":"order_1"`)

	status, body = post("/account/checkout", `{"activation_token":"t","plan_code":"PRO_MONTHLY","grand_total":6500}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body, "BILLING_PRICE_MISMATCH")
	assert.Contains(t, body, "grand_total")

	status, body = post("/account/verify-payment", `{"transaction_id":"tx-1","razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"sig"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `"subscription_id":"sub-1"`)
	assert.Equal(t, "verify", act.ops()[0].op)

	status, body = post("/account/payment-status", `{"transaction_id":"tx-1"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `"status":"PENDING"`)
}
