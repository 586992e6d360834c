package billingapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Abraxas-365/tenantry/pkg/billing"
	"github.com/Abraxas-365/tenantry/pkg/billing/razorpay"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/logx"
	"github.com/Abraxas-365/tenantry/pkg/metrics"
)

const (
	maxWebhookBody = 1 << 20

	headerSignature = "X-Razorpay-Signature"
	headerEventID   = "X-Razorpay-Event-Id"

	dedupePrefix = "webhook:razorpay:"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
)

type entity struct {
	Entity map[string]interface{} `json:"entity"`
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *entity `json:"payment"`
		Order   *entity `json:"order"`
	} `json:"payload"`
}

type WebhookConfig struct {
	Secret string
	// Required rejects deliveries when no secret is configured.
	Required  bool
	DedupeTTL time.Duration
}

// WebhookHandler verifies and routes gateway events. Every handler is
// idempotent, so redelivered and reordered events are safe.
type WebhookHandler struct {
	activation Activator
	dedupe     redis.UniversalClient
	cfg        WebhookConfig
}

// NewWebhookHandler builds the handler. dedupe may be nil; any go-redis
// client works, cluster and sentinel setups included.
func NewWebhookHandler(activation Activator, dedupe redis.UniversalClient, cfg WebhookConfig) *WebhookHandler {
	if cfg.DedupeTTL == 0 {
		cfg.DedupeTTL = 72 * time.Hour
	}
	return &WebhookHandler{activation: activation, dedupe: dedupe, cfg: cfg}
}

func (h *WebhookHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/webhooks/razorpay", h.Razorpay)
}

// Razorpay godoc
// POST /webhooks/razorpay
// Answers 200 {"success":true} for every delivery whose signature verifies,
// whatever the processing outcome, so the gateway stops retrying.
func (h *WebhookHandler) Razorpay(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) > maxWebhookBody {
		return fiber.ErrRequestEntityTooLarge
	}
	if err := razorpay.VerifyWebhookSignature(body, c.Get(headerSignature), h.cfg.Secret, h.cfg.Required); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		logx.WithField("ip", c.IP()).WithContext(c.UserContext()).Warn("Rejected webhook with invalid signature")
		return err
	}

	ctx := c.UserContext()
	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		logx.WithError(err).WithContext(ctx).Warn("Ignoring malformed webhook payload")
		return c.JSON(fiber.Map{"success": true})
	}

	eventID := c.Get(headerEventID)
	logger := logx.WithFields(logx.Fields{"event": evt.Event, "event_id": eventID}).WithContext(ctx)

	if h.seen(ctx, eventID) {
		metrics.WebhookEventsTotal.WithLabelValues(evt.Event, "duplicate").Inc()
		logger.Info("Skipping duplicate webhook delivery")
		return c.JSON(fiber.Map{"success": true})
	}

	start := time.Now()
	outcome := "processed"
	if err := h.route(ctx, evt); err != nil {
		outcome = "error"
		logger.WithError(err).Error("Webhook processing failed")
	} else {
		h.markSeen(ctx, eventID)
	}
	metrics.WebhookEventsTotal.WithLabelValues(evt.Event, outcome).Inc()
	metrics.WebhookDuration.WithLabelValues(evt.Event).Observe(time.Since(start).Seconds())

	return c.JSON(fiber.Map{"success": true})
}

func (h *WebhookHandler) route(ctx context.Context, evt webhookEvent) error {
	switch evt.Event {
	case EventPaymentCaptured:
		payment := evt.payment()
		orderID := str(payment, "order_id")
		if orderID == "" {
			return errx.Validation("payment.captured without order_id")
		}
		_, err := h.activation.ActivateByProviderOrder(ctx, orderID, billing.ActivationInput{
			ProviderPaymentID: str(payment, "id"),
			PaymentDetails:    billing.Details(payment),
		})
		return err

	case EventPaymentFailed:
		payment := evt.payment()
		orderID := str(payment, "order_id")
		if orderID == "" {
			return errx.Validation("payment.failed without order_id")
		}
		return h.activation.MarkFailedByProviderOrder(ctx, orderID, str(payment, "error_description"), billing.Details(payment))

	case EventOrderPaid:
		if evt.Payload.Order == nil {
			return errx.Validation("order.paid without order entity")
		}
		orderID := str(evt.Payload.Order.Entity, "id")
		if orderID == "" {
			return errx.Validation("order.paid without order id")
		}
		return h.activation.CompleteOrder(ctx, orderID)

	default:
		logx.WithField("event", evt.Event).WithContext(ctx).Info("Ignoring unhandled webhook event")
		return nil
	}
}

func (h *WebhookHandler) seen(ctx context.Context, eventID string) bool {
	if h.dedupe == nil || eventID == "" {
		return false
	}
	n, err := h.dedupe.Exists(ctx, dedupePrefix+eventID).Result()
	if err != nil {
		logx.WithError(err).WithContext(ctx).Warn("Webhook dedupe lookup failed")
		return false
	}
	return n > 0
}

func (h *WebhookHandler) markSeen(ctx context.Context, eventID string) {
	if h.dedupe == nil || eventID == "" {
		return
	}
	if err := h.dedupe.Set(ctx, dedupePrefix+eventID, time.Now().Unix(), h.cfg.DedupeTTL).Err(); err != nil {
		logx.WithError(err).WithContext(ctx).Warn("Failed to record webhook delivery")
	}
}

func (e webhookEvent) payment() map[string]interface{} {
	if e.Payload.Payment == nil {
		return nil
	}
	return e.Payload.Payment.Entity
}

func str(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}
