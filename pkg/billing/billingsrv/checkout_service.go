package billingsrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/tenantry/pkg/billing"
	"github.com/Abraxas-365/tenantry/pkg/config"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/jobx"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
	"github.com/Abraxas-365/tenantry/pkg/logx"
	"github.com/Abraxas-365/tenantry/pkg/ptrx"
)

// CheckoutService prices selections, opens gateway orders and schedules
// free-plan activations.
type CheckoutService struct {
	catalog billing.CatalogRepository
	repo    billing.Repository
	uow     billing.UnitOfWork
	gateway billing.PaymentGateway
	tokens  billing.ActivationTokens
	jobs    jobx.JobEnqueuer
	cfg     config.BillingConfig
	now     func() time.Time
}

func NewCheckoutService(
	catalog billing.CatalogRepository,
	repo billing.Repository,
	uow billing.UnitOfWork,
	gateway billing.PaymentGateway,
	tokens billing.ActivationTokens,
	jobs jobx.JobEnqueuer,
	cfg config.BillingConfig,
) *CheckoutService {
	if cfg.FreePlanQueue == "" {
		cfg.FreePlanQueue = "billing"
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &CheckoutService{
		catalog: catalog,
		repo:    repo,
		uow:     uow,
		gateway: gateway,
		tokens:  tokens,
		jobs:    jobs,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Checkout turns a priced selection into a persisted order and PENDING
// transaction. Paid orders get a gateway order first; free orders are
// completed immediately and activated by a background job.
func (s *CheckoutService) Checkout(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	link, err := s.tokens.ValidateActivationToken(ctx, req.ActivationToken)
	if err != nil {
		return nil, err
	}
	req.TenantID = link.TenantID

	order, err := s.CreateOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	tx := s.CreateTransaction(order)

	if order.IsFree() {
		order.Status = billing.OrderCompleted
		tx.Provider = billing.ProviderFree
	} else {
		gw, err := s.gateway.CreateOrder(ctx, billing.GatewayOrderRequest{
			Amount:   order.TotalAmount,
			Currency: order.Currency,
			Receipt:  order.ID.String(),
			Notes: map[string]string{
				"tenant_id":      order.TenantID.String(),
				"transaction_id": tx.ID.String(),
				"plan_code":      order.Items.PlanCode,
			},
		})
		if err != nil {
			return nil, err
		}
		order.ProviderOrderID = ptrx.String(gw.ID)
		tx.ProviderOrderID = ptrx.String(gw.ID)
	}

	err = s.uow.Do(ctx, func(st billing.Stores) error {
		if err := st.Billing.CreateOrder(ctx, *order); err != nil {
			return err
		}
		return st.Billing.CreateTransaction(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	logger := logx.WithFields(logx.Fields{
		"tenant_id":      order.TenantID,
		"order_id":       order.ID,
		"transaction_id": tx.ID,
		"total":          order.TotalAmount.String(),
	}).WithContext(ctx)

	resp := &billing.CheckoutResponse{
		Valid:         true,
		OrderID:       order.ID,
		TransactionID: tx.ID,
		Amount:        order.TotalAmount.Major(),
		Currency:      order.Currency,
		Free:          order.IsFree(),
	}

	if order.IsFree() {
		if err := s.scheduleFreeActivation(ctx, order.ID, tx.ID); err != nil {
			logger.WithError(err).Error("Failed to schedule free plan activation")
			s.abandonFreeCheckout(ctx, order.ID, tx.ID, err)
			return nil, err
		}
		logger.Info("Free plan checkout accepted")
		resp.Message = "activation in progress"
		return resp, nil
	}

	logger.Info("Checkout created")
	resp.ProviderOrderID = ptrx.StringValue(order.ProviderOrderID)
	resp.KeyID = s.gateway.KeyID()
	resp.Message = "proceed to payment"
	return resp, nil
}

// CreateOrder resolves the selection against the catalog and prices it. The
// order is returned unsaved; a declared total outside the tolerance is
// rejected with both amounts.
func (s *CheckoutService) CreateOrder(ctx context.Context, req billing.CheckoutRequest) (*billing.Order, error) {
	sel, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	quote := sel.Quote()
	if err := quote.CheckDeclared(req.GrandTotal, s.cfg.PriceTolerance); err != nil {
		logx.WithFields(logx.Fields{
			"tenant_id": req.TenantID,
			"plan_code": req.PlanCode,
			"declared":  req.GrandTotal,
			"computed":  quote.Total.String(),
		}).WithContext(ctx).Warn("Checkout total mismatch")
		return nil, err
	}

	currency := quote.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}
	now := s.now().UTC()
	order := &billing.Order{
		ID:             kernel.OrderID(kernel.NewID()),
		TenantID:       req.TenantID,
		Subtotal:       quote.Subtotal,
		DiscountAmount: quote.Discount,
		TaxAmount:      quote.Tax,
		TotalAmount:    quote.Total,
		Currency:       currency,
		Items:          sel.Items(),
		Status:         billing.OrderPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if sel.Coupon != nil {
		order.CouponCode = ptrx.String(sel.Coupon.Code)
	}
	return order, nil
}

// CreateTransaction opens the PENDING payment attempt for order.
func (s *CheckoutService) CreateTransaction(order *billing.Order) billing.Transaction {
	now := s.now().UTC()
	return billing.Transaction{
		ID:              kernel.TransactionID(kernel.NewID()),
		TenantID:        order.TenantID,
		OrderID:         order.ID,
		Amount:          order.TotalAmount,
		Currency:        order.Currency,
		Provider:        billing.ProviderRazorpay,
		ProviderOrderID: order.ProviderOrderID,
		Status:          billing.TxPending,
		PlanCode:        order.Items.PlanCode,
		BillingCycle:    order.Items.BillingCycle,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// PaymentStatus looks a transaction up by id or by gateway order id.
func (s *CheckoutService) PaymentStatus(ctx context.Context, req billing.PaymentStatusRequest) (*billing.PaymentStatusResponse, error) {
	var (
		tx  *billing.Transaction
		err error
	)
	switch {
	case !req.TransactionID.IsEmpty():
		tx, err = s.repo.FindTransaction(ctx, req.TransactionID)
	case req.ProviderOrderID != "":
		tx, err = s.repo.FindTransactionByProviderOrder(ctx, req.ProviderOrderID)
	default:
		return nil, errx.Validation("transaction_id or razorpay_order_id is required").
			WithField("transaction_id", "is required")
	}
	if err != nil {
		return nil, err
	}
	return &billing.PaymentStatusResponse{
		TransactionID:  tx.ID,
		Status:         tx.Status,
		SubscriptionID: tx.SubscriptionID,
		FailureReason:  tx.FailureReason,
		Amount:         tx.Amount.Major(),
		Currency:       tx.Currency,
	}, nil
}

func (s *CheckoutService) resolve(ctx context.Context, req billing.CheckoutRequest) (billing.Selection, error) {
	sel := billing.Selection{TaxRate: s.cfg.TaxRate}

	plan, err := s.catalog.FindPlanByCode(ctx, req.PlanCode)
	if err != nil {
		return sel, err
	}
	version, err := s.catalog.FindCurrentVersion(ctx, plan.ID)
	if err != nil {
		return sel, err
	}
	included, err := s.catalog.ListIncludedFeatures(ctx, version.ID)
	if err != nil {
		return sel, err
	}
	sel.Plan, sel.Version, sel.Included = *plan, *version, included

	seen := make(map[string]bool, len(req.Apps))
	for _, appID := range req.Apps {
		if seen[appID] {
			continue
		}
		seen[appID] = true

		app, err := s.catalog.FindApp(ctx, appID)
		if err != nil {
			return sel, err
		}
		as := billing.AppSelection{App: *app}
		picked := make(map[string]bool)
		for _, code := range req.Features[appID] {
			if picked[code] {
				continue
			}
			picked[code] = true
			f, err := s.catalog.FindAppFeature(ctx, appID, code)
			if err != nil {
				return sel, err
			}
			as.Features = append(as.Features, *f)
		}
		sel.Apps = append(sel.Apps, as)
	}

	if req.CouponCode != "" {
		coupon, err := s.catalog.FindCoupon(ctx, req.CouponCode)
		if err != nil {
			return sel, err
		}
		if !coupon.Usable(s.now()) {
			return sel, billing.ErrInvalidCoupon(req.CouponCode)
		}
		sel.Coupon = coupon
	}
	return sel, nil
}

// abandonFreeCheckout marks a committed free checkout FAILED when its
// activation job could not be queued, so no PENDING transaction is left
// without a worker behind it.
func (s *CheckoutService) abandonFreeCheckout(ctx context.Context, orderID kernel.OrderID, txID kernel.TransactionID, cause error) {
	ctx = context.WithoutCancel(ctx)
	err := s.uow.Do(ctx, func(st billing.Stores) error {
		tx, err := st.Billing.FindTransactionForUpdate(ctx, txID)
		if err != nil {
			return err
		}
		if tx.Status != billing.TxPending {
			return nil
		}
		tx.Status = billing.TxFailed
		tx.FailureReason = ptrx.String("activation could not be scheduled: " + cause.Error())
		tx.UpdatedAt = s.now().UTC()
		if err := st.Billing.UpdateTransaction(ctx, *tx); err != nil {
			return err
		}
		return st.Billing.UpdateOrderStatus(ctx, orderID, billing.OrderFailed)
	})
	if err != nil {
		logx.WithFields(logx.Fields{
			"order_id":       orderID,
			"transaction_id": txID,
		}).WithError(err).Error("Failed to mark unscheduled free checkout as failed")
	}
}

func (s *CheckoutService) scheduleFreeActivation(ctx context.Context, orderID kernel.OrderID, txID kernel.TransactionID) error {
	job, err := jobx.NewJob(JobActivateFreePlan, s.cfg.FreePlanQueue, FreePlanPayload{
		OrderID:       orderID,
		TransactionID: txID,
	})
	if err != nil {
		return err
	}
	job.UniqueKey = "activate:" + txID.String()
	_, err = s.jobs.Enqueue(ctx, job)
	return err
}
