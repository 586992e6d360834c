package billingsrv

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Abraxas-365/tenantry/pkg/billing"
	"github.com/Abraxas-365/tenantry/pkg/billing/invoice"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
	"github.com/Abraxas-365/tenantry/pkg/logx"
	"github.com/Abraxas-365/tenantry/pkg/metrics"
	"github.com/Abraxas-365/tenantry/pkg/ptrx"
)

// ActivationService moves a paid (or free) transaction to SUCCESS and
// provisions the subscription, exactly once per transaction.
type ActivationService struct {
	uow        billing.UnitOfWork
	repo       billing.Repository
	gateway    billing.PaymentGateway
	notifier   billing.ActivationNotifier
	bcryptCost int
	now        func() time.Time
}

// NewActivationService builds the service. notifier may be nil.
func NewActivationService(uow billing.UnitOfWork, repo billing.Repository, gateway billing.PaymentGateway, notifier billing.ActivationNotifier) *ActivationService {
	return &ActivationService{
		uow:        uow,
		repo:       repo,
		gateway:    gateway,
		notifier:   notifier,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

// Activate runs the whole activation in one unit of work. A transaction that
// already succeeded returns its subscription with AlreadyActive set. Any
// failure leaves the transaction as it was.
func (s *ActivationService) Activate(ctx context.Context, id kernel.TransactionID, in billing.ActivationInput) (*billing.ActivationResult, error) {
	start := time.Now()
	logger := logx.WithField("transaction_id", id).WithContext(ctx)

	var res billing.ActivationResult
	err := s.uow.Do(ctx, func(st billing.Stores) error {
		res = billing.ActivationResult{}
		return s.activate(ctx, st, id, in, &res)
	})
	if err != nil {
		metrics.ActivationsTotal.WithLabelValues("failed").Inc()
		logger.WithError(err).Error("Subscription activation failed")
		return nil, err
	}

	if res.AlreadyActive {
		metrics.ActivationsTotal.WithLabelValues("already_active").Inc()
		logger.Info("Transaction already activated")
		return &res, nil
	}

	metrics.ActivationsTotal.WithLabelValues("activated").Inc()
	metrics.ActivationDuration.Observe(time.Since(start).Seconds())
	logger.WithFields(logx.Fields{
		"tenant_id":       res.Tenant.ID,
		"subscription_id": res.Subscription.ID,
		"invoice_number":  res.Billing.InvoiceNumber,
		"root_created":    res.Root != nil,
	}).Info("Subscription activated")

	if s.notifier != nil {
		s.notifier.ActivationCompleted(ctx, res)
	}
	return &res, nil
}

func (s *ActivationService) activate(ctx context.Context, st billing.Stores, id kernel.TransactionID, in billing.ActivationInput, res *billing.ActivationResult) error {
	tx, err := st.Billing.FindTransactionForUpdate(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case tx.Status == billing.TxSuccess && tx.SubscriptionID != nil:
		sub, err := st.Billing.FindSubscription(ctx, *tx.SubscriptionID)
		if err != nil {
			return err
		}
		res.AlreadyActive = true
		res.Transaction = *tx
		res.Subscription = *sub
		return nil
	case tx.Status == billing.TxRefunded:
		return billing.ErrTransactionRefunded(tx.ID)
	case !tx.CanActivate():
		return errx.New("transaction cannot be activated", errx.TypeBusiness).
			WithDetail("transaction_id", tx.ID.String()).
			WithDetail("status", string(tx.Status))
	}

	order, err := st.Billing.FindOrder(ctx, tx.OrderID)
	if err != nil {
		return err
	}
	t, err := st.Tenants.FindByIDForUpdate(ctx, tx.TenantID)
	if err != nil {
		return err
	}
	now := s.now().UTC()

	// A newer activation supersedes the live subscription.
	live, err := st.Billing.FindLiveSubscription(ctx, t.ID)
	switch {
	case err == nil:
		if err := st.Billing.UpdateSubscriptionStatus(ctx, live.ID, billing.SubCancelled); err != nil {
			return err
		}
	case !errx.IsCode(err, billing.CodeSubscriptionNotFound):
		return err
	}

	periodStart, periodEnd := billing.NewPeriod(order.Items.BillingCycle, now)
	sub := billing.Subscription{
		ID:            kernel.SubscriptionID(kernel.NewID()),
		TenantID:      t.ID,
		TransactionID: tx.ID,
		PlanVersionID: order.Items.PlanVersionID,
		Status:        billing.SubActive,
		StartDate:     periodStart,
		EndDate:       periodEnd,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := st.Billing.CreateSubscription(ctx, sub); err != nil {
		return err
	}
	err = st.Billing.CreateCycle(ctx, billing.SubscriptionCycle{
		ID:             kernel.NewID(),
		SubscriptionID: sub.ID,
		PlanVersionID:  sub.PlanVersionID,
		PlanCode:       order.Items.PlanCode,
		StartDate:      periodStart,
		EndDate:        periodEnd,
		Status:         string(billing.SubActive),
	})
	if err != nil {
		return err
	}
	if err := st.Billing.LinkApps(ctx, sub.ID, order.Items.AppIDs()); err != nil {
		return err
	}
	if err := st.Billing.LinkFeatures(ctx, sub.ID, order.Items.FeatureIDs()); err != nil {
		return err
	}

	bill := billing.SubscriptionBilling{
		ID:               kernel.NewID(),
		SubscriptionID:   sub.ID,
		TransactionID:    tx.ID,
		InvoiceNumber:    invoice.NewNumber(),
		BaseAmount:       order.Subtotal,
		DiscountAmount:   order.DiscountAmount,
		TaxAmount:        order.TaxAmount,
		TotalAmount:      order.TotalAmount,
		Currency:         order.Currency,
		LineItems:        billing.BuildLineItems(order.Items),
		BillingDate:      now,
		PaymentStatus:    "paid",
		PaymentReference: ptrx.NonZero(in.ProviderPaymentID),
		CreatedAt:        now,
	}
	if err := st.Billing.CreateBilling(ctx, bill); err != nil {
		return err
	}

	t.Activate(now)
	if err := st.Tenants.Update(ctx, *t); err != nil {
		return err
	}
	root, err := usersrv.EnsureRootUser(ctx, st.Users, t, now, s.bcryptCost)
	if err != nil {
		return err
	}

	tx.Status = billing.TxSuccess
	tx.SubscriptionID = &sub.ID
	tx.FailureReason = nil
	tx.UpdatedAt = now
	if in.ProviderPaymentID != "" {
		tx.ProviderPaymentID = ptrx.String(in.ProviderPaymentID)
	}
	if in.Signature != "" {
		tx.ProviderSignature = ptrx.String(in.Signature)
	}
	if in.PaymentDetails != nil {
		tx.PaymentDetails = in.PaymentDetails
	}
	if err := st.Billing.UpdateTransaction(ctx, *tx); err != nil {
		return err
	}
	if order.Status != billing.OrderCompleted {
		if err := st.Billing.UpdateOrderStatus(ctx, order.ID, billing.OrderCompleted); err != nil {
			return err
		}
		order.Status = billing.OrderCompleted
	}
	if _, err := st.Tenants.MarkLinksUsed(ctx, t.ID); err != nil {
		return err
	}

	*res = billing.ActivationResult{
		Transaction:  *tx,
		Order:        *order,
		Subscription: sub,
		Billing:      bill,
		Tenant:       *t,
		Root:         root,
	}
	return nil
}

// ActivateByProviderOrder activates the latest transaction of a gateway order.
func (s *ActivationService) ActivateByProviderOrder(ctx context.Context, providerOrderID string, in billing.ActivationInput) (*billing.ActivationResult, error) {
	tx, err := s.repo.FindTransactionByProviderOrder(ctx, providerOrderID)
	if err != nil {
		return nil, err
	}
	return s.Activate(ctx, tx.ID, in)
}

// VerifyPayment checks the checkout callback signature and activates the
// transaction it names.
func (s *ActivationService) VerifyPayment(ctx context.Context, req billing.VerifyPaymentRequest) (*billing.ActivationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.gateway.VerifyPaymentSignature(req.ProviderOrderID, req.ProviderPaymentID, req.Signature); err != nil {
		logx.WithField("razorpay_order_id", req.ProviderOrderID).WithContext(ctx).
			Warn("Payment signature rejected")
		return nil, err
	}

	var (
		tx  *billing.Transaction
		err error
	)
	if req.TransactionID.IsEmpty() {
		tx, err = s.repo.FindTransactionByProviderOrder(ctx, req.ProviderOrderID)
	} else {
		tx, err = s.repo.FindTransaction(ctx, req.TransactionID)
	}
	if err != nil {
		return nil, err
	}
	if ptrx.StringValue(tx.ProviderOrderID) != req.ProviderOrderID {
		return nil, billing.ErrInvalidPayment().WithDetail("reason", "order does not belong to transaction")
	}

	return s.Activate(ctx, tx.ID, billing.ActivationInput{
		ProviderPaymentID: req.ProviderPaymentID,
		Signature:         req.Signature,
		PaymentDetails: billing.Details{
			"source":              "checkout",
			"razorpay_order_id":   req.ProviderOrderID,
			"razorpay_payment_id": req.ProviderPaymentID,
		},
	})
}

// MarkFailed records a failed payment attempt with the gateway's reason. A
// successful or refunded transaction is left untouched.
func (s *ActivationService) MarkFailed(ctx context.Context, id kernel.TransactionID, reason string, details billing.Details) error {
	return s.uow.Do(ctx, func(st billing.Stores) error {
		tx, err := st.Billing.FindTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if tx.Status == billing.TxSuccess || tx.Status == billing.TxRefunded {
			logx.WithFields(logx.Fields{
				"transaction_id": id,
				"status":         tx.Status,
			}).WithContext(ctx).Info("Ignoring failure for settled transaction")
			return nil
		}

		tx.Status = billing.TxFailed
		tx.FailureReason = ptrx.String(reason)
		if details != nil {
			tx.PaymentDetails = details
		}
		tx.UpdatedAt = s.now().UTC()
		if err := st.Billing.UpdateTransaction(ctx, *tx); err != nil {
			return err
		}
		logx.WithFields(logx.Fields{
			"transaction_id": id,
			"reason":         reason,
		}).WithContext(ctx).Warn("Payment marked failed")
		return nil
	})
}

// MarkFailedByProviderOrder is MarkFailed for the latest transaction of a
// gateway order.
func (s *ActivationService) MarkFailedByProviderOrder(ctx context.Context, providerOrderID, reason string, details billing.Details) error {
	tx, err := s.repo.FindTransactionByProviderOrder(ctx, providerOrderID)
	if err != nil {
		return err
	}
	return s.MarkFailed(ctx, tx.ID, reason, details)
}

// CompleteOrder marks the gateway order as paid. Repeated calls are no-ops.
func (s *ActivationService) CompleteOrder(ctx context.Context, providerOrderID string) error {
	order, err := s.repo.FindOrderByProviderID(ctx, providerOrderID)
	if err != nil {
		return err
	}
	if order.Status == billing.OrderCompleted {
		return nil
	}
	return s.repo.UpdateOrderStatus(ctx, order.ID, billing.OrderCompleted)
}
