package billinginfra

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/Abraxas-365/tenantry/pkg/billing"
	"github.com/Abraxas-365/tenantry/pkg/database"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

// PostgresBillingRepository runs on a pool or on an open transaction.
type PostgresBillingRepository struct {
	db database.Querier
}

func NewPostgresBillingRepository(db database.Querier) *PostgresBillingRepository {
	return &PostgresBillingRepository{db: db}
}

// ============================================================================
// Orders
// ============================================================================

const orderColumns = `id, tenant_id, subtotal, discount_amount, tax_amount, total_amount, currency,
	items, coupon_code, provider_order_id, status, created_at, updated_at`

func (r *PostgresBillingRepository) CreateOrder(ctx context.Context, o billing.Order) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (:id, :tenant_id, :subtotal, :discount_amount, :tax_amount, :total_amount, :currency,
			:items, :coupon_code, :provider_order_id, :status, :created_at, :updated_at)`, o)
	if err != nil {
		return errx.Wrap(err, "failed to create order", errx.TypeInternal).
			WithDetail("tenant_id", o.TenantID.String())
	}
	return nil
}

func (r *PostgresBillingRepository) FindOrder(ctx context.Context, id kernel.OrderID) (*billing.Order, error) {
	return r.findOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id.String())
}

func (r *PostgresBillingRepository) FindOrderByProviderID(ctx context.Context, providerOrderID string) (*billing.Order, error) {
	return r.findOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE provider_order_id = $1`, providerOrderID)
}

func (r *PostgresBillingRepository) findOrder(ctx context.Context, query, arg string) (*billing.Order, error) {
	var o billing.Order
	if err := r.db.GetContext(ctx, &o, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, billing.ErrOrderNotFound(arg)
		}
		return nil, errx.Wrap(err, "failed to load order", errx.TypeInternal)
	}
	return &o, nil
}

func (r *PostgresBillingRepository) UpdateOrderStatus(ctx context.Context, id kernel.OrderID, status billing.OrderStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id.String(), string(status))
	if err != nil {
		return errx.Wrap(err, "failed to update order", errx.TypeInternal).WithDetail("order_id", id.String())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.ErrOrderNotFound(id.String())
	}
	return nil
}

// ============================================================================
// Transactions
// ============================================================================

const transactionColumns = `id, tenant_id, order_id, subscription_id, amount, currency, provider,
	provider_order_id, provider_payment_id, provider_signature, status, failure_reason,
	payment_details, plan_code, billing_cycle, created_at, updated_at`

func (r *PostgresBillingRepository) CreateTransaction(ctx context.Context, t billing.Transaction) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (:id, :tenant_id, :order_id, :subscription_id, :amount, :currency, :provider,
			:provider_order_id, :provider_payment_id, :provider_signature, :status, :failure_reason,
			:payment_details, :plan_code, :billing_cycle, :created_at, :updated_at)`, t)
	if err != nil {
		return errx.Wrap(err, "failed to create transaction", errx.TypeInternal).
			WithDetail("order_id", t.OrderID.String())
	}
	return nil
}

func (r *PostgresBillingRepository) FindTransaction(ctx context.Context, id kernel.TransactionID) (*billing.Transaction, error) {
	return r.findTransaction(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id.String())
}

func (r *PostgresBillingRepository) FindTransactionForUpdate(ctx context.Context, id kernel.TransactionID) (*billing.Transaction, error) {
	return r.findTransaction(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id.String())
}

// FindTransactionByProviderOrder returns the most recent attempt for the
// gateway order.
func (r *PostgresBillingRepository) FindTransactionByProviderOrder(ctx context.Context, providerOrderID string) (*billing.Transaction, error) {
	return r.findTransaction(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE provider_order_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, providerOrderID)
}

func (r *PostgresBillingRepository) findTransaction(ctx context.Context, query, arg string) (*billing.Transaction, error) {
	var t billing.Transaction
	if err := r.db.GetContext(ctx, &t, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, billing.ErrTransactionNotFound(arg)
		}
		return nil, errx.Wrap(err, "failed to load transaction", errx.TypeInternal)
	}
	return &t, nil
}

func (r *PostgresBillingRepository) UpdateTransaction(ctx context.Context, t billing.Transaction) error {
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE transactions
		SET subscription_id = :subscription_id, provider_order_id = :provider_order_id,
			provider_payment_id = :provider_payment_id, provider_signature = :provider_signature,
			status = :status, failure_reason = :failure_reason, payment_details = :payment_details,
			updated_at = :updated_at
		WHERE id = :id`, t)
	if err != nil {
		return errx.Wrap(err, "failed to update transaction", errx.TypeInternal).
			WithDetail("transaction_id", t.ID.String())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.ErrTransactionNotFound(t.ID.String())
	}
	return nil
}

// ============================================================================
// Subscriptions
// ============================================================================

const subscriptionColumns = `id, tenant_id, transaction_id, plan_version_id, status, start_date,
	end_date, auto_renew, created_at, updated_at`

func (r *PostgresBillingRepository) FindSubscription(ctx context.Context, id kernel.SubscriptionID) (*billing.Subscription, error) {
	return r.findSubscription(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id.String())
}

func (r *PostgresBillingRepository) FindLiveSubscription(ctx context.Context, tenantID kernel.TenantID) (*billing.Subscription, error) {
	return r.findSubscription(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE tenant_id = $1 AND status IN ('active', 'grace')`, tenantID.String())
}

func (r *PostgresBillingRepository) findSubscription(ctx context.Context, query, arg string) (*billing.Subscription, error) {
	var s billing.Subscription
	if err := r.db.GetContext(ctx, &s, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, billing.ErrSubscriptionNotFound()
		}
		return nil, errx.Wrap(err, "failed to load subscription", errx.TypeInternal)
	}
	return &s, nil
}

func (r *PostgresBillingRepository) CreateSubscription(ctx context.Context, s billing.Subscription) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (:id, :tenant_id, :transaction_id, :plan_version_id, :status, :start_date,
			:end_date, :auto_renew, :created_at, :updated_at)`, s)
	if err != nil {
		return errx.Wrap(err, "failed to create subscription", errx.TypeInternal).
			WithDetail("transaction_id", s.TransactionID.String())
	}
	return nil
}

func (r *PostgresBillingRepository) UpdateSubscriptionStatus(ctx context.Context, id kernel.SubscriptionID, status billing.SubscriptionStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions SET status = $2, updated_at = NOW() WHERE id = $1`, id.String(), string(status))
	if err != nil {
		return errx.Wrap(err, "failed to update subscription", errx.TypeInternal).
			WithDetail("subscription_id", id.String())
	}
	return nil
}

func (r *PostgresBillingRepository) CreateCycle(ctx context.Context, c billing.SubscriptionCycle) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO subscription_cycles (id, subscription_id, plan_version_id, plan_code, start_date, end_date, status)
		VALUES (:id, :subscription_id, :plan_version_id, :plan_code, :start_date, :end_date, :status)`, c)
	if err != nil {
		return errx.Wrap(err, "failed to create subscription cycle", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresBillingRepository) LinkApps(ctx context.Context, id kernel.SubscriptionID, appIDs []string) error {
	if len(appIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscription_apps (subscription_id, app_id)
		SELECT $1, unnest($2::text[])
		ON CONFLICT DO NOTHING`, id.String(), pq.Array(appIDs))
	if err != nil {
		return errx.Wrap(err, "failed to link subscription apps", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresBillingRepository) LinkFeatures(ctx context.Context, id kernel.SubscriptionID, featureIDs []string) error {
	if len(featureIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscription_features (subscription_id, feature_id)
		SELECT $1, unnest($2::text[])
		ON CONFLICT DO NOTHING`, id.String(), pq.Array(featureIDs))
	if err != nil {
		return errx.Wrap(err, "failed to link subscription features", errx.TypeInternal)
	}
	return nil
}

const billingColumns = `id, subscription_id, transaction_id, invoice_number, base_amount, discount_amount,
	tax_amount, total_amount, currency, line_items, billing_date, payment_status, payment_reference, created_at`

func (r *PostgresBillingRepository) CreateBilling(ctx context.Context, b billing.SubscriptionBilling) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO subscription_billings (`+billingColumns+`)
		VALUES (:id, :subscription_id, :transaction_id, :invoice_number, :base_amount, :discount_amount,
			:tax_amount, :total_amount, :currency, :line_items, :billing_date, :payment_status,
			:payment_reference, :created_at)`, b)
	if err != nil {
		return errx.Wrap(err, "failed to create billing record", errx.TypeInternal).
			WithDetail("transaction_id", b.TransactionID.String())
	}
	return nil
}

func (r *PostgresBillingRepository) FindBillingByTransaction(ctx context.Context, id kernel.TransactionID) (*billing.SubscriptionBilling, error) {
	var b billing.SubscriptionBilling
	err := r.db.GetContext(ctx, &b, `SELECT `+billingColumns+` FROM subscription_billings WHERE transaction_id = $1`, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, billing.ErrSubscriptionNotFound().WithDetail("transaction_id", id.String())
		}
		return nil, errx.Wrap(err, "failed to load billing record", errx.TypeInternal)
	}
	return &b, nil
}
