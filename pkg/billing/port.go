package billing

import (
	"context"

	"github.com/Abraxas-365/tenantry/pkg/iam/tenant"
	"github.com/Abraxas-365/tenantry/pkg/iam/user"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

// CatalogRepository reads the plan/app/feature catalog. Lookups only return
// active rows.
type CatalogRepository interface {
	FindPlanByCode(ctx context.Context, code string) (*Plan, error)
	FindCurrentVersion(ctx context.Context, planID string) (*PlanVersion, error)
	ListIncludedFeatures(ctx context.Context, planVersionID string) ([]Feature, error)
	FindApp(ctx context.Context, id string) (*App, error)
	FindAppFeature(ctx context.Context, appID, code string) (*Feature, error)
	FindCoupon(ctx context.Context, code string) (*Coupon, error)
}

// CatalogStore is the administrative side of the catalog. Unlike the
// checkout lookups, reads here include inactive rows.
type CatalogStore interface {
	CatalogRepository

	// Atomic runs fn with a store bound to one database transaction.
	Atomic(ctx context.Context, fn func(CatalogStore) error) error

	CreatePlan(ctx context.Context, p Plan) error
	// FindPlan returns ErrNoSuchPlan; LockPlan also holds the row until the
	// surrounding transaction ends.
	FindPlan(ctx context.Context, id string) (*Plan, error)
	LockPlan(ctx context.Context, id string) (*Plan, error)
	ListPlans(ctx context.Context, opts kernel.PaginationOptions) ([]Plan, int, error)
	// CurrentVersions returns the current version of each plan that has one.
	CurrentVersions(ctx context.Context, planIDs []string) ([]PlanVersion, error)
	// RetireCurrentVersion clears is_current and returns the highest version
	// number the plan has had, 0 when none.
	RetireCurrentVersion(ctx context.Context, planID string) (int, error)
	CreatePlanVersion(ctx context.Context, v PlanVersion) error
	LinkPlanFeatures(ctx context.Context, planVersionID string, featureIDs []string) error

	CreateApp(ctx context.Context, a App) error
	GetApp(ctx context.Context, id string) (*App, error)
	ListApps(ctx context.Context, opts kernel.PaginationOptions) ([]App, int, error)
	ListAppFeatures(ctx context.Context, appIDs []string) ([]Feature, error)
	CreateFeature(ctx context.Context, f Feature) error
	// FindFeatures returns the active features among ids.
	FindFeatures(ctx context.Context, ids []string) ([]Feature, error)
}

// Repository persists orders, transactions and subscriptions. Implementations
// run on whatever connection they were built over, so inside a UnitOfWork
// every call shares the surrounding database transaction.
type Repository interface {
	CreateOrder(ctx context.Context, o Order) error
	FindOrder(ctx context.Context, id kernel.OrderID) (*Order, error)
	FindOrderByProviderID(ctx context.Context, providerOrderID string) (*Order, error)
	UpdateOrderStatus(ctx context.Context, id kernel.OrderID, status OrderStatus) error

	CreateTransaction(ctx context.Context, t Transaction) error
	FindTransaction(ctx context.Context, id kernel.TransactionID) (*Transaction, error)
	// FindTransactionForUpdate locks the row until the surrounding
	// transaction ends.
	FindTransactionForUpdate(ctx context.Context, id kernel.TransactionID) (*Transaction, error)
	FindTransactionByProviderOrder(ctx context.Context, providerOrderID string) (*Transaction, error)
	UpdateTransaction(ctx context.Context, t Transaction) error

	FindSubscription(ctx context.Context, id kernel.SubscriptionID) (*Subscription, error)
	FindLiveSubscription(ctx context.Context, tenantID kernel.TenantID) (*Subscription, error)
	CreateSubscription(ctx context.Context, s Subscription) error
	UpdateSubscriptionStatus(ctx context.Context, id kernel.SubscriptionID, status SubscriptionStatus) error
	CreateCycle(ctx context.Context, c SubscriptionCycle) error
	LinkApps(ctx context.Context, id kernel.SubscriptionID, appIDs []string) error
	LinkFeatures(ctx context.Context, id kernel.SubscriptionID, featureIDs []string) error
	CreateBilling(ctx context.Context, b SubscriptionBilling) error
	FindBillingByTransaction(ctx context.Context, id kernel.TransactionID) (*SubscriptionBilling, error)
}

// Stores are the repositories bound to one unit of work.
type Stores struct {
	Billing Repository
	Tenants tenant.Repository
	Users   user.Repository
}

// UnitOfWork runs fn atomically: either every write made through the given
// stores commits or none does.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(Stores) error) error
}

type GatewayOrderRequest struct {
	Amount   kernel.Money
	Currency string
	Receipt  string
	Notes    map[string]string
}

type GatewayOrder struct {
	ID       string
	Amount   kernel.Money
	Currency string
	Status   string
}

// PaymentGateway is the external payment provider.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error)
	// VerifyPaymentSignature checks the checkout callback signature.
	VerifyPaymentSignature(orderID, paymentID, signature string) error
	KeyID() string
}

// ActivationNotifier is told about each committed activation.
type ActivationNotifier interface {
	ActivationCompleted(ctx context.Context, res ActivationResult)
}

// ActivationTokens resolves a raw tenant activation token.
type ActivationTokens interface {
	ValidateActivationToken(ctx context.Context, raw string) (*tenant.Link, error)
}
