package billingsrv

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/Abraxas-365/tenantry/pkg/billing"
	"github.com/Abraxas-365/tenantry/pkg/iam/tenant"
	"github.com/Abraxas-365/tenantry/pkg/iam/user"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

var errInjected = errors.New("injected failure")

// memState is an in-memory database. Do serialises units of work the way
// row locks on the transaction would, and restores a snapshot on error.
type memState struct {
	mu       sync.Mutex
	orders   map[kernel.OrderID]billing.Order
	txs      map[kernel.TransactionID]billing.Transaction
	subs     map[kernel.SubscriptionID]billing.Subscription
	cycles   []billing.SubscriptionCycle
	apps     map[kernel.SubscriptionID][]string
	features map[kernel.SubscriptionID][]string
	billings map[kernel.TransactionID]billing.SubscriptionBilling
	tenants  map[kernel.TenantID]tenant.Tenant
	links    map[string]tenant.Link
	users    []user.User

	// failOn names a store method that returns errInjected.
	failOn string
}

func newMemState() *memState {
	return &memState{
		orders:   map[kernel.OrderID]billing.Order{},
		txs:      map[kernel.TransactionID]billing.Transaction{},
		subs:     map[kernel.SubscriptionID]billing.Subscription{},
		apps:     map[kernel.SubscriptionID][]string{},
		features: map[kernel.SubscriptionID][]string{},
		billings: map[kernel.TransactionID]billing.SubscriptionBilling{},
		tenants:  map[kernel.TenantID]tenant.Tenant{},
		links:    map[string]tenant.Link{},
	}
}

func (m *memState) snapshot() *memState {
	c := newMemState()
	for k, v := range m.orders {
		c.orders[k] = v
	}
	for k, v := range m.txs {
		c.txs[k] = v
	}
	for k, v := range m.subs {
		c.subs[k] = v
	}
	for k, v := range m.apps {
		c.apps[k] = v
	}
	for k, v := range m.features {
		c.features[k] = v
	}
	for k, v := range m.billings {
		c.billings[k] = v
	}
	for k, v := range m.tenants {
		c.tenants[k] = v
	}
	for k, v := range m.links {
		c.links[k] = v
	}
	c.cycles = append(c.cycles, m.cycles...)
	c.users = append(c.users, m.users...)
	return c
}

func (m *memState) restore(s *memState) {
	m.orders, m.txs, m.subs = s.orders, s.txs, s.subs
	m.apps, m.features, m.billings = s.apps, s.features, s.billings
	m.tenants, m.links = s.tenants, s.links
	m.cycles, m.users = s.cycles, s.users
}

func (m *memState) Do(ctx context.Context, fn func(billing.Stores) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	err := fn(billing.Stores{
		Billing: &memBilling{s: m, inTx: true},
		Tenants: &memTenants{s: m, inTx: true},
		Users:   &memUsers{s: m, inTx: true},
	})
	if err != nil {
		m.restore(snap)
	}
	return err
}

func (m *memState) billingRepo() *memBilling { return &memBilling{s: m} }

func (m *memState) guard(inTx bool) func() {
	if inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *memState) fail(op string) error {
	if m.failOn == op {
		return errInjected
	}
	return nil
}

func (m *memState) liveSubscriptions(id kernel.TenantID) []billing.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []billing.Subscription
	for _, s := range m.subs {
		if s.TenantID == id && (s.Status == billing.SubActive || s.Status == billing.SubGrace) {
			out = append(out, s)
		}
	}
	return out
}

func (m *memState) transaction(id kernel.TransactionID) billing.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txs[id]
}

// ============================================================================
// billing.Repository
// ============================================================================

type memBilling struct {
	s    *memState
	inTx bool
}

func (r *memBilling) CreateOrder(_ context.Context, o billing.Order) error {
	defer r.s.guard(r.inTx)()
	if err := r.s.fail("CreateOrder"); err != nil {
		return err
	}
	r.s.orders[o.ID] = o
	return nil
}

func (r *memBilling) FindOrder(_ context.Context, id kernel.OrderID) (*billing.Order, error) {
	defer r.s.guard(r.inTx)()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, billing.ErrOrderNotFound(id.String())
	}
	return &o, nil
}

func (r *memBilling) FindOrderByProviderID(_ context.Context, providerOrderID string) (*billing.Order, error) {
	defer r.s.guard(r.inTx)()
	for _, o := range r.s.orders {
		if o.ProviderOrderID != nil && *o.ProviderOrderID == providerOrderID {
			return &o, nil
		}
	}
	return nil, billing.ErrOrderNotFound(providerOrderID)
}

func (r *memBilling) UpdateOrderStatus(_ context.Context, id kernel.OrderID, status billing.OrderStatus) error {
	defer r.s.guard(r.inTx)()
	o, ok := r.s.orders[id]
	if !ok {
		return billing.ErrOrderNotFound(id.String())
	}
	o.Status = status
	r.s.orders[id] = o
	return nil
}

func (r *memBilling) CreateTransaction(_ context.Context, t billing.Transaction) error {
	defer r.s.guard(r.inTx)()
	if err := r.s.fail("CreateTransaction"); err != nil {
		return err
	}
	r.s.txs[t.ID] = t
	return nil
}

func (r *memBilling) FindTransaction(_ context.Context, id kernel.TransactionID) (*billing.Transaction, error) {
	defer r.s.guard(r.inTx)()
	t, ok := r.s.txs[id]
	if !ok {
		return nil, billing.ErrTransactionNotFound(id.String())
	}
	return &t, nil
}

func (r *memBilling) FindTransactionForUpdate(ctx context.Context, id kernel.TransactionID) (*billing.Transaction, error) {
	return r.FindTransaction(ctx, id)
}

func (r *memBilling) FindTransactionByProviderOrder(_ context.Context, providerOrderID string) (*billing.Transaction, error) {
	defer r.s.guard(r.inTx)()
	for _, t := range r.s.txs {
		if t.ProviderOrderID != nil && *t.ProviderOrderID == providerOrderID {
			return &t, nil
		}
	}
	return nil, billing.ErrTransactionNotFound(providerOrderID)
}

func (r *memBilling) UpdateTransaction(_ context.Context, t billing.Transaction) error {
	defer r.s.guard(r.inTx)()
	if _, ok := r.s.txs[t.ID]; !ok {
		return billing.ErrTransactionNotFound(t.ID.String())
	}
	r.s.txs[t.ID] = t
	return nil
}

func (r *memBilling) FindSubscription(_ context.Context, id kernel.SubscriptionID) (*billing.Subscription, error) {
	defer r.s.guard(r.inTx)()
	s, ok := r.s.subs[id]
	if !ok {
		return nil, billing.ErrSubscriptionNotFound()
	}
	return &s, nil
}

func (r *memBilling) FindLiveSubscription(_ context.Context, tenantID kernel.TenantID) (*billing.Subscription, error) {
	defer r.s.guard(r.inTx)()
	for _, s := range r.s.subs {
		if s.TenantID == tenantID && (s.Status == billing.SubActive || s.Status == billing.SubGrace) {
			return &s, nil
		}
	}
	return nil, billing.ErrSubscriptionNotFound()
}

func (r *memBilling) CreateSubscription(_ context.Context, s billing.Subscription) error {
	defer r.s.guard(r.inTx)()
	if err := r.s.fail("CreateSubscription"); err != nil {
		return err
	}
	for _, existing := range r.s.subs {
		if existing.TransactionID == s.TransactionID {
			return errors.New("duplicate subscription for transaction")
		}
	}
	r.s.subs[s.ID] = s
	return nil
}

func (r *memBilling) UpdateSubscriptionStatus(_ context.Context, id kernel.SubscriptionID, status billing.SubscriptionStatus) error {
	defer r.s.guard(r.inTx)()
	s := r.s.subs[id]
	s.Status = status
	r.s.subs[id] = s
	return nil
}

func (r *memBilling) CreateCycle(_ context.Context, c billing.SubscriptionCycle) error {
	defer r.s.guard(r.inTx)()
	r.s.cycles = append(r.s.cycles, c)
	return nil
}

func (r *memBilling) LinkApps(_ context.Context, id kernel.SubscriptionID, appIDs []string) error {
	defer r.s.guard(r.inTx)()
	r.s.apps[id] = append([]string(nil), appIDs...)
	return nil
}

func (r *memBilling) LinkFeatures(_ context.Context, id kernel.SubscriptionID, featureIDs []string) error {
	defer r.s.guard(r.inTx)()
	if err := r.s.fail("LinkFeatures"); err != nil {
		return err
	}
	ids := append([]string(nil), featureIDs...)
	sort.Strings(ids)
	r.s.features[id] = ids
	return nil
}

func (r *memBilling) CreateBilling(_ context.Context, b billing.SubscriptionBilling) error {
	defer r.s.guard(r.inTx)()
	if _, ok := r.s.billings[b.TransactionID]; ok {
		return errors.New("duplicate billing for transaction")
	}
	r.s.billings[b.TransactionID] = b
	return nil
}

func (r *memBilling) FindBillingByTransaction(_ context.Context, id kernel.TransactionID) (*billing.SubscriptionBilling, error) {
	defer r.s.guard(r.inTx)()
	b, ok := r.s.billings[id]
	if !ok {
		return nil, billing.ErrSubscriptionNotFound()
	}
	return &b, nil
}

// ============================================================================
// tenant.Repository and user.Repository
// ============================================================================

type memTenants struct {
	s    *memState
	inTx bool
}

func (r *memTenants) CreateWithLink(_ context.Context, t tenant.Tenant, l tenant.Link) error {
	defer r.s.guard(r.inTx)()
	r.s.tenants[t.ID] = t
	r.s.links[l.TokenHash] = l
	return nil
}

func (r *memTenants) FindByID(_ context.Context, id kernel.TenantID) (*tenant.Tenant, error) {
	defer r.s.guard(r.inTx)()
	t, ok := r.s.tenants[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound()
	}
	return &t, nil
}

func (r *memTenants) FindByName(_ context.Context, name string) (*tenant.Tenant, error) {
	defer r.s.guard(r.inTx)()
	for _, t := range r.s.tenants {
		if t.TenantName == name {
			return &t, nil
		}
	}
	return nil, tenant.ErrTenantNotFound()
}

func (r *memTenants) FindByIDForUpdate(ctx context.Context, id kernel.TenantID) (*tenant.Tenant, error) {
	return r.FindByID(ctx, id)
}

func (r *memTenants) Update(_ context.Context, t tenant.Tenant) error {
	defer r.s.guard(r.inTx)()
	r.s.tenants[t.ID] = t
	return nil
}

func (r *memTenants) CreateLink(_ context.Context, l tenant.Link) error {
	defer r.s.guard(r.inTx)()
	r.s.links[l.TokenHash] = l
	return nil
}

func (r *memTenants) FindLinkByHash(_ context.Context, tokenHash string) (*tenant.Link, error) {
	defer r.s.guard(r.inTx)()
	l, ok := r.s.links[tokenHash]
	if !ok {
		return nil, tenant.ErrInvalidLink()
	}
	return &l, nil
}

func (r *memTenants) MarkLinksUsed(_ context.Context, id kernel.TenantID) (int64, error) {
	defer r.s.guard(r.inTx)()
	var n int64
	for k, l := range r.s.links {
		if l.TenantID == id && !l.IsUsed {
			l.IsUsed = true
			r.s.links[k] = l
			n++
		}
	}
	return n, nil
}

type memUsers struct {
	s    *memState
	inTx bool
}

func (r *memUsers) Create(_ context.Context, u user.User) error {
	defer r.s.guard(r.inTx)()
	for _, existing := range r.s.users {
		if existing.TenantID == u.TenantID && existing.Username == u.Username {
			return user.ErrUserAlreadyExists(u.Username)
		}
	}
	r.s.users = append(r.s.users, u)
	return nil
}

func (r *memUsers) FindByUsername(_ context.Context, tenantID kernel.TenantID, username string) (*user.User, error) {
	defer r.s.guard(r.inTx)()
	for _, u := range r.s.users {
		if u.TenantID == tenantID && u.Username == username {
			return &u, nil
		}
	}
	return nil, user.ErrUserNotFound()
}

func (r *memUsers) FindRoot(_ context.Context, tenantID kernel.TenantID) (*user.User, error) {
	defer r.s.guard(r.inTx)()
	for _, u := range r.s.users {
		if u.TenantID == tenantID && u.IsRoot {
			return &u, nil
		}
	}
	return nil, user.ErrUserNotFound()
}

func (r *memUsers) List(_ context.Context, tenantID kernel.TenantID, _ kernel.PaginationOptions) ([]user.User, int, error) {
	defer r.s.guard(r.inTx)()
	var out []user.User
	for _, u := range r.s.users {
		if u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	return out, len(out), nil
}
