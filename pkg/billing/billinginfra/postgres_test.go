package billinginfra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/tenantry/pkg/billing"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

func newDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

var txColumns = []string{
	"id", "tenant_id", "order_id", "subscription_id", "amount", "currency", "provider",
	"provider_order_id", "provider_payment_id", "provider_signature", "status", "failure_reason",
	"payment_details", "plan_code", "billing_cycle", "created_at", "updated_at",
}

func TestFindTransactionForUpdateScansNullableColumns(t *testing.T) {
	db, mock := newDB(t)
	repo := NewPostgresBillingRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM transactions WHERE id = \\$1 FOR UPDATE").
		WithArgs("tx-1").
		WillReturnRows(sqlmock.NewRows(txColumns).AddRow(
			"tx-1", "t-1", "o-1", nil, int64(589882), "INR", "razorpay",
			"order_abc", nil, nil, "PENDING", nil,
			nil, "PRO_MONTHLY", "monthly", now, now,
		))

	tx, err := repo.FindTransactionForUpdate(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, kernel.Money(589882), tx.Amount)
	assert.Nil(t, tx.SubscriptionID)
	assert.Equal(t, "order_abc", *tx.ProviderOrderID)
	assert.Equal(t, billing.TxPending, tx.Status)
	assert.True(t, tx.CanActivate())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindTransactionMissing(t *testing.T) {
	db, mock := newDB(t)
	repo := NewPostgresBillingRepository(db)
	mock.ExpectQuery("FROM transactions").WithArgs("nope").WillReturnRows(sqlmock.NewRows(txColumns))

	_, err := repo.FindTransaction(context.Background(), "nope")
	assert.True(t, errx.IsCode(err, billing.CodeTransactionNotFound))
}

func TestCreateOrderStoresItemsAsJSON(t *testing.T) {
	db, mock := newDB(t)
	repo := NewPostgresBillingRepository(db)
	now := time.Now().UTC()

	order := billing.Order{
		ID: "o-1", TenantID: "t-1", Subtotal: 499900, TaxAmount: 89982, TotalAmount: 589882,
		Currency: "INR", Status: billing.OrderPending, CreatedAt: now, UpdatedAt: now,
		Items: billing.OrderItems{PlanCode: "PRO_MONTHLY", PlanPrice: 499900},
	}
	mock.ExpectExec("INSERT INTO orders").
		WithArgs("o-1", "t-1", int64(499900), int64(0), int64(89982), int64(589882), "INR",
			sqlmock.AnyArg(), nil, nil, "pending", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateOrder(context.Background(), order))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkAppsSkipsEmptyList(t *testing.T) {
	db, mock := newDB(t)
	repo := NewPostgresBillingRepository(db)

	require.NoError(t, repo.LinkApps(context.Background(), "s-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkFeaturesBulkInsert(t *testing.T) {
	db, mock := newDB(t)
	repo := NewPostgresBillingRepository(db)

	mock.ExpectExec("INSERT INTO subscription_features").
		WithArgs("s-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.LinkFeatures(context.Background(), "s-1", []string{"f1", "f2"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusMissingOrder(t *testing.T) {
	db, mock := newDB(t)
	repo := NewPostgresBillingRepository(db)
	mock.ExpectExec("UPDATE orders").WithArgs("o-x", "completed").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateOrderStatus(context.Background(), "o-x", billing.OrderCompleted)
	assert.True(t, errx.IsCode(err, billing.CodeOrderNotFound))
}

func TestFindPlanByCodeUnknownIsFieldScoped(t *testing.T) {
	db, mock := newDB(t)
	repo := NewPostgresCatalogRepository(db)
	mock.ExpectQuery("FROM plans").WithArgs("GOLD").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindPlanByCode(context.Background(), "GOLD")
	require.Error(t, err)
	var e *errx.Error
	require.True(t, errx.As(err, &e))
	assert.Equal(t, errx.TypeValidation, e.Type)
	assert.Contains(t, e.Fields, "plan_code")
}

func TestListIncludedFeatures(t *testing.T) {
	db, mock := newDB(t)
	repo := NewPostgresCatalogRepository(db)
	mock.ExpectQuery("FROM features f").WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "app_id", "code", "name", "price", "is_base_feature", "is_active"}).
			AddRow("f1", nil, "SSO", "Single sign-on", int64(0), true, true).
			AddRow("f2", nil, "USERS", "User management", int64(0), true, true))

	features, err := repo.ListIncludedFeatures(context.Background(), "v1")
	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Nil(t, features[0].AppID)
	assert.True(t, features[1].IsBaseFeature)
}

func TestUnitOfWorkRollsBackEveryStore(t *testing.T) {
	db, mock := newDB(t)
	uow := NewPostgresUnitOfWork(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := uow.Do(context.Background(), func(s billing.Stores) error {
		if err := s.Billing.UpdateOrderStatus(context.Background(), "o-1", billing.OrderCompleted); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
