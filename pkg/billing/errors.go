package billing

import (
	"net/http"
	"strings"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

var ErrRegistry = errx.NewRegistry("BILLING")

var (
	CodePlanNotFound         = ErrRegistry.Register("PLAN_NOT_FOUND", errx.TypeValidation, http.StatusBadRequest, "Plan not found")
	CodeAppNotFound          = ErrRegistry.Register("APP_NOT_FOUND", errx.TypeValidation, http.StatusBadRequest, "App not found")
	CodeFeatureNotFound      = ErrRegistry.Register("FEATURE_NOT_FOUND", errx.TypeValidation, http.StatusBadRequest, "Feature not found")
	CodeInvalidCoupon        = ErrRegistry.Register("INVALID_COUPON", errx.TypeValidation, http.StatusBadRequest, "Coupon is invalid or expired")
	CodePriceMismatch        = ErrRegistry.Register("PRICE_MISMATCH", errx.TypeValidation, http.StatusBadRequest, "Declared total does not match the computed total")
	CodeOrderNotFound        = ErrRegistry.Register("ORDER_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Order not found")
	CodeTransactionNotFound  = ErrRegistry.Register("TRANSACTION_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Transaction not found")
	CodeSubscriptionNotFound = ErrRegistry.Register("SUBSCRIPTION_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Subscription not found")
	CodeTransactionRefunded  = ErrRegistry.Register("TRANSACTION_REFUNDED", errx.TypeBusiness, http.StatusUnprocessableEntity, "Refunded transactions cannot be activated")
	CodeInvalidPayment       = ErrRegistry.Register("INVALID_PAYMENT", errx.TypeIntegrity, http.StatusBadRequest, "Payment signature verification failed")
	CodeGatewayFailed        = ErrRegistry.Register("GATEWAY_FAILED", errx.TypeExternal, http.StatusBadGateway, "Payment gateway request failed")

	CodeNoSuchPlan           = ErrRegistry.Register("NO_SUCH_PLAN", errx.TypeNotFound, http.StatusNotFound, "Plan not found")
	CodeNoSuchApp            = ErrRegistry.Register("NO_SUCH_APP", errx.TypeNotFound, http.StatusNotFound, "App not found")
	CodePlanAlreadyExists    = ErrRegistry.Register("PLAN_ALREADY_EXISTS", errx.TypeConflict, http.StatusConflict, "A plan with this code already exists")
	CodeAppAlreadyExists     = ErrRegistry.Register("APP_ALREADY_EXISTS", errx.TypeConflict, http.StatusConflict, "An app with this code already exists")
	CodeFeatureAlreadyExists = ErrRegistry.Register("FEATURE_ALREADY_EXISTS", errx.TypeConflict, http.StatusConflict, "A feature with this code already exists")
)

func ErrPlanNotFound(code string) *errx.Error {
	return ErrRegistry.New(CodePlanNotFound).WithField("plan_code", "unknown plan "+code)
}

func ErrAppNotFound(appID string) *errx.Error {
	return ErrRegistry.New(CodeAppNotFound).WithField("apps", "unknown app "+appID)
}

func ErrFeatureNotFound(appID, code string) *errx.Error {
	return ErrRegistry.New(CodeFeatureNotFound).WithField("features", "unknown feature "+code+" for app "+appID)
}

func ErrInvalidCoupon(code string) *errx.Error {
	return ErrRegistry.New(CodeInvalidCoupon).WithField("coupon_code", code+" is invalid or expired")
}

// ErrPriceMismatch carries both totals in major units.
func ErrPriceMismatch(declared, computed kernel.Money) *errx.Error {
	return ErrRegistry.New(CodePriceMismatch).
		WithField("grand_total", "expected "+computed.String()).
		WithDetail("declared", declared.Major()).
		WithDetail("computed", computed.Major())
}

func ErrOrderNotFound(id string) *errx.Error {
	return ErrRegistry.New(CodeOrderNotFound).WithDetail("order", id)
}

func ErrTransactionNotFound(id string) *errx.Error {
	return ErrRegistry.New(CodeTransactionNotFound).WithDetail("transaction", id)
}

func ErrSubscriptionNotFound() *errx.Error {
	return ErrRegistry.New(CodeSubscriptionNotFound)
}

func ErrTransactionRefunded(id kernel.TransactionID) *errx.Error {
	return ErrRegistry.New(CodeTransactionRefunded).WithDetail("transaction_id", id.String())
}

func ErrInvalidPayment() *errx.Error {
	return ErrRegistry.New(CodeInvalidPayment)
}

func ErrGatewayFailed(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeGatewayFailed, cause)
}

// ErrNoSuchPlan is the 404 for catalog lookups by id. Checkout uses the
// field-scoped ErrPlanNotFound instead.
func ErrNoSuchPlan(id string) *errx.Error {
	return ErrRegistry.New(CodeNoSuchPlan).WithDetail("plan_id", id)
}

func ErrNoSuchApp(id string) *errx.Error {
	return ErrRegistry.New(CodeNoSuchApp).WithDetail("app_id", id)
}

func ErrPlanAlreadyExists(code string) *errx.Error {
	return ErrRegistry.New(CodePlanAlreadyExists).WithField("plan_code", code+" is already taken")
}

func ErrAppAlreadyExists(code string) *errx.Error {
	return ErrRegistry.New(CodeAppAlreadyExists).WithField("code", code+" is already taken")
}

func ErrFeatureAlreadyExists(code string) *errx.Error {
	return ErrRegistry.New(CodeFeatureAlreadyExists).WithField("features", code+" is already taken")
}

func ErrUnknownFeatures(ids []string) *errx.Error {
	return ErrRegistry.New(CodeFeatureNotFound).WithField("feature_ids", "unknown or inactive features "+strings.Join(ids, ", "))
}
