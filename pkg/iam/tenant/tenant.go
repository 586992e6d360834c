package tenant

import (
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

// ============================================================================
// Entities
// ============================================================================

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

type Tenant struct {
	ID          kernel.TenantID `db:"id" json:"id"`
	TenantName  string          `db:"tenant_name" json:"tenant_name"`
	TenantEmail string          `db:"tenant_email" json:"tenant_email"`
	Status      Status          `db:"status" json:"status"`
	Active      bool            `db:"active" json:"active"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

func (t *Tenant) IsActive() bool {
	return t.Active && t.Status == StatusActive
}

// Activate marks the tenant as paid up. It is a no-op on an active tenant.
func (t *Tenant) Activate(now time.Time) {
	if t.IsActive() {
		return
	}
	t.Status = StatusActive
	t.Active = true
	t.UpdatedAt = now
}

const LinkTypeActivation = "activation"

// Link is a single-use activation link. Only the sha256 of the token is stored.
type Link struct {
	ID          string          `db:"id" json:"id"`
	TenantID    kernel.TenantID `db:"tenant_id" json:"tenant_id"`
	TokenHash   string          `db:"token_hash" json:"-"`
	RequestType string          `db:"request_type" json:"request_type"`
	IsUsed      bool            `db:"is_used" json:"is_used"`
	ExpiresAt   time.Time       `db:"expires_at" json:"expires_at"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Check returns nil when the link can still be redeemed.
func (l *Link) Check(now time.Time) error {
	if l.IsUsed {
		return ErrLinkUsed()
	}
	if now.After(l.ExpiresAt) {
		return ErrLinkExpired()
	}
	return nil
}

// ============================================================================
// DTOs
// ============================================================================

type RegisterTenantRequest struct {
	TenantName  string `json:"tenant_name"`
	TenantEmail string `json:"tenant_email"`
}

func (r *RegisterTenantRequest) Normalize() {
	r.TenantName = strings.TrimSpace(r.TenantName)
	r.TenantEmail = strings.ToLower(strings.TrimSpace(r.TenantEmail))
}

func (r RegisterTenantRequest) Validate() error {
	fields := errx.FieldErrors{}
	switch {
	case r.TenantName == "":
		fields.Add("tenant_name", "is required")
	case len(r.TenantName) < 3 || len(r.TenantName) > 63:
		fields.Add("tenant_name", "must be between 3 and 63 characters")
	case strings.ContainsAny(r.TenantName, " /\\?#"):
		fields.Add("tenant_name", "must not contain spaces or URL separators")
	}
	if _, err := mail.ParseAddress(r.TenantEmail); err != nil {
		fields.Add("tenant_email", "must be a valid email address")
	}
	if e := fields.Err("invalid tenant registration"); e != nil {
		return e
	}
	return nil
}

type RegisterTenantResponse struct {
	Tenant        Tenant    `json:"tenant"`
	LinkExpiresAt time.Time `json:"link_expires_at"`
	Message       string    `json:"message"`
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("TENANT")

var (
	CodeTenantNotFound = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Tenant not found")
	CodeNameTaken      = ErrRegistry.Register("NAME_TAKEN", errx.TypeConflict, http.StatusConflict, "Tenant name is already registered")
	CodeInvalidLink    = ErrRegistry.Register("INVALID_LINK", errx.TypeValidation, http.StatusBadRequest, "Invalid activation token")
	CodeLinkExpired    = ErrRegistry.Register("LINK_EXPIRED", errx.TypeExpired, http.StatusBadRequest, "Activation link has expired")
	CodeLinkUsed       = ErrRegistry.Register("LINK_USED", errx.TypeBusiness, http.StatusUnprocessableEntity, "Activation link was already used")
	CodeTenantInactive = ErrRegistry.Register("INACTIVE", errx.TypeAuthorization, http.StatusForbidden, "Tenant is not active")
)

func ErrTenantNotFound() *errx.Error {
	return ErrRegistry.New(CodeTenantNotFound)
}

func ErrNameTaken(name string) *errx.Error {
	return ErrRegistry.New(CodeNameTaken).WithField("tenant_name", name+" is already registered")
}

func ErrInvalidLink() *errx.Error {
	return ErrRegistry.New(CodeInvalidLink).WithField("activation_token", "unknown token")
}

func ErrLinkExpired() *errx.Error {
	return ErrRegistry.New(CodeLinkExpired)
}

func ErrLinkUsed() *errx.Error {
	return ErrRegistry.New(CodeLinkUsed)
}

func ErrTenantInactive() *errx.Error {
	return ErrRegistry.New(CodeTenantInactive)
}
