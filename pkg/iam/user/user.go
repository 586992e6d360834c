package user

import (
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

// ============================================================================
// Entity
// ============================================================================

const (
	RoleRoot   = "root"
	RoleMember = "member"

	// RootUsername is the login of the account provisioned at activation.
	RootUsername = "root"
)

type User struct {
	ID                 kernel.UserID   `db:"id" json:"id"`
	TenantID           kernel.TenantID `db:"tenant_id" json:"tenant_id"`
	Username           string          `db:"username" json:"username"`
	Email              string          `db:"email" json:"email"`
	PasswordHash       string          `db:"password_hash" json:"-"`
	Role               string          `db:"role" json:"role"`
	IsRoot             bool            `db:"is_root" json:"is_root"`
	MustChangePassword bool            `db:"must_change_password" json:"must_change_password"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// Scopes granted to tokens issued for this user at login.
func (u *User) Scopes() []string {
	if u.IsRoot || u.Role == RoleRoot {
		return []string{"*"}
	}
	return []string{"openid", "profile"}
}

// ============================================================================
// DTOs
// ============================================================================

type LoginRequest struct {
	TenantName string `json:"tenant_name" form:"tenant_name"`
	Username   string `json:"username" form:"username"`
	Password   string `json:"password" form:"password"`
	DeviceID   string `json:"device_id,omitempty" form:"device_id"`
}

func (r LoginRequest) Validate() error {
	fields := errx.FieldErrors{}
	if strings.TrimSpace(r.TenantName) == "" {
		fields.Add("tenant_name", "is required")
	}
	if strings.TrimSpace(r.Username) == "" {
		fields.Add("username", "is required")
	}
	if r.Password == "" {
		fields.Add("password", "is required")
	}
	if e := fields.Err("invalid login request"); e != nil {
		return e
	}
	return nil
}

type LoginResponse struct {
	AccessToken        string `json:"access_token"`
	TokenType          string `json:"token_type"`
	ExpiresIn          int64  `json:"expires_in"`
	RefreshToken       string `json:"refresh_token,omitempty"`
	IDToken            string `json:"id_token,omitempty"`
	MustChangePassword bool   `json:"must_change_password"`
	Success            bool   `json:"success"`
	Message            string `json:"message"`
}

// MinPasswordLength applies to passwords chosen by an administrator.
const MinPasswordLength = 8

// RegisterUserRequest adds a user to the caller's tenant.
type RegisterUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

func (r RegisterUserRequest) Validate() error {
	fields := errx.FieldErrors{}
	username := strings.TrimSpace(r.Username)
	switch {
	case username == "":
		fields.Add("username", "is required")
	case strings.EqualFold(username, RootUsername):
		fields.Add("username", "is reserved")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		fields.Add("email", "must be a valid email address")
	}
	if len(r.Password) < MinPasswordLength {
		fields.Add("password", "must be at least 8 characters")
	}
	if r.Role != "" && r.Role != RoleMember {
		fields.Add("role", "only member accounts can be registered")
	}
	if e := fields.Err("invalid user"); e != nil {
		return e
	}
	return nil
}

type UserPage = kernel.Paginated[User]

// RootCredentials are handed to the activation email exactly once.
type RootCredentials struct {
	User     User
	Password string
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("USER")

var (
	CodeUserNotFound       = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "User not found")
	CodeUserAlreadyExists  = ErrRegistry.Register("ALREADY_EXISTS", errx.TypeConflict, http.StatusConflict, "User already exists")
	CodeInvalidCredentials = ErrRegistry.Register("INVALID_CREDENTIALS", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid tenant, username or password")
)

func ErrUserNotFound() *errx.Error {
	return ErrRegistry.New(CodeUserNotFound)
}

func ErrUserAlreadyExists(username string) *errx.Error {
	return ErrRegistry.New(CodeUserAlreadyExists).WithDetail("username", username)
}

func ErrInvalidCredentials() *errx.Error {
	return ErrRegistry.New(CodeInvalidCredentials)
}
