package errx

// Type represents the category of error
type Type string

const (
	TypeInternal      Type = "INTERNAL"
	TypeValidation    Type = "VALIDATION"
	TypeAuthorization Type = "AUTHORIZATION"
	TypeNotFound      Type = "NOT_FOUND"
	TypeConflict      Type = "CONFLICT"
	TypeBusiness      Type = "BUSINESS"
	TypeExternal      Type = "EXTERNAL"

	// TypeExpired marks time-bound failures (expired tokens, codes, pending
	// authorizations) so callers can restart a flow instead of treating the
	// input as invalid.
	TypeExpired Type = "EXPIRED"

	// TypeIntegrity marks failed signature or key checks. These always fail closed.
	TypeIntegrity Type = "INTEGRITY"
)

func (t Type) String() string {
	return string(t)
}
