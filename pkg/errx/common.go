package errx

// Validation creates a 400 error for rejected input. Attach field messages
// with WithField or WithFieldErrors.
func Validation(message string) *Error {
	return New(message, TypeValidation)
}
