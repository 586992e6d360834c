package errx

import (
	"sort"
	"strings"
)

// FieldErrors maps an input field name to the message describing why it was rejected.
type FieldErrors map[string]string

// Add records a message for field. The first message for a field wins.
func (f FieldErrors) Add(field, message string) {
	if _, exists := f[field]; !exists {
		f[field] = message
	}
}

// Empty reports whether no field was rejected.
func (f FieldErrors) Empty() bool {
	return len(f) == 0
}

// Err returns a validation error carrying the field messages, or nil when empty.
func (f FieldErrors) Err(message string) *Error {
	if f.Empty() {
		return nil
	}
	return Validation(message).WithFieldErrors(f)
}

func (f FieldErrors) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return strings.Join(parts, "; ")
}
