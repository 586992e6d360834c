// Package ptrx converts between values and pointers for nullable columns and
// optional JSON fields.
package ptrx

import "time"

// Of returns a pointer to v.
func Of[T any](v T) *T {
	return &v
}

// NonZero returns a pointer to v, or nil when v is the zero value.
func NonZero[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

// Value dereferences p, returning the zero value for nil.
func Value[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// ValueOr dereferences p, returning def for nil.
func ValueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func String(v string) *string         { return &v }
func StringValue(p *string) string     { return Value(p) }
func Time(v time.Time) *time.Time      { return &v }
func TimeValue(p *time.Time) time.Time { return Value(p) }
