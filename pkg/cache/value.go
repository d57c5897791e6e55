package cache

import "context"

// Value is what a cache publishes: a resource or nothing.
type Value[T any] struct {
	v *T
}

// Some wraps v.
func Some[T any](v T) Value[T] {
	return Value[T]{v: &v}
}

// None is the empty value.
func None[T any]() Value[T] {
	return Value[T]{}
}

func valueOf[T any](p *T) Value[T] {
	return Value[T]{v: p}
}

// Get returns the value and whether it is present.
func (v Value[T]) Get() (T, bool) {
	if v.v == nil {
		var zero T
		return zero, false
	}
	return *v.v, true
}

// Present reports whether a value is loaded.
func (v Value[T]) Present() bool {
	return v.v != nil
}

// Or returns the value, or def when there is none.
func (v Value[T]) Or(def T) T {
	if v.v == nil {
		return def
	}
	return *v.v
}

// OrWait returns the value, or the result of fallback when there is none.
func (v Value[T]) OrWait(ctx context.Context, fallback func(ctx context.Context) (T, error)) (T, error) {
	if v.v != nil {
		return *v.v, nil
	}
	return fallback(ctx)
}
