// Package fn holds small generic helpers shared by the engine packages:
// a Result type for per-item outcomes and a few slice utilities.
package fn

// Result carries either a value or the error that prevented producing it.
type Result[T any] struct {
	val T
	err error
	ok  bool
}

// Ok wraps a value.
func Ok[T any](v T) Result[T] {
	return Result[T]{val: v, ok: true}
}

// Err wraps a failure. The value is the zero T.
func Err[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// Unwrap returns the value and error.
func (r Result[T]) Unwrap() (T, error) { return r.val, r.err }

// Error returns the failure, or nil for an Ok result.
func (r Result[T]) Error() error { return r.err }
