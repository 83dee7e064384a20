// Package result provides a two-variant success/failure value.
//
// A Result is either Ok(value) or Err(error), never both. Chains are built
// with AndThen / Map for the happy path and OrElse for recovery:
//
//	r := result.Ok(5).
//	    Map(func(x int) int { return x + 1 }).
//	    OrElse(func(err error) result.Result[int] { return result.Ok(0) })
package result

import (
	"errors"
	"fmt"
)

// ErrNilError is stored when Err is constructed with a nil error.
var ErrNilError = errors.New("result: nil error")

// Result holds either a value or an error.
type Result[T any] struct {
	value T
	err   error
	ok    bool
}

// Ok wraps a success value.
func Ok[T any](value T) Result[T] {
	return Result[T]{value: value, ok: true}
}

// Err wraps a failure.
func Err[T any](err error) Result[T] {
	if err == nil {
		err = ErrNilError
	}
	return Result[T]{err: err}
}

// From builds a Result from a conventional (value, error) pair.
func From[T any](value T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(value)
}

// Try runs fn and wraps its outcome.
func Try[T any](fn func() (T, error)) Result[T] {
	return From(fn())
}

// IsOk reports whether r holds a value.
func (r Result[T]) IsOk() bool { return r.ok }

// IsErr reports whether r holds an error.
func (r Result[T]) IsErr() bool { return !r.ok }

// Value returns the success value and true, or the zero value and false.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.ok
}

// Error returns the failure, or nil for Ok.
func (r Result[T]) Error() error {
	if r.ok {
		return nil
	}
	return r.err
}

// Unwrap converts back to a (value, error) pair.
func (r Result[T]) Unwrap() (T, error) {
	return r.value, r.Error()
}

// UnwrapOr returns the value, or def on Err.
func (r Result[T]) UnwrapOr(def T) T {
	if r.ok {
		return r.value
	}
	return def
}

// UnwrapOrError returns the value if Ok, else the error. Meant for display
// and debugging, not control flow.
func (r Result[T]) UnwrapOrError() any {
	if r.ok {
		return r.value
	}
	return r.err
}

// AndThen binds fn to the value. fn's Result is returned as is, so a
// failing step does not get wrapped twice. On Err, r is returned unchanged.
func (r Result[T]) AndThen(fn func(T) Result[T]) Result[T] {
	if !r.ok {
		return r
	}
	return fn(r.value)
}

// Map applies fn to the value and wraps the output. On Err, r is returned
// unchanged.
func (r Result[T]) Map(fn func(T) T) Result[T] {
	if !r.ok {
		return r
	}
	return Ok(fn(r.value))
}

// OrElse lets fn recover from an error. On Ok, r is returned unchanged.
func (r Result[T]) OrElse(fn func(error) Result[T]) Result[T] {
	if r.ok {
		return r
	}
	return fn(r.err)
}

// MapErr transforms the error of an Err result.
func (r Result[T]) MapErr(fn func(error) error) Result[T] {
	if r.ok {
		return r
	}
	return Err[T](fn(r.err))
}

// String renders Ok(value) or Err(error).
func (r Result[T]) String() string {
	if r.ok {
		return fmt.Sprintf("Ok(%v)", r.value)
	}
	return fmt.Sprintf("Err(%v)", r.err)
}

// Bind is AndThen for functions that change the value type.
func Bind[T, U any](r Result[T], fn func(T) Result[U]) Result[U] {
	if !r.ok {
		return Err[U](r.err)
	}
	return fn(r.value)
}

// Then is Map for functions that change the value type.
func Then[T, U any](r Result[T], fn func(T) U) Result[U] {
	if !r.ok {
		return Err[U](r.err)
	}
	return Ok(fn(r.value))
}
