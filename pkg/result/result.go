// Package result provides a two-case Result type used at the client boundary
// in place of loosely shaped {data, error} values.
package result

import "nexosql-backend/pkg/apperr"

// Result is either Ok(value) or Err(failure). The zero value is an Err with
// the generic message so an unset result never reads as success.
type Result[T any] struct {
	value   T
	failure apperr.Failure
	ok      bool
}

func Ok[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

func Err[T any](f apperr.Failure) Result[T] {
	if f.Message == "" {
		f.Message = apperr.GenericMessage
	}
	return Result[T]{failure: f}
}

func (r Result[T]) IsOk() bool { return r.ok }

// Value returns the Ok payload and whether the result is Ok.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.ok
}

// Failure returns the Err payload and whether the result is Err.
func (r Result[T]) Failure() (apperr.Failure, bool) {
	if r.ok {
		return apperr.Failure{}, false
	}
	if r.failure.Message == "" {
		return apperr.Failure{Kind: apperr.KindAPI, Message: apperr.GenericMessage}, true
	}
	return r.failure, true
}

// Match calls exactly one of the two branches.
func Match[T, R any](r Result[T], ok func(T) R, fail func(apperr.Failure) R) R {
	if r.ok {
		return ok(r.value)
	}
	f, _ := r.Failure()
	return fail(f)
}

// Map transforms the Ok payload and passes Err through.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	if r.ok {
		return Ok(fn(r.value))
	}
	f, _ := r.Failure()
	return Err[U](f)
}
