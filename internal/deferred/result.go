// Package deferred provides a single-owner, single-settlement result box whose
// completion handlers run once, at an explicit flush point chosen by the owner.
//
// A Result is not safe for concurrent use. Resolve, Reject and the handler
// registrations must be sequenced by the owning goroutine, and Settle is
// expected to run when the owning scope exits:
//
//	res := deferred.New[Order]()
//	defer res.Settle()
//
// or, when the unhandled-rejection error must be observed, through Run.
package deferred

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrUnhandledRejection marks a rejected result flushed without a failure handler.
var ErrUnhandledRejection = errors.New("deferred: unhandled rejection")

// UnhandledRejectionError carries the status and cause of a rejection nobody handled.
type UnhandledRejectionError struct {
	Status int
	Err    error
}

func (e *UnhandledRejectionError) Error() string {
	return fmt.Sprintf("deferred: unhandled rejection (status %d): %v", e.Status, e.Err)
}

// Unwrap exposes both the sentinel and the original cause.
func (e *UnhandledRejectionError) Unwrap() []error {
	return []error{ErrUnhandledRejection, e.Err}
}

// Event is the snapshot handed to every handler.
type Event[T any] struct {
	Status       int
	Response     T
	ResponseJSON []byte
	Err          error
	Timestamp    time.Time
	// Credential is true for a resolution and false for a rejection.
	Credential bool
}

// Result is a deferred success/failure value.
type Result[T any] struct {
	resolved bool
	rejected bool
	flushed  bool
	event    Event[T]

	success []func(Event[T], T)
	failure func(Event[T], error)
	finally func(Event[T])

	logger *zerolog.Logger
	now    func() time.Time
}

// New returns a pending result.
func New[T any]() *Result[T] {
	return &Result[T]{now: time.Now}
}

// WithLogger sets the logger used to report unhandled rejections.
func (r *Result[T]) WithLogger(logger zerolog.Logger) *Result[T] {
	r.logger = &logger
	return r
}

// Resolve records a success. It is ignored once the result was rejected or flushed.
func (r *Result[T]) Resolve(status int, value T) {
	if r.rejected || r.flushed {
		return
	}
	r.resolved = true
	raw, err := json.Marshal(value)
	if err != nil {
		raw = nil
	}
	r.event = Event[T]{
		Status:       status,
		Response:     value,
		ResponseJSON: raw,
		Timestamp:    r.clock(),
		Credential:   true,
	}
}

// Reject records a failure. A rejection overrides an earlier, not yet flushed resolution.
func (r *Result[T]) Reject(status int, err error) {
	if r.flushed {
		return
	}
	r.resolved = false
	r.rejected = true
	r.event = Event[T]{
		Status:    status,
		Err:       err,
		Timestamp: r.clock(),
	}
}

// OnSuccess appends a success handler. Handlers run in registration order.
func (r *Result[T]) OnSuccess(fn func(Event[T], T)) *Result[T] {
	if fn != nil {
		r.success = append(r.success, fn)
	}
	return r
}

// OnFailure sets the failure handler, replacing any earlier one.
func (r *Result[T]) OnFailure(fn func(Event[T], error)) *Result[T] {
	r.failure = fn
	return r
}

// OnFinally sets the handler run after the success or failure handlers, replacing any earlier one.
func (r *Result[T]) OnFinally(fn func(Event[T])) *Result[T] {
	r.finally = fn
	return r
}

// Then registers a success handler and, when non-nil, a failure handler.
func (r *Result[T]) Then(onSuccess func(Event[T], T), onFailure func(Event[T], error)) *Result[T] {
	r.OnSuccess(onSuccess)
	if onFailure != nil {
		r.OnFailure(onFailure)
	}
	return r
}

// Catch is OnFailure.
func (r *Result[T]) Catch(fn func(Event[T], error)) *Result[T] { return r.OnFailure(fn) }

// Finally is OnFinally.
func (r *Result[T]) Finally(fn func(Event[T])) *Result[T] { return r.OnFinally(fn) }

// Pending reports whether neither Resolve nor Reject has been called.
func (r *Result[T]) Pending() bool { return !r.resolved && !r.rejected }

// Rejected reports whether the result is settled as a failure.
func (r *Result[T]) Rejected() bool { return r.rejected }

// Settle runs the registered handlers exactly once. Later calls are no-ops.
//
// A rejection with a failure handler runs that handler and then the finally
// handler. A resolution runs every success handler and then the finally
// handler. A rejection without a failure handler is logged and returned as an
// *UnhandledRejectionError. A result that was never settled runs nothing.
func (r *Result[T]) Settle() error {
	if r.flushed {
		return nil
	}
	r.flushed = true
	ev := r.event

	switch {
	case r.rejected && r.failure != nil:
		r.failure(ev, ev.Err)
		if r.finally != nil {
			r.finally(ev)
		}
	case r.rejected:
		err := &UnhandledRejectionError{Status: ev.Status, Err: ev.Err}
		logger := r.logger
		if logger == nil {
			logger = &log.Logger
		}
		logger.Error().Err(ev.Err).Int("status", ev.Status).Msg("deferred_unhandled_rejection")
		return err
	case r.resolved:
		for _, fn := range r.success {
			fn(ev, ev.Response)
		}
		if r.finally != nil {
			r.finally(ev)
		}
	}
	return nil
}

// Run hands a fresh result to fn and settles it when fn returns, so every
// registration made inside fn is known before any handler fires.
func Run[T any](fn func(*Result[T])) error {
	res := New[T]()
	fn(res)
	return res.Settle()
}

func (r *Result[T]) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}
