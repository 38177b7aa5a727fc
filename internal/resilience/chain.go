package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrAllFailed is returned when every step of a [Chain] fails.
var ErrAllFailed = errors.New("all alternatives failed")

// permanentError marks a failure that must not be retried by another step.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that [Chain.Run] stops at the failing step instead
// of moving on to the next alternative. Use it when trying another
// alternative could do harm. A nil err yields nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Step is one alternative in a [Chain].
type Step[T any] struct {
	Name  string
	Value T
}

// Attempt records the outcome of running one step.
type Attempt struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Chain runs an ordered list of alternatives and stops at the first success.
// Each step is tried at most once per Run; a failed step is never retried.
//
// A Chain is immutable after construction and safe for concurrent use.
type Chain[T any] struct {
	steps     []Step[T]
	onAttempt func(Attempt)
}

// ChainOption configures a [Chain].
type ChainOption[T any] func(*Chain[T])

// WithAttemptHook registers fn to be called after every attempt, in order.
func WithAttemptHook[T any](fn func(Attempt)) ChainOption[T] {
	return func(c *Chain[T]) { c.onAttempt = fn }
}

// NewChain returns a [Chain] that tries steps in the given order.
func NewChain[T any](steps []Step[T], opts ...ChainOption[T]) *Chain[T] {
	c := &Chain[T]{steps: append([]Step[T](nil), steps...)}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Len returns the number of steps.
func (c *Chain[T]) Len() int { return len(c.steps) }

// Run calls fn for each step until one returns nil. It returns the attempts
// made, in order; the last attempt is the successful one when err is nil.
//
// When ctx is done before a step starts, Run stops and returns ctx.Err()
// joined with the failures so far. A step failing with a [Permanent] error
// also stops the run; the result joins the failures so far and does not wrap
// [ErrAllFailed]. When every step fails, the error wraps [ErrAllFailed] and
// each step's error.
func (c *Chain[T]) Run(ctx context.Context, fn func(ctx context.Context, v T) error) ([]Attempt, error) {
	attempts := make([]Attempt, 0, len(c.steps))
	var errs []error
	for _, step := range c.steps {
		if err := ctx.Err(); err != nil {
			return attempts, errors.Join(append([]error{err}, errs...)...)
		}
		start := time.Now()
		err := fn(ctx, step.Value)
		a := Attempt{Name: step.Name, Err: err, Duration: time.Since(start)}
		attempts = append(attempts, a)
		if c.onAttempt != nil {
			c.onAttempt(a)
		}
		if err == nil {
			return attempts, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
		var perm *permanentError
		if errors.As(err, &perm) {
			return attempts, errors.Join(errs...)
		}
		slog.Debug("alternative failed, trying next", "step", step.Name, "err", err)
	}
	if len(errs) == 0 {
		return attempts, fmt.Errorf("%w: no alternatives", ErrAllFailed)
	}
	return attempts, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
