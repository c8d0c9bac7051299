// Package retry provides the bounded retry primitives used during
// cluster setup: a fixed-delay loop for operations that fail while
// dependent infrastructure converges, and a classifier-driven
// exponential backoff for cloud API calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrAttemptsExhausted is returned by Fixed when the attempt budget is
// spent without the operation reporting success.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Op is one attempt of a retryable operation. done reports whether the
// operation succeeded; a false done with a nil error is retried after
// the delay. A non-nil error is a transport-level failure and
// propagates immediately without consuming further attempts.
type Op func(ctx context.Context) (done bool, err error)

// Fixed runs op up to attempts times with a constant delay between
// attempts. The delay is deliberately not exponential: the dominant
// caller is the node-join path, where the failure mode is an API server
// that is not yet serving and resolves within a roughly constant window.
func Fixed(ctx context.Context, attempts int, delay time.Duration, op Op) error {
	if attempts < 1 {
		return fmt.Errorf("retry: attempts must be positive, got %d", attempts)
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		done, err := op(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("cancelled after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, ErrAttemptsExhausted)
}

// Class is the retry classification of an error.
type Class int

const (
	// Transient errors are expected to resolve and are retried.
	Transient Class = iota
	// Fatal errors will not resolve by waiting and stop the retry loop.
	Fatal
)

// Classifier decides whether an error from a given transport is worth
// retrying. Implemented per transport so the retry policy is testable
// independent of the underlying client.
type Classifier interface {
	Classify(err error) Class
}

// ClassifierFunc adapts a func to Classifier.
type ClassifierFunc func(err error) Class

// Classify implements Classifier.
func (f ClassifierFunc) Classify(err error) Class { return f(err) }

// WithClassifier runs op under exponential backoff until it succeeds,
// the classifier declares an error fatal, or ctx is cancelled. Used for
// cloud API calls where rate limits and resource locks are transient.
// opts override the default backoff curve (1s initial, 30s cap, 5m
// elapsed budget).
func WithClassifier(ctx context.Context, c Classifier, op func() error, opts ...backoff.ExponentialBackOffOpts) error {
	defaults := []backoff.ExponentialBackOffOpts{
		backoff.WithInitialInterval(time.Second),
		backoff.WithMaxInterval(30 * time.Second),
		backoff.WithMaxElapsedTime(5 * time.Minute),
	}
	policy := backoff.WithContext(backoff.NewExponentialBackOff(append(defaults, opts...)...), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if IsFatal(err) || c.Classify(err) == Fatal {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// FatalError marks an error as non-retryable regardless of classifier.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// MarkFatal wraps err so retry loops stop immediately.
func MarkFatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err carries the fatal marker.
func IsFatal(err error) bool {
	var fatalErr *FatalError
	return errors.As(err, &fatalErr)
}
