// Package wait provides the polling primitive behind every blocking
// operation in duo.
//
// Until knows nothing about sessions or storage. It runs a check function
// on a fixed interval, optionally woken early by a signal channel, until
// the check reports done, the check fails, the timeout elapses or the
// caller's context ends. It never holds locks across sleeps.
//
//	err := wait.Until(ctx, wait.Options{Interval: time.Second, Timeout: time.Minute},
//		func(ctx context.Context) (bool, error) {
//			return fileExists(path), nil
//		})
package wait

import (
	"context"
	"time"

	"github.com/Iron-Ham/duo/internal/errors"
)

// DefaultInterval is used when Options.Interval is zero or negative.
const DefaultInterval = 500 * time.Millisecond

// CheckFunc reports whether the awaited condition holds. A non-nil error
// aborts the wait and is returned unchanged.
type CheckFunc func(ctx context.Context) (done bool, err error)

// Options configures Until.
type Options struct {
	// Interval between checks.
	Interval time.Duration

	// Timeout bounds the whole wait. Zero means no timeout; the wait then
	// ends only through the check or the context.
	Timeout time.Duration

	// Wake triggers an extra check as soon as it delivers. A closed or nil
	// channel is ignored.
	Wake <-chan struct{}

	// Operation names the wait in timeout and cancellation errors.
	Operation string
}

// Until runs check immediately and then after every interval tick or wake
// signal. When the timeout is reached, check runs one final time before
// Until gives up with a *errors.TimeoutError. Cancellation of ctx returns
// an error matching both errors.ErrCanceled and ctx.Err().
func Until(ctx context.Context, opts Options, check CheckFunc) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	op := opts.Operation
	if op == "" {
		op = "wait"
	}

	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	wake := opts.Wake
	for {
		if err := ctx.Err(); err != nil {
			return errors.Canceled(op, err)
		}
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Canceled(op, ctx.Err())
		case <-deadline:
			// Whatever landed during the last interval still counts.
			done, err := check(ctx)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			return errors.NewTimeoutError(op, opts.Timeout)
		case <-ticker.C:
		case _, ok := <-wake:
			if !ok {
				wake = nil
			}
		}
	}
}
