// Package poll repeats a check on a fixed interval until it reports success, fails hard,
// or a time budget runs out.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrTimeout is returned when the check never succeeded within the policy's budget.
var ErrTimeout = errors.New("poll budget exhausted")

var errPending = errors.New("condition not met")

// Policy is a fixed-interval retry budget.
type Policy struct {
	Interval time.Duration
	// Timeout bounds the whole poll. Zero or negative means a single attempt.
	Timeout time.Duration
}

// Result describes how much polling was needed.
type Result struct {
	Attempts int
	Elapsed  time.Duration
}

// Check reports whether the awaited condition holds. A non-nil error aborts polling.
type Check func(ctx context.Context) (bool, error)

// Until runs check immediately and then every p.Interval until it returns true. It
// returns ErrTimeout when the budget is spent, the check's error when it fails, or the
// parent context's error when ctx ends first.
func Until(ctx context.Context, p Policy, check Check) (Result, error) {
	start := time.Now()
	var res Result

	if p.Timeout <= 0 {
		res.Attempts = 1
		ok, err := check(ctx)
		res.Elapsed = time.Since(start)
		switch {
		case err != nil:
			return res, err
		case !ok:
			return res, ErrTimeout
		}
		return res, nil
	}

	budget, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	op := func() error {
		res.Attempts++
		ok, err := check(budget)
		if err != nil {
			// A check cut short by the budget is a pending condition, not a failure.
			if budget.Err() != nil && ctx.Err() == nil {
				return errPending
			}
			return backoff.Permanent(err)
		}
		if !ok {
			return errPending
		}
		return nil
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(p.Interval), budget)
	err := backoff.Retry(op, b)
	res.Elapsed = time.Since(start)

	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		return res, ctx.Err()
	case errors.Is(err, errPending), errors.Is(err, context.DeadlineExceeded):
		return res, ErrTimeout
	default:
		return res, err
	}
}
