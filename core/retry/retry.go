// Package retry runs remote calls under a fixed attempt budget. Every network
// step of a scheduling run goes through Do so that attempts are logged and
// counted the same way everywhere.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kilianp07/smartcharge/core/logger"
	"github.com/kilianp07/smartcharge/core/metrics"
)

// ErrExhausted is matched by every error returned after the budget ran out.
var ErrExhausted = errors.New("attempt budget exhausted")

// Budget bounds a retried call. MaxAttempts includes the first try.
type Budget struct {
	MaxAttempts int           `json:"max_attempts"`
	Delay       time.Duration `json:"delay"`
}

// Validate rejects budgets that could never run the operation.
func (b Budget) Validate() error {
	if b.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", b.MaxAttempts)
	}
	if b.Delay < 0 {
		return fmt.Errorf("delay must not be negative, got %s", b.Delay)
	}
	return nil
}

// ExhaustedError reports the last failure of a call that used its whole budget.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() []error { return []error{ErrExhausted, e.Err} }

// Permanent marks err as not worth retrying. Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Timer is the wait primitive between attempts.
type Timer = backoff.Timer

// Retrier holds the collaborators shared by every retried call.
type Retrier struct {
	Log     logger.Logger
	Metrics metrics.AttemptRecorder
	// NewTimer overrides the wall-clock timer, mostly for tests.
	NewTimer func() Timer
}

// Op is a single attempt of a remote call.
type Op[T any] func(ctx context.Context) (T, error)

// Do runs op until it succeeds, the budget is spent or ctx is cancelled. The
// wait between attempts is constant. Each attempt is logged with its index as
// it happens.
func Do[T any](ctx context.Context, r *Retrier, name string, b Budget, op Op[T]) (T, error) {
	var zero T
	if err := b.Validate(); err != nil {
		return zero, fmt.Errorf("%s: %w", name, err)
	}
	if r == nil {
		r = &Retrier{}
	}
	log := logger.FromContext(ctx, r.Log)

	attempt := 0
	permanent := false
	wrapped := func() (T, error) {
		attempt++
		log.Infof("%s: attempt %d/%d", name, attempt, b.MaxAttempts)
		res, err := op(ctx)
		r.record(name, attempt, b.MaxAttempts, err)
		if err != nil {
			var pe *backoff.PermanentError
			permanent = errors.As(err, &pe)
			log.Warnf("%s: attempt %d/%d failed: %v", name, attempt, b.MaxAttempts, err)
			return res, err
		}
		log.Infof("%s: attempt %d/%d succeeded", name, attempt, b.MaxAttempts)
		return res, nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(b.Delay), uint64(b.MaxAttempts-1)),
		ctx,
	)
	notify := func(_ error, wait time.Duration) {
		log.Debugf("%s: waiting %s before next attempt", name, wait)
	}
	var timer Timer
	if r.NewTimer != nil {
		timer = r.NewTimer()
	}

	res, err := backoff.RetryNotifyWithTimerAndData(wrapped, policy, notify, timer)
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, fmt.Errorf("%s: %w", name, ctxErr)
	}
	if permanent {
		return zero, fmt.Errorf("%s: %w", name, err)
	}
	log.Errorf("%s: all %d attempts failed", name, b.MaxAttempts)
	return zero, &ExhaustedError{Operation: name, Attempts: attempt, Err: err}
}

func (r *Retrier) record(name string, attempt, total int, err error) {
	if r.Metrics == nil {
		return
	}
	ev := metrics.AttemptEvent{
		Operation:   name,
		Attempt:     attempt,
		MaxAttempts: total,
		Success:     err == nil,
		Time:        time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if rerr := r.Metrics.RecordAttempt(ev); rerr != nil {
		logger.OrNop(r.Log).Debugf("record attempt: %v", rerr)
	}
}
