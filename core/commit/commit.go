// Package commit sends the chosen start time to the vehicle and reads it
// back until the vehicle reports the same minute.
package commit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/logger"
	"github.com/kilianp07/smartcharge/core/retry"
	"github.com/kilianp07/smartcharge/core/vehicle"
)

// ErrVerificationMismatch means no round confirmed the start time.
var ErrVerificationMismatch = errors.New("scheduled start could not be verified")

// MismatchError is a single round whose read-back differed from what was sent.
type MismatchError struct {
	Sent     clock.Time
	ReadBack string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("vehicle reports %q, sent %s", e.ReadBack, e.Sent)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the wall-clock Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Controller runs the send, settle, read-back rounds.
type Controller struct {
	Sink      vehicle.CommandSink
	Telemetry vehicle.Telemetry
	VIN       string
	// Rounds bounds the number of send and verify rounds and the wait
	// between them.
	Rounds  retry.Budget
	Settle  time.Duration
	Retrier *retry.Retrier
	Sleep   Sleeper
	Log     logger.Logger
}

// Result describes a verified commit.
type Result struct {
	Start    clock.Time
	ReadBack string
}

// Commit programs start and verifies it. Exhausted rounds return an error
// matching ErrVerificationMismatch.
func (c *Controller) Commit(ctx context.Context, start clock.Time) (Result, error) {
	log := logger.FromContext(ctx, c.Log)
	sleep := c.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	round := 0
	res, err := retry.Do(ctx, c.Retrier, "commit start time", c.Rounds, func(ctx context.Context) (Result, error) {
		round++
		if err := c.Sink.SetChargeStart(ctx, c.VIN, start); err != nil {
			log.Warnf("round %d: sending start %s failed: %v", round, start, err)
			return Result{}, fmt.Errorf("send command: %w", err)
		}
		log.Debugf("round %d: start %s sent, settling for %s", round, start, c.Settle)
		if err := sleep(ctx, c.Settle); err != nil {
			return Result{}, err
		}
		got, err := c.Telemetry.ScheduledStart(ctx)
		if err != nil {
			log.Warnf("round %d: reading back scheduled start failed: %v", round, err)
			return Result{}, fmt.Errorf("read back: %w", err)
		}
		same, err := clock.Equal(got, start.String())
		if err != nil {
			log.Warnf("round %d: unreadable scheduled start %q: %v", round, got, err)
			return Result{}, fmt.Errorf("read back: %w", err)
		}
		if !same {
			log.Warnf("round %d: vehicle reports %q, expected %s", round, got, start)
			return Result{}, &MismatchError{Sent: start, ReadBack: got}
		}
		return Result{Start: start, ReadBack: got}, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, fmt.Errorf("%w: %w", ErrVerificationMismatch, err)
	}
	log.Infof("charging start %s confirmed by vehicle after %d round(s)", start, round)
	return res, nil
}
