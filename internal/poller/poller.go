// Package poller drives long-running server-side jobs to completion by
// polling their status at a fixed interval. It never blocks beyond the
// caller's context: abandoning the context stops the loop without leaking
// timers.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultInterval between status polls.
	DefaultInterval = 2 * time.Second
	// DefaultTimeout bounds how long a caller observes a job. The job may
	// still finish server-side after the observation window closes.
	DefaultTimeout = 3 * time.Minute
)

// ErrTimeout means the observation window closed before the job reached a
// terminal status. This is a client-side timeout, not a cancellation: the
// caller should offer "check again" rather than treat the job as dead.
var ErrTimeout = errors.New("poll timed out")

// JobFailedError means the server declared the job failed. Terminal for
// that job id.
type JobFailedError struct {
	Reason string
}

func (e *JobFailedError) Error() string {
	if e.Reason == "" {
		return "job failed"
	}
	return "job failed: " + e.Reason
}

// Snapshot is one observation of a running job.
type Snapshot struct {
	Done     bool
	Failed   bool
	Progress int
	Step     string
	Reason   string // server-reported failure reason when Failed
}

// Config tunes one polling run. The zero value uses the defaults and the
// wall clock.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
	Clock    Clock
	Logger   *slog.Logger
}

// WaitFor polls check until the job reports a terminal status, then fetches
// and returns the full result. onProgress (optional) is invoked once per
// successful poll with the reported progress and current step, including
// the terminal tick.
//
// A transient error on a single poll does not abort the loop; polling
// continues until the timeout, which then reports the last poll error
// alongside ErrTimeout. Cancellation propagates through ctx.
func WaitFor[T any](
	ctx context.Context,
	cfg Config,
	check func(context.Context) (Snapshot, error),
	fetch func(context.Context) (T, error),
	onProgress func(progress int, step string),
) (T, error) {
	var zero T

	clock := cfg.Clock
	if clock == nil {
		clock = RealClock{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	deadline := clock.Now().Add(timeout)
	var lastErr error

	for {
		snap, err := check(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			// Transient: tolerate and keep polling until the deadline.
			lastErr = err
			logger.Debug("Job poll failed, will retry", "error", err)
		case snap.Failed:
			return zero, &JobFailedError{Reason: snap.Reason}
		default:
			lastErr = nil
			if onProgress != nil {
				onProgress(snap.Progress, snap.Step)
			}
			if snap.Done {
				return fetch(ctx)
			}
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-clock.After(interval):
		}

		if clock.Now().After(deadline) {
			return zero, timeoutErr(lastErr)
		}
	}
}

func timeoutErr(lastErr error) error {
	if lastErr != nil {
		return fmt.Errorf("%w (last poll error: %v)", ErrTimeout, lastErr)
	}
	return ErrTimeout
}
