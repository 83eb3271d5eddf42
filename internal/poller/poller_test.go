package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type waitResult struct {
	val string
	err error
}

// startWaitFor runs WaitFor in the background and returns its result channel.
func startWaitFor(ctx context.Context, cfg Config, check func(context.Context) (Snapshot, error), fetch func(context.Context) (string, error), onProgress func(int, string)) <-chan waitResult {
	out := make(chan waitResult, 1)
	go func() {
		val, err := WaitFor(ctx, cfg, check, fetch, onProgress)
		out <- waitResult{val: val, err: err}
	}()
	return out
}

// awaitWaiter blocks until the poll loop parks on the clock.
func awaitWaiter(t *testing.T, clock *ManualClock) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for clock.Waiters() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("poll loop never parked on the clock")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWaitForCompletesAndReportsProgress(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	cfg := Config{Interval: 2 * time.Second, Timeout: time.Minute, Clock: clock}

	script := []Snapshot{
		{Progress: 40, Step: "fetching"},
		{Progress: 75, Step: "scoring"},
		{Done: true, Progress: 100, Step: "done"},
	}
	calls := 0
	check := func(context.Context) (Snapshot, error) {
		snap := script[calls]
		calls++
		return snap, nil
	}
	fetch := func(context.Context) (string, error) { return "result", nil }

	var progress []int
	var steps []string
	res := startWaitFor(context.Background(), cfg, check, fetch, func(p int, s string) {
		progress = append(progress, p)
		steps = append(steps, s)
	})

	awaitWaiter(t, clock)
	clock.Advance(2 * time.Second)
	awaitWaiter(t, clock)
	clock.Advance(2 * time.Second)

	got := <-res
	require.NoError(t, got.err)
	assert.Equal(t, "result", got.val)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{40, 75, 100}, progress)
	assert.Equal(t, []string{"fetching", "scoring", "done"}, steps)
	assert.Equal(t, 0, clock.Waiters())
}

func TestWaitForJobFailure(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	cfg := Config{Interval: time.Second, Timeout: time.Minute, Clock: clock}

	check := func(context.Context) (Snapshot, error) {
		return Snapshot{Failed: true, Reason: "crawler blocked"}, nil
	}
	fetch := func(context.Context) (string, error) {
		t.Fatal("fetch must not run for a failed job")
		return "", nil
	}

	_, err := WaitFor(context.Background(), cfg, check, fetch, nil)

	var jfe *JobFailedError
	require.ErrorAs(t, err, &jfe)
	assert.Equal(t, "crawler blocked", jfe.Reason)
}

func TestWaitForTimeout(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	cfg := Config{Interval: 2 * time.Second, Timeout: 5 * time.Second, Clock: clock}

	check := func(context.Context) (Snapshot, error) {
		return Snapshot{Progress: 10}, nil
	}
	fetch := func(context.Context) (string, error) { return "", nil }

	res := startWaitFor(context.Background(), cfg, check, fetch, nil)

	for i := 0; i < 3; i++ {
		awaitWaiter(t, clock)
		clock.Advance(2 * time.Second)
	}

	got := <-res
	require.ErrorIs(t, got.err, ErrTimeout)
}

func TestWaitForToleratesTransientErrors(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	cfg := Config{Interval: 2 * time.Second, Timeout: time.Minute, Clock: clock}

	calls := 0
	check := func(context.Context) (Snapshot, error) {
		calls++
		if calls == 1 {
			return Snapshot{}, errors.New("connection reset")
		}
		return Snapshot{Done: true, Progress: 100}, nil
	}
	fetch := func(context.Context) (string, error) { return "recovered", nil }

	res := startWaitFor(context.Background(), cfg, check, fetch, nil)

	awaitWaiter(t, clock)
	clock.Advance(2 * time.Second)

	got := <-res
	require.NoError(t, got.err)
	assert.Equal(t, "recovered", got.val)
}

func TestWaitForTimeoutReportsLastPollError(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	cfg := Config{Interval: 2 * time.Second, Timeout: 3 * time.Second, Clock: clock}

	check := func(context.Context) (Snapshot, error) {
		return Snapshot{}, errors.New("dns failure")
	}
	fetch := func(context.Context) (string, error) { return "", nil }

	res := startWaitFor(context.Background(), cfg, check, fetch, nil)

	awaitWaiter(t, clock)
	clock.Advance(2 * time.Second)
	awaitWaiter(t, clock)
	clock.Advance(2 * time.Second)

	got := <-res
	require.ErrorIs(t, got.err, ErrTimeout)
	assert.Contains(t, got.err.Error(), "dns failure")
}

func TestWaitForContextCancellation(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	cfg := Config{Interval: time.Minute, Timeout: time.Hour, Clock: clock}

	ctx, cancel := context.WithCancel(context.Background())
	check := func(context.Context) (Snapshot, error) {
		return Snapshot{Progress: 5}, nil
	}
	fetch := func(context.Context) (string, error) { return "", nil }

	res := startWaitFor(ctx, cfg, check, fetch, nil)

	awaitWaiter(t, clock)
	cancel()

	got := <-res
	require.ErrorIs(t, got.err, context.Canceled)
}

func TestManualClockAdvanceFiresDueWaiters(t *testing.T) {
	clock := NewManualClock(time.Unix(100, 0))

	short := clock.After(time.Second)
	long := clock.After(time.Minute)
	require.Equal(t, 2, clock.Waiters())

	clock.Advance(2 * time.Second)
	select {
	case <-short:
	default:
		t.Fatal("short waiter did not fire")
	}
	select {
	case <-long:
		t.Fatal("long waiter fired early")
	default:
	}
	assert.Equal(t, 1, clock.Waiters())
}
