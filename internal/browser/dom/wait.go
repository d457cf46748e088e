package dom

import (
	"context"
	"errors"
	"time"
)

// ErrWaitTimeout is returned by WaitFor when the condition never held.
var ErrWaitTimeout = errors.New("condition not met before timeout")

// Clock supplies time and bounded delays.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
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

// Condition is polled by WaitFor. A non-nil error stops the wait.
type Condition func(ctx context.Context) (bool, error)

// WaitFor polls cond every interval until it holds, it errors, ctx ends, or timeout
// elapses. cond is always evaluated at least once, so a zero timeout is a single probe.
func WaitFor(ctx context.Context, clk Clock, timeout, interval time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	deadline := clk.Now().Add(timeout)
	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		remaining := deadline.Sub(clk.Now())
		if remaining <= 0 {
			return ErrWaitTimeout
		}
		if remaining < interval {
			interval = remaining
		}
		if err := clk.Sleep(ctx, interval); err != nil {
			return err
		}
	}
}
