package client

import (
	"context"
	"time"
)

// Scheduler handles precise waits for a booking window.
type Scheduler struct {
	// SpinDuration is how long before the target to switch from sleeping to
	// busy-waiting. Default: 5ms
	SpinDuration time.Duration

	now func() time.Time
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		SpinDuration: 5 * time.Millisecond,
		now:          time.Now,
	}
}

// SleepUntil blocks until target. It sleeps for the bulk of the wait, then
// spins for the final milliseconds so the first postback leaves as close to
// the window opening as the OS allows. Returns the drift (wake - target).
// A cancelled context aborts the wait with ctx.Err().
func (s *Scheduler) SleepUntil(ctx context.Context, target time.Time) (time.Duration, error) {
	now := s.clock()
	if !now.Before(target) {
		return now.Sub(target), nil
	}

	remaining := target.Sub(now)
	if remaining > s.SpinDuration {
		timer := time.NewTimer(remaining - s.SpinDuration)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
		}
	}

	for {
		now = s.clock()
		if !now.Before(target) {
			break
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
	return now.Sub(target), nil
}

func (s *Scheduler) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
