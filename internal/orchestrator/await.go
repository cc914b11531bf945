package orchestrator

import (
	"context"
	"time"
)

// await polls cond at the given interval until it reports true, the budget
// elapses, or the context ends. The condition is evaluated immediately, again
// after every interval, and one final time at the deadline. Returns whether
// the condition was observed; a context error is the only error path besides
// the condition's own.
//
// This is the one bounded-wait primitive in the package. Challenge recovery
// and the post-login outcome wait both go through it.
func await(ctx context.Context, budget, interval time.Duration, cond func(context.Context) (bool, error)) (bool, error) {
	if interval <= 0 {
		interval = budget
	}
	deadline := time.Now().Add(budget)

	for {
		ok, err := cond(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		wait := interval
		if remaining < wait {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}

// pollInterval divides a wait budget into a handful of re-checks, capped so
// long budgets still poll at a human-scale cadence.
func pollInterval(budget time.Duration) time.Duration {
	interval := budget / 6
	if interval > 5*time.Second {
		interval = 5 * time.Second
	}
	if interval <= 0 {
		interval = budget
	}
	return interval
}
