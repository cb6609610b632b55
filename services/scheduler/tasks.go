package scheduler

import (
	"context"
	"time"
)

const SessionSweepTaskID = "session-sweep"

type sessionSweeper interface {
	Sweep() int
}

// SessionSweepTask ends expired login sessions so their users' collection
// subscriptions are released even if they never come back.
func SessionSweepTask(sweeper sessionSweeper, interval time.Duration) Task {
	return Task{
		ID:       SessionSweepTaskID,
		Name:     "Expire login sessions",
		Interval: interval,
		Run: func(ctx context.Context) (int, error) {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			return sweeper.Sweep(), nil
		},
	}
}
