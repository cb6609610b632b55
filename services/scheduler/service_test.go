package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type countingSweeper struct{ calls atomic.Int32 }

func (c *countingSweeper) Sweep() int {
	c.calls.Add(1)
	return 2
}

func TestStartRunsDueTasksAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	sweeper := &countingSweeper{}
	svc := NewService(time.Second)
	svc.Register(SessionSweepTask(sweeper, time.Hour))

	require.NoError(t, svc.Start(context.Background()))
	require.Eventually(t, func() bool {
		states := svc.GetTaskStatus()
		return len(states) == 1 && states[0].LastStatus == TaskStatusSuccess
	}, 2*time.Second, 5*time.Millisecond)

	states := svc.GetTaskStatus()
	assert.Equal(t, SessionSweepTaskID, states[0].ID)
	assert.Equal(t, 2, states[0].Processed)
	assert.NotNil(t, states[0].LastRunAt)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(ctx))
	assert.Equal(t, int32(1), sweeper.calls.Load(), "interval has not elapsed, so the task ran once")
}

func TestRunTaskNowRecordsFailures(t *testing.T) {
	svc := NewService(time.Minute)
	svc.Register(Task{
		ID:       "broken",
		Name:     "Always fails",
		Interval: time.Hour,
		Run: func(context.Context) (int, error) {
			return 0, errors.New("boom")
		},
	})

	assert.ErrorIs(t, svc.RunTaskNow("missing"), ErrTaskNotFound)
	require.NoError(t, svc.RunTaskNow("broken"))
	require.Eventually(t, func() bool {
		return svc.GetTaskStatus()[0].LastStatus == TaskStatusError
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "boom", svc.GetTaskStatus()[0].LastError)
	assert.False(t, svc.IsTaskRunning("broken"))
}

func TestShouldRunHonoursInterval(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(time.Minute)
	svc.now = func() time.Time { return now }
	svc.Register(SessionSweepTask(&countingSweeper{}, 10*time.Minute))

	entry := svc.tasks[SessionSweepTaskID]
	assert.True(t, svc.shouldRunLocked(entry), "never-run tasks are due")

	svc.updateTaskStatus(SessionSweepTaskID, nil, 0)
	now = now.Add(5 * time.Minute)
	assert.False(t, svc.shouldRunLocked(entry))

	now = now.Add(5 * time.Minute)
	assert.True(t, svc.shouldRunLocked(entry))
}
