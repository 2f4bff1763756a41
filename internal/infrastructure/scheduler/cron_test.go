package scheduler

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCronSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewCronScheduler("every now and then", "", nil)
	require.Error(t, err)
}

func TestNewCronSchedulerRejectsBadTimezone(t *testing.T) {
	_, err := NewCronScheduler("0 * * * *", "Mars/Olympus", nil)
	require.Error(t, err)
}

func TestNextHonoursTimezone(t *testing.T) {
	s, err := NewCronScheduler("30 6 * * *", "Europe/Copenhagen", nil)
	require.NoError(t, err)

	// 2025-11-08 is winter time, UTC+1.
	next := s.Next(time.Date(2025, time.November, 8, 4, 0, 0, 0, time.UTC))
	assert.True(t, next.Equal(time.Date(2025, time.November, 8, 5, 30, 0, 0, time.UTC)), "got %v", next)
}

func TestStartRunsJobUntilStopped(t *testing.T) {
	s, err := NewCronScheduler("@every 1s", "", nil)
	require.NoError(t, err)

	runs := make(chan time.Time, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx, func(at time.Time) { runs <- at }))
	require.NoError(t, s.Start(ctx, func(time.Time) { t.Error("second Start must not register a job") }))

	select {
	case <-runs:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestStartNilJob(t *testing.T) {
	s, err := NewCronScheduler("0 * * * *", "", nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background(), nil))
	require.NoError(t, s.Stop(context.Background()))
}
