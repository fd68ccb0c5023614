package scheduler_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/metrics"
	"github.com/warp/staffing-engine/scheduler"
)

func newScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	return scheduler.New(slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.NewNop())
}

func TestRegister_Validation(t *testing.T) {
	s := newScheduler(t)
	noop := func(context.Context) int { return 0 }

	require.NoError(t, s.Register(scheduler.TaskSpec{Name: "a", Run: noop}))
	assert.ErrorIs(t, s.Register(scheduler.TaskSpec{Name: "a", Run: noop}), generic.ErrValidation, "duplicate")
	assert.ErrorIs(t, s.Register(scheduler.TaskSpec{Run: noop}), generic.ErrValidation, "no name")
	assert.ErrorIs(t, s.Register(scheduler.TaskSpec{Name: "b"}), generic.ErrValidation, "no func")
	assert.ErrorIs(t, s.Register(scheduler.TaskSpec{Name: "c", Interval: -time.Second, Run: noop}), generic.ErrValidation)
}

func TestRunNow(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.Register(scheduler.TaskSpec{Name: "count", Run: func(context.Context) int { return 3 }}))

	res, err := s.RunNow(context.Background(), "count")
	require.NoError(t, err)
	assert.Equal(t, "count", res.Task)
	assert.Equal(t, 3, res.Count)
	assert.False(t, res.Skipped)
	assert.NotEmpty(t, res.RunID)

	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].LastRun)
	assert.Equal(t, res.RunID, tasks[0].LastRun.RunID)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestRunNow_PanicRecovered(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.Register(scheduler.TaskSpec{Name: "boom", Run: func(context.Context) int { panic("boom") }}))

	res, err := s.RunNow(context.Background(), "boom")
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.False(t, s.Tasks()[0].Running, "flag released after panic")
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	// GIVEN: A task blocked mid-run
	reg := prometheus.NewRegistry()
	collector := metrics.NewPrometheus(reg, "test")
	s := scheduler.New(slog.New(slog.NewTextHandler(io.Discard, nil)), collector)

	entered := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, s.Register(scheduler.TaskSpec{Name: "slow", Run: func(context.Context) int {
		runs.Add(1)
		close(entered)
		<-release
		return 1
	}}))

	require.NoError(t, s.Trigger(context.Background(), "slow"))
	<-entered

	// WHEN: Another run is requested
	res, err := s.RunNow(context.Background(), "slow")

	// THEN: It is skipped and counted
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.True(t, s.Tasks()[0].Running)
	skipped, err := testutil.GatherAndCount(reg, "test_job_skipped_total")
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)

	close(release)
	s.Stop()
	assert.EqualValues(t, 1, runs.Load())
	assert.False(t, s.Tasks()[0].Running)
}

func TestTrigger_CancelledContextStillRuns(t *testing.T) {
	s := newScheduler(t)
	done := make(chan error, 1)
	require.NoError(t, s.Register(scheduler.TaskSpec{Name: "t", Run: func(ctx context.Context) int {
		done <- ctx.Err()
		return 0
	}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Trigger(ctx, "t"))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("triggered task did not run")
	}
	s.Stop()

	assert.ErrorIs(t, s.Trigger(context.Background(), "t"), scheduler.ErrStopped)
	assert.ErrorIs(t, s.Trigger(context.Background(), "missing"), generic.ErrNotFound)
}

func TestStart_RunOnStartAndTicks(t *testing.T) {
	s := newScheduler(t)
	var immediate, periodic atomic.Int32
	ticked := make(chan struct{}, 1)

	require.NoError(t, s.Register(scheduler.TaskSpec{
		Name: "immediate", Interval: time.Hour, RunOnStart: true,
		Run: func(context.Context) int { immediate.Add(1); return 0 },
	}))
	require.NoError(t, s.Register(scheduler.TaskSpec{
		Name: "periodic", Interval: 10 * time.Millisecond,
		Run: func(context.Context) int {
			periodic.Add(1)
			select {
			case ticked <- struct{}{}:
			default:
			}
			return 0
		},
	}))
	require.NoError(t, s.Register(scheduler.TaskSpec{
		Name: "manual",
		Run:  func(context.Context) int { t.Error("manual task ran on its own"); return 0 },
	}))

	s.Start(context.Background())
	s.Start(context.Background())

	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("periodic task never ticked")
	}
	s.Stop()
	s.Stop()

	assert.EqualValues(t, 1, immediate.Load())
	assert.GreaterOrEqual(t, periodic.Load(), int32(1))

	names := []string{}
	for _, info := range s.Tasks() {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"immediate", "manual", "periodic"}, names)
}
