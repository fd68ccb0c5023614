/*
scheduler.go - Periodic, non-overlapping job runner

PURPOSE:
  Runs each registered detection job on its own interval and exposes a
  manual trigger for the same jobs. A task never runs concurrently with
  itself: a run requested while one is in flight is skipped, not queued.

DESIGN:
  - One goroutine and ticker per task, sharing a stop channel
  - RunOnStart tasks execute immediately when the scheduler starts
  - A per-task running flag decides overlap; skips are counted in metrics
  - Panics inside a task are recovered and logged; the loop keeps going
  - Trigger runs asynchronously and is tracked by the same WaitGroup, so
    Stop waits for event-driven runs too

USAGE:
  s := scheduler.New(logger, collector)
  s.Register(scheduler.TaskSpec{Name: "overload", Interval: 15 * time.Minute, Run: d.CheckOverload})
  s.Start(ctx)
  // ... later
  s.Stop()

SEE ALSO:
  - detection/detector.go: the job functions
  - api/jobs.go: manual trigger endpoint
*/
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/metrics"
)

// ErrStopped is returned by Trigger after Stop.
var ErrStopped = errors.New("scheduler stopped")

// TaskFunc runs one job and reports how many items it produced.
type TaskFunc func(ctx context.Context) int

// TaskSpec describes a registered task. A zero Interval registers a task
// that only runs on demand.
type TaskSpec struct {
	Name       string
	Interval   time.Duration
	RunOnStart bool
	Run        TaskFunc
}

// RunResult describes one execution attempt.
type RunResult struct {
	Task     string
	RunID    string
	Started  time.Time
	Duration time.Duration
	Count    int
	Skipped  bool // another run of the same task was in flight
}

// TaskInfo is the externally visible state of a task.
type TaskInfo struct {
	Name     string
	Interval time.Duration
	Running  bool
	LastRun  *RunResult
}

type task struct {
	spec    TaskSpec
	running atomic.Bool
	last    atomic.Pointer[RunResult]
}

// =============================================================================
// SCHEDULER
// =============================================================================

type Scheduler struct {
	Logger  *slog.Logger
	Metrics metrics.Collector
	Clock   generic.Clock

	tasks *xsync.Map[string, *task]

	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	stopped bool
}

func New(logger *slog.Logger, m metrics.Collector) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Scheduler{
		Logger:  logger,
		Metrics: m,
		tasks:   xsync.NewMap[string, *task](),
		stop:    make(chan struct{}),
	}
}

// Register adds a task. Names must be unique and tasks must be registered
// before Start to be scheduled periodically.
func (s *Scheduler) Register(spec TaskSpec) error {
	if spec.Name == "" {
		return &generic.ValidationError{Field: "name", Message: "task name is required"}
	}
	if spec.Run == nil {
		return &generic.ValidationError{Field: "run", Message: fmt.Sprintf("task %s has no function", spec.Name)}
	}
	if spec.Interval < 0 {
		return &generic.ValidationError{Field: "interval", Message: fmt.Sprintf("task %s has a negative interval", spec.Name)}
	}
	if _, loaded := s.tasks.LoadOrStore(spec.Name, &task{spec: spec}); loaded {
		return &generic.ValidationError{Field: "name", Message: fmt.Sprintf("task %s already registered", spec.Name)}
	}
	return nil
}

// Start launches one loop per periodic task. Calling it twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return
	}
	s.started = true

	periodic := 0
	s.tasks.Range(func(_ string, t *task) bool {
		if t.spec.Interval > 0 {
			periodic++
			s.wg.Add(1)
			go s.loop(ctx, t)
		}
		return true
	})
	s.Logger.Info("scheduler started", "tasks", periodic)
}

// Stop ends every loop and waits for in-flight runs, including triggered ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	s.Logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, t *task) {
	defer s.wg.Done()

	if t.spec.RunOnStart {
		s.execute(ctx, t)
	}

	ticker := time.NewTicker(t.spec.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.execute(ctx, t)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// =============================================================================
// ON-DEMAND EXECUTION
// =============================================================================

// RunNow executes the named task synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) (RunResult, error) {
	t, ok := s.tasks.Load(name)
	if !ok {
		return RunResult{}, &generic.NotFoundError{Kind: "task", ID: name}
	}
	return s.execute(ctx, t), nil
}

// Trigger executes the named task in the background. The run outlives
// ctx's cancellation but not Stop.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	t, ok := s.tasks.Load(name)
	if !ok {
		return &generic.NotFoundError{Kind: "task", ID: name}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(context.WithoutCancel(ctx), t)
	}()
	return nil
}

// Tasks lists registered tasks sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	var out []TaskInfo
	s.tasks.Range(func(name string, t *task) bool {
		out = append(out, TaskInfo{
			Name:     name,
			Interval: t.spec.Interval,
			Running:  t.running.Load(),
			LastRun:  t.last.Load(),
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) execute(ctx context.Context, t *task) (result RunResult) {
	result = RunResult{Task: t.spec.Name, RunID: uuid.NewString(), Started: s.Clock.Now()}

	if !t.running.CompareAndSwap(false, true) {
		result.Skipped = true
		s.Metrics.JobSkipped(t.spec.Name)
		s.Logger.Debug("task already running, skipped", "task", t.spec.Name)
		return result
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("task panicked", "task", t.spec.Name, "run_id", result.RunID, "panic", r)
			result.Count = 0
		}
		result.Duration = time.Since(start)
		last := result
		t.last.Store(&last)
		t.running.Store(false)
	}()

	result.Count = t.spec.Run(ctx)
	return result
}
